package debugger

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// TUI is the optional text user interface layered over a Dispatcher. It
// keeps three read-only panels (registers, current source line,
// breakpoints) plus an output log and a command input; there is no live
// machine to disassemble or a conventional call stack to show, so memory/
// stack/disassembly panels are not part of this layout.
type TUI struct {
	Dispatcher *Dispatcher

	App   *tview.Application
	Pages *tview.Pages

	MainLayout *tview.Flex
	RightPanel *tview.Flex

	RegisterView    *tview.TextView
	SourceView      *tview.TextView
	BreakpointsView *tview.TextView
	OutputView      *tview.TextView
	CommandInput    *tview.InputField
}

// NewTUI builds a TUI around an already-constructed Dispatcher.
func NewTUI(d *Dispatcher) *TUI {
	t := &TUI{
		Dispatcher: d,
		App:        tview.NewApplication(),
	}

	t.initializeViews()
	t.buildLayout()
	t.setupKeyBindings()

	return t
}

func (t *TUI) initializeViews() {
	t.RegisterView = tview.NewTextView().SetDynamicColors(true).SetScrollable(true)
	t.RegisterView.SetBorder(true).SetTitle(" Registers ")

	t.SourceView = tview.NewTextView().SetDynamicColors(true).SetScrollable(true)
	t.SourceView.SetBorder(true).SetTitle(" Source Line ")

	t.BreakpointsView = tview.NewTextView().SetDynamicColors(true).SetScrollable(true)
	t.BreakpointsView.SetBorder(true).SetTitle(" Breakpoints ")

	t.OutputView = tview.NewTextView().SetDynamicColors(true).SetScrollable(true).SetWrap(true)
	t.OutputView.SetBorder(true).SetTitle(" Output ")

	t.CommandInput = tview.NewInputField().SetLabel("> ").SetFieldWidth(0)
	t.CommandInput.SetBorder(true).SetTitle(" Command ")
	t.CommandInput.SetDoneFunc(t.handleCommand)
}

func (t *TUI) buildLayout() {
	t.RightPanel = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(t.RegisterView, 0, 2, false).
		AddItem(t.SourceView, 3, 0, false).
		AddItem(t.BreakpointsView, 0, 1, false)

	mainContent := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(t.RightPanel, 0, 1, false).
		AddItem(t.OutputView, 0, 1, false)

	t.MainLayout = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(mainContent, 0, 4, false).
		AddItem(t.CommandInput, 3, 0, true)

	t.Pages = tview.NewPages().AddPage("main", t.MainLayout, true, true)
}

func (t *TUI) setupKeyBindings() {
	t.App.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF5:
			t.executeCommand("resume")
			return nil
		case tcell.KeyF10:
			t.executeCommand("step")
			return nil
		case tcell.KeyCtrlC:
			t.App.Stop()
			return nil
		case tcell.KeyCtrlL:
			t.RefreshAll()
			return nil
		}
		return event
	})
}

func (t *TUI) handleCommand(key tcell.Key) {
	if key != tcell.KeyEnter {
		return
	}
	cmd := t.CommandInput.GetText()
	if cmd == "" {
		return
	}
	t.executeCommand(cmd)
	t.CommandInput.SetText("")
}

func (t *TUI) executeCommand(cmd string) {
	err := t.Dispatcher.Execute(cmd)
	output := t.Dispatcher.GetOutput()

	if err == ErrExit {
		t.App.Stop()
		return
	}
	if err != nil {
		t.WriteOutput(fmt.Sprintf("[red]Error:[white] %v\n", err))
	}
	if output != "" {
		t.WriteOutput(output)
	}

	t.RefreshAll()
}

// WriteOutput appends text to the output view.
func (t *TUI) WriteOutput(text string) {
	_, _ = t.OutputView.Write([]byte(text))
	t.OutputView.ScrollToEnd()
}

// RefreshAll redraws every panel from current session/debug-info state.
func (t *TUI) RefreshAll() {
	t.updateRegisterView()
	t.updateSourceView()
	t.updateBreakpointsView()
	t.App.Draw()
}

func (t *TUI) updateRegisterView() {
	t.RegisterView.Clear()
	h := t.Dispatcher.Session.ActiveHart()
	var b strings.Builder
	fmt.Fprintf(&b, "hart %d  pc=0x%x\n\n", h.HartID(), h.ReadPC())
	for i, r := range h.GetAllRegs() {
		fmt.Fprintf(&b, "%-4s=0x%016x", r.Name, r.Value)
		if i%4 == 3 {
			b.WriteByte('\n')
		} else {
			b.WriteByte(' ')
		}
	}
	t.RegisterView.SetText(b.String())
}

func (t *TUI) updateSourceView() {
	t.SourceView.Clear()
	if t.Dispatcher.Debug == nil {
		t.SourceView.SetText("[yellow]no debug info loaded[white]")
		return
	}
	pc := t.Dispatcher.Session.ActiveHart().ReadPC()
	sl, err := t.Dispatcher.Debug.GetLineByPC(pc)
	if err != nil {
		t.SourceView.SetText(fmt.Sprintf("[yellow]no source line for pc 0x%x[white]", pc))
		return
	}
	t.SourceView.SetText(sl.String())
}

func (t *TUI) updateBreakpointsView() {
	t.BreakpointsView.Clear()
	addrs := t.Dispatcher.Session.Breakpoints().All()
	if len(addrs) == 0 {
		t.BreakpointsView.SetText("[yellow]no breakpoints[white]")
		return
	}
	var b strings.Builder
	for _, a := range addrs {
		fmt.Fprintf(&b, "0x%x\n", a)
	}
	t.BreakpointsView.SetText(b.String())
}

// Run starts the TUI event loop, blocking until the user quits.
func (t *TUI) Run() error {
	t.RefreshAll()
	return t.App.SetRoot(t.Pages, true).SetFocus(t.CommandInput).Run()
}
