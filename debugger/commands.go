package debugger

import (
	"strconv"
	"strings"

	"github.com/Michaelsladkov/sc-trace-debugger/dwarfinfo"
	"github.com/Michaelsladkov/sc-trace-debugger/session"
	"github.com/Michaelsladkov/sc-trace-debugger/traceerr"
)

func unsupportedVerb(verb string) error {
	return traceerr.New(traceerr.Unsupported, "unknown command %q (type a verb from the command table)", verb)
}

// ANSI color codes used when Display.ColorOutput is set.
const (
	colorCyan  = "\033[36m"
	colorReset = "\033[0m"
)

// formatNumber renders v per d.Display.NumberFormat ("hex", "dec", or
// "both"; anything else falls back to "hex"), then wraps it in color if
// Display.ColorOutput is set.
func (d *Dispatcher) formatNumber(v uint64) string {
	var s string
	switch d.Display.NumberFormat {
	case "dec":
		s = strconv.FormatUint(v, 10)
	case "both":
		s = "0x" + strconv.FormatUint(v, 16) + " (" + strconv.FormatUint(v, 10) + ")"
	default:
		s = "0x" + strconv.FormatUint(v, 16)
	}
	if d.Display.ColorOutput {
		s = colorCyan + s + colorReset
	}
	return s
}

// parseAddr parses a decimal or 0x-prefixed hexadecimal address.
func parseAddr(s string) (uint64, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return 0, traceerr.Wrap(traceerr.Unsupported, err, "invalid hex address "+s)
		}
		return v, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, traceerr.Wrap(traceerr.Unsupported, err, "invalid address "+s)
	}
	return v, nil
}

// cmdReg implements `reg` / `reg <name>`.
func (d *Dispatcher) cmdReg(args []string) error {
	h := d.Session.ActiveHart()
	if len(args) == 0 {
		for _, r := range h.GetAllRegs() {
			d.Printf("%s=%s\n", r.Name, d.formatNumber(r.Value))
		}
		return nil
	}
	val, err := h.ReadRegisterName(args[0])
	if err != nil {
		return err
	}
	d.Printf("%s=%s\n", args[0], d.formatNumber(val))
	return nil
}

// cmdHart implements `hart` / `hart <index>`.
func (d *Dispatcher) cmdHart(args []string) error {
	if len(args) == 0 {
		for _, h := range d.Session.Harts() {
			marker := " "
			if h.HartID() == d.Session.ActiveHartID() {
				marker = "*"
			}
			d.Printf("%s %d %s\n", marker, h.HartID(), h.TraceName())
		}
		return nil
	}

	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return traceerr.Wrap(traceerr.NoSuchHart, err, "invalid hart index "+args[0])
	}
	if err := d.Session.SetActiveHart(id); err != nil {
		return err
	}
	d.Printf("active hart: %d\n", id)
	return nil
}

// cmdStep implements `step` / `s`.
func (d *Dispatcher) cmdStep(args []string) error {
	h := d.Session.ActiveHart()
	if !h.StepForward() {
		d.Println("trace exhausted")
		return nil
	}
	d.Printf("pc=0x%x\n", h.ReadPC())
	return nil
}

// cmdStepBack implements `step_back` / `sb`.
func (d *Dispatcher) cmdStepBack(args []string) error {
	h := d.Session.ActiveHart()
	if !h.StepBack() {
		d.Println("already at start of trace")
		return nil
	}
	d.Printf("pc=0x%x\n", h.ReadPC())
	return nil
}

// cmdRunTill implements `run-till` / `rt` <addr>.
func (d *Dispatcher) cmdRunTill(args []string) error {
	if len(args) == 0 {
		return traceerr.New(traceerr.Unsupported, "usage: run-till <addr>")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	if err := d.Session.ActiveHart().SetStatePC(addr); err != nil {
		return err
	}
	d.Printf("pc=0x%x (pending)\n", addr)
	return nil
}

// resolveBreakpointTargets resolves a `bp`/`rbp` argument, either a raw
// address or a <file>:<line> source position, to the PCs it names.
func (d *Dispatcher) resolveBreakpointTargets(arg string) ([]uint64, error) {
	if idx := strings.LastIndex(arg, ":"); idx >= 0 && !strings.HasPrefix(arg, "0x") {
		path := arg[:idx]
		line, err := strconv.ParseUint(arg[idx+1:], 10, 64)
		if err != nil {
			return nil, traceerr.Wrap(traceerr.Unsupported, err, "invalid line number in "+arg)
		}
		return d.Debug.GetPCByLine(dwarfinfo.SourceLineKey{Path: path, Line: line})
	}

	addr, err := parseAddr(arg)
	if err != nil {
		return nil, err
	}
	return []uint64{addr}, nil
}

// cmdBreakpoint implements `bp` (add=true) and `rbp` (add=false).
func (d *Dispatcher) cmdBreakpoint(args []string, add bool) error {
	if len(args) == 0 {
		return traceerr.New(traceerr.Unsupported, "usage: bp|rbp <addr>|<file>:<line>")
	}

	targets, err := d.resolveBreakpointTargets(args[0])
	if err != nil {
		return err
	}

	for _, pc := range targets {
		if add {
			d.Session.Breakpoints().Add(pc)
			d.Printf("breakpoint at 0x%x\n", pc)
		} else {
			d.Session.Breakpoints().Remove(pc)
			d.Printf("breakpoint removed at 0x%x\n", pc)
		}
	}
	return nil
}

// cmdResume implements `resume`/`run` (empty -> run_all; <hart_id> -> run
// that single hart).
func (d *Dispatcher) cmdResume(args []string) error {
	if len(args) == 0 {
		outcome := d.Session.RunAll()
		d.printRunOutcome(outcome, true)
		return nil
	}

	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return traceerr.Wrap(traceerr.NoSuchHart, err, "invalid hart id "+args[0])
	}
	outcome, err := d.Session.RunHart(id)
	if err != nil {
		return err
	}
	d.printRunOutcome(outcome, false)
	return nil
}

// printRunOutcome renders a session.RunOutcome. The meaning of "no hit" is
// reported differently for run_all (every hart exhausted, no single hart to
// name) versus a single-hart run (that hart specifically exhausted) — this
// mirrors the source asymmetry session.RunOutcome wraps (DESIGN.md Open
// Question #2) without forcing callers to memorize it.
func (d *Dispatcher) printRunOutcome(outcome session.RunOutcome, all bool) {
	if outcome.Hit {
		d.Printf("breakpoint hit: hart %d\n", outcome.HitHart)
		return
	}
	if all {
		d.Println("all harts exhausted")
		return
	}
	d.Printf("hart %d exhausted\n", outcome.ExhaustedHart)
}

// cmdLine implements `line`/`l`.
func (d *Dispatcher) cmdLine(args []string) error {
	var pc uint64
	if len(args) == 0 {
		pc = d.Session.ActiveHart().ReadPC()
	} else {
		var err error
		pc, err = parseAddr(args[0])
		if err != nil {
			return err
		}
	}
	sl, err := d.Debug.GetLineByPC(pc)
	if err != nil {
		return err
	}
	d.Println(sl.String())
	return nil
}

// stackPointerRegister is x2, the RISC-V calling-convention stack pointer;
// `variables` uses it as the FRAME_OFFSET base.
const stackPointerRegister = 2

// cmdVariables implements `variables`.
func (d *Dispatcher) cmdVariables(args []string) error {
	h := d.Session.ActiveHart()
	vars := d.Debug.GetAvailableVariables(h.ReadPC())
	if len(vars) == 0 {
		d.Println("no variables visible here")
		return nil
	}

	sp, err := h.ReadRegisterIndex(stackPointerRegister)
	if err != nil {
		return err
	}

	for _, v := range vars {
		switch v.Location.Kind {
		case dwarfinfo.LocMemory:
			d.Printf("%s: %s @ %s\n", v.Name, v.TypeName, d.formatNumber(v.Location.Addr))
		case dwarfinfo.LocFrameOffset:
			addr := uint64(int64(sp) + v.Location.FrameOffset)
			d.Printf("%s: %s @ %s (fp%+d)\n", v.Name, v.TypeName, d.formatNumber(addr), v.Location.FrameOffset)
		case dwarfinfo.LocRegister:
			d.Printf("%s: %s in register x%d\n", v.Name, v.TypeName, v.Location.RegNum)
		}
	}
	return nil
}

// cmdHistory implements the supplemental `history` verb.
func (d *Dispatcher) cmdHistory(args []string) error {
	for _, line := range d.History.GetAll() {
		d.Println(line)
	}
	return nil
}
