// Package debugger is the command dispatcher: a line-oriented REPL verb
// table sitting on top of a session.Session and a dwarfinfo.Provider,
// with strings.Builder output buffering and empty-line-repeats-last-
// command convenience.
package debugger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Michaelsladkov/sc-trace-debugger/config"
	"github.com/Michaelsladkov/sc-trace-debugger/dwarfinfo"
	"github.com/Michaelsladkov/sc-trace-debugger/session"
)

// ErrExit is returned by Execute when the REPL's `exit` verb is issued; the
// caller's read loop checks for it and terminates with exit code 0.
var ErrExit = errors.New("exit")

// Dispatcher owns a session and debug-info provider and turns REPL lines
// into calls against them, buffering textual output for the caller to
// flush after each line. Display governs how reg/variables render numbers
// and whether they're colorized.
type Dispatcher struct {
	Session *session.Session
	Debug   *dwarfinfo.Provider
	History *History
	Display config.DisplayConfig

	lastLine string
	Output   strings.Builder
}

// NewDispatcher builds a Dispatcher. historySize is the `[session]` config
// value bounding command history (0 defaults to 1000).
func NewDispatcher(sess *session.Session, debug *dwarfinfo.Provider, display config.DisplayConfig, historySize int) *Dispatcher {
	return &Dispatcher{
		Session: sess,
		Debug:   debug,
		Display: display,
		History: NewHistory(historySize),
	}
}

// GetOutput returns and clears the output buffer.
func (d *Dispatcher) GetOutput() string {
	out := d.Output.String()
	d.Output.Reset()
	return out
}

// Printf writes formatted output to the output buffer.
func (d *Dispatcher) Printf(format string, args ...any) {
	fmt.Fprintf(&d.Output, format, args...)
}

// Println writes a line to the output buffer.
func (d *Dispatcher) Println(args ...any) {
	fmt.Fprintln(&d.Output, args...)
}

// Execute parses and dispatches one REPL line. An empty line repeats the
// last non-empty line issued; `!!` explicitly repeats the last line
// recorded in History — the two differ right after startup, before any
// line has set lastLine but after History may already hold entries.
func (d *Dispatcher) Execute(line string) error {
	line = strings.TrimSpace(line)

	switch {
	case line == "":
		line = d.lastLine
	case line == "!!":
		line = d.History.GetLast()
	}

	if line != "" {
		d.History.Add(line)
		d.lastLine = line
	}

	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	verb := parts[0]
	args := parts[1:]
	return d.dispatch(verb, args)
}

func (d *Dispatcher) dispatch(verb string, args []string) error {
	switch verb {
	case "exit":
		return ErrExit
	case "reg":
		return d.cmdReg(args)
	case "hart":
		return d.cmdHart(args)
	case "step", "s":
		return d.cmdStep(args)
	case "step_back", "sb":
		return d.cmdStepBack(args)
	case "run-till", "rt":
		return d.cmdRunTill(args)
	case "bp":
		return d.cmdBreakpoint(args, true)
	case "rbp":
		return d.cmdBreakpoint(args, false)
	case "resume", "run":
		return d.cmdResume(args)
	case "line", "l":
		return d.cmdLine(args)
	case "variables":
		return d.cmdVariables(args)
	case "history":
		return d.cmdHistory(args)
	default:
		return unsupportedVerb(verb)
	}
}
