// Package hart owns a single hardware thread's execution history: the
// immutable event sequence ingested from a trace file, the forward/backward
// stepping cursor, the derived integer register file, and the memory-value
// reconstruction algorithm that mines that history for the last value
// written (or loaded) at an address.
package hart

import (
	"bufio"
	"io"
	"log/slog"

	"github.com/Michaelsladkov/sc-trace-debugger/traceerr"
	"github.com/Michaelsladkov/sc-trace-debugger/traceline"
)

const numIntRegs = 32

// RegisterDescriptor names one architectural register: its file (INT or
// FLOAT) and its index within that file.
type RegisterDescriptor struct {
	Kind  traceline.RegKind
	Index uint8
}

// RegisterUpdate is the effect a single trace event had on one register.
// PrevVal is the value that register held immediately before this event,
// captured during ingestion so backward stepping is O(1).
type RegisterUpdate struct {
	Reg     RegisterDescriptor
	NewVal  uint64
	PrevVal uint64
}

// Event is one element of a hart's execution history.
type Event struct {
	Time      uint64
	PC        uint64
	Instr     uint32
	Update    RegisterUpdate
	HasUpdate bool
}

// RegValue is one entry of the GetAllRegs listing.
type RegValue struct {
	Name  string
	Value uint64
}

// Hart owns one hardware thread's event sequence, cursor, and derived
// register file. It is built once by New and mutated only through
// StepForward/StepBack/SetStatePC.
type Hart struct {
	events []Event
	cursor int

	intRegs [numIntRegs]uint64
	pc      uint64

	hartID    uint64
	traceName string
}

// New ingests a trace from r and returns a fully-initialized Hart. This is
// a pure constructor: ingestion happens entirely in a free function over a
// scratch register file, and only the finished event slice is installed
// into the returned Hart — there is no protected post-construction hook
// that a factory calls into.
func New(r io.Reader, traceName string, hartID uint64) (*Hart, error) {
	events := ingest(r, traceName)

	h := &Hart{
		events:    events,
		cursor:    0,
		hartID:    hartID,
		traceName: traceName,
	}
	if len(events) > 0 {
		h.pc = events[0].PC
	}
	return h, nil
}

// ingest reads every line of r, decodes it into an Event, and records each
// event's register PrevVal by incrementally applying events to a scratch
// register file as they are produced. The scratch file is discarded once
// ingestion completes; the Hart's real register file starts zeroed,
// independent of ingestion.
func ingest(r io.Reader, traceName string) []Event {
	var scratch [numIntRegs]uint64
	var events []Event

	scanner := bufio.NewScanner(r)
	// Trace files can contain very long lines for dense register dumps;
	// grow the buffer well past bufio's default.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()

		if raw == "" {
			// Blank line terminates ingestion.
			break
		}
		if traceline.IsComment(raw) {
			continue
		}

		tl, err := traceline.Parse(raw)
		if err != nil {
			slog.Warn("traceline: skipping malformed line",
				"trace", traceName, "line", lineNo, "error", err)
			continue
		}

		ev := Event{Time: tl.Time, PC: tl.CurPC, Instr: tl.Instr}
		if tl.HasUpdate {
			reg := RegisterDescriptor{Kind: tl.Update.Kind, Index: tl.Update.Index}
			prev := uint64(0)
			if tl.Update.Kind == traceline.RegInt {
				prev = regRead(&scratch, tl.Update.Index)
			}
			ev.HasUpdate = true
			ev.Update = RegisterUpdate{Reg: reg, NewVal: tl.Update.Value, PrevVal: prev}

			if tl.Update.Kind == traceline.RegInt {
				regWrite(&scratch, tl.Update.Index, tl.Update.Value)
			}
		}

		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("traceline: scanner error, ingestion truncated",
			"trace", traceName, "error", err)
	}

	return events
}

// regRead reads x<idx>, pinning x0 at 0.
func regRead(regs *[numIntRegs]uint64, idx uint8) uint64 {
	if idx == 0 {
		return 0
	}
	return regs[idx]
}

// regWrite writes x<idx>; writes to x0 are discarded.
func regWrite(regs *[numIntRegs]uint64, idx uint8, val uint64) {
	if idx == 0 {
		return
	}
	regs[idx] = val
}

// HartID returns this hart's identifier.
func (h *Hart) HartID() uint64 { return h.hartID }

// TraceName returns the trace file name this hart was built from, for
// diagnostics.
func (h *Hart) TraceName() string { return h.traceName }

// Cursor returns the index of the next uncommitted event.
func (h *Hart) Cursor() int { return h.cursor }

// Len returns the number of events in the hart's history.
func (h *Hart) Len() int { return len(h.events) }

// PeekPC returns the PC of the next pending event, for pre-step breakpoint
// checks. The second return is false if the cursor is at the end.
func (h *Hart) PeekPC() (uint64, bool) {
	if h.cursor >= len(h.events) {
		return 0, false
	}
	return h.events[h.cursor].PC, true
}

// StepForward commits the event at the cursor, if any, and advances. It
// returns false iff the cursor was already at the end.
func (h *Hart) StepForward() bool {
	if h.cursor == len(h.events) {
		return false
	}

	ev := h.events[h.cursor]
	h.pc = ev.PC
	if ev.HasUpdate && ev.Update.Reg.Kind == traceline.RegInt {
		regWrite(&h.intRegs, ev.Update.Reg.Index, ev.Update.NewVal)
	}
	h.cursor++
	return true
}

// StepBack uncommits the most recently committed event and returns false
// iff the cursor was already at 0.
func (h *Hart) StepBack() bool {
	if h.cursor == 0 {
		return false
	}

	h.cursor--
	ev := h.events[h.cursor]
	if ev.HasUpdate && ev.Update.Reg.Kind == traceline.RegInt {
		regWrite(&h.intRegs, ev.Update.Reg.Index, ev.Update.PrevVal)
	}

	if h.cursor > 0 {
		h.pc = h.events[h.cursor-1].PC
	} else if len(h.events) > 0 {
		h.pc = h.events[0].PC
	}
	return true
}

// SetStatePC steps forward, single-shot, until the pending event's PC
// equals addr (checked before committing), or fails with NoSuchPc if the
// end of the trace is reached first. It scans forward from the *current*
// cursor and never rewinds — callers wanting to run from the start call
// StepBack repeatedly (or reconstruct a fresh Hart) first.
func (h *Hart) SetStatePC(addr uint64) error {
	for {
		pc, ok := h.PeekPC()
		if !ok {
			return traceerr.New(traceerr.NoSuchPc, "no event with pc 0x%x reachable from cursor %d", addr, h.cursor)
		}
		if pc == addr {
			return nil
		}
		h.StepForward()
	}
}

// ReadPC returns the current PC.
func (h *Hart) ReadPC() uint64 { return h.pc }

// CurTime returns the simulation cycle of the pending event at the cursor,
// or of the last committed event once the cursor has reached the end (0 for
// an empty trace).
func (h *Hart) CurTime() uint64 {
	if h.cursor < len(h.events) {
		return h.events[h.cursor].Time
	}
	if h.cursor > 0 {
		return h.events[h.cursor-1].Time
	}
	return 0
}

// ReadRegisterIndex reads x<index>.
func (h *Hart) ReadRegisterIndex(index uint8) (uint64, error) {
	if index >= numIntRegs {
		return 0, traceerr.New(traceerr.NoSuchRegister, "register index %d out of range", index)
	}
	return regRead(&h.intRegs, index), nil
}

// ReadRegisterName reads "pc" or "x<N>".
func (h *Hart) ReadRegisterName(name string) (uint64, error) {
	if name == "pc" {
		return h.pc, nil
	}
	idx, ok := parseXRegName(name)
	if !ok {
		return 0, traceerr.New(traceerr.NoSuchRegister, "unknown register name %q", name)
	}
	return h.ReadRegisterIndex(idx)
}

func parseXRegName(name string) (uint8, bool) {
	if len(name) < 2 || name[0] != 'x' {
		return 0, false
	}
	var n int
	for _, c := range name[1:] {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	if n < 0 || n >= numIntRegs {
		return 0, false
	}
	return uint8(n), true
}

// GetAllRegs returns x0..x31 in order.
func (h *Hart) GetAllRegs() []RegValue {
	out := make([]RegValue, numIntRegs)
	for i := 0; i < numIntRegs; i++ {
		out[i] = RegValue{Name: regName(uint8(i)), Value: regRead(&h.intRegs, uint8(i))}
	}
	return out
}

func regName(idx uint8) string {
	const digits = "0123456789"
	if idx < 10 {
		return "x" + string(digits[idx])
	}
	return "x" + string(digits[idx/10]) + string(digits[idx%10])
}
