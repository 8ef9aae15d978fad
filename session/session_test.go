package session

import (
	"strings"
	"testing"

	"github.com/Michaelsladkov/sc-trace-debugger/hart"
)

const trace1 = `1 0 N 0 0 4
2 0 N 4 0 8
3 0 N 8 0 c
4 0 N c 0 10
5 0 N 10 0 14
`

func mustHart(t *testing.T, trace string, id uint64) *hart.Hart {
	t.Helper()
	h, err := hart.New(strings.NewReader(trace), "t", id)
	if err != nil {
		t.Fatalf("hart.New: %v", err)
	}
	return h
}

func TestNewSessionSelectsFirstHartActive(t *testing.T) {
	h0 := mustHart(t, trace1, 0)
	h1 := mustHart(t, trace1, 1)
	s, err := New([]*hart.Hart{h0, h1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.ActiveHartID() != 0 {
		t.Errorf("active hart = %d, want 0", s.ActiveHartID())
	}
}

func TestNewSessionRejectsEmpty(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("expected error constructing session with no harts")
	}
}

func TestNewSessionRejectsDuplicateIDs(t *testing.T) {
	h0 := mustHart(t, trace1, 0)
	h0b := mustHart(t, trace1, 0)
	if _, err := New([]*hart.Hart{h0, h0b}); err == nil {
		t.Error("expected error constructing session with duplicate hart ids")
	}
}

func TestSetActiveHart(t *testing.T) {
	h0 := mustHart(t, trace1, 0)
	h1 := mustHart(t, trace1, 1)
	s, _ := New([]*hart.Hart{h0, h1})

	if err := s.SetActiveHart(1); err != nil {
		t.Fatalf("SetActiveHart: %v", err)
	}
	if s.ActiveHartID() != 1 {
		t.Errorf("active hart = %d, want 1", s.ActiveHartID())
	}

	if err := s.SetActiveHart(99); err == nil {
		t.Error("expected error selecting unknown hart")
	}
}

func TestBreakpointSet(t *testing.T) {
	bp := NewBreakpointSet()
	if !bp.Add(0x10) {
		t.Error("Add on fresh address: expected true")
	}
	if bp.Add(0x10) {
		t.Error("Add on existing address: expected false")
	}
	if !bp.Has(0x10) {
		t.Error("Has after Add: expected true")
	}
	if !bp.Remove(0x10) {
		t.Error("Remove on existing address: expected true")
	}
	if bp.Remove(0x10) {
		t.Error("Remove on absent address: expected false")
	}
}

func TestRunHaltsBeforeCommittingBreakpoint(t *testing.T) {
	h0 := mustHart(t, trace1, 0)
	s, _ := New([]*hart.Hart{h0})
	s.Breakpoints().Add(0x08)

	outcome := s.Run()
	if !outcome.Hit || outcome.HitHart != 0 {
		t.Fatalf("Run() = %+v, want Hit=true HitHart=0", outcome)
	}
	// Halted *before* committing: the event at pc=0x08 is still pending.
	pc, ok := h0.PeekPC()
	if !ok || pc != 0x08 {
		t.Errorf("PeekPC after Run() = (0x%x, %v), want (0x08, true)", pc, ok)
	}
	if h0.ReadPC() != 0x04 {
		t.Errorf("ReadPC after Run() = 0x%x, want 0x04 (last committed)", h0.ReadPC())
	}
}

func TestRunReturnsExhaustedWhenNoBreakpointHit(t *testing.T) {
	h0 := mustHart(t, trace1, 0)
	s, _ := New([]*hart.Hart{h0})

	outcome := s.Run()
	if outcome.Hit {
		t.Fatalf("Run() = %+v, want Hit=false", outcome)
	}
	if outcome.ExhaustedHart != 0 {
		t.Errorf("ExhaustedHart = %d, want 0", outcome.ExhaustedHart)
	}
}

func TestRunAllRoundRobinsAndStopsOnFirstHit(t *testing.T) {
	h0 := mustHart(t, trace1, 0)
	h1 := mustHart(t, trace1, 1)
	s, _ := New([]*hart.Hart{h0, h1})
	s.Breakpoints().Add(0x04)

	outcome := s.RunAll()
	if !outcome.Hit || outcome.HitHart != 0 {
		t.Fatalf("RunAll() = %+v, want Hit=true HitHart=0 (h0 steps first each round)", outcome)
	}
	if h0.ReadPC() != 0x04 {
		t.Errorf("h0 pc = 0x%x, want 0x04", h0.ReadPC())
	}
	// h1 already stepped once in the prior round (one step per hart per
	// iteration); it hasn't had its turn in the round where h0 hit, since
	// RunAll returns as soon as any hart's step lands on a breakpoint.
	if h1.ReadPC() != 0x00 {
		t.Errorf("h1 pc = 0x%x, want 0x00", h1.ReadPC())
	}
}

func TestRunAllExhaustsAllHarts(t *testing.T) {
	h0 := mustHart(t, trace1, 0)
	h1 := mustHart(t, trace1, 1)
	s, _ := New([]*hart.Hart{h0, h1})

	outcome := s.RunAll()
	if outcome.Hit {
		t.Fatalf("RunAll() = %+v, want Hit=false", outcome)
	}
	if _, ok := h0.PeekPC(); ok {
		t.Error("h0 should be exhausted")
	}
	if _, ok := h1.PeekPC(); ok {
		t.Error("h1 should be exhausted")
	}
}
