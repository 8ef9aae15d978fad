// Package session owns a debug session: the harts participating in it, the
// shared breakpoint set, and the active-hart selection that `reg`/`step`/
// `run`/`variables` commands implicitly target.
package session

import (
	"sync"

	"github.com/Michaelsladkov/sc-trace-debugger/hart"
	"github.com/Michaelsladkov/sc-trace-debugger/traceerr"
)

// BreakpointSet is a concurrency-safe set of PC addresses — no IDs,
// conditions, or hit counts, just membership.
type BreakpointSet struct {
	mu   sync.RWMutex
	addr map[uint64]struct{}
}

// NewBreakpointSet returns an empty breakpoint set.
func NewBreakpointSet() *BreakpointSet {
	return &BreakpointSet{addr: make(map[uint64]struct{})}
}

// Add inserts addr. Returns false if it was already present.
func (b *BreakpointSet) Add(addr uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.addr[addr]; exists {
		return false
	}
	b.addr[addr] = struct{}{}
	return true
}

// Remove deletes addr. Returns false if it was not present.
func (b *BreakpointSet) Remove(addr uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.addr[addr]; !exists {
		return false
	}
	delete(b.addr, addr)
	return true
}

// Has reports whether addr is a breakpoint.
func (b *BreakpointSet) Has(addr uint64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, exists := b.addr[addr]
	return exists
}

// All returns every breakpoint address, in no particular order.
func (b *BreakpointSet) All() []uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]uint64, 0, len(b.addr))
	for a := range b.addr {
		out = append(out, a)
	}
	return out
}

// RunOutcome is the sum-type wrapping of Run/RunAll's return value. Run's
// "no hit" case and RunAll's "no hit" case carry different information
// (which single hart exhausted, versus every hart exhausted); rather than
// normalize that away, RunOutcome makes both cases explicit and named so
// callers never have to remember which field means what for which method.
type RunOutcome struct {
	// Hit is true if a breakpoint halted the run; HitHart is the hart that
	// hit it. Hit is false if every participating hart ran off the end of
	// its trace; ExhaustedHart is the hart that triggered that stop for
	// Run (RunAll has no single exhausted hart to report, since it keeps
	// going until every hart is exhausted).
	Hit           bool
	HitHart       uint64
	ExhaustedHart uint64
}

// Session owns every hart in a debug run plus the breakpoint set and active
// hart selection that single-hart commands implicitly target.
type Session struct {
	harts       []*hart.Hart
	byID        map[uint64]*hart.Hart
	breakpoints *BreakpointSet
	activeHart  uint64
}

// New builds a Session over harts. The first hart (by input order) becomes
// active. New fails if harts is empty or contains a duplicate hart id.
func New(harts []*hart.Hart) (*Session, error) {
	if len(harts) == 0 {
		return nil, traceerr.New(traceerr.SessionCreationError, "session requires at least one hart")
	}

	byID := make(map[uint64]*hart.Hart, len(harts))
	for _, h := range harts {
		if _, dup := byID[h.HartID()]; dup {
			return nil, traceerr.New(traceerr.SessionCreationError, "duplicate hart id %d", h.HartID())
		}
		byID[h.HartID()] = h
	}

	return &Session{
		harts:       harts,
		byID:        byID,
		breakpoints: NewBreakpointSet(),
		activeHart:  harts[0].HartID(),
	}, nil
}

// Harts returns every hart in the session, in construction order.
func (s *Session) Harts() []*hart.Hart { return s.harts }

// ActiveHart returns the currently selected hart.
func (s *Session) ActiveHart() *hart.Hart { return s.byID[s.activeHart] }

// ActiveHartID returns the currently selected hart's id.
func (s *Session) ActiveHartID() uint64 { return s.activeHart }

// SetActiveHart selects hartID as the active hart.
func (s *Session) SetActiveHart(hartID uint64) error {
	if _, ok := s.byID[hartID]; !ok {
		return traceerr.New(traceerr.NoSuchHart, "no hart with id %d", hartID)
	}
	s.activeHart = hartID
	return nil
}

// HartByID returns the hart with the given id.
func (s *Session) HartByID(hartID uint64) (*hart.Hart, error) {
	h, ok := s.byID[hartID]
	if !ok {
		return nil, traceerr.New(traceerr.NoSuchHart, "no hart with id %d", hartID)
	}
	return h, nil
}

// Breakpoints exposes the shared breakpoint set.
func (s *Session) Breakpoints() *BreakpointSet { return s.breakpoints }

// Run steps the active hart forward until its next pending pc is a
// breakpoint (checked before committing that event) or its trace is
// exhausted.
func (s *Session) Run() RunOutcome {
	outcome, _ := s.RunHart(s.activeHart)
	return outcome
}

// RunHart runs a specific hart (by id) exactly as Run does for the active
// hart, without changing which hart is active. The `run <hart_id>` REPL
// form uses this so a one-off targeted run doesn't disturb the session's
// active-hart selection.
func (s *Session) RunHart(hartID uint64) (RunOutcome, error) {
	h, err := s.HartByID(hartID)
	if err != nil {
		return RunOutcome{}, err
	}
	for {
		pc, ok := h.PeekPC()
		if !ok {
			return RunOutcome{Hit: false, ExhaustedHart: h.HartID()}, nil
		}
		if s.breakpoints.Has(pc) {
			return RunOutcome{Hit: true, HitHart: h.HartID()}, nil
		}
		h.StepForward()
	}
}

// RunAll round-robins one step per hart per iteration across every hart in
// the session, testing each hart's new pc against the breakpoint set right
// after it steps. Interleaving is fixed round-robin order, independent of
// each event's trace `time` field — this is not a merge by timestamp. It
// returns on the first breakpoint hit, or once a full round steps no hart
// forward (every hart exhausted).
func (s *Session) RunAll() RunOutcome {
	for {
		anyStepped := false
		for _, h := range s.harts {
			if !h.StepForward() {
				continue
			}
			anyStepped = true
			if s.breakpoints.Has(h.ReadPC()) {
				return RunOutcome{Hit: true, HitHart: h.HartID()}
			}
		}
		if !anyStepped {
			return RunOutcome{Hit: false}
		}
	}
}
