// Package dwarfinfo is the debug-info provider: it walks the DWARF line
// table and DIE tree of an ELF binary to answer PC↔source-line queries and
// resolve the variables visible at a given PC.
//
// It is built directly on the standard library's debug/elf and debug/dwarf
// packages rather than a third-party wrapper. See DESIGN.md.
package dwarfinfo

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"
	"math"
	"strings"

	"github.com/Michaelsladkov/sc-trace-debugger/traceerr"
)

// LocationKind distinguishes the three ways a variable can be addressed.
type LocationKind int

const (
	// LocMemory is a fixed, absolute address (DW_OP_addr).
	LocMemory LocationKind = iota
	// LocRegister is a value held directly in an architectural register.
	LocRegister
	// LocFrameOffset is a signed byte offset from the frame base
	// (DW_OP_fbreg).
	LocFrameOffset
)

// VariableLocation is the tagged union describing where a variable lives.
type VariableLocation struct {
	Kind LocationKind

	Addr        uint64 // meaningful when Kind == LocMemory
	RegNum      uint8  // meaningful when Kind == LocRegister
	FrameOffset int64  // meaningful when Kind == LocFrameOffset
}

// SizeUnknown is the sentinel byte size for a variable whose size could
// not be resolved.
const SizeUnknown = math.MaxUint64

// Variable describes one visible local/parameter at a PC.
type Variable struct {
	Name     string
	TypeName string
	ByteSize uint64
	Location VariableLocation
}

// SourceLineKey identifies a source position. Column is forced to 0 by
// callers doing line-level (rather than column-level) lookups.
type SourceLineKey struct {
	Path   string
	Line   uint64
	Column uint64
}

// SourceLine is the PC-keyed lookup result: the source position an address
// was emitted for.
type SourceLine struct {
	Path   string
	Line   uint64
	Column uint64
}

// noCopy prevents accidental copying of a Provider, whose only copy is the
// one owning the ELF/DWARF handles. go vet's copylocks check flags any
// type embedding noCopy that is passed by value.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Provider is the immutable debug-info view built from one ELF file. It
// owns the open file handle and DWARF context for its lifetime; call
// Close to release both.
type Provider struct {
	noCopy noCopy

	elfFile   *elf.File
	dwarf     *dwarf.Data
	normalize func(string) string

	addrToLine map[uint64]SourceLine
	lineToAddr map[SourceLineKey][]uint64
}

// New opens path, builds the frozen line-table maps, and returns a
// Provider. normalize may be nil; when set, it rewrites each line-table
// path before it is indexed.
func New(path string, normalize func(string) string) (p *Provider, err error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, traceerr.Wrap(traceerr.DwarfError, err, "opening ELF file "+path)
	}
	// Roll back partial initialization on every exit path, including a
	// failure part-way through building the line table.
	defer func() {
		if err != nil {
			_ = f.Close()
		}
	}()

	data, err := f.DWARF()
	if err != nil {
		return nil, traceerr.Wrap(traceerr.DwarfError, err, "reading DWARF sections of "+path)
	}

	prov := &Provider{
		elfFile:    f,
		dwarf:      data,
		normalize:  normalize,
		addrToLine: make(map[uint64]SourceLine),
		lineToAddr: make(map[SourceLineKey][]uint64),
	}

	if err = prov.buildLineTables(); err != nil {
		return nil, err
	}

	return prov, nil
}

// Close releases the ELF file descriptor. Safe to call once; the Provider
// must not be used afterward.
func (p *Provider) Close() error {
	return p.elfFile.Close()
}

func (p *Provider) applyPrefix(path string) string {
	if p.normalize == nil {
		return path
	}
	return p.normalize(path)
}

// PrefixNormalizer builds a normalize function that rewrites a path by
// finding the rightmost occurrence of prefix and keeping from there
// onward. Returns the path unchanged if prefix does not occur.
func PrefixNormalizer(prefix string) func(string) string {
	return func(path string) string {
		idx := strings.LastIndex(path, prefix)
		if idx < 0 {
			return path
		}
		return path[idx:]
	}
}

// buildLineTables walks every compilation unit's line program once.
func (p *Provider) buildLineTables() error {
	reader := p.dwarf.Reader()

	for {
		entry, err := reader.Next()
		if err != nil {
			return traceerr.Wrap(traceerr.DwarfError, err, "reading DWARF info entries")
		}
		if entry == nil {
			return nil
		}
		if entry.Tag != dwarf.TagCompileUnit {
			reader.SkipChildren()
			continue
		}

		lr, err := p.dwarf.LineReader(entry)
		if err != nil {
			return traceerr.Wrap(traceerr.DwarfError, err, "reading line table")
		}
		if lr == nil {
			reader.SkipChildren()
			continue
		}

		var le dwarf.LineEntry
		for {
			if err := lr.Next(&le); err != nil {
				break // end of this CU's line program
			}
			if le.EndSequence || le.File == nil {
				continue
			}

			path := p.applyPrefix(le.File.Name)
			p.addrToLine[le.Address] = SourceLine{Path: path, Line: uint64(le.Line), Column: uint64(le.Column)}

			lineKey := SourceLineKey{Path: path, Line: uint64(le.Line), Column: 0}
			p.lineToAddr[lineKey] = append(p.lineToAddr[lineKey], le.Address)
		}

		reader.SkipChildren()
	}
}

// GetLineByPC returns the source position emitted for pc.
func (p *Provider) GetLineByPC(pc uint64) (SourceLine, error) {
	sl, ok := p.addrToLine[pc]
	if !ok {
		return SourceLine{}, traceerr.New(traceerr.NoSuchLine, "no source line for pc 0x%x", pc)
	}
	return sl, nil
}

// GetPCByLine returns every PC associated with spec.Path:spec.Line
// (spec.Column is forced to 0 before lookup).
func (p *Provider) GetPCByLine(spec SourceLineKey) ([]uint64, error) {
	spec.Column = 0
	addrs, ok := p.lineToAddr[spec]
	if !ok || len(addrs) == 0 {
		return nil, traceerr.New(traceerr.NoPcInfo, "no pc for %s:%d", spec.Path, spec.Line)
	}
	return addrs, nil
}

// String renders a SourceLine as "path:line" (or "path:line:col" when
// Column is nonzero), the form the REPL's `line`/`l` command prints.
func (s SourceLine) String() string {
	if s.Column == 0 {
		return fmt.Sprintf("%s:%d", s.Path, s.Line)
	}
	return fmt.Sprintf("%s:%d:%d", s.Path, s.Line, s.Column)
}
