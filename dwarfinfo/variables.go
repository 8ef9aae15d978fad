package dwarfinfo

import (
	"debug/dwarf"
	"encoding/binary"
	"log/slog"
)

const (
	dwOpAddr  = 0x03
	dwOpFbreg = 0x91
)

// scopeFrame tracks one active lexical scope (compile unit, subprogram, or
// nested lexical block) while walking the DIE tree.
type scopeFrame struct {
	depth    int
	low, high uint64
	hasRange bool
}

// GetAvailableVariables re-walks every compilation unit and returns the
// best-effort list of variables/formal-parameters visible at pc. It is
// deliberately uncached: a fresh per-PC walk.
//
// A DW_TAG_lexical_block nesting inside a subprogram is also treated as an
// enclosing scope (real DWARF producers emit these routinely for `{ }`
// blocks); its variables are unioned with the enclosing function's when pc
// falls within the block.
func (p *Provider) GetAvailableVariables(pc uint64) []Variable {
	reader := p.dwarf.Reader()

	var vars []Variable
	var stack []scopeFrame
	depth := 0

	for {
		entry, err := reader.Next()
		if err != nil || entry == nil {
			break
		}

		if entry.Tag == 0 {
			depth--
			stack = popClosedScopes(stack, depth)
			continue
		}

		switch entry.Tag {
		case dwarf.TagCompileUnit, dwarf.TagSubprogram, dwarf.TagLexDwarfBlock:
			lo, hi, ok := scopeRange(entry)
			stack = append(stack, scopeFrame{depth: depth, low: lo, high: hi, hasRange: ok})

		case dwarf.TagVariable, dwarf.TagFormalParameter:
			if scopeContainsPC(stack, pc) {
				if v, ok := p.resolveVariable(entry, reader); ok {
					vars = append(vars, v)
				}
			}
		}

		if entry.Children {
			depth++
		}
	}

	return vars
}

// popClosedScopes removes every frame whose depth is no shallower than the
// newly-closed depth. A frame is pushed with the depth it was read at, one
// level shallower than its own children; when its children list ends,
// depth is decremented back to that same value, so the frame closing right
// now is the one with depth == the new depth, not depth < it — using ">"
// here would leave that frame on the stack until its parent closes, so any
// sibling read afterward at the parent's depth would wrongly be tested
// against the just-closed scope's range instead of the parent's.
func popClosedScopes(stack []scopeFrame, depth int) []scopeFrame {
	for len(stack) > 0 && stack[len(stack)-1].depth >= depth {
		stack = stack[:len(stack)-1]
	}
	return stack
}

// scopeContainsPC reports whether the innermost scope on the stack that
// carries an address range contains pc. A variable with no enclosing
// ranged scope (e.g. one declared directly under a CU with no function)
// is not considered visible at any pc.
func scopeContainsPC(stack []scopeFrame, pc uint64) bool {
	for i := len(stack) - 1; i >= 0; i-- {
		f := stack[i]
		if !f.hasRange {
			continue
		}
		return pc >= f.low && pc < f.high
	}
	return false
}

// scopeRange extracts [low_pc, low_pc+high_pc) from a DIE that may carry
// either an absolute AttrHighpc (older DWARF, ClassAddress) or one relative
// to AttrLowpc (DWARF4+, ClassConstant).
func scopeRange(e *dwarf.Entry) (lo, hi uint64, ok bool) {
	lowField := e.AttrField(dwarf.AttrLowpc)
	highField := e.AttrField(dwarf.AttrHighpc)
	if lowField == nil || highField == nil {
		return 0, 0, false
	}

	lo, ok = lowField.Val.(uint64)
	if !ok {
		return 0, 0, false
	}

	switch highField.Class {
	case dwarf.ClassAddress:
		h, ok2 := highField.Val.(uint64)
		if !ok2 {
			return 0, 0, false
		}
		return lo, h, true
	case dwarf.ClassConstant:
		off, ok2 := highField.Val.(int64)
		if !ok2 {
			return 0, 0, false
		}
		return lo, lo + uint64(off), true
	default:
		return 0, 0, false
	}
}

// resolveVariable decodes a DW_TAG_variable/DW_TAG_formal_parameter DIE
// into a Variable. Failures are swallowed: this returns ok == false only
// when the variable has no usable location (unsupported DWARF op), which
// is skipped rather than treated as fatal.
func (p *Provider) resolveVariable(e *dwarf.Entry, reader *dwarf.Reader) (Variable, bool) {
	name, _ := e.Val(dwarf.AttrName).(string)

	loc, ok := p.resolveLocation(e, reader)
	if !ok {
		return Variable{}, false
	}

	typeName, size := p.resolveType(e)

	return Variable{
		Name:     name,
		TypeName: typeName,
		ByteSize: size,
		Location: loc,
	}, true
}

// resolveLocation decodes the DW_AT_location expression, understanding only
// DW_OP_addr and DW_OP_fbreg.
func (p *Provider) resolveLocation(e *dwarf.Entry, reader *dwarf.Reader) (VariableLocation, bool) {
	field := e.AttrField(dwarf.AttrLocation)
	if field == nil || field.Class != dwarf.ClassExprLoc {
		return VariableLocation{}, false
	}
	expr, ok := field.Val.([]byte)
	if !ok || len(expr) == 0 {
		return VariableLocation{}, false
	}

	switch expr[0] {
	case dwOpAddr:
		asize := reader.AddressSize()
		if len(expr) < 1+asize || asize == 0 {
			return VariableLocation{}, false
		}
		addr := decodeAddr(expr[1:1+asize], reader.ByteOrder())
		return VariableLocation{Kind: LocMemory, Addr: addr}, true

	case dwOpFbreg:
		off, n := decodeSleb128(expr[1:])
		if n == 0 {
			return VariableLocation{}, false
		}
		return VariableLocation{Kind: LocFrameOffset, FrameOffset: off}, true

	default:
		return VariableLocation{}, false
	}
}

func decodeAddr(b []byte, order binary.ByteOrder) uint64 {
	if len(b) >= 8 {
		return order.Uint64(b[:8])
	}
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// decodeSleb128 decodes a signed LEB128 value from the start of b,
// returning the value and the number of bytes consumed (0 on underflow).
func decodeSleb128(b []byte) (int64, int) {
	var result int64
	var shift uint
	var i int

	for i < len(b) {
		byt := b[i]
		i++
		result |= int64(byt&0x7f) << shift
		shift += 7
		if byt&0x80 == 0 {
			if shift < 64 && byt&0x40 != 0 {
				result |= -1 << shift
			}
			return result, i
		}
	}
	return 0, 0
}

// resolveType follows DW_AT_type through typedef/qualifier chains,
// prefixing "const " for DW_TAG_const_type. Failures are swallowed: the
// variable still resolves, just with type_name "unknown" and size
// SizeUnknown.
func (p *Provider) resolveType(e *dwarf.Entry) (string, uint64) {
	off, ok := e.Val(dwarf.AttrType).(dwarf.Offset)
	if !ok {
		return "unknown", SizeUnknown
	}

	t, err := p.dwarf.Type(off)
	if err != nil {
		slog.Warn("dwarfinfo: failed to resolve variable type", "offset", off, "error", err)
		return "unknown", SizeUnknown
	}

	return typeNameAndSize(t)
}

func typeNameAndSize(t dwarf.Type) (string, uint64) {
	switch tt := t.(type) {
	case *dwarf.TypedefType:
		return typeNameAndSize(tt.Type)
	case *dwarf.QualType:
		name, size := typeNameAndSize(tt.Type)
		return tt.Qual + " " + name, size
	default:
		ct := t.Common()
		name := ct.Name
		if name == "" {
			name = "unknown"
		}
		size := uint64(SizeUnknown)
		if ct.ByteSize >= 0 {
			size = uint64(ct.ByteSize)
		}
		return name, size
	}
}
