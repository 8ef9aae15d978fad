package dwarfinfo

import (
	"debug/dwarf"
	"testing"
)

func TestDecodeSleb128(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want int64
		n    int
	}{
		{"positive small", []byte{0x02}, 2, 1},
		{"negative small", []byte{0x7e}, -2, 1},
		{"zero", []byte{0x00}, 0, 1},
		// -128 encoded as two-byte SLEB128.
		{"negative two byte", []byte{0x80, 0x7f}, -128, 2},
		// 128 encoded as two-byte SLEB128.
		{"positive two byte", []byte{0x80, 0x01}, 128, 2},
		{"underflow", []byte{0x80}, 0, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, n := decodeSleb128(c.in)
			if got != c.want || n != c.n {
				t.Errorf("decodeSleb128(%v) = (%d, %d), want (%d, %d)", c.in, got, n, c.want, c.n)
			}
		})
	}
}

func TestTypeNameAndSizeBaseType(t *testing.T) {
	bt := &dwarf.BasicType{CommonType: dwarf.CommonType{Name: "int", ByteSize: 4}}
	name, size := typeNameAndSize(bt)
	if name != "int" || size != 4 {
		t.Errorf("got (%q, %d), want (\"int\", 4)", name, size)
	}
}

func TestTypeNameAndSizeTypedefChain(t *testing.T) {
	bt := &dwarf.BasicType{CommonType: dwarf.CommonType{Name: "long", ByteSize: 8}}
	td := &dwarf.TypedefType{CommonType: dwarf.CommonType{Name: "word_t"}, Type: bt}
	name, size := typeNameAndSize(td)
	if name != "long" || size != 8 {
		t.Errorf("got (%q, %d), want (\"long\", 8)", name, size)
	}
}

func TestTypeNameAndSizeConstQualified(t *testing.T) {
	bt := &dwarf.BasicType{CommonType: dwarf.CommonType{Name: "char", ByteSize: 1}}
	qt := &dwarf.QualType{CommonType: dwarf.CommonType{}, Qual: "const", Type: bt}
	name, size := typeNameAndSize(qt)
	if name != "const char" || size != 1 {
		t.Errorf("got (%q, %d), want (\"const char\", 1)", name, size)
	}
}

func TestTypeNameAndSizeUnknownByteSize(t *testing.T) {
	bt := &dwarf.BasicType{CommonType: dwarf.CommonType{Name: "void", ByteSize: -1}}
	_, size := typeNameAndSize(bt)
	if size != SizeUnknown {
		t.Errorf("got size %d, want SizeUnknown", size)
	}
}

func entryWith(tag dwarf.Tag, fields ...dwarf.Field) *dwarf.Entry {
	return &dwarf.Entry{Tag: tag, Field: fields}
}

func TestScopeRangeAbsoluteHighpc(t *testing.T) {
	e := entryWith(dwarf.TagSubprogram,
		dwarf.Field{Attr: dwarf.AttrLowpc, Val: uint64(0x1000), Class: dwarf.ClassAddress},
		dwarf.Field{Attr: dwarf.AttrHighpc, Val: uint64(0x1100), Class: dwarf.ClassAddress},
	)
	lo, hi, ok := scopeRange(e)
	if !ok || lo != 0x1000 || hi != 0x1100 {
		t.Errorf("scopeRange = (0x%x, 0x%x, %v), want (0x1000, 0x1100, true)", lo, hi, ok)
	}
}

func TestScopeRangeConstHighpc(t *testing.T) {
	e := entryWith(dwarf.TagSubprogram,
		dwarf.Field{Attr: dwarf.AttrLowpc, Val: uint64(0x1000), Class: dwarf.ClassAddress},
		dwarf.Field{Attr: dwarf.AttrHighpc, Val: int64(0x100), Class: dwarf.ClassConstant},
	)
	lo, hi, ok := scopeRange(e)
	if !ok || lo != 0x1000 || hi != 0x1100 {
		t.Errorf("scopeRange = (0x%x, 0x%x, %v), want (0x1000, 0x1100, true)", lo, hi, ok)
	}
}

func TestScopeRangeMissingAttrs(t *testing.T) {
	e := entryWith(dwarf.TagSubprogram)
	if _, _, ok := scopeRange(e); ok {
		t.Error("scopeRange on entry with no pc attrs: expected ok = false")
	}
}

func TestScopeContainsPC(t *testing.T) {
	stack := []scopeFrame{
		{depth: 0, low: 0, high: 0x2000, hasRange: true},
		{depth: 1, low: 0x1000, high: 0x1100, hasRange: true},
	}
	if !scopeContainsPC(stack, 0x1050) {
		t.Error("pc inside innermost scope: expected true")
	}
	if scopeContainsPC(stack, 0x1500) {
		t.Error("pc outside innermost scope but inside outer: expected innermost scope to win (false)")
	}
}

func TestScopeContainsPCNoRangedScope(t *testing.T) {
	stack := []scopeFrame{{depth: 0, hasRange: false}}
	if scopeContainsPC(stack, 0x10) {
		t.Error("no ranged scope on stack: expected false")
	}
}

// TestPopClosedScopesDropsJustClosedFrame exercises the exact sequence a
// DIE walk produces for a subprogram containing a `{ }` lexical block
// followed by a sibling variable: subprogram opens at depth 0 (its
// children at depth 1), the block opens at depth 1 (its children at depth
// 2) and then closes back to depth 1, and a variable sibling to the block
// is read at depth 1. Once the block closes, its frame must be gone so the
// sibling variable is tested against the subprogram's range, not the
// stale block's.
func TestPopClosedScopesDropsJustClosedFrame(t *testing.T) {
	var stack []scopeFrame

	// subprogram: read at depth 0, has children -> depth becomes 1.
	stack = append(stack, scopeFrame{depth: 0, low: 0x1000, high: 0x2000, hasRange: true})
	depth := 1

	// lexical_block: read at depth 1, has children -> depth becomes 2.
	stack = append(stack, scopeFrame{depth: 1, low: 0x1100, high: 0x1200, hasRange: true})
	depth = 2

	// block's children end: depth-- to 1, then pop closed frames.
	depth--
	stack = popClosedScopes(stack, depth)

	if len(stack) != 1 {
		t.Fatalf("after block closes, stack = %+v, want 1 frame (subprogram only)", stack)
	}
	if stack[0].low != 0x1000 || stack[0].high != 0x2000 {
		t.Fatalf("surviving frame = %+v, want the subprogram's range", stack[0])
	}

	// sibling variable at depth 1, after the block: a pc outside the
	// block's range but inside the subprogram's must still be visible. If
	// the block's frame had lingered (the bug this guards against), this
	// pc would wrongly fail the block's narrower range check instead of
	// reaching the subprogram's.
	if !scopeContainsPC(stack, 0x1050) {
		t.Error("pc inside subprogram but outside the closed block: expected visible")
	}
}

func TestResolveLocationUnsupportedOp(t *testing.T) {
	p := &Provider{}
	e := entryWith(dwarf.TagVariable,
		dwarf.Field{Attr: dwarf.AttrLocation, Val: []byte{0x50}, Class: dwarf.ClassExprLoc},
	)
	if _, ok := p.resolveLocation(e, nil); ok {
		t.Error("unsupported DWARF location op: expected variable to be skipped")
	}
}

func TestResolveLocationFbreg(t *testing.T) {
	p := &Provider{}
	// DW_OP_fbreg -8 (SLEB128 of -8 is 0x78).
	e := entryWith(dwarf.TagVariable,
		dwarf.Field{Attr: dwarf.AttrLocation, Val: []byte{dwOpFbreg, 0x78}, Class: dwarf.ClassExprLoc},
	)
	loc, ok := p.resolveLocation(e, nil)
	if !ok {
		t.Fatal("expected successful fbreg decode")
	}
	if loc.Kind != LocFrameOffset || loc.FrameOffset != -8 {
		t.Errorf("loc = %+v, want Kind=LocFrameOffset FrameOffset=-8", loc)
	}
}
