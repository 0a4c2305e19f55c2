// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package dwarfnav

import (
	"debug/dwarf"
	"testing"

	"github.com/go-delve/delve/pkg/dwarf/godwarf"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataDog/probe-finder/pkg/ir"
)

type fakeEntry map[dwarf.Attr]interface{}

func (e fakeEntry) Val(a dwarf.Attr) interface{} { return e[a] }

func (e fakeEntry) AttrField(a dwarf.Attr) *dwarf.Field {
	v, ok := e[a]
	if !ok {
		return nil
	}
	return &dwarf.Field{Attr: a, Val: v}
}

type fakeLoader map[dwarf.Offset]*godwarf.Tree

func (l fakeLoader) LoadTree(off dwarf.Offset) (*godwarf.Tree, error) {
	t, ok := l[off]
	if !ok {
		return nil, errors.Errorf("no DIE at %#x", off)
	}
	return t, nil
}

func node(tag dwarf.Tag, attrs fakeEntry, children ...*godwarf.Tree) *godwarf.Tree {
	if attrs == nil {
		attrs = fakeEntry{}
	}
	return &godwarf.Tree{Entry: attrs, Tag: tag, Children: children}
}

func TestFindVariableDescendsLexicalBlocks(t *testing.T) {
	want := node(dwarf.TagVariable, fakeEntry{dwarf.AttrName: "x"})
	root := node(dwarf.TagSubprogram, nil,
		node(dwarf.TagFormalParameter, fakeEntry{dwarf.AttrName: "ctx"}),
		node(dwarf.TagLexDwarfBlock, nil, want),
	)
	assert.Same(t, want, FindVariable(root, "x"))
	assert.NotNil(t, FindVariable(root, "ctx"))
	assert.Nil(t, FindVariable(root, "y"))
}

func TestFindMemberIsChildrenOnly(t *testing.T) {
	nested := node(dwarf.TagMember, fakeEntry{dwarf.AttrName: "inner"})
	st := node(dwarf.TagStructType, nil,
		node(dwarf.TagMember, fakeEntry{dwarf.AttrName: "a"}),
		node(dwarf.TagStructType, nil, nested),
		node(dwarf.TagMember, fakeEntry{dwarf.AttrName: "b"}),
	)
	assert.NotNil(t, FindMember(st, "a"))
	assert.NotNil(t, FindMember(st, "b"))
	// Members of a nested structure are not members of the outer one.
	assert.Nil(t, FindMember(st, "inner"))
}

func TestFindChildStopsOnSiblingsOnly(t *testing.T) {
	visited := []string{}
	root := node(dwarf.TagSubprogram, nil,
		node(dwarf.TagVariable, fakeEntry{dwarf.AttrName: "a"},
			node(dwarf.TagVariable, fakeEntry{dwarf.AttrName: "a.1"})),
		node(dwarf.TagVariable, fakeEntry{dwarf.AttrName: "b"}),
	)
	FindChild(root, func(tr *godwarf.Tree) WalkAction {
		visited = append(visited, Name(tr.Entry))
		return WalkSiblings
	})
	assert.Equal(t, []string{"a", "b"}, visited)
}

func TestFindInlineReturnsInnermost(t *testing.T) {
	inner := &godwarf.Tree{
		Entry:  fakeEntry{dwarf.AttrName: "inner"},
		Tag:    dwarf.TagInlinedSubroutine,
		Ranges: [][2]uint64{{0x110, 0x120}},
	}
	outer := &godwarf.Tree{
		Entry:    fakeEntry{dwarf.AttrName: "outer"},
		Tag:      dwarf.TagInlinedSubroutine,
		Ranges:   [][2]uint64{{0x100, 0x140}},
		Children: []*godwarf.Tree{inner},
	}
	sp := &godwarf.Tree{
		Entry:    fakeEntry{},
		Tag:      dwarf.TagSubprogram,
		Ranges:   [][2]uint64{{0x100, 0x200}},
		Children: []*godwarf.Tree{outer},
	}
	assert.Same(t, inner, FindInline(sp, 0x118))
	assert.Same(t, outer, FindInline(sp, 0x130))
	assert.Nil(t, FindInline(sp, 0x150))
}

func TestFindInlineInstances(t *testing.T) {
	a := node(dwarf.TagInlinedSubroutine, fakeEntry{dwarf.AttrAbstractOrigin: dwarf.Offset(0x40)})
	b := node(dwarf.TagInlinedSubroutine, fakeEntry{dwarf.AttrAbstractOrigin: dwarf.Offset(0x99)})
	c := node(dwarf.TagInlinedSubroutine, fakeEntry{dwarf.AttrAbstractOrigin: dwarf.Offset(0x40)})
	host := node(dwarf.TagSubprogram, nil, a, node(dwarf.TagLexDwarfBlock, nil, b, c))
	got := FindInlineInstances(host, 0x40)
	require.Len(t, got, 2)
	assert.Same(t, a, got[0])
	assert.Same(t, c, got[1])
}

func TestRealTypeStripsQualifiers(t *testing.T) {
	base := node(dwarf.TagBaseType, fakeEntry{dwarf.AttrName: "int", dwarf.AttrByteSize: int64(4)})
	ld := fakeLoader{
		0x10: node(dwarf.TagTypedef, fakeEntry{dwarf.AttrType: dwarf.Offset(0x20)}),
		0x20: node(dwarf.TagConstType, fakeEntry{dwarf.AttrType: dwarf.Offset(0x30)}),
		0x30: base,
	}
	v := node(dwarf.TagVariable, fakeEntry{dwarf.AttrType: dwarf.Offset(0x10)})
	got, err := RealType(v.Entry, ld)
	require.NoError(t, err)
	assert.Same(t, base, got)
}

func TestRealTypeMissing(t *testing.T) {
	v := node(dwarf.TagVariable, fakeEntry{})
	_, err := RealType(v.Entry, fakeLoader{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ir.ErrNotFound))
}

func TestMemberOffset(t *testing.T) {
	t.Run("constant", func(t *testing.T) {
		m := fakeEntry{dwarf.AttrDataMemberLoc: int64(8)}
		got, err := MemberOffset(m)
		require.NoError(t, err)
		assert.Equal(t, int64(8), got)
	})
	t.Run("plus uconst expression", func(t *testing.T) {
		m := fakeEntry{dwarf.AttrDataMemberLoc: []byte{0x23, 0x90, 0x01}} // uleb 144
		got, err := MemberOffset(m)
		require.NoError(t, err)
		assert.Equal(t, int64(144), got)
	})
	t.Run("other expression", func(t *testing.T) {
		m := fakeEntry{dwarf.AttrDataMemberLoc: []byte{0x1c, 0x00}}
		_, err := MemberOffset(m)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ir.ErrUnsupported))
	})
	t.Run("absent", func(t *testing.T) {
		_, err := MemberOffset(fakeEntry{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ir.ErrNotFound))
	})
}

func TestEntryPC(t *testing.T) {
	pc, ok := EntryPC(&godwarf.Tree{Entry: fakeEntry{dwarf.AttrEntrypc: uint64(0x40)}})
	assert.True(t, ok)
	assert.Equal(t, uint64(0x40), pc)

	pc, ok = EntryPC(&godwarf.Tree{Entry: fakeEntry{dwarf.AttrLowpc: uint64(0x50)}})
	assert.True(t, ok)
	assert.Equal(t, uint64(0x50), pc)

	pc, ok = EntryPC(&godwarf.Tree{Entry: fakeEntry{}, Ranges: [][2]uint64{{0x60, 0x80}}})
	assert.True(t, ok)
	assert.Equal(t, uint64(0x60), pc)

	_, ok = EntryPC(&godwarf.Tree{Entry: fakeEntry{}})
	assert.False(t, ok)
}

func TestIsSigned(t *testing.T) {
	assert.True(t, IsSigned(fakeEntry{dwarf.AttrEncoding: int64(0x05)}))
	assert.True(t, IsSigned(fakeEntry{dwarf.AttrEncoding: int64(0x06)}))
	assert.False(t, IsSigned(fakeEntry{dwarf.AttrEncoding: int64(0x07)}))
	assert.False(t, IsSigned(fakeEntry{}))
}

func TestIsInlined(t *testing.T) {
	assert.True(t, IsInlined(fakeEntry{dwarf.AttrInline: int64(1)}))
	assert.True(t, IsInlined(fakeEntry{dwarf.AttrInline: int64(3)}))
	assert.False(t, IsInlined(fakeEntry{dwarf.AttrInline: int64(0)}))
	assert.False(t, IsInlined(fakeEntry{}))
}
