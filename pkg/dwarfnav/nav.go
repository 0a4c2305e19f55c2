// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package dwarfnav provides search and attribute helpers over DIE trees. The
// walkers mirror the shape of debug info: variables hide inside lexical
// blocks, members sit as direct children of their structure, inlined
// instances nest arbitrarily deep inside their caller.
package dwarfnav

import (
	"bytes"
	"debug/dwarf"

	"github.com/go-delve/delve/pkg/dwarf/godwarf"
	"github.com/go-delve/delve/pkg/dwarf/leb128"
	pkgerrors "github.com/pkg/errors"

	"github.com/DataDog/probe-finder/pkg/ir"
)

// WalkAction directs FindChild at each visited DIE.
type WalkAction int

const (
	// WalkFound stops the walk and returns the current DIE.
	WalkFound WalkAction = iota
	// WalkChildren descends into the current DIE only.
	WalkChildren
	// WalkSiblings skips the current DIE's children.
	WalkSiblings
	// WalkContinue descends and then moves on to the next sibling.
	WalkContinue
)

// Loader loads a DIE subtree by offset, resolving cross references such as
// type and abstract origin attributes.
type Loader interface {
	LoadTree(off dwarf.Offset) (*godwarf.Tree, error)
}

// FindChild walks root's descendants depth first, steered by cb, and returns
// the first DIE reported as found.
func FindChild(root *godwarf.Tree, cb func(*godwarf.Tree) WalkAction) *godwarf.Tree {
	for _, child := range root.Children {
		act := cb(child)
		if act == WalkFound {
			return child
		}
		if act == WalkChildren || act == WalkContinue {
			if found := FindChild(child, cb); found != nil {
				return found
			}
		}
		if act != WalkSiblings && act != WalkContinue {
			break
		}
	}
	return nil
}

// FindVariable searches scope for a variable or formal parameter named name,
// descending through lexical blocks.
func FindVariable(scope *godwarf.Tree, name string) *godwarf.Tree {
	return FindChild(scope, func(t *godwarf.Tree) WalkAction {
		if (t.Tag == dwarf.TagVariable || t.Tag == dwarf.TagFormalParameter) &&
			Name(t.Entry) == name {
			return WalkFound
		}
		return WalkContinue
	})
}

// FindMember searches the direct children of a structure type for the member
// named name.
func FindMember(structType *godwarf.Tree, name string) *godwarf.Tree {
	return FindChild(structType, func(t *godwarf.Tree) WalkAction {
		if t.Tag == dwarf.TagMember && Name(t.Entry) == name {
			return WalkFound
		}
		return WalkSiblings
	})
}

// FindInline returns the innermost inlined instance in root containing pc, or
// nil when pc is not inside any inlined code.
func FindInline(root *godwarf.Tree, pc uint64) *godwarf.Tree {
	var deepest *godwarf.Tree
	FindChild(root, func(t *godwarf.Tree) WalkAction {
		if t.Tag == dwarf.TagInlinedSubroutine && t.ContainsPC(pc) {
			deepest = t
		}
		return WalkContinue
	})
	return deepest
}

// FindInlineInstances collects the inlined instances in root whose abstract
// origin is the subprogram at origin.
func FindInlineInstances(root *godwarf.Tree, origin dwarf.Offset) []*godwarf.Tree {
	var out []*godwarf.Tree
	FindChild(root, func(t *godwarf.Tree) WalkAction {
		if t.Tag == dwarf.TagInlinedSubroutine {
			if off, ok := AbstractOrigin(t.Entry); ok && off == origin {
				out = append(out, t)
			}
		}
		return WalkContinue
	})
	return out
}

// RealType resolves e's type attribute and strips typedefs and qualifiers
// down to the underlying type.
func RealType(e godwarf.Entry, ld Loader) (*godwarf.Tree, error) {
	off, ok := e.Val(dwarf.AttrType).(dwarf.Offset)
	if !ok {
		return nil, pkgerrors.Wrap(ir.ErrNotFound, "no type attribute")
	}
	for range 32 {
		t, err := ld.LoadTree(off)
		if err != nil {
			return nil, err
		}
		switch t.Tag {
		case dwarf.TagTypedef, dwarf.TagConstType, dwarf.TagVolatileType,
			dwarf.TagRestrictType, dwarf.TagSharedType:
			next, ok := t.Entry.Val(dwarf.AttrType).(dwarf.Offset)
			if !ok {
				return nil, pkgerrors.Wrap(ir.ErrNotFound, "dangling type qualifier")
			}
			off = next
		default:
			return t, nil
		}
	}
	return nil, pkgerrors.Wrap(ir.ErrInvalid, "type qualifier chain too deep")
}

// Name returns the DIE's DW_AT_name, or "".
func Name(e godwarf.Entry) string {
	name, _ := e.Val(dwarf.AttrName).(string)
	return name
}

// ByteSize returns the DIE's DW_AT_byte_size.
func ByteSize(e godwarf.Entry) (int64, bool) {
	n, ok := e.Val(dwarf.AttrByteSize).(int64)
	return n, ok
}

// Signedness encodings of DW_AT_encoding.
const (
	encSigned      = 0x05
	encSignedChar  = 0x06
	encSignedFixed = 0x0d
)

// IsSigned reports whether the base type DIE has a signed encoding.
func IsSigned(e godwarf.Entry) bool {
	enc, ok := e.Val(dwarf.AttrEncoding).(int64)
	if !ok {
		return false
	}
	return enc == encSigned || enc == encSignedChar || enc == encSignedFixed
}

// MemberOffset returns the byte offset of a structure member. Older producers
// encode it as a one-operation location expression instead of a constant.
func MemberOffset(e godwarf.Entry) (int64, error) {
	switch v := e.Val(dwarf.AttrDataMemberLoc).(type) {
	case int64:
		return v, nil
	case []byte:
		const opPlusUconst = 0x23
		if len(v) < 2 || v[0] != opPlusUconst {
			return 0, pkgerrors.Wrapf(ir.ErrUnsupported,
				"unexpected member location expression for %s", Name(e))
		}
		n, c := leb128.DecodeUnsigned(bytes.NewBuffer(v[1:]))
		if c == 0 {
			return 0, pkgerrors.Wrapf(ir.ErrInvalid,
				"truncated member location expression for %s", Name(e))
		}
		return int64(n), nil
	default:
		return 0, pkgerrors.Wrapf(ir.ErrNotFound, "no member location for %s", Name(e))
	}
}

// EntryPC returns the address execution enters the DIE at.
func EntryPC(t *godwarf.Tree) (uint64, bool) {
	if pc, ok := t.Entry.Val(dwarf.AttrEntrypc).(uint64); ok {
		return pc, true
	}
	if pc, ok := t.Entry.Val(dwarf.AttrLowpc).(uint64); ok {
		return pc, true
	}
	if len(t.Ranges) > 0 {
		return t.Ranges[0][0], true
	}
	return 0, false
}

// DeclLine returns the DIE's declaration line.
func DeclLine(e godwarf.Entry) (int, bool) {
	n, ok := e.Val(dwarf.AttrDeclLine).(int64)
	return int(n), ok
}

// DeclFile returns the DIE's declaration file index.
func DeclFile(e godwarf.Entry) (int64, bool) {
	n, ok := e.Val(dwarf.AttrDeclFile).(int64)
	return n, ok
}

// Inline attribute values marking a subprogram actually inlined.
const (
	inlInlined         = 1
	inlDeclaredInlined = 3
)

// IsInlined reports whether the subprogram DIE was inlined by the compiler.
func IsInlined(e godwarf.Entry) bool {
	v, ok := e.Val(dwarf.AttrInline).(int64)
	return ok && (v == inlInlined || v == inlDeclaredInlined)
}

// AbstractOrigin returns the offset of the DIE's abstract origin.
func AbstractOrigin(e godwarf.Entry) (dwarf.Offset, bool) {
	off, ok := e.Val(dwarf.AttrAbstractOrigin).(dwarf.Offset)
	return off, ok
}

// IsExternal reports whether the DIE is externally visible.
func IsExternal(e godwarf.Entry) bool {
	v, ok := e.Val(dwarf.AttrExternal).(bool)
	return ok && v
}
