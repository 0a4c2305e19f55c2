// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package finder

import (
	"github.com/go-delve/delve/pkg/dwarf/godwarf"
	"github.com/pkg/errors"

	"github.com/DataDog/probe-finder/pkg/dwarfnav"
	"github.com/DataDog/probe-finder/pkg/ir"
)

// FindProbePoint maps a code address back to its source location: an exact
// line table match gives file and line, the enclosing function gives a
// symbol with a relative line or a byte offset. Either lookup may fail
// independently; the result is found when at least one succeeded.
func (f *Finder) FindProbePoint(addr uint64) (*ir.ReverseLookup, error) {
	cu, err := f.sess.CompileUnitFor(addr)
	if err != nil {
		return nil, err
	}
	if cu == nil {
		return nil, errors.Wrapf(ir.ErrInvalid, "no compile unit covers address %#x", addr)
	}

	res := &ir.ReverseLookup{}
	rows, err := cu.LineEntries()
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		// Inexact matches are ignored; the address must be a line boundary.
		if row.Address == addr {
			res.File = row.File
			res.Line = row.Line
			res.Found = true
			break
		}
	}

	sp, err := enclosingSubprogram(cu, addr)
	if err != nil {
		return nil, err
	}
	if sp == nil {
		return res, nil
	}
	name := dwarfnav.Name(sp.Entry)
	entry, ok := dwarfnav.EntryPC(sp)
	if name == "" || !ok {
		return res, nil
	}

	useOffset := true
	if res.Line != 0 {
		if in := dwarfnav.FindInline(sp, addr); in != nil {
			iname := f.inlineName(in)
			if iname == "" {
				return res, nil
			}
			name = iname
			if decl, ok := dwarfnav.DeclLine(in.Entry); ok {
				res.RelativeLine = res.Line - decl
				useOffset = false
			}
		} else if entry == addr {
			// Function entry: the requested line is itself relative.
			res.RelativeLine = 0
			useOffset = false
		} else if decl, ok := dwarfnav.DeclLine(sp.Entry); ok {
			res.RelativeLine = res.Line - decl
			useOffset = false
		}
	}
	if useOffset {
		res.Offset = addr - entry
	}
	res.Function = name
	res.Found = true
	return res, nil
}

// inlineName names an inlined instance, following its abstract origin when
// the instance itself carries no name.
func (f *Finder) inlineName(in *godwarf.Tree) string {
	if name := dwarfnav.Name(in.Entry); name != "" {
		return name
	}
	off, ok := dwarfnav.AbstractOrigin(in.Entry)
	if !ok {
		return ""
	}
	origin, err := f.sess.LoadTree(off)
	if err != nil {
		return ""
	}
	return dwarfnav.Name(origin.Entry)
}
