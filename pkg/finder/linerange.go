// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package finder

import (
	"debug/dwarf"
	"math"

	"github.com/go-delve/delve/pkg/dwarf/godwarf"
	"github.com/pkg/errors"

	"github.com/DataDog/probe-finder/pkg/dwarfnav"
	"github.com/DataDog/probe-finder/pkg/ir"
	"github.com/DataDog/probe-finder/pkg/lineset"
	"github.com/DataDog/probe-finder/pkg/object"
	"github.com/DataDog/probe-finder/pkg/util/log"
)

// LineQuery asks for the probeable lines of a function or a file window.
// With a function, Start and End are offsets relative to its declaration
// line; without one, they are absolute line numbers.
type LineQuery struct {
	Function string
	File     string
	Start    int
	End      int
}

// lineState carries one line-range discovery pass across compile units.
type lineState struct {
	f     *Finder
	cu    object.CompileUnit
	fname string
	lnoS  int
	lnoE  int
	lr    *ir.LineRange
	set   lineset.Set
}

// FindLineRange discovers the addressable source lines matching q. An empty
// result with Found unset is a valid negative outcome, not an error.
func (f *Finder) FindLineRange(q *LineQuery) (*ir.LineRange, error) {
	if q.Function == "" && q.File == "" {
		return nil, errors.Wrap(ir.ErrInvalid, "a line range needs a function or a file")
	}
	ls := &lineState{
		f:  f,
		lr: &ir.LineRange{Function: q.Function, File: q.File, Start: q.Start, End: q.End},
	}
	for cu, err := range f.sess.CompileUnits() {
		if err != nil {
			return nil, err
		}
		ls.cu = cu
		ls.fname = ""
		if q.File != "" {
			real, ok := cu.FindRealPath(q.File)
			if !ok {
				continue
			}
			ls.fname = real
		}
		if q.Function != "" {
			err = ls.byFunction(q)
		} else {
			ls.lnoS, ls.lnoE = q.Start, q.End
			err = ls.collect(nil)
		}
		if err != nil {
			return nil, err
		}
		if ls.lr.Found {
			break
		}
	}
	return ls.lr, nil
}

// byFunction anchors the window at the declaration line of the named
// function. Only the first matching function is used.
func (ls *lineState) byFunction(q *LineQuery) error {
	for fn, err := range ls.cu.Functions() {
		if err != nil {
			return err
		}
		if fn.Tag != dwarf.TagSubprogram || dwarfnav.Name(fn.Entry) != q.Function {
			continue
		}
		if idx, ok := dwarfnav.DeclFile(fn.Entry); ok {
			if fname := ls.cu.FileName(idx); fname != "" {
				ls.fname = fname
			}
		}
		decl, _ := dwarfnav.DeclLine(fn.Entry)
		ls.lr.Offset = decl
		ls.lnoS = clampLine(decl, q.Start)
		ls.lnoE = clampLine(decl, q.End)
		ls.lr.Start = ls.lnoS
		ls.lr.End = ls.lnoE
		log.Debugf("line range of %s: %d to %d", q.Function, ls.lnoS, ls.lnoE)

		if dwarfnav.IsInlined(fn.Entry) {
			// One instance is enough to find the lines.
			for host, err := range ls.cu.Functions() {
				if err != nil {
					return err
				}
				if ins := dwarfnav.FindInlineInstances(host, fn.Offset); len(ins) > 0 {
					return ls.collect(ins[0])
				}
			}
			return nil
		}
		return ls.collect(fn)
	}
	return nil
}

// collect gathers the line table rows inside the window, then adds
// declaration lines, which line tables omit.
func (ls *lineState) collect(scope *godwarf.Tree) error {
	rows, err := ls.cu.LineEntries()
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.Line < ls.lnoS || row.Line > ls.lnoE {
			continue
		}
		if scope != nil {
			if !scope.ContainsPC(row.Address) {
				continue
			}
			if dwarfnav.FindInline(scope, row.Address) != nil {
				continue
			}
		}
		if ls.fname != "" && !object.TailMatch(row.File, ls.fname) {
			continue
		}
		if err := ls.addLine(row.File, row.Line); err != nil {
			return err
		}
	}

	if scope != nil {
		if decl, ok := dwarfnav.DeclLine(scope.Entry); ok && decl >= ls.lnoS && decl <= ls.lnoE {
			src := ls.fname
			if idx, ok := dwarfnav.DeclFile(scope.Entry); ok {
				if fname := ls.cu.FileName(idx); fname != "" {
					src = fname
				}
			}
			// A declaration without a recorded file cannot be placed.
			if src != "" {
				if err := ls.addLine(src, decl); err != nil {
					return err
				}
			}
		}
	} else if err := ls.funcDeclLines(); err != nil {
		return err
	}

	if !ls.set.Empty() {
		ls.lr.Lines = ls.set.Lines()
		ls.lr.Found = true
	}
	return nil
}

// funcDeclLines scans every top-level function for a declaration line inside
// the window, since no single function anchors an absolute-line query.
func (ls *lineState) funcDeclLines() error {
	for fn, err := range ls.cu.Functions() {
		if err != nil {
			return err
		}
		src := ""
		if idx, ok := dwarfnav.DeclFile(fn.Entry); ok {
			src = ls.cu.FileName(idx)
		}
		if src == "" {
			continue
		}
		if ls.fname != "" && !object.TailMatch(src, ls.fname) {
			continue
		}
		decl, ok := dwarfnav.DeclLine(fn.Entry)
		if !ok || decl < ls.lnoS || decl > ls.lnoE {
			continue
		}
		if err := ls.addLine(src, decl); err != nil {
			return err
		}
	}
	return nil
}

// addLine records a discovered line, resolving and caching the real source
// path on the first hit.
func (ls *lineState) addLine(src string, line int) error {
	if ls.lr.Path == "" {
		path, err := ls.f.realPath(src)
		if err != nil {
			return err
		}
		ls.lr.Path = path
	}
	ls.set.Insert(line)
	return nil
}

// clampLine adds a relative offset to a declaration line, clamping overflow
// to the maximum representable line instead of wrapping negative.
func clampLine(base, offset int) int {
	n := base + offset
	if n < 0 || n > math.MaxInt32 {
		return math.MaxInt32
	}
	return n
}
