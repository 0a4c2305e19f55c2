// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package object opens a target binary and exposes its debug info to the
// finder: compilation units, line tables, attributed DIE trees, decoded
// location expressions, call frame information and register naming. It is the
// only package that touches the raw debug sections.
package object

import (
	"debug/dwarf"
	"debug/elf"
	"encoding/binary"
	"io"
	"iter"

	"github.com/go-delve/delve/pkg/dwarf/frame"
	"github.com/go-delve/delve/pkg/dwarf/godwarf"
	"github.com/go-delve/delve/pkg/dwarf/op"
	pkgerrors "github.com/pkg/errors"

	"github.com/DataDog/probe-finder/pkg/ir"
	"github.com/DataDog/probe-finder/pkg/util/log"
)

// LocationOp is one decoded operation of a location expression. Arg carries
// the operand (address, register number, or offset); Arg2 carries the second
// operand of two-operand ops such as DW_OP_bregx.
type LocationOp struct {
	Opcode op.Opcode
	Arg    int64
	Arg2   int64
}

// LineEntry is one row of a compilation unit's line table.
type LineEntry struct {
	Address uint64
	Line    int
	File    string
}

// Session is the debug info reader contract the finder consumes. A session is
// bound to one binary and is not safe for concurrent use.
type Session interface {
	// CompileUnits iterates the binary's compilation units in order.
	CompileUnits() iter.Seq2[CompileUnit, error]
	// CompileUnitFor returns the unit whose address ranges contain pc, or
	// nil when no unit covers it.
	CompileUnitFor(pc uint64) (CompileUnit, error)
	// LoadTree loads the DIE subtree rooted at off.
	LoadTree(off dwarf.Offset) (*godwarf.Tree, error)
	// LocationAt decodes the location expression of attr on e, selecting
	// the location list entry covering pc when the attribute refers to
	// one. It returns nil ops when the attribute is absent or no entry
	// covers pc.
	LocationAt(cu CompileUnit, e godwarf.Entry, attr dwarf.Attr, pc uint64) ([]LocationOp, error)
	// FrameBase resolves the frame base expression of subprogram sp at pc,
	// reducing DW_OP_call_frame_cfa through the call frame information to
	// a register-relative op. Nil ops mean the attribute is absent.
	FrameBase(cu CompileUnit, sp godwarf.Entry, pc uint64) ([]LocationOp, error)
	// RegisterName maps a DWARF register number to the architecture's
	// register token, reporting absence.
	RegisterName(n uint64) (string, bool)
	Close() error
}

// CompileUnit is one compilation unit's worth of debug info.
type CompileUnit interface {
	// Name returns the unit's declared source path.
	Name() string
	// LowPC returns the unit's base address, used as the location list
	// base.
	LowPC() uint64
	// ContainsPC reports whether the unit's ranges cover pc.
	ContainsPC(pc uint64) bool
	// FindRealPath returns the declared source path whose tail matches
	// fname.
	FindRealPath(fname string) (string, bool)
	// FileName resolves a DW_AT_decl_file index to a path.
	FileName(index int64) string
	// LineEntries returns the unit's line table rows.
	LineEntries() ([]LineEntry, error)
	// Functions iterates the unit's top-level subprogram trees.
	Functions() iter.Seq2[*godwarf.Tree, error]
	// Variables returns the unit's top-level variables, for the
	// enclosing-scope fallback of argument lookup.
	Variables() ([]*godwarf.Tree, error)
}

// ElfSession implements Session over an ELF binary's DWARF sections.
type ElfSession struct {
	f         *elf.File
	data      *dwarf.Data
	byteOrder binary.ByteOrder
	ptrSize   int
	arch      Arch
	fdes      frame.FrameDescriptionEntries
	debugLoc  []byte
}

var _ Session = (*ElfSession)(nil)

// Open opens the binary at path and prepares a debug info session. It fails
// with ir.ErrNoDebugInfo when the binary has no DWARF data.
func Open(path string) (*ElfSession, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open %s", path)
	}
	data, err := f.DWARF()
	if err != nil {
		f.Close()
		return nil, pkgerrors.Wrapf(ir.ErrNoDebugInfo, "%s: %v", path, err)
	}
	s := &ElfSession{
		f:         f,
		data:      data,
		byteOrder: f.ByteOrder,
		ptrSize:   8,
		arch:      archOf(f.Machine),
	}
	if f.Class == elf.ELFCLASS32 {
		s.ptrSize = 4
	}
	if sec := f.Section(".debug_loc"); sec != nil {
		if s.debugLoc, err = sec.Data(); err != nil {
			log.Warnf("failed to read .debug_loc of %s: %v", path, err)
		}
	}
	s.loadFrameSection(path)
	return s, nil
}

// Close releases the underlying file.
func (s *ElfSession) Close() error {
	return s.f.Close()
}

// Architecture returns the binary's architecture.
func (s *ElfSession) Architecture() Arch { return s.arch }

// CompileUnits implements Session.
func (s *ElfSession) CompileUnits() iter.Seq2[CompileUnit, error] {
	return func(yield func(CompileUnit, error) bool) {
		r := s.data.Reader()
		for {
			e, err := r.Next()
			if err != nil {
				yield(nil, pkgerrors.Wrap(err, "failed to read compile unit"))
				return
			}
			if e == nil {
				return
			}
			if e.Tag != dwarf.TagCompileUnit {
				r.SkipChildren()
				continue
			}
			if !yield(&elfCompileUnit{s: s, entry: e}, nil) {
				return
			}
			r.SkipChildren()
		}
	}
}

// CompileUnitFor implements Session.
func (s *ElfSession) CompileUnitFor(pc uint64) (CompileUnit, error) {
	for cu, err := range s.CompileUnits() {
		if err != nil {
			return nil, err
		}
		if cu.ContainsPC(pc) {
			return cu, nil
		}
	}
	return nil, nil
}

// LoadTree implements Session.
func (s *ElfSession) LoadTree(off dwarf.Offset) (*godwarf.Tree, error) {
	tr, err := godwarf.LoadTree(off, s.data, 0)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to load DIE tree at %#x", off)
	}
	return tr, nil
}

type elfCompileUnit struct {
	s      *ElfSession
	entry  *dwarf.Entry
	files  []string
	ranges [][2]uint64
}

func (cu *elfCompileUnit) Name() string {
	name, _ := cu.entry.Val(dwarf.AttrName).(string)
	return name
}

func (cu *elfCompileUnit) loadRanges() [][2]uint64 {
	if cu.ranges == nil {
		rngs, err := cu.s.data.Ranges(cu.entry)
		if err != nil {
			log.Debugf("failed to read ranges of %s: %v", cu.Name(), err)
			rngs = [][2]uint64{}
		}
		cu.ranges = rngs
	}
	return cu.ranges
}

func (cu *elfCompileUnit) LowPC() uint64 {
	if low, ok := cu.entry.Val(dwarf.AttrLowpc).(uint64); ok {
		return low
	}
	if rngs := cu.loadRanges(); len(rngs) > 0 {
		return rngs[0][0]
	}
	return 0
}

func (cu *elfCompileUnit) ContainsPC(pc uint64) bool {
	for _, rng := range cu.loadRanges() {
		if pc >= rng[0] && pc < rng[1] {
			return true
		}
	}
	return false
}

func (cu *elfCompileUnit) loadFiles() []string {
	if cu.files != nil {
		return cu.files
	}
	cu.files = []string{}
	lr, err := cu.s.data.LineReader(cu.entry)
	if err != nil || lr == nil {
		return cu.files
	}
	for _, f := range lr.Files() {
		if f == nil {
			cu.files = append(cu.files, "")
		} else {
			cu.files = append(cu.files, f.Name)
		}
	}
	return cu.files
}

func (cu *elfCompileUnit) FindRealPath(fname string) (string, bool) {
	for _, f := range cu.loadFiles() {
		if f != "" && TailMatch(f, fname) {
			return f, true
		}
	}
	return "", false
}

func (cu *elfCompileUnit) FileName(index int64) string {
	files := cu.loadFiles()
	if index < 0 || index >= int64(len(files)) {
		return ""
	}
	return files[index]
}

func (cu *elfCompileUnit) LineEntries() ([]LineEntry, error) {
	lr, err := cu.s.data.LineReader(cu.entry)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read the line table of %s", cu.Name())
	}
	if lr == nil {
		return nil, nil
	}
	var (
		rows []LineEntry
		le   dwarf.LineEntry
	)
	for {
		if err := lr.Next(&le); err != nil {
			if err == io.EOF {
				break
			}
			return nil, pkgerrors.Wrapf(err, "failed to read the line table of %s", cu.Name())
		}
		if le.EndSequence || le.File == nil {
			continue
		}
		rows = append(rows, LineEntry{Address: le.Address, Line: le.Line, File: le.File.Name})
	}
	return rows, nil
}

func (cu *elfCompileUnit) Functions() iter.Seq2[*godwarf.Tree, error] {
	return func(yield func(*godwarf.Tree, error) bool) {
		cu.eachChild(yield, dwarf.TagSubprogram)
	}
}

func (cu *elfCompileUnit) Variables() ([]*godwarf.Tree, error) {
	var out []*godwarf.Tree
	var iterErr error
	cu.eachChild(func(tr *godwarf.Tree, err error) bool {
		if err != nil {
			iterErr = err
			return false
		}
		out = append(out, tr)
		return true
	}, dwarf.TagVariable)
	return out, iterErr
}

// eachChild walks the unit's direct children, loading the tree of every entry
// whose tag matches.
func (cu *elfCompileUnit) eachChild(yield func(*godwarf.Tree, error) bool, tag dwarf.Tag) {
	if !cu.entry.Children {
		return
	}
	r := cu.s.data.Reader()
	r.Seek(cu.entry.Offset)
	if _, err := r.Next(); err != nil {
		yield(nil, pkgerrors.Wrap(err, "failed to read compile unit"))
		return
	}
	for {
		e, err := r.Next()
		if err != nil {
			yield(nil, pkgerrors.Wrap(err, "failed to read DIE"))
			return
		}
		if e == nil || e.Tag == 0 {
			return
		}
		if e.Tag == tag {
			tr, err := cu.s.LoadTree(e.Offset)
			if !yield(tr, err) {
				return
			}
		}
		r.SkipChildren()
	}
}

// TailMatch reports whether the whole of either string equals the other's
// tail.
func TailMatch(s, suffix string) bool {
	n := min(len(s), len(suffix))
	return s[len(s)-n:] == suffix[len(suffix)-n:]
}

func archOf(m elf.Machine) Arch {
	switch m {
	case elf.EM_X86_64:
		return ArchAMD64
	case elf.EM_AARCH64:
		return ArchARM64
	default:
		return ArchUnknown
	}
}
