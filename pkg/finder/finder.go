// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package finder resolves source-level probe requests against a binary's
// debug info. It turns "probe foo at its 3rd line, capture ctx->flags" into
// attachable symbol+offset trace events with per-argument fetch descriptors,
// and provides the companion line-range and reverse address lookups.
package finder

import (
	"debug/dwarf"
	"strings"

	"github.com/go-delve/delve/pkg/dwarf/godwarf"
	"github.com/pkg/errors"

	"github.com/DataDog/probe-finder/pkg/dwarfnav"
	"github.com/DataDog/probe-finder/pkg/ir"
	"github.com/DataDog/probe-finder/pkg/lineset"
	"github.com/DataDog/probe-finder/pkg/object"
	"github.com/DataDog/probe-finder/pkg/util/log"
)

// Finder resolves probe requests against one debug info session. It is not
// safe for concurrent use.
type Finder struct {
	sess         object.Session
	sourcePrefix string
	matchLine    func(text, pattern string) bool
}

// Option configures a Finder.
type Option func(*Finder)

// WithSourcePrefix sets the directory prepended to the source paths recorded
// in the debug info when locating files on disk.
func WithSourcePrefix(prefix string) Option {
	return func(f *Finder) { f.sourcePrefix = prefix }
}

// WithLineMatcher overrides the lazy-pattern predicate applied to each source
// line. The default is a shell-style match anywhere in the line.
func WithLineMatcher(m func(text, pattern string) bool) Option {
	return func(f *Finder) { f.matchLine = m }
}

// New returns a Finder over sess. The caller retains ownership of the
// session.
func New(sess object.Session, opts ...Option) *Finder {
	f := &Finder{sess: sess}
	for _, o := range opts {
		o(f)
	}
	return f
}

// TraceEventsFromFile opens the binary at path, resolves req and closes the
// session again.
func TraceEventsFromFile(path string, req *ir.ProbeRequest, maxEvents int, opts ...Option) ([]ir.TraceEvent, error) {
	sess, err := object.Open(path)
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	return New(sess, opts...).FindTraceEvents(req, maxEvents)
}

// LineRangeFromFile opens the binary at path, resolves q and closes the
// session again.
func LineRangeFromFile(path string, q *LineQuery, opts ...Option) (*ir.LineRange, error) {
	sess, err := object.Open(path)
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	return New(sess, opts...).FindLineRange(q)
}

// ProbePointFromFile opens the binary at path, reverse-resolves addr and
// closes the session again.
func ProbePointFromFile(path string, addr uint64, opts ...Option) (*ir.ReverseLookup, error) {
	sess, err := object.Open(path)
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	return New(sess, opts...).FindProbePoint(addr)
}

// probeState carries one request's resolution pass across compile units.
type probeState struct {
	f         *Finder
	req       *ir.ProbeRequest
	maxEvents int
	tevs      []ir.TraceEvent

	cu    object.CompileUnit
	fname string
	lno   int
	addr  uint64
	fb    []object.LocationOp

	lcache     lineset.Set
	lcacheDone bool
}

// FindTraceEvents resolves req into at most maxEvents trace events. Events
// completed before an error are returned alongside it; a well-formed request
// that matches nothing yields an empty slice and no error.
func (f *Finder) FindTraceEvents(req *ir.ProbeRequest, maxEvents int) ([]ir.TraceEvent, error) {
	if maxEvents <= 0 {
		return nil, errors.Wrap(ir.ErrInvalid, "event capacity must be positive")
	}
	st := &probeState{f: f, req: req, maxEvents: maxEvents}
	pp := &req.Point
	for cu, err := range f.sess.CompileUnits() {
		if err != nil {
			return st.tevs, err
		}
		st.cu = cu
		st.fname = ""
		if pp.File != "" {
			real, ok := cu.FindRealPath(pp.File)
			if !ok {
				continue
			}
			st.fname = real
		}
		switch {
		case pp.Function != "":
			err = st.byFunction()
		case pp.LazyPattern != "":
			err = st.lazy(nil)
		default:
			st.lno = pp.Line
			err = st.byLine()
		}
		if err != nil {
			return st.tevs, err
		}
	}
	return st.tevs, nil
}

// byFunction searches the current unit's top-level functions for the
// requested name. Only the first match is used; the same symbol does not
// recur within one unit.
func (st *probeState) byFunction() error {
	pp := &st.req.Point
	for fn, err := range st.cu.Functions() {
		if err != nil {
			return err
		}
		if fn.Tag != dwarf.TagSubprogram || dwarfnav.Name(fn.Entry) != pp.Function {
			continue
		}
		if idx, ok := dwarfnav.DeclFile(fn.Entry); ok {
			if fname := st.cu.FileName(idx); fname != "" {
				st.fname = fname
			}
		}
		switch {
		case pp.Line != 0:
			// Function-relative line.
			decl, ok := dwarfnav.DeclLine(fn.Entry)
			if !ok {
				return errors.Wrapf(ir.ErrNotFound, "no declaration line for %s", pp.Function)
			}
			st.lno = decl + pp.Line
			return st.byLine()
		case !dwarfnav.IsInlined(fn.Entry):
			if pp.LazyPattern != "" {
				return st.lazy(fn)
			}
			entry, ok := dwarfnav.EntryPC(fn)
			if !ok {
				return errors.Wrapf(ir.ErrNotFound, "failed to get entry address of %s", pp.Function)
			}
			st.addr = entry + pp.Offset
			return st.convertProbePoint(fn)
		default:
			return st.inlineInstances(fn)
		}
	}
	return nil
}

// inlineInstances emits one event per inlined instance of the abstract
// subprogram fn. A failure on any instance aborts the enumeration.
func (st *probeState) inlineInstances(fn *godwarf.Tree) error {
	pp := &st.req.Point
	for host, err := range st.cu.Functions() {
		if err != nil {
			return err
		}
		for _, in := range dwarfnav.FindInlineInstances(host, fn.Offset) {
			if pp.LazyPattern != "" {
				if err := st.lazy(in); err != nil {
					return err
				}
				continue
			}
			entry, ok := dwarfnav.EntryPC(in)
			if !ok {
				return errors.Wrapf(ir.ErrNotFound, "failed to get entry address of inlined %s", pp.Function)
			}
			st.addr = entry + pp.Offset
			log.Debugf("found inlined instance of %s at %#x", pp.Function, st.addr)
			if err := st.convertProbePoint(in); err != nil {
				return err
			}
		}
	}
	return nil
}

// byLine emits an event for every line table row matching the target line.
// Rows that fail with a not-found condition are skipped, since the same
// source line may legitimately appear again via inlining.
func (st *probeState) byLine() error {
	rows, err := st.cu.LineEntries()
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.Line != st.lno {
			continue
		}
		if st.fname != "" && !object.TailMatch(row.File, st.fname) {
			continue
		}
		st.addr = row.Address
		log.Debugf("probe line found: %d at %#x", row.Line, row.Address)
		if err := st.convertProbePoint(nil); err != nil {
			if errors.Is(err, ir.ErrNotFound) {
				log.Debugf("skipping line %d at %#x: %v", row.Line, row.Address, err)
				continue
			}
			return err
		}
	}
	return nil
}

// convertProbePoint assembles one trace event at st.addr. Partial events are
// never emitted: the event is appended only once every argument resolved.
func (st *probeState) convertProbePoint(node *godwarf.Tree) error {
	if len(st.tevs) == st.maxEvents {
		return errors.Wrapf(ir.ErrOutOfRange, "too many (> %d) probe points found", st.maxEvents)
	}
	sp := node
	if sp == nil || sp.Tag != dwarf.TagSubprogram {
		var err error
		sp, err = enclosingSubprogram(st.cu, st.addr)
		if err != nil {
			return err
		}
		if sp == nil {
			return errors.Wrapf(ir.ErrNotFound, "no function found at %#x", st.addr)
		}
	}

	tev := ir.TraceEvent{Event: st.req.Event, Group: st.req.Group}
	tev.Point.Retprobe = st.req.Point.Retprobe
	if name := dwarfnav.Name(sp.Entry); name != "" {
		entry, ok := dwarfnav.EntryPC(sp)
		if !ok {
			return errors.Wrapf(ir.ErrNotFound, "failed to get entry address of %s", name)
		}
		tev.Point.Symbol = name
		tev.Point.Offset = st.addr - entry
	} else {
		tev.Point.Offset = st.addr
	}
	log.Debugf("probe point found: %s+%d", tev.Point.Symbol, tev.Point.Offset)

	fb, err := st.f.sess.FrameBase(st.cu, sp.Entry, st.addr)
	if err != nil {
		if errors.Is(err, ir.ErrNotFound) || errors.Is(err, ir.ErrUnsupported) {
			return err
		}
		log.Debugf("failed to decode the frame base at %#x: %v", st.addr, err)
		fb = nil
	}
	st.fb = fb
	defer func() { st.fb = nil }()

	for i := range st.req.Args {
		tvar, err := st.findVariable(sp, &st.req.Args[i])
		if err != nil {
			return err
		}
		tev.Args = append(tev.Args, *tvar)
	}
	st.tevs = append(st.tevs, tev)
	return nil
}

// findVariable resolves one requested argument in the scope of sp, falling
// back to the unit's top-level variables.
func (st *probeState) findVariable(sp *godwarf.Tree, pvar *ir.ArgumentRequest) (*ir.TraceArgument, error) {
	tvar := &ir.TraceArgument{Name: pvar.Name}
	if tvar.Name == "" {
		// The type separator is not valid in an event argument name.
		tvar.Name = strings.Replace(pvar.String(), ":", "_", 1)
	}
	if !ir.IsVarName(pvar.Var) {
		// Raw parameter, passed through verbatim.
		tvar.Value = pvar.Var
		tvar.Type = pvar.Type
		return tvar, nil
	}

	log.Debugf("searching %q variable in context", pvar.Var)
	vr := dwarfnav.FindVariable(sp, pvar.Var)
	if vr == nil {
		vars, err := st.cu.Variables()
		if err != nil {
			return nil, err
		}
		for _, v := range vars {
			if dwarfnav.Name(v.Entry) == pvar.Var {
				vr = v
				break
			}
		}
	}
	if vr == nil {
		return nil, errors.Wrapf(ir.ErrNotFound, "failed to find %q in %s", pvar.Var, dwarfnav.Name(sp.Entry))
	}
	if err := st.convertVariable(vr, pvar, tvar); err != nil {
		return nil, err
	}
	return tvar, nil
}

// enclosingSubprogram returns the unit's real function covering pc, or nil.
func enclosingSubprogram(cu object.CompileUnit, pc uint64) (*godwarf.Tree, error) {
	for fn, err := range cu.Functions() {
		if err != nil {
			return nil, err
		}
		if fn.Tag == dwarf.TagSubprogram && fn.ContainsPC(pc) {
			return fn, nil
		}
	}
	return nil, nil
}
