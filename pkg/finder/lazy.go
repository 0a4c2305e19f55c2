// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package finder

import (
	"bufio"
	"os"

	"github.com/go-delve/delve/pkg/dwarf/godwarf"
	"github.com/gobwas/glob"
	"github.com/pkg/errors"

	"github.com/DataDog/probe-finder/pkg/dwarfnav"
	"github.com/DataDog/probe-finder/pkg/ir"
	"github.com/DataDog/probe-finder/pkg/object"
	"github.com/DataDog/probe-finder/pkg/util/log"
)

// lazy emits an event for every line table row whose source line matched the
// lazy pattern. When scope is given, addresses outside it are skipped, as are
// addresses covered by a nested inlined instance, so a statement is not
// probed both in its outer and inlined copy.
func (st *probeState) lazy(scope *godwarf.Tree) error {
	pp := &st.req.Point
	if !st.lcacheDone {
		if err := st.findLazyMatchLines(); err != nil {
			return err
		}
		st.lcacheDone = true
	}
	if st.lcache.Empty() {
		log.Debugf("no lines matched %q in %s", pp.LazyPattern, st.fname)
		return nil
	}

	rows, err := st.cu.LineEntries()
	if err != nil {
		return err
	}
	for _, row := range rows {
		if !st.lcache.Has(row.Line) {
			continue
		}
		if st.fname != "" && !object.TailMatch(row.File, st.fname) {
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
		st.addr = row.Address
		log.Debugf("probe line found: %d at %#x", row.Line, row.Address)
		if err := st.convertProbePoint(scope); err != nil {
			if errors.Is(err, ir.ErrNotFound) {
				log.Debugf("skipping line %d at %#x: %v", row.Line, row.Address, err)
				continue
			}
			return err
		}
	}
	return nil
}

// findLazyMatchLines scans the target source file and records every line
// whose text satisfies the pattern.
func (st *probeState) findLazyMatchLines() error {
	if st.fname == "" {
		return errors.Wrap(ir.ErrInvalid, "no source file to match the lazy pattern against")
	}
	pattern := st.req.Point.LazyPattern
	match := st.f.matchLine
	if match == nil {
		g, err := glob.Compile("*" + pattern + "*")
		if err != nil {
			return errors.Wrapf(ir.ErrInvalid, "bad lazy pattern %q: %v", pattern, err)
		}
		match = func(text, _ string) bool { return g.Match(text) }
	}

	path, err := st.f.realPath(st.fname)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; sc.Scan(); line++ {
		if match(sc.Text(), pattern) {
			st.lcache.Insert(line)
		}
	}
	if err := sc.Err(); err != nil {
		return errors.Wrapf(err, "failed to read %s", path)
	}
	log.Debugf("%d lines matched %q in %s", st.lcache.Len(), pattern, path)
	return nil
}
