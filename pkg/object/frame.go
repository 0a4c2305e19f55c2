// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package object

import (
	"debug/dwarf"

	"github.com/go-delve/delve/pkg/dwarf/frame"
	"github.com/go-delve/delve/pkg/dwarf/godwarf"
	"github.com/go-delve/delve/pkg/dwarf/op"
	pkgerrors "github.com/pkg/errors"

	"github.com/DataDog/probe-finder/pkg/ir"
	"github.com/DataDog/probe-finder/pkg/util/log"
)

// loadFrameSection parses the call frame information, preferring
// .debug_frame over .eh_frame. A binary without either still opens; frame
// base resolution through the CFA will then fail per probe.
func (s *ElfSession) loadFrameSection(path string) {
	for _, name := range []string{".debug_frame", ".eh_frame"} {
		sec := s.f.Section(name)
		if sec == nil {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			log.Warnf("failed to read %s of %s: %v", name, path, err)
			continue
		}
		fdes, err := frame.Parse(data, s.byteOrder, 0, s.ptrSize, sec.Addr)
		if err != nil {
			log.Warnf("failed to parse %s of %s: %v", name, path, err)
			continue
		}
		s.fdes = fdes
		return
	}
}

// FrameBase implements Session. A DW_OP_call_frame_cfa frame base is reduced
// through the CFI into a register-relative operation so variable locations
// can be composed without evaluating the expression stack.
func (s *ElfSession) FrameBase(cu CompileUnit, sp godwarf.Entry, pc uint64) ([]LocationOp, error) {
	ops, err := s.LocationAt(cu, sp, dwarf.AttrFrameBase, pc)
	if err != nil || ops == nil {
		return ops, err
	}
	if len(ops) != 1 || ops[0].Opcode != op.DW_OP_call_frame_cfa {
		return ops, nil
	}
	if s.fdes == nil {
		return nil, pkgerrors.Wrapf(ir.ErrNotFound, "no call frame information for pc %#x", pc)
	}
	fde, err := s.fdes.FDEForPC(pc)
	if err != nil {
		return nil, pkgerrors.Wrapf(ir.ErrNotFound, "no frame description entry for pc %#x", pc)
	}
	fc, err := fde.EstablishFrame(pc)
	if err != nil {
		return nil, pkgerrors.Wrapf(ir.ErrNotFound, "failed to establish the frame at pc %#x: %v", pc, err)
	}
	if fc.CFA.Rule != frame.RuleCFA {
		return nil, pkgerrors.Wrapf(ir.ErrUnsupported, "non-register CFA rule at pc %#x", pc)
	}
	return []LocationOp{{
		Opcode: op.DW_OP_bregx,
		Arg:    int64(fc.CFA.Reg),
		Arg2:   fc.CFA.Offset,
	}}, nil
}
