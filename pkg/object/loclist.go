// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package object

import (
	"bytes"
	"debug/dwarf"
	"encoding/binary"

	"github.com/go-delve/delve/pkg/dwarf/godwarf"
	"github.com/go-delve/delve/pkg/dwarf/leb128"
	"github.com/go-delve/delve/pkg/dwarf/op"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/DataDog/probe-finder/pkg/ir"
	"github.com/DataDog/probe-finder/pkg/util/log"
)

// loclistLogLimiter throttles warnings about malformed location lists so a
// binary full of them does not flood the log.
var loclistLogLimiter = rate.NewLimiter(rate.Every(1), 10)

// LocationAt implements Session. Attributes of class exprloc carry the
// expression inline; attributes of class loclistptr point into .debug_loc and
// the entry covering pc is selected.
func (s *ElfSession) LocationAt(cu CompileUnit, e godwarf.Entry, attr dwarf.Attr, pc uint64) ([]LocationOp, error) {
	field := e.AttrField(attr)
	if field == nil {
		return nil, nil
	}
	switch v := field.Val.(type) {
	case []byte:
		return DecodeLocationExpr(v, s.ptrSize, s.byteOrder)
	case int64:
		expr := s.loclistEntry(cu.LowPC(), v, pc)
		if expr == nil {
			return nil, nil
		}
		return DecodeLocationExpr(expr, s.ptrSize, s.byteOrder)
	default:
		return nil, pkgerrors.Errorf("unexpected form of location attribute %s", attr)
	}
}

// loclistEntry scans the .debug_loc list at off and returns the expression of
// the entry whose address range covers pc, or nil.
func (s *ElfSession) loclistEntry(base uint64, off int64, pc uint64) []byte {
	if s.debugLoc == nil || off < 0 || off >= int64(len(s.debugLoc)) {
		return nil
	}
	buf := bytes.NewBuffer(s.debugLoc[off:])
	for {
		lo, ok := s.readPtr(buf)
		if !ok {
			return nil
		}
		hi, ok := s.readPtr(buf)
		if !ok {
			return nil
		}
		if lo == 0 && hi == 0 {
			return nil
		}
		if lo == maxPtr(s.ptrSize) {
			// Base address selection entry.
			base = hi
			continue
		}
		var exprLen uint16
		b := make([]byte, 2)
		if n, _ := buf.Read(b); n < 2 {
			return nil
		}
		exprLen = s.byteOrder.Uint16(b)
		expr := buf.Next(int(exprLen))
		if len(expr) < int(exprLen) {
			return nil
		}
		if pc >= base+lo && pc < base+hi {
			return expr
		}
	}
}

func (s *ElfSession) readPtr(buf *bytes.Buffer) (uint64, bool) {
	b := make([]byte, s.ptrSize)
	if n, _ := buf.Read(b); n < s.ptrSize {
		return 0, false
	}
	if s.ptrSize == 4 {
		return uint64(s.byteOrder.Uint32(b)), true
	}
	return s.byteOrder.Uint64(b), true
}

func maxPtr(ptrSize int) uint64 {
	if ptrSize == 4 {
		return 0xffffffff
	}
	return 0xffffffffffffffff
}

// DecodeLocationExpr decodes a raw DWARF location expression into its
// operations. Only the operation forms a probe location can be built from are
// understood; anything else fails the decode.
func DecodeLocationExpr(expr []byte, ptrSize int, byteOrder binary.ByteOrder) ([]LocationOp, error) {
	buf := bytes.NewBuffer(expr)
	var ops []LocationOp
	for buf.Len() > 0 {
		opcode := op.Opcode(buf.Next(1)[0])
		o := LocationOp{Opcode: opcode}
		switch {
		case opcode == op.DW_OP_addr:
			b := buf.Next(ptrSize)
			if len(b) < ptrSize {
				return nil, pkgerrors.Wrap(ir.ErrInvalid, "truncated DW_OP_addr operand")
			}
			if ptrSize == 4 {
				o.Arg = int64(byteOrder.Uint32(b))
			} else {
				o.Arg = int64(byteOrder.Uint64(b))
			}
		case opcode >= op.DW_OP_reg0 && opcode <= op.DW_OP_reg31:
			o.Arg = int64(opcode - op.DW_OP_reg0)
		case opcode >= op.DW_OP_breg0 && opcode <= op.DW_OP_breg31:
			n, c := leb128.DecodeSigned(buf)
			if c == 0 {
				return nil, pkgerrors.Wrap(ir.ErrInvalid, "truncated DW_OP_breg operand")
			}
			o.Arg = int64(opcode - op.DW_OP_breg0)
			o.Arg2 = n
		case opcode == op.DW_OP_regx:
			n, c := leb128.DecodeUnsigned(buf)
			if c == 0 {
				return nil, pkgerrors.Wrap(ir.ErrInvalid, "truncated DW_OP_regx operand")
			}
			o.Arg = int64(n)
		case opcode == op.DW_OP_bregx:
			r, c := leb128.DecodeUnsigned(buf)
			if c == 0 {
				return nil, pkgerrors.Wrap(ir.ErrInvalid, "truncated DW_OP_bregx operand")
			}
			ofs, c := leb128.DecodeSigned(buf)
			if c == 0 {
				return nil, pkgerrors.Wrap(ir.ErrInvalid, "truncated DW_OP_bregx operand")
			}
			o.Arg = int64(r)
			o.Arg2 = ofs
		case opcode == op.DW_OP_fbreg:
			n, c := leb128.DecodeSigned(buf)
			if c == 0 {
				return nil, pkgerrors.Wrap(ir.ErrInvalid, "truncated DW_OP_fbreg operand")
			}
			o.Arg = n
		case opcode == op.DW_OP_plus_uconst:
			n, c := leb128.DecodeUnsigned(buf)
			if c == 0 {
				return nil, pkgerrors.Wrap(ir.ErrInvalid, "truncated DW_OP_plus_uconst operand")
			}
			o.Arg = int64(n)
		case opcode == op.DW_OP_call_frame_cfa:
			// No operand.
		default:
			if loclistLogLimiter.Allow() {
				log.Debugf("unsupported location opcode %#x", byte(opcode))
			}
			return nil, pkgerrors.Wrapf(ir.ErrUnsupported, "location opcode %#x", byte(opcode))
		}
		ops = append(ops, o)
	}
	return ops, nil
}
