// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package finder

import (
	"debug/dwarf"
	"fmt"

	"github.com/go-delve/delve/pkg/dwarf/godwarf"
	"github.com/go-delve/delve/pkg/dwarf/op"
	"github.com/pkg/errors"

	"github.com/DataDog/probe-finder/pkg/dwarfnav"
	"github.com/DataDog/probe-finder/pkg/ir"
	"github.com/DataDog/probe-finder/pkg/util/log"
)

// The kernel tracer's basic types go up to u64.
const maxBasicTypeBits = 64

// convertVariable fills tvar with the location, reference chain and type of
// the variable vr at the current probe address.
func (st *probeState) convertVariable(vr *godwarf.Tree, pvar *ir.ArgumentRequest, tvar *ir.TraceArgument) error {
	log.Debugf("converting variable %s into a trace argument", dwarfnav.Name(vr.Entry))
	if err := st.convertVariableLocation(vr, tvar); err != nil {
		return err
	}
	typeNode := vr
	if pvar.Field != nil {
		tn, refs, err := st.convertVariableFields(vr, pvar.Var, pvar.Field, tvar.Ref)
		if err != nil {
			return err
		}
		tvar.Ref = refs
		typeNode = tn
	}
	if pvar.Type != "" {
		tvar.Type = pvar.Type
		return nil
	}
	return st.convertVariableType(typeNode, tvar)
}

// convertVariableLocation resolves where vr lives at the probe address:
// a global symbol, a register, or a register plus offset. Memory-resident
// results start the argument's reference chain.
func (st *probeState) convertVariableLocation(vr *godwarf.Tree, tvar *ir.TraceArgument) error {
	name := dwarfnav.Name(vr.Entry)
	ops, err := st.f.sess.LocationAt(st.cu, vr.Entry, dwarf.AttrLocation, st.addr)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		return errors.Wrapf(ir.ErrNotFound,
			"failed to find the location of %s at this address, perhaps it has been optimized out", name)
	}
	if len(ops) > 1 {
		return errors.Wrapf(ir.ErrUnsupported, "multi-operation location expression of %s", name)
	}

	o := ops[0]
	if o.Opcode == op.DW_OP_addr {
		// Static variable in memory, addressed by symbol.
		tvar.Value = "@" + name
		tvar.Ref = append(tvar.Ref, ir.Reference{})
		return nil
	}

	var (
		regn uint64
		offs int64
		ref  bool
	)
	if o.Opcode == op.DW_OP_fbreg {
		if st.fb == nil {
			return errors.Wrapf(ir.ErrUnsupported, "the frame base form needed by %s is not supported", name)
		}
		ref = true
		offs = o.Arg
		o = st.fb[0]
	}
	switch {
	case o.Opcode >= op.DW_OP_breg0 && o.Opcode <= op.DW_OP_breg31:
		regn = uint64(o.Opcode - op.DW_OP_breg0)
		offs += o.Arg2
		ref = true
	case o.Opcode >= op.DW_OP_reg0 && o.Opcode <= op.DW_OP_reg31:
		regn = uint64(o.Opcode - op.DW_OP_reg0)
	case o.Opcode == op.DW_OP_bregx:
		regn = uint64(o.Arg)
		offs += o.Arg2
		ref = true
	case o.Opcode == op.DW_OP_regx:
		regn = uint64(o.Arg)
	default:
		return errors.Wrapf(ir.ErrUnsupported, "location operation %#x of %s", byte(o.Opcode), name)
	}

	regs, ok := st.f.sess.RegisterName(regn)
	if !ok {
		return errors.Wrapf(ir.ErrOutOfRange,
			"mapping for DWARF register number %d missing on this architecture", regn)
	}
	tvar.Value = regs
	if ref {
		tvar.Ref = append(tvar.Ref, ir.Reference{Offset: offs})
	}
	return nil
}

// convertVariableFields walks the requested field chain, accumulating member
// and element offsets into refs. Each pointer dereference opens a new
// reference link; array indexing and member access stay within the current
// one. It returns the node the final type conversion should use.
func (st *probeState) convertVariableFields(vr *godwarf.Tree, varname string, field *ir.FieldAccess, refs []ir.Reference) (*godwarf.Tree, []ir.Reference, error) {
	log.Debugf("converting %s in %s", field.String(), varname)
	typ, err := dwarfnav.RealType(vr.Entry, st.f.sess)
	if err != nil {
		return nil, refs, errors.Wrapf(ir.ErrNotFound, "failed to get the type of %s", varname)
	}

	if field.Kind == ir.AccessIndex &&
		(typ.Tag == dwarf.TagArrayType || typ.Tag == dwarf.TagPointerType) {
		elem, err := dwarfnav.RealType(typ.Entry, st.f.sess)
		if err != nil {
			return nil, refs, errors.Wrapf(ir.ErrNotFound, "failed to get the element type of %s", varname)
		}
		size, _ := dwarfnav.ByteSize(elem.Entry)
		if typ.Tag == dwarf.TagPointerType {
			// Indexing through a pointer is a distinct indirection.
			refs = append(refs, ir.Reference{})
		} else if len(refs) == 0 {
			return nil, refs, errors.Wrapf(ir.ErrUnsupported, "array %s on a register is not supported", varname)
		}
		refs[len(refs)-1].Offset += size * field.Index
		if field.Next != nil {
			// The array node's type link leads to the element type.
			return st.convertVariableFields(typ, field.String(), field.Next, refs)
		}
		// The original variable carries the type for conversion.
		return vr, refs, nil
	}

	if typ.Tag == dwarf.TagPointerType {
		if field.Kind != ir.AccessPointer {
			return nil, refs, errors.Wrapf(ir.ErrInvalid, "%s must be referred by '->'", field.Name)
		}
		pointee, err := dwarfnav.RealType(typ.Entry, st.f.sess)
		if err != nil {
			return nil, refs, errors.Wrapf(ir.ErrNotFound, "failed to get the type pointed by %s", varname)
		}
		if pointee.Tag != dwarf.TagStructType {
			return nil, refs, errors.Wrapf(ir.ErrInvalid, "%s is not a data structure", varname)
		}
		refs = append(refs, ir.Reference{})
		typ = pointee
	} else {
		if typ.Tag != dwarf.TagStructType {
			return nil, refs, errors.Wrapf(ir.ErrInvalid, "%s is not a data structure", varname)
		}
		if field.Kind == ir.AccessIndex {
			return nil, refs, errors.Wrapf(ir.ErrInvalid, "%s is neither a pointer nor an array", varname)
		}
		if field.Kind == ir.AccessPointer {
			return nil, refs, errors.Wrapf(ir.ErrInvalid, "%s must be referred by '.'", field.Name)
		}
		if len(refs) == 0 {
			return nil, refs, errors.Wrapf(ir.ErrUnsupported, "structure %s on a register is not supported", varname)
		}
	}

	member := dwarfnav.FindMember(typ, field.Name)
	if member == nil {
		return nil, refs, errors.Wrapf(ir.ErrInvalid, "%s (type %s) has no member %s",
			varname, dwarfnav.Name(typ.Entry), field.Name)
	}
	offs, err := dwarfnav.MemberOffset(member.Entry)
	if err != nil {
		return nil, refs, err
	}
	refs[len(refs)-1].Offset += offs

	if field.Next != nil {
		return st.convertVariableFields(member, field.Name, field.Next, refs)
	}
	return member, refs, nil
}

// convertVariableType renders the node's qualifier-stripped type as the
// tracer's [su]<bits> token. A type without a byte size leaves the argument
// untyped.
func (st *probeState) convertVariableType(vr *godwarf.Tree, tvar *ir.TraceArgument) error {
	typ, err := dwarfnav.RealType(vr.Entry, st.f.sess)
	if err != nil {
		return errors.Wrapf(ir.ErrNotFound, "failed to get a type information of %s", dwarfnav.Name(vr.Entry))
	}
	size, ok := dwarfnav.ByteSize(typ.Entry)
	if !ok || size == 0 {
		return nil
	}
	bits := size * 8
	if bits > maxBasicTypeBits {
		log.Infof("%s exceeds max bit width, cut down to %d bits", dwarfnav.Name(typ.Entry), maxBasicTypeBits)
		bits = maxBasicTypeBits
	}
	sign := "u"
	if dwarfnav.IsSigned(typ.Entry) {
		sign = "s"
	}
	tvar.Type = fmt.Sprintf("%s%d", sign, bits)
	return nil
}
