// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package object

import (
	"encoding/binary"
	"testing"

	"github.com/go-delve/delve/pkg/dwarf/op"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataDog/probe-finder/pkg/ir"
)

func decode(t *testing.T, expr []byte) []LocationOp {
	t.Helper()
	ops, err := DecodeLocationExpr(expr, 8, binary.LittleEndian)
	require.NoError(t, err)
	return ops
}

func TestDecodeLocationExpr(t *testing.T) {
	t.Run("addr", func(t *testing.T) {
		expr := append([]byte{byte(op.DW_OP_addr)},
			0x00, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00)
		ops := decode(t, expr)
		require.Len(t, ops, 1)
		assert.Equal(t, op.DW_OP_addr, ops[0].Opcode)
		assert.Equal(t, int64(0x1000), ops[0].Arg)
	})

	t.Run("reg3", func(t *testing.T) {
		ops := decode(t, []byte{byte(op.DW_OP_reg3)})
		require.Len(t, ops, 1)
		assert.Equal(t, op.DW_OP_reg3, ops[0].Opcode)
		assert.Equal(t, int64(3), ops[0].Arg)
	})

	t.Run("breg5 plus 16", func(t *testing.T) {
		ops := decode(t, []byte{byte(op.DW_OP_breg5), 0x10})
		require.Len(t, ops, 1)
		assert.Equal(t, int64(5), ops[0].Arg)
		assert.Equal(t, int64(16), ops[0].Arg2)
	})

	t.Run("fbreg minus 8", func(t *testing.T) {
		ops := decode(t, []byte{byte(op.DW_OP_fbreg), 0x78})
		require.Len(t, ops, 1)
		assert.Equal(t, op.DW_OP_fbreg, ops[0].Opcode)
		assert.Equal(t, int64(-8), ops[0].Arg)
	})

	t.Run("bregx", func(t *testing.T) {
		ops := decode(t, []byte{byte(op.DW_OP_bregx), 33, 0x10})
		require.Len(t, ops, 1)
		assert.Equal(t, int64(33), ops[0].Arg)
		assert.Equal(t, int64(16), ops[0].Arg2)
	})

	t.Run("call frame cfa", func(t *testing.T) {
		ops := decode(t, []byte{byte(op.DW_OP_call_frame_cfa)})
		require.Len(t, ops, 1)
		assert.Equal(t, op.DW_OP_call_frame_cfa, ops[0].Opcode)
	})

	t.Run("unsupported opcode", func(t *testing.T) {
		_, err := DecodeLocationExpr([]byte{0x1c /* DW_OP_minus */}, 8, binary.LittleEndian)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ir.ErrUnsupported))
	})

	t.Run("truncated operand", func(t *testing.T) {
		_, err := DecodeLocationExpr([]byte{byte(op.DW_OP_addr), 0x00}, 8, binary.LittleEndian)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ir.ErrInvalid))
	})
}

func TestRegisterName(t *testing.T) {
	tests := []struct {
		arch Arch
		n    uint64
		want string
		ok   bool
	}{
		{ArchAMD64, 0, "%ax", true},
		{ArchAMD64, 5, "%di", true},
		{ArchAMD64, 6, "%bp", true},
		{ArchAMD64, 7, "%sp", true},
		{ArchAMD64, 16, "%ip", true},
		{ArchAMD64, 17, "", false},
		{ArchARM64, 0, "%x0", true},
		{ArchARM64, 28, "%x28", true},
		{ArchARM64, 29, "%fp", true},
		{ArchARM64, 30, "%lr", true},
		{ArchARM64, 31, "%sp", true},
		{ArchARM64, 32, "", false},
		{ArchUnknown, 0, "", false},
	}
	for _, tt := range tests {
		got, ok := RegisterName(tt.arch, tt.n)
		assert.Equal(t, tt.ok, ok, "%s reg %d", tt.arch, tt.n)
		assert.Equal(t, tt.want, got, "%s reg %d", tt.arch, tt.n)
	}
}

func TestTailMatch(t *testing.T) {
	assert.True(t, TailMatch("/build/src/kernel/sched.c", "sched.c"))
	assert.True(t, TailMatch("sched.c", "/build/src/kernel/sched.c"))
	assert.True(t, TailMatch("sched.c", "sched.c"))
	assert.False(t, TailMatch("/build/src/kernel/sched.c", "timer.c"))
	assert.False(t, TailMatch("asched.c", "bsched.c"))
	assert.True(t, TailMatch("", "anything"))
}
