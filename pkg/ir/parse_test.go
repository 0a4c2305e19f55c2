// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package ir

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProbePoint(t *testing.T) {
	tests := []struct {
		in   string
		want ProbePoint
	}{
		{"do_work", ProbePoint{Function: "do_work"}},
		{"do_work+12", ProbePoint{Function: "do_work", Offset: 12}},
		{"do_work:3", ProbePoint{Function: "do_work", Line: 3}},
		{"do_work%return", ProbePoint{Function: "do_work", Retprobe: true}},
		{"do_work@kernel/sched.c", ProbePoint{Function: "do_work", File: "kernel/sched.c"}},
		{"kernel/sched.c:1234", ProbePoint{File: "kernel/sched.c", Line: 1234}},
		{"sched.c;wakeup*", ProbePoint{File: "sched.c", LazyPattern: "wakeup*"}},
		{"do_work;wakeup*", ProbePoint{Function: "do_work", LazyPattern: "wakeup*"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProbePoint(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestParseProbePointErrors(t *testing.T) {
	bad := []string{
		"",
		"sched.c",          // file with no line or pattern
		"sched.c+12",       // offset requires a function
		"do_work:3;pat*",   // lazy with a line
		"do_work:3%return", // return probe with a line
		"do_work:-1",
		"do_work;",
		"1abc",
	}
	for _, in := range bad {
		t.Run(in, func(t *testing.T) {
			_, err := ParseProbePoint(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid), "want ErrInvalid, got %v", err)
		})
	}
}

func TestParseArgument(t *testing.T) {
	t.Run("chain", func(t *testing.T) {
		a, err := ParseArgument("ctx->flags[2].bit")
		require.NoError(t, err)
		assert.Equal(t, "ctx", a.Var)
		f := a.Field
		require.NotNil(t, f)
		assert.Equal(t, AccessPointer, f.Kind)
		assert.Equal(t, "flags", f.Name)
		f = f.Next
		require.NotNil(t, f)
		assert.Equal(t, AccessIndex, f.Kind)
		assert.Equal(t, int64(2), f.Index)
		f = f.Next
		require.NotNil(t, f)
		assert.Equal(t, AccessMember, f.Kind)
		assert.Equal(t, "bit", f.Name)
		assert.Nil(t, f.Next)
	})

	t.Run("name and type", func(t *testing.T) {
		a, err := ParseArgument("fl=ctx->flags:u32")
		require.NoError(t, err)
		assert.Equal(t, "fl", a.Name)
		assert.Equal(t, "ctx", a.Var)
		assert.Equal(t, "u32", a.Type)
		require.NotNil(t, a.Field)
		assert.Equal(t, "flags", a.Field.Name)
	})

	t.Run("raw passthrough", func(t *testing.T) {
		a, err := ParseArgument("%ax")
		require.NoError(t, err)
		assert.Equal(t, "%ax", a.Var)
		assert.Nil(t, a.Field)
	})

	t.Run("errors", func(t *testing.T) {
		for _, in := range []string{"ctx->", "ctx[", "ctx[x]", "ctx:", "ctx.flags."} {
			_, err := ParseArgument(in)
			assert.Error(t, err, "input %q", in)
		}
	})
}

func TestParseProbeRequest(t *testing.T) {
	req, err := ParseProbeRequest([]string{"mygroup/myevent=do_work:3", "ctx->flags", "len:u64"})
	require.NoError(t, err)
	assert.Equal(t, "mygroup", req.Group)
	assert.Equal(t, "myevent", req.Event)
	assert.Equal(t, "do_work", req.Point.Function)
	assert.Equal(t, 3, req.Point.Line)
	require.Len(t, req.Args, 2)
	assert.Equal(t, "ctx", req.Args[0].Var)
	assert.Equal(t, "len", req.Args[1].Var)
	assert.Equal(t, "u64", req.Args[1].Type)
}

func TestDefaultEvent(t *testing.T) {
	assert.Equal(t, "do_work", (&ProbePoint{Function: "do_work"}).DefaultEvent())
	assert.Equal(t, "sched_42", (&ProbePoint{File: "kernel/sched.c", Line: 42}).DefaultEvent())
}
