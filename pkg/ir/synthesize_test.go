// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizeTraceArgument(t *testing.T) {
	tests := []struct {
		name string
		arg  TraceArgument
		want string
	}{
		{
			"register",
			TraceArgument{Name: "len", Value: "%si", Type: "u64"},
			"len=%si:u64",
		},
		{
			"single deref",
			TraceArgument{Name: "flags", Value: "%di", Ref: []Reference{{Offset: 8}}, Type: "u32"},
			"flags=+8(%di):u32",
		},
		{
			"nested deref, first reference innermost",
			TraceArgument{Name: "x", Value: "%bp", Ref: []Reference{{Offset: -32}, {Offset: 4}}},
			"x=+4(-32(%bp))",
		},
		{
			"global",
			TraceArgument{Name: "jiffies", Value: "@jiffies", Ref: []Reference{{}}},
			"jiffies=+0(@jiffies)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.arg.Synthesize())
		})
	}
}

func TestSynthesizeTraceEvent(t *testing.T) {
	ev := TraceEvent{
		Event: "myprobe",
		Point: TracePoint{Symbol: "do_work", Offset: 16},
		Args: []TraceArgument{
			{Name: "flags", Value: "%di", Ref: []Reference{{Offset: 8}}, Type: "u32"},
		},
	}
	assert.Equal(t, "p:probe/myprobe do_work+16 flags=+8(%di):u32", ev.Synthesize())

	ev.Group = "mygroup"
	ev.Point.Retprobe = true
	assert.Equal(t, "r:mygroup/myprobe do_work+16 flags=+8(%di):u32", ev.Synthesize())
}

func TestSynthesizeAbsoluteAddress(t *testing.T) {
	ev := TraceEvent{Event: "e", Point: TracePoint{Offset: 0x1234}}
	assert.Equal(t, "p:probe/e 0x1234", ev.Synthesize())
}

func TestArgumentRequestString(t *testing.T) {
	a, err := ParseArgument("fl=ctx->flags[2].bit:u8")
	require.NoError(t, err)
	assert.Equal(t, "fl=ctx->flags[2].bit:u8", a.String())
}

func TestProbePointString(t *testing.T) {
	p, err := ParseProbePoint("do_work:3@sched.c")
	require.NoError(t, err)
	assert.Equal(t, "do_work:3@sched.c", p.String())
}
