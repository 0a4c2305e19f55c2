// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package lineset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertOrdersAndDeduplicates(t *testing.T) {
	var s Set
	inserted := []bool{}
	for _, line := range []int{5, 3, 5, 7} {
		inserted = append(inserted, s.Insert(line))
	}
	assert.Equal(t, []bool{true, true, false, true}, inserted)
	assert.Equal(t, []int{3, 5, 7}, s.Lines())
	assert.Equal(t, 3, s.Len())
	assert.True(t, s.Has(5))
	assert.False(t, s.Has(4))
}

func TestZeroValueIsEmpty(t *testing.T) {
	var s Set
	assert.True(t, s.Empty())
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Has(1))
	assert.Empty(t, s.Lines())
}

func TestClear(t *testing.T) {
	var s Set
	require.True(t, s.Insert(10))
	require.True(t, s.Insert(20))
	s.Clear()
	assert.True(t, s.Empty())
	assert.True(t, s.Insert(10))
}

func TestLinesReturnsCopy(t *testing.T) {
	var s Set
	s.Insert(1)
	s.Insert(2)
	lines := s.Lines()
	lines[0] = 99
	assert.Equal(t, []int{1, 2}, s.Lines())
}
