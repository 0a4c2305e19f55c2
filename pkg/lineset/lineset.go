// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package lineset holds an ordered, deduplicated set of source line numbers.
package lineset

import "slices"

// Set is an ascending, unique collection of line numbers. The zero value is
// an empty set ready for use.
type Set struct {
	lines []int
}

// Insert adds line to the set, keeping ascending order. It reports whether
// the line was newly inserted.
func (s *Set) Insert(line int) bool {
	i, found := slices.BinarySearch(s.lines, line)
	if found {
		return false
	}
	s.lines = slices.Insert(s.lines, i, line)
	return true
}

// Has reports whether line is in the set.
func (s *Set) Has(line int) bool {
	_, found := slices.BinarySearch(s.lines, line)
	return found
}

// Len returns the number of lines in the set.
func (s *Set) Len() int { return len(s.lines) }

// Empty reports whether the set has no lines.
func (s *Set) Empty() bool { return len(s.lines) == 0 }

// Lines returns the lines in ascending order. The slice is a copy.
func (s *Set) Lines() []int {
	return slices.Clone(s.lines)
}

// Clear removes all lines.
func (s *Set) Clear() { s.lines = s.lines[:0] }
