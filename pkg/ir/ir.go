// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package ir defines the request and descriptor model shared by the probe
// finder and its callers.
//
// A ProbeRequest names a probe point at the source level (a function, an
// absolute file:line, or a lazy pattern over source text) together with the
// variables to capture there. The finder resolves it against a binary's debug
// info into TraceEvents: an attachable symbol+offset plus, per argument, the
// register or memory location holding the value and the dereference chain
// needed to reach it.
package ir

// ProbePoint names a source-level location to instrument. Exactly one of the
// addressing forms is used: Function (optionally with a relative Line or a
// byte Offset), File+Line, or LazyPattern (optionally scoped by Function or
// File).
type ProbePoint struct {
	// Function is the name of the function to probe.
	Function string
	// File is a source path suffix restricting the search.
	File string
	// Line is an absolute line when File addresses the point, or a line
	// offset relative to the function declaration when Function does.
	Line int
	// Offset is a byte offset from the function entry.
	Offset uint64
	// LazyPattern is a shell-style pattern matched against raw source
	// lines to select probe-eligible lines.
	LazyPattern string
	// Retprobe requests instrumentation of the function return instead of
	// the resolved address.
	Retprobe bool
}

// ArgumentRequest is one variable to capture at the probe point.
type ArgumentRequest struct {
	// Name is an optional explicit name for the captured value. When
	// empty, a name is synthesized from the access expression.
	Name string
	// Var is the variable token. Tokens that are not C identifiers (for
	// example "%ax" or "$stack") are passed through verbatim.
	Var string
	// Type is an optional explicit type override ("u32", "s64", ...).
	Type string
	// Field is the head of the member/index access chain, if any.
	Field *FieldAccess
}

// AccessKind distinguishes the three dereference forms of a field chain.
type AccessKind int

const (
	// AccessMember is direct member access ("var.field").
	AccessMember AccessKind = iota
	// AccessPointer is member access through a pointer ("var->field").
	AccessPointer
	// AccessIndex is array or pointer subscripting ("var[i]").
	AccessIndex
)

// FieldAccess is one link of an argument's access chain.
type FieldAccess struct {
	Kind AccessKind
	// Name is the member name; empty for AccessIndex.
	Name string
	// Index is the element index for AccessIndex.
	Index int64
	Next  *FieldAccess
}

// Reference is one memory indirection of a resolved argument: the value is
// read at Offset bytes past the address produced by the previous step. The
// chain is applied in order; the first entry is the innermost dereference.
type Reference struct {
	Offset int64
}

// TracePoint is the attachable location of a resolved event.
type TracePoint struct {
	// Symbol is the enclosing function symbol. Empty when the function has
	// no name; Offset is then an absolute address.
	Symbol string
	// Offset is relative to the symbol entry when Symbol is set.
	Offset   uint64
	Retprobe bool
}

// TraceArgument is one resolved captured value.
type TraceArgument struct {
	Name string
	// Value is "@symbol" for globals, a register token such as "%di", or
	// the raw passthrough expression.
	Value string
	// Type is "[su]<bits>" or empty when the width could not be derived.
	Type string
	// Ref is the dereference chain, empty for register-resident values.
	Ref []Reference
}

// TraceEvent is one fully resolved instrumentation descriptor.
type TraceEvent struct {
	Event string
	Group string
	Point TracePoint
	Args  []TraceArgument
}

// ProbeRequest is a probe point plus the ordered arguments to capture.
type ProbeRequest struct {
	Event string
	Group string
	Point ProbePoint
	Args  []ArgumentRequest
}

// LineRange is the result of a line range discovery: the probeable lines of a
// function or absolute line window.
type LineRange struct {
	Function string
	File     string
	// Path is the resolved real source path, computed once per result.
	Path string
	// Start and End are the absolute inclusive window bounds after
	// resolution (clamped, never wrapped).
	Start int
	End   int
	// Offset is the function declaration line when Function anchored the
	// search.
	Offset int
	// Lines holds the discovered line numbers, ascending and unique.
	Lines []int
	// Found reports whether any line was discovered.
	Found bool
}

// ReverseLookup maps a code address back to the source. The two halves are
// independent: either, both, or neither may be filled in.
type ReverseLookup struct {
	// File and Line are set when the address is exactly a line boundary.
	File string
	Line int
	// Function is the enclosing function (or inlined instance) name.
	Function string
	// RelativeLine is Line relative to the declaration; only meaningful
	// when both halves resolved.
	RelativeLine int
	// Offset from the function entry, reported when no line was found.
	Offset uint64
	// Found reports whether at least one half resolved.
	Found bool
}

// IsVarName reports whether s is a plain C identifier. Anything else is
// treated as a raw expression and passed through unresolved.
func IsVarName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
