// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package ir

import "errors"

// Sentinel error kinds surfaced by the finder. Call sites wrap these with
// context (pkg/errors or %w) and callers match them with errors.Is.
var (
	// ErrNotFound reports that a requested entity is absent: a variable
	// optimized out at the probe address, a function or line with no
	// matching debug info, or a type that cannot be resolved.
	ErrNotFound = errors.New("not found")

	// ErrUnsupported reports a recognized but unhandled debug info
	// encoding, such as a multi-operation location expression or a
	// non-constant member offset.
	ErrUnsupported = errors.New("unsupported debug info encoding")

	// ErrInvalid reports a mismatch between the request and the debug
	// info, such as dereferencing a non-pointer with '->' or naming a
	// member the structure does not have.
	ErrInvalid = errors.New("invalid probe request")

	// ErrOutOfRange reports that the output capacity was exceeded or that
	// a register number has no mapping on the target architecture.
	ErrOutOfRange = errors.New("out of range")

	// ErrNoDebugInfo reports that the target binary carries no debug
	// info section at all.
	ErrNoDebugInfo = errors.New("no debug info found in the target; rebuild it with debug info enabled")
)
