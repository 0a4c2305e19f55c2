// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package ir

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseProbeRequest parses a textual probe definition. The first element is
// the probe point, optionally prefixed with "[GROUP/]EVENT="; the remaining
// elements are argument expressions.
//
//	func            func+12         func%return
//	func:3          func@file.c     func;pattern
//	file.c:42       file.c;pattern
func ParseProbeRequest(def []string) (*ProbeRequest, error) {
	if len(def) == 0 {
		return nil, errors.Wrap(ErrInvalid, "empty probe definition")
	}
	req := &ProbeRequest{}
	point := def[0]
	if eq := strings.Index(point, "="); eq >= 0 {
		name := point[:eq]
		if grp, evt, ok := strings.Cut(name, "/"); ok {
			req.Group, req.Event = grp, evt
		} else {
			req.Event = name
		}
		point = point[eq+1:]
	}
	pt, err := ParseProbePoint(point)
	if err != nil {
		return nil, err
	}
	req.Point = *pt
	for _, a := range def[1:] {
		arg, err := ParseArgument(a)
		if err != nil {
			return nil, err
		}
		req.Args = append(req.Args, *arg)
	}
	return req, nil
}

// ParseProbePoint parses the probe point part of a definition.
func ParseProbePoint(s string) (*ProbePoint, error) {
	orig := s
	pt := &ProbePoint{}

	if i := strings.Index(s, ";"); i >= 0 {
		pt.LazyPattern = s[i+1:]
		s = s[:i]
		if pt.LazyPattern == "" {
			return nil, errors.Wrapf(ErrInvalid, "empty lazy pattern in %q", orig)
		}
	}
	if rest, ok := strings.CutSuffix(s, "%return"); ok {
		pt.Retprobe = true
		s = rest
	}
	if i := strings.Index(s, "@"); i >= 0 {
		pt.File = s[i+1:]
		s = s[:i]
	}
	if i := strings.LastIndex(s, ":"); i >= 0 {
		n, err := strconv.Atoi(s[i+1:])
		if err != nil || n < 0 {
			return nil, errors.Wrapf(ErrInvalid, "bad line number in %q", orig)
		}
		pt.Line = n
		s = s[:i]
	}
	if i := strings.Index(s, "+"); i >= 0 {
		n, err := strconv.ParseUint(s[i+1:], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalid, "bad offset in %q", orig)
		}
		pt.Offset = n
		s = s[:i]
	}
	// The remaining token is a function name unless it looks like a path.
	if s != "" {
		if pt.File == "" && (strings.ContainsAny(s, "/.")) {
			pt.File = s
		} else if IsVarName(s) {
			pt.Function = s
		} else {
			return nil, errors.Wrapf(ErrInvalid, "bad function name in %q", orig)
		}
	}

	switch {
	case pt.Function == "" && pt.File == "":
		return nil, errors.Wrapf(ErrInvalid, "no function or file in %q", orig)
	case pt.Offset != 0 && pt.Function == "":
		return nil, errors.Wrapf(ErrInvalid, "offset requires a function in %q", orig)
	case pt.LazyPattern != "" && (pt.Line != 0 || pt.Offset != 0):
		return nil, errors.Wrapf(ErrInvalid, "lazy pattern cannot be combined with a line or offset in %q", orig)
	case pt.Function == "" && pt.Line == 0 && pt.LazyPattern == "":
		return nil, errors.Wrapf(ErrInvalid, "a file requires a line or pattern in %q", orig)
	case pt.Retprobe && (pt.Line != 0 || pt.Offset != 0 || pt.LazyPattern != ""):
		return nil, errors.Wrapf(ErrInvalid, "return probe only accepts a plain function in %q", orig)
	}
	return pt, nil
}

// ParseArgument parses one argument expression: "[NAME=]VAR[:TYPE]" where VAR
// may carry a field chain ("ctx->flags[2].bit"). Tokens whose variable part is
// not an identifier are kept verbatim for the caller's backend to interpret.
func ParseArgument(s string) (*ArgumentRequest, error) {
	orig := s
	a := &ArgumentRequest{}
	if i := strings.Index(s, "="); i >= 0 && IsVarName(s[:i]) {
		a.Name = s[:i]
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, ":"); i >= 0 {
		a.Type = s[i+1:]
		s = s[:i]
		if a.Type == "" {
			return nil, errors.Wrapf(ErrInvalid, "empty type in %q", orig)
		}
	}
	ident := leadingIdent(s)
	if ident == "" || !IsVarName(ident) {
		// Raw passthrough expression.
		a.Var = s
		return a, nil
	}
	a.Var = ident
	s = s[len(ident):]

	tail := &a.Field
	for s != "" {
		f := &FieldAccess{}
		switch {
		case strings.HasPrefix(s, "->"):
			f.Kind = AccessPointer
			f.Name = leadingIdent(s[2:])
			s = s[2+len(f.Name):]
		case s[0] == '.':
			f.Kind = AccessMember
			f.Name = leadingIdent(s[1:])
			s = s[1+len(f.Name):]
		case s[0] == '[':
			end := strings.IndexByte(s, ']')
			if end < 0 {
				return nil, errors.Wrapf(ErrInvalid, "unterminated subscript in %q", orig)
			}
			n, err := strconv.ParseInt(s[1:end], 10, 64)
			if err != nil || n < 0 {
				return nil, errors.Wrapf(ErrInvalid, "bad index in %q", orig)
			}
			f.Kind = AccessIndex
			f.Index = n
			s = s[end+1:]
		default:
			return nil, errors.Wrapf(ErrInvalid, "bad field access in %q", orig)
		}
		if f.Kind != AccessIndex && f.Name == "" {
			return nil, errors.Wrapf(ErrInvalid, "missing member name in %q", orig)
		}
		*tail = f
		tail = &f.Next
	}
	return a, nil
}

// DefaultEvent derives an event name for a point that was given none.
func (p *ProbePoint) DefaultEvent() string {
	if p.Function != "" {
		return p.Function
	}
	base := filepath.Base(p.File)
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base + "_" + strconv.Itoa(p.Line)
}

func leadingIdent(s string) string {
	for i, r := range s {
		ok := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(i > 0 && r >= '0' && r <= '9')
		if !ok {
			return s[:i]
		}
	}
	return s
}
