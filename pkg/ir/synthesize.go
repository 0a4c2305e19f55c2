// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package ir

import (
	"fmt"
	"strings"
)

// String renders the point back in definition syntax.
func (p *ProbePoint) String() string {
	var b strings.Builder
	if p.Function != "" {
		b.WriteString(p.Function)
		if p.Offset != 0 {
			fmt.Fprintf(&b, "+%d", p.Offset)
		}
		if p.Line != 0 {
			fmt.Fprintf(&b, ":%d", p.Line)
		}
		if p.Retprobe {
			b.WriteString("%return")
		}
		if p.File != "" {
			b.WriteString("@" + p.File)
		}
	} else {
		b.WriteString(p.File)
		if p.Line != 0 {
			fmt.Fprintf(&b, ":%d", p.Line)
		}
	}
	if p.LazyPattern != "" {
		b.WriteString(";" + p.LazyPattern)
	}
	return b.String()
}

// String renders one chain link ("->name", ".name" or "[i]").
func (f *FieldAccess) String() string {
	switch f.Kind {
	case AccessPointer:
		return "->" + f.Name
	case AccessIndex:
		return fmt.Sprintf("[%d]", f.Index)
	default:
		return "." + f.Name
	}
}

// String renders the argument back in request syntax; it is also the source
// of synthesized argument names.
func (a *ArgumentRequest) String() string {
	var b strings.Builder
	if a.Name != "" {
		b.WriteString(a.Name + "=")
	}
	b.WriteString(a.Var)
	for f := a.Field; f != nil; f = f.Next {
		b.WriteString(f.String())
	}
	if a.Type != "" {
		b.WriteString(":" + a.Type)
	}
	return b.String()
}

// Synthesize renders the event as a kprobe tracer command:
//
//	p:group/event symbol+offset name=+8(+16(%di)):u32 ...
//
// Reference chains nest innermost-first: the first indirection is applied
// directly to the base value.
func (e *TraceEvent) Synthesize() string {
	var b strings.Builder
	pr := "p"
	if e.Point.Retprobe {
		pr = "r"
	}
	group := e.Group
	if group == "" {
		group = "probe"
	}
	event := e.Event
	if event == "" {
		event = e.Point.Symbol
	}
	fmt.Fprintf(&b, "%s:%s/%s ", pr, group, event)
	if e.Point.Symbol != "" {
		fmt.Fprintf(&b, "%s+%d", e.Point.Symbol, e.Point.Offset)
	} else {
		fmt.Fprintf(&b, "0x%x", e.Point.Offset)
	}
	for i := range e.Args {
		b.WriteString(" ")
		b.WriteString(e.Args[i].Synthesize())
	}
	return b.String()
}

// Synthesize renders one argument in kprobe tracer syntax.
func (a *TraceArgument) Synthesize() string {
	var b strings.Builder
	if a.Name != "" {
		b.WriteString(a.Name + "=")
	}
	for i := len(a.Ref) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "%+d(", a.Ref[i].Offset)
	}
	b.WriteString(a.Value)
	b.WriteString(strings.Repeat(")", len(a.Ref)))
	if a.Type != "" {
		b.WriteString(":" + a.Type)
	}
	return b.String()
}
