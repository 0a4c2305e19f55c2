// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package finder

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/DataDog/probe-finder/pkg/ir"
)

// realPath locates the source file recorded as raw in the debug info. With a
// source prefix configured, leading directories of raw are chopped off one by
// one until a readable file is found under the prefix.
func (f *Finder) realPath(raw string) (string, error) {
	if raw == "" {
		return "", errors.Wrap(ir.ErrNotFound, "no source path recorded in the debug info")
	}
	if f.sourcePrefix == "" {
		if _, err := os.Stat(raw); err != nil {
			return "", errors.Wrapf(ir.ErrNotFound, "failed to find source file %s", raw)
		}
		return raw, nil
	}
	p := raw
	for {
		cand := filepath.Join(f.sourcePrefix, p)
		if _, err := os.Stat(cand); err == nil {
			return cand, nil
		}
		i := strings.IndexByte(p[1:], '/')
		if i < 0 {
			return "", errors.Wrapf(ir.ErrNotFound, "failed to find source file %s under %s", raw, f.sourcePrefix)
		}
		p = p[i+1:]
	}
}
