// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package log exposes the package-level logging functions used throughout the
// module, backed by seelog.
package log

import (
	"sync"

	"github.com/cihub/seelog"
)

var (
	mu     sync.RWMutex
	logger = seelog.Default
)

// SetupLogger replaces the process logger. Passing nil restores the default.
func SetupLogger(l seelog.LoggerInterface) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = seelog.Default
	}
	logger = l
}

// Tracef formats a message at the trace level.
func Tracef(format string, params ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	logger.Tracef(format, params...)
}

// Debugf formats a message at the debug level.
func Debugf(format string, params ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	logger.Debugf(format, params...)
}

// Infof formats a message at the info level.
func Infof(format string, params ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	logger.Infof(format, params...)
}

// Warnf formats a message at the warning level and returns it as an error.
func Warnf(format string, params ...interface{}) error {
	mu.RLock()
	defer mu.RUnlock()
	return logger.Warnf(format, params...)
}

// Errorf formats a message at the error level and returns it as an error.
func Errorf(format string, params ...interface{}) error {
	mu.RLock()
	defer mu.RUnlock()
	return logger.Errorf(format, params...)
}

// Flush flushes any buffered log output.
func Flush() {
	mu.RLock()
	defer mu.RUnlock()
	logger.Flush()
}
