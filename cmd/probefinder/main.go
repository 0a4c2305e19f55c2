// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Probefinder resolves source-level probe requests against a binary's debug
// info and prints the resulting trace event descriptors.
package main

import (
	"fmt"
	"os"

	"github.com/DataDog/probe-finder/cmd/probefinder/command"
	"github.com/DataDog/probe-finder/pkg/util/log"
)

func main() {
	err := command.MakeCommand().Execute()
	log.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
