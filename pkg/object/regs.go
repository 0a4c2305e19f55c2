// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package object

import "strconv"

// Arch identifies the register naming convention of the target binary.
type Arch int

const (
	ArchUnknown Arch = iota
	ArchAMD64
	ArchARM64
)

func (a Arch) String() string {
	switch a {
	case ArchAMD64:
		return "amd64"
	case ArchARM64:
		return "arm64"
	default:
		return "unknown"
	}
}

// amd64Registers maps DWARF register numbers to the fetch tokens the kernel
// tracer accepts. The order follows the System V x86-64 ABI numbering.
var amd64Registers = []string{
	"%ax", "%dx", "%cx", "%bx", "%si", "%di", "%bp", "%sp",
	"%r8", "%r9", "%r10", "%r11", "%r12", "%r13", "%r14", "%r15",
	"%ip",
}

// RegisterName implements Session.
func (s *ElfSession) RegisterName(n uint64) (string, bool) {
	return RegisterName(s.arch, n)
}

// RegisterName maps a DWARF register number to the architecture's fetch
// token, reporting whether the register is representable.
func RegisterName(arch Arch, n uint64) (string, bool) {
	switch arch {
	case ArchAMD64:
		if n < uint64(len(amd64Registers)) {
			return amd64Registers[n], true
		}
	case ArchARM64:
		switch {
		case n <= 28:
			return "%x" + strconv.FormatUint(n, 10), true
		case n == 29:
			return "%fp", true
		case n == 30:
			return "%lr", true
		case n == 31:
			return "%sp", true
		}
	}
	return "", false
}
