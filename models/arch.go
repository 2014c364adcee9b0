package models

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
)

var machineNames = map[elf.Machine]string{
	elf.EM_386:     "x86",
	elf.EM_X86_64:  "x86_64",
	elf.EM_ARM:     "arm",
	elf.EM_AARCH64: "arm64",
	elf.EM_MIPS:    "mips",
	elf.EM_PPC:     "ppc",
	elf.EM_PPC64:   "ppc64",
	elf.EM_RISCV:   "riscv",
	elf.EM_S390:    "s390x",
	elf.EM_SPARCV9: "sparc64",
}

// Arch identifies the instruction set a binary was built for. Machine values
// missing from the name table are carried verbatim so binaries for
// unrecognized architectures stay reportable instead of failing extraction.
type Arch struct {
	Machine elf.Machine
}

func (a Arch) Known() bool {
	_, ok := machineNames[a.Machine]
	return ok
}

func (a Arch) String() string {
	if name, ok := machineNames[a.Machine]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%#x)", uint16(a.Machine))
}

// ArchTriple is the compatibility key the resolver checks: a candidate only
// satisfies a requester when all three fields match.
type ArchTriple struct {
	Arch      Arch
	Bits      int
	ByteOrder binary.ByteOrder
}

func (t ArchTriple) String() string {
	endian := "LE"
	if t.ByteOrder == binary.BigEndian {
		endian = "BE"
	}
	return fmt.Sprintf("%s/%d-bit/%s", t.Arch, t.Bits, endian)
}
