package models

import (
	"debug/elf"
	"encoding/binary"
)

// ElfDescriptor holds the metadata extraction pulls out of one binary.
// Arch, Bits and ByteOrder always come from the identification header; a
// descriptor is never constructed for a file whose header can't be read.
type ElfDescriptor struct {
	Path      string
	Arch      Arch
	Bits      int
	ByteOrder binary.ByteOrder
	OSABI     elf.OSABI
	Type      elf.Type
	Interp    string

	// Dynamic is set when the binary carries a PT_DYNAMIC segment. Its
	// absence is a valid terminal state (a static binary), not an error.
	Dynamic bool

	// Soname is empty when the binary declares no DT_SONAME.
	Soname string

	// Needed preserves on-disk DT_NEEDED order; resolution and diagnostics
	// both depend on it.
	Needed []string

	// Rpath and Runpath are carried for reporting but not yet consulted by
	// the search order.
	Rpath   []string
	Runpath []string
}

func (d *ElfDescriptor) Triple() ArchTriple {
	return ArchTriple{Arch: d.Arch, Bits: d.Bits, ByteOrder: d.ByteOrder}
}

// CompatibleWith reports whether a library built like d can be loaded by a
// binary built like o.
func (d *ElfDescriptor) CompatibleWith(o *ElfDescriptor) bool {
	return d.Triple() == o.Triple()
}

// Static reports whether the binary had no dynamic segment at all.
func (d *ElfDescriptor) Static() bool {
	return !d.Dynamic
}
