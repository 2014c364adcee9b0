// Package elfgen builds minimal but structurally valid ELF images for
// tests: a single PT_LOAD mapping the whole file at a fixed virtual base,
// plus an optional PT_INTERP and PT_DYNAMIC with a configurable set of
// dynamic entries. Both classes and both byte orders are supported.
package elfgen

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Class   elf.Class   // default ELFCLASS64
	Data    elf.Data    // default ELFDATA2LSB
	Machine elf.Machine // default EM_X86_64
	Type    elf.Type    // default ET_DYN
	OSABI   elf.OSABI

	// Static drops the PT_DYNAMIC segment entirely.
	Static bool

	Needed  []string
	Soname  string
	Rpath   string // raw colon-separated value
	Runpath string
	Interp  string

	// BadNeededOffset adds a DT_NEEDED pointing past the string table.
	BadNeededOffset bool
	// OmitStrtab leaves out DT_STRTAB while keeping entries that need it.
	OmitStrtab bool
}

// vbase keeps virtual addresses and file offsets deliberately unequal so
// parsers must really translate through PT_LOAD.
const vbase = 0x400000

func Build(cfg Config) []byte {
	if cfg.Class == elf.ELFCLASSNONE {
		cfg.Class = elf.ELFCLASS64
	}
	if cfg.Data == elf.ELFDATANONE {
		cfg.Data = elf.ELFDATA2LSB
	}
	if cfg.Machine == elf.EM_NONE {
		cfg.Machine = elf.EM_X86_64
	}
	if cfg.Type == elf.ET_NONE {
		cfg.Type = elf.ET_DYN
	}
	var bo binary.ByteOrder = binary.LittleEndian
	if cfg.Data == elf.ELFDATA2MSB {
		bo = binary.BigEndian
	}
	is64 := cfg.Class == elf.ELFCLASS64
	ehsize, phentsize, dynent := 64, 56, 16
	if !is64 {
		ehsize, phentsize, dynent = 52, 32, 8
	}

	strtab := []byte{0}
	intern := func(s string) uint64 {
		off := uint64(len(strtab))
		strtab = append(strtab, s...)
		strtab = append(strtab, 0)
		return off
	}

	type dynEntry struct {
		tag elf.DynTag
		val uint64
	}
	var dyns []dynEntry
	for _, n := range cfg.Needed {
		dyns = append(dyns, dynEntry{elf.DT_NEEDED, intern(n)})
	}
	if cfg.Soname != "" {
		dyns = append(dyns, dynEntry{elf.DT_SONAME, intern(cfg.Soname)})
	}
	if cfg.Rpath != "" {
		dyns = append(dyns, dynEntry{elf.DT_RPATH, intern(cfg.Rpath)})
	}
	if cfg.Runpath != "" {
		dyns = append(dyns, dynEntry{elf.DT_RUNPATH, intern(cfg.Runpath)})
	}
	if cfg.BadNeededOffset {
		dyns = append(dyns, dynEntry{elf.DT_NEEDED, uint64(len(strtab)) + 64})
	}

	phnum := 1
	if cfg.Interp != "" {
		phnum++
	}
	if !cfg.Static {
		phnum++
	}

	phoff := uint64(ehsize)
	interpOff := phoff + uint64(phnum*phentsize)
	var interpSize uint64
	if cfg.Interp != "" {
		interpSize = uint64(len(cfg.Interp) + 1)
	}
	strtabOff := interpOff + interpSize
	dynOff := strtabOff + uint64(len(strtab))

	// The table-locating tags go last so parsers genuinely need a second
	// pass to resolve the names above.
	if !cfg.OmitStrtab {
		dyns = append(dyns, dynEntry{elf.DT_STRTAB, vbase + strtabOff})
	}
	dyns = append(dyns, dynEntry{elf.DT_STRSZ, uint64(len(strtab))})
	dyns = append(dyns, dynEntry{elf.DT_NULL, 0})

	dynSize := uint64(len(dyns) * dynent)
	total := dynOff + dynSize

	ident := [16]byte{0x7f, 'E', 'L', 'F',
		byte(cfg.Class), byte(cfg.Data), 1, byte(cfg.OSABI)}

	buf := new(bytes.Buffer)
	if is64 {
		must(binary.Write(buf, bo, &elf.Header64{
			Ident:     ident,
			Type:      uint16(cfg.Type),
			Machine:   uint16(cfg.Machine),
			Version:   1,
			Entry:     vbase,
			Phoff:     phoff,
			Ehsize:    uint16(ehsize),
			Phentsize: uint16(phentsize),
			Phnum:     uint16(phnum),
		}))
	} else {
		must(binary.Write(buf, bo, &elf.Header32{
			Ident:     ident,
			Type:      uint16(cfg.Type),
			Machine:   uint16(cfg.Machine),
			Version:   1,
			Entry:     vbase,
			Phoff:     uint32(phoff),
			Ehsize:    uint16(ehsize),
			Phentsize: uint16(phentsize),
			Phnum:     uint16(phnum),
		}))
	}

	writePhdr := func(ptype elf.ProgType, off, size uint64) {
		if is64 {
			must(binary.Write(buf, bo, &elf.Prog64{
				Type:   uint32(ptype),
				Flags:  uint32(elf.PF_R),
				Off:    off,
				Vaddr:  vbase + off,
				Paddr:  vbase + off,
				Filesz: size,
				Memsz:  size,
				Align:  0x1000,
			}))
		} else {
			must(binary.Write(buf, bo, &elf.Prog32{
				Type:   uint32(ptype),
				Off:    uint32(off),
				Vaddr:  uint32(vbase + off),
				Paddr:  uint32(vbase + off),
				Filesz: uint32(size),
				Memsz:  uint32(size),
				Flags:  uint32(elf.PF_R),
				Align:  0x1000,
			}))
		}
	}
	writePhdr(elf.PT_LOAD, 0, total)
	if cfg.Interp != "" {
		writePhdr(elf.PT_INTERP, interpOff, interpSize)
	}
	if !cfg.Static {
		writePhdr(elf.PT_DYNAMIC, dynOff, dynSize)
	}

	if cfg.Interp != "" {
		buf.WriteString(cfg.Interp)
		buf.WriteByte(0)
	}
	buf.Write(strtab)
	for _, d := range dyns {
		if is64 {
			must(binary.Write(buf, bo, int64(d.tag)))
			must(binary.Write(buf, bo, d.val))
		} else {
			must(binary.Write(buf, bo, int32(d.tag)))
			must(binary.Write(buf, bo, uint32(d.val)))
		}
	}

	if uint64(buf.Len()) != total {
		panic(fmt.Sprintf("elfgen: layout mismatch: wrote %d, expected %d", buf.Len(), total))
	}
	return buf.Bytes()
}

// WriteTo builds the image and writes it at path, creating parent
// directories as needed.
func WriteTo(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, Build(cfg), 0644)
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
