package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/elfwalk/elfwalk/models"
)

var elfMagic = []byte{0x7f, 0x45, 0x4c, 0x46}

// progHeader is the class-independent slice of a program header that
// extraction needs: segment kind plus the file/vaddr mapping.
type progHeader struct {
	Type   elf.ProgType
	Off    uint64
	Vaddr  uint64
	Filesz uint64
}

type dynEntry struct {
	Tag elf.DynTag
	Val uint64
}

// ExtractPath opens path and extracts its descriptor. The underlying file
// buffer is released as soon as extraction finishes.
func ExtractPath(path string) (*models.ElfDescriptor, error) {
	bf, err := Open(path)
	if err != nil {
		return nil, err
	}
	return Extract(bf)
}

// Extract parses structural ELF metadata out of bf: identification fields,
// then the dynamic segment if one exists. A binary without PT_DYNAMIC is
// static, which is a valid descriptor with an empty Needed list.
func Extract(bf *BinFile) (*models.ElfDescriptor, error) {
	ident, err := bf.Bytes(0, elf.EI_NIDENT)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(ident[:4], elfMagic) {
		return nil, errors.Wrap(models.ErrNotElf, bf.Path())
	}
	var bo binary.ByteOrder
	switch elf.Data(ident[elf.EI_DATA]) {
	case elf.ELFDATA2LSB:
		bo = binary.LittleEndian
	case elf.ELFDATA2MSB:
		bo = binary.BigEndian
	default:
		return nil, errors.Wrapf(models.ErrNotElf,
			"%s: unknown data encoding %d", bf.Path(), ident[elf.EI_DATA])
	}

	desc := &models.ElfDescriptor{
		Path:      bf.Path(),
		ByteOrder: bo,
		OSABI:     elf.OSABI(ident[elf.EI_OSABI]),
	}

	var machine elf.Machine
	var etype elf.Type
	var phdrs []progHeader
	switch elf.Class(ident[elf.EI_CLASS]) {
	case elf.ELFCLASS32:
		desc.Bits = 32
		machine, etype, phdrs, err = readHeader32(bf, bo)
	case elf.ELFCLASS64:
		desc.Bits = 64
		machine, etype, phdrs, err = readHeader64(bf, bo)
	default:
		return nil, errors.Wrapf(models.ErrUnsupportedClass,
			"%s: class %d", bf.Path(), ident[elf.EI_CLASS])
	}
	if err != nil {
		return nil, err
	}
	desc.Arch = models.Arch{Machine: machine}
	desc.Type = etype

	if err := readSegments(bf, bo, desc, phdrs); err != nil {
		return nil, err
	}
	return desc, nil
}

func readHeader64(bf *BinFile, bo binary.ByteOrder) (elf.Machine, elf.Type, []progHeader, error) {
	raw, err := bf.Bytes(0, 64)
	if err != nil {
		return 0, 0, nil, err
	}
	var hdr elf.Header64
	if err := binary.Read(bytes.NewReader(raw), bo, &hdr); err != nil {
		return 0, 0, nil, errors.Wrap(err, bf.Path())
	}
	phdrs := make([]progHeader, 0, hdr.Phnum)
	for i := 0; i < int(hdr.Phnum); i++ {
		raw, err := bf.Bytes(hdr.Phoff+uint64(i)*uint64(hdr.Phentsize), 56)
		if err != nil {
			return 0, 0, nil, err
		}
		var ph elf.Prog64
		if err := binary.Read(bytes.NewReader(raw), bo, &ph); err != nil {
			return 0, 0, nil, errors.Wrap(err, bf.Path())
		}
		phdrs = append(phdrs, progHeader{
			Type:   elf.ProgType(ph.Type),
			Off:    ph.Off,
			Vaddr:  ph.Vaddr,
			Filesz: ph.Filesz,
		})
	}
	return elf.Machine(hdr.Machine), elf.Type(hdr.Type), phdrs, nil
}

func readHeader32(bf *BinFile, bo binary.ByteOrder) (elf.Machine, elf.Type, []progHeader, error) {
	raw, err := bf.Bytes(0, 52)
	if err != nil {
		return 0, 0, nil, err
	}
	var hdr elf.Header32
	if err := binary.Read(bytes.NewReader(raw), bo, &hdr); err != nil {
		return 0, 0, nil, errors.Wrap(err, bf.Path())
	}
	phdrs := make([]progHeader, 0, hdr.Phnum)
	for i := 0; i < int(hdr.Phnum); i++ {
		raw, err := bf.Bytes(uint64(hdr.Phoff)+uint64(i)*uint64(hdr.Phentsize), 32)
		if err != nil {
			return 0, 0, nil, err
		}
		var ph elf.Prog32
		if err := binary.Read(bytes.NewReader(raw), bo, &ph); err != nil {
			return 0, 0, nil, errors.Wrap(err, bf.Path())
		}
		phdrs = append(phdrs, progHeader{
			Type:   elf.ProgType(ph.Type),
			Off:    uint64(ph.Off),
			Vaddr:  uint64(ph.Vaddr),
			Filesz: uint64(ph.Filesz),
		})
	}
	return elf.Machine(hdr.Machine), elf.Type(hdr.Type), phdrs, nil
}

func readSegments(bf *BinFile, bo binary.ByteOrder, desc *models.ElfDescriptor, phdrs []progHeader) error {
	var dyn *progHeader
	for i := range phdrs {
		ph := &phdrs[i]
		switch ph.Type {
		case elf.PT_INTERP:
			raw, err := bf.Bytes(ph.Off, ph.Filesz)
			if err != nil {
				return err
			}
			desc.Interp = strings.TrimRight(string(raw), "\x00")
		case elf.PT_DYNAMIC:
			dyn = ph
		}
	}
	if dyn == nil {
		// no dynamic segment: a static binary, not an error
		return nil
	}
	desc.Dynamic = true
	entries, err := readDynamic(bf, bo, desc.Bits, dyn)
	if err != nil {
		return err
	}
	return parseDynamic(bf, desc, phdrs, entries)
}

func readDynamic(bf *BinFile, bo binary.ByteOrder, bits int, ph *progHeader) ([]dynEntry, error) {
	raw, err := bf.Bytes(ph.Off, ph.Filesz)
	if err != nil {
		return nil, &models.CorruptDynamicError{
			Path:   bf.Path(),
			Reason: "dynamic segment extends past end of file",
		}
	}
	entsize := 16
	if bits == 32 {
		entsize = 8
	}
	var out []dynEntry
	for off := 0; off+entsize <= len(raw); off += entsize {
		var tag elf.DynTag
		var val uint64
		if bits == 32 {
			tag = elf.DynTag(int32(bo.Uint32(raw[off:])))
			val = uint64(bo.Uint32(raw[off+4:]))
		} else {
			tag = elf.DynTag(bo.Uint64(raw[off:]))
			val = bo.Uint64(raw[off+8:])
		}
		if tag == elf.DT_NULL {
			break
		}
		out = append(out, dynEntry{Tag: tag, Val: val})
	}
	return out, nil
}

// parseDynamic walks the tag/value pairs in two passes: the dynamic section
// guarantees no tag ordering, so DT_STRTAB may show up after the entries
// that reference it. Needed order is preserved exactly as found on disk.
func parseDynamic(bf *BinFile, desc *models.ElfDescriptor, phdrs []progHeader, entries []dynEntry) error {
	var neededOffs, rpathOffs, runpathOffs []uint64
	var sonameOff, strtabAddr, strtabSize uint64
	var haveSoname, haveStrtab bool

	for _, e := range entries {
		switch e.Tag {
		case elf.DT_NEEDED:
			neededOffs = append(neededOffs, e.Val)
		case elf.DT_SONAME:
			sonameOff, haveSoname = e.Val, true
		case elf.DT_RPATH:
			rpathOffs = append(rpathOffs, e.Val)
		case elf.DT_RUNPATH:
			runpathOffs = append(runpathOffs, e.Val)
		case elf.DT_STRTAB:
			strtabAddr, haveStrtab = e.Val, true
		case elf.DT_STRSZ:
			strtabSize = e.Val
		}
	}
	if len(neededOffs) == 0 && !haveSoname &&
		len(rpathOffs) == 0 && len(runpathOffs) == 0 {
		return nil
	}
	if !haveStrtab {
		return &models.CorruptDynamicError{Path: bf.Path(), Reason: "missing DT_STRTAB"}
	}
	strtabOff, ok := vaddrToOffset(phdrs, strtabAddr)
	if !ok {
		return &models.CorruptDynamicError{
			Path:   bf.Path(),
			Reason: fmt.Sprintf("DT_STRTAB vaddr %#x outside loaded segments", strtabAddr),
		}
	}
	if strtabSize == 0 || strtabOff+strtabSize > bf.Size() {
		if strtabOff >= bf.Size() {
			return &models.CorruptDynamicError{
				Path:   bf.Path(),
				Reason: "string table starts past end of file",
			}
		}
		strtabSize = bf.Size() - strtabOff
	}
	strtab, err := bf.Bytes(strtabOff, strtabSize)
	if err != nil {
		return &models.CorruptDynamicError{Path: bf.Path(), Reason: err.Error()}
	}
	getstr := func(off uint64) (string, error) {
		if off >= uint64(len(strtab)) {
			return "", &models.CorruptDynamicError{
				Path:   bf.Path(),
				Reason: fmt.Sprintf("string offset %#x outside string table", off),
			}
		}
		end := bytes.IndexByte(strtab[off:], 0)
		if end < 0 {
			return "", &models.CorruptDynamicError{
				Path:   bf.Path(),
				Reason: fmt.Sprintf("unterminated string at offset %#x", off),
			}
		}
		return string(strtab[off : off+uint64(end)]), nil
	}

	for _, off := range neededOffs {
		s, err := getstr(off)
		if err != nil {
			return err
		}
		desc.Needed = append(desc.Needed, s)
	}
	if haveSoname {
		s, err := getstr(sonameOff)
		if err != nil {
			return err
		}
		desc.Soname = s
	}
	for _, off := range rpathOffs {
		s, err := getstr(off)
		if err != nil {
			return err
		}
		desc.Rpath = append(desc.Rpath, strings.Split(s, ":")...)
	}
	for _, off := range runpathOffs {
		s, err := getstr(off)
		if err != nil {
			return err
		}
		desc.Runpath = append(desc.Runpath, strings.Split(s, ":")...)
	}
	return nil
}

func vaddrToOffset(phdrs []progHeader, vaddr uint64) (uint64, bool) {
	for _, ph := range phdrs {
		if ph.Type != elf.PT_LOAD {
			continue
		}
		if vaddr >= ph.Vaddr && vaddr < ph.Vaddr+ph.Filesz {
			return ph.Off + (vaddr - ph.Vaddr), true
		}
	}
	return 0, false
}
