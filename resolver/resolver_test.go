package resolver

import (
	"debug/elf"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/elfwalk/elfwalk/internal/elfgen"
	"github.com/elfwalk/elfwalk/models"
)

func requester(machine elf.Machine, bits int, bo binary.ByteOrder) *models.ElfDescriptor {
	return &models.ElfDescriptor{
		Arch:      models.Arch{Machine: machine},
		Bits:      bits,
		ByteOrder: bo,
		Dynamic:   true,
	}
}

func req64() *models.ElfDescriptor {
	return requester(elf.EM_X86_64, 64, binary.LittleEndian)
}

func write(t *testing.T, sysroot, dir, name string, cfg elfgen.Config) string {
	t.Helper()
	path := filepath.Join(sysroot, dir, name)
	if err := elfgen.WriteTo(path, cfg); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestResolveOverridesFirst(t *testing.T) {
	sysroot := t.TempDir()
	custom := write(t, sysroot, "custom", "libx.so", elfgen.Config{})
	write(t, sysroot, "usr/lib", "libx.so", elfgen.Config{})
	sctx := NewSearchContext(sysroot, []string{"custom"}, 0)

	out := Resolve("libx.so", req64(), sctx)
	if out.Kind != Found {
		t.Fatalf("expected Found, got %v (%v)", out.Kind, out.Err)
	}
	if out.Path != custom {
		t.Fatalf("override dir not preferred: got %s", out.Path)
	}
}

func TestIncompatibleNeverMasksLaterFound(t *testing.T) {
	sysroot := t.TempDir()
	// the override dir holds an arm64 build; a compatible one sits in the
	// default path behind it
	write(t, sysroot, "custom", "libx.so", elfgen.Config{Machine: elf.EM_AARCH64})
	good := write(t, sysroot, "usr/lib", "libx.so", elfgen.Config{})
	sctx := NewSearchContext(sysroot, []string{"custom"}, 0)

	out := Resolve("libx.so", req64(), sctx)
	if out.Kind != Found {
		t.Fatalf("expected Found, got %v", out.Kind)
	}
	if out.Path != good {
		t.Fatalf("got %s, want %s", out.Path, good)
	}
}

func TestOnlyIncompatible(t *testing.T) {
	sysroot := t.TempDir()
	bad := write(t, sysroot, "usr/lib", "libx.so", elfgen.Config{Machine: elf.EM_AARCH64})
	sctx := NewSearchContext(sysroot, nil, 0)

	out := Resolve("libx.so", req64(), sctx)
	if out.Kind != FoundIncompatible {
		t.Fatalf("expected FoundIncompatible, got %v", out.Kind)
	}
	if out.Path != bad {
		t.Fatalf("got %s, want %s", out.Path, bad)
	}
	if out.FoundArch.Arch.Machine != elf.EM_AARCH64 {
		t.Fatalf("found arch not reported: %v", out.FoundArch)
	}
}

func TestNotFound(t *testing.T) {
	sctx := NewSearchContext(t.TempDir(), nil, 0)
	out := Resolve("libnothing.so", req64(), sctx)
	if out.Kind != NotFound {
		t.Fatalf("expected NotFound, got %v", out.Kind)
	}
}

func TestTraversalNamesRejected(t *testing.T) {
	sysroot := t.TempDir()
	sctx := NewSearchContext(sysroot, nil, 0)
	for _, name := range []string{"../../etc/passwd", "/etc/passwd", "a/b.so", "..", ""} {
		out := Resolve(name, req64(), sctx)
		if out.Kind != NotFound {
			t.Fatalf("name %q: expected NotFound, got %v", name, out.Kind)
		}
	}
}

func TestWordSizeOrdering(t *testing.T) {
	sysroot := t.TempDir()
	in64 := write(t, sysroot, "lib64", "libx.so", elfgen.Config{})
	in32 := write(t, sysroot, "lib", "libx.so", elfgen.Config{
		Class: elf.ELFCLASS32, Machine: elf.EM_386,
	})
	sctx := NewSearchContext(sysroot, nil, 0)

	out := Resolve("libx.so", req64(), sctx)
	if out.Kind != Found || out.Path != in64 {
		t.Fatalf("64-bit requester: got %v %s, want %s", out.Kind, out.Path, in64)
	}

	req32 := requester(elf.EM_386, 32, binary.LittleEndian)
	out = Resolve("libx.so", req32, sctx)
	if out.Kind != Found || out.Path != in32 {
		t.Fatalf("32-bit requester: got %v %s, want %s", out.Kind, out.Path, in32)
	}
}

func TestHintOverridesRequester(t *testing.T) {
	sysroot := t.TempDir()
	// compatible 64-bit builds in both tiers; the hint decides which
	// directory wins
	write(t, sysroot, "lib64", "libx.so", elfgen.Config{})
	inPlain := write(t, sysroot, "lib", "libx.so", elfgen.Config{})
	sctx := NewSearchContext(sysroot, nil, 32)

	out := Resolve("libx.so", req64(), sctx)
	if out.Kind != Found || out.Path != inPlain {
		t.Fatalf("hint ignored: got %v %s, want %s", out.Kind, out.Path, inPlain)
	}
}

func TestCorruptCandidate(t *testing.T) {
	sysroot := t.TempDir()
	write(t, sysroot, "lib64", "libx.so", elfgen.Config{
		Needed: []string{"libc.so.6"}, BadNeededOffset: true,
	})
	sctx := NewSearchContext(sysroot, nil, 0)

	out := Resolve("libx.so", req64(), sctx)
	if out.Kind != FoundCorrupt {
		t.Fatalf("expected FoundCorrupt, got %v", out.Kind)
	}
	if out.Err == nil {
		t.Fatal("corrupt outcome missing error")
	}

	// a later compatible build still wins over the corrupt one
	good := write(t, sysroot, "usr/lib", "libx.so", elfgen.Config{})
	out = Resolve("libx.so", req64(), sctx)
	if out.Kind != Found || out.Path != good {
		t.Fatalf("corrupt candidate masked later match: %v %s", out.Kind, out.Path)
	}
}
