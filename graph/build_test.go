package graph

import (
	"context"
	"debug/elf"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/elfwalk/elfwalk/internal/elfgen"
	"github.com/elfwalk/elfwalk/models"
	"github.com/elfwalk/elfwalk/resolver"
)

func write(t *testing.T, sysroot, rel string, cfg elfgen.Config) string {
	t.Helper()
	path := filepath.Join(sysroot, rel)
	if err := elfgen.WriteTo(path, cfg); err != nil {
		t.Fatal(err)
	}
	return path
}

func build(t *testing.T, rootPath, sysroot string) *models.DependencyGraph {
	t.Helper()
	g, err := Build(context.Background(), rootPath, resolver.NewSearchContext(sysroot, nil, 0))
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func countKinds(g *models.DependencyGraph) map[models.EntryKind]int {
	counts := make(map[models.EntryKind]int)
	for _, n := range g.Nodes() {
		counts[n.Kind]++
	}
	return counts
}

// The documented scenario: app needs libfoo.so, which exists and needs
// libbar.so, which doesn't. The invocation succeeds and reports exactly one
// unresolved entry.
func TestMissingTransitiveDependency(t *testing.T) {
	sysroot := t.TempDir()
	app := write(t, sysroot, "app", elfgen.Config{
		Type: elf.ET_EXEC, Needed: []string{"libfoo.so"},
	})
	write(t, sysroot, "usr/lib/libfoo.so", elfgen.Config{
		Needed: []string{"libbar.so"}, Soname: "libfoo.so",
	})

	g := build(t, app, sysroot)
	counts := countKinds(g)
	if counts[models.EntryResolved] != 2 || counts[models.EntryUnresolved] != 1 {
		t.Fatalf("got %v", counts)
	}
	root := g.Root()
	if root == nil || root.Kind != models.EntryResolved {
		t.Fatal("root not resolved")
	}
	edges := g.Edges(root.Path)
	if len(edges) != 1 || edges[0].To.Kind != models.EntryResolved {
		t.Fatalf("root edges: %v", edges)
	}
	fooEdges := g.Edges(edges[0].To.Path)
	if len(fooEdges) != 1 || fooEdges[0].To.Kind != models.EntryUnresolved {
		t.Fatalf("libfoo edges: %v", fooEdges)
	}
	if len(g.Failures()) != 1 {
		t.Fatalf("failures: %v", g.Failures())
	}
}

func TestStaticBinarySingleNode(t *testing.T) {
	sysroot := t.TempDir()
	app := write(t, sysroot, "app", elfgen.Config{Static: true, Type: elf.ET_EXEC})

	g := build(t, app, sysroot)
	if len(g.Nodes()) != 1 {
		t.Fatalf("nodes: %d", len(g.Nodes()))
	}
	if len(g.Edges(g.Root().Path)) != 0 {
		t.Fatal("static binary has edges")
	}
}

func TestAllResolved(t *testing.T) {
	sysroot := t.TempDir()
	names := []string{"liba.so", "libb.so", "libc.so"}
	for _, n := range names {
		write(t, sysroot, "usr/lib/"+n, elfgen.Config{Soname: n})
	}
	app := write(t, sysroot, "app", elfgen.Config{Type: elf.ET_EXEC, Needed: names})

	g := build(t, app, sysroot)
	if len(g.Nodes()) != len(names)+1 {
		t.Fatalf("nodes: %d, want %d", len(g.Nodes()), len(names)+1)
	}
	edges := g.Edges(g.Root().Path)
	if len(edges) != len(names) {
		t.Fatalf("root edges: %d", len(edges))
	}
	// edge order follows DT_NEEDED order
	for i, e := range edges {
		if e.Name != names[i] {
			t.Fatalf("edge %d: %s, want %s", i, e.Name, names[i])
		}
	}
	if len(g.Failures()) != 0 {
		t.Fatalf("failures: %v", g.Failures())
	}
}

func TestCycleTerminates(t *testing.T) {
	sysroot := t.TempDir()
	liba := write(t, sysroot, "lib/liba.so", elfgen.Config{Needed: []string{"libb.so"}})
	write(t, sysroot, "lib/libb.so", elfgen.Config{Needed: []string{"liba.so"}})

	g := build(t, liba, sysroot)
	if len(g.Nodes()) != 2 {
		t.Fatalf("nodes: %d", len(g.Nodes()))
	}
	a := g.Root()
	aEdges := g.Edges(a.Path)
	if len(aEdges) != 1 || aEdges[0].To.Kind != models.EntryResolved {
		t.Fatalf("liba edges: %v", aEdges)
	}
	b := aEdges[0].To
	bEdges := g.Edges(b.Path)
	if len(bEdges) != 1 || bEdges[0].To != a {
		t.Fatalf("libb edges do not close the cycle: %v", bEdges)
	}
	if !g.InCycle(a.Path) || !g.InCycle(b.Path) {
		t.Fatal("cycle participation not detected")
	}
}

func TestArchMismatchDoesNotAbortSiblings(t *testing.T) {
	sysroot := t.TempDir()
	write(t, sysroot, "usr/lib/libwrong.so", elfgen.Config{Machine: elf.EM_AARCH64})
	write(t, sysroot, "usr/lib/libok.so", elfgen.Config{Soname: "libok.so"})
	app := write(t, sysroot, "app", elfgen.Config{
		Type: elf.ET_EXEC, Needed: []string{"libwrong.so", "libok.so"},
	})

	g := build(t, app, sysroot)
	edges := g.Edges(g.Root().Path)
	if len(edges) != 2 {
		t.Fatalf("edges: %v", edges)
	}
	if edges[0].To.Kind != models.EntryArchMismatch {
		t.Fatalf("first edge: %v", edges[0].To.Kind)
	}
	if edges[0].To.Found.Arch.Machine != elf.EM_AARCH64 {
		t.Fatalf("found triple: %v", edges[0].To.Found)
	}
	if edges[0].To.Expected.Arch.Machine != elf.EM_X86_64 {
		t.Fatalf("expected triple: %v", edges[0].To.Expected)
	}
	if edges[1].To.Kind != models.EntryResolved {
		t.Fatalf("sibling not resolved: %v", edges[1].To.Kind)
	}
}

func TestSharedDependencyDeduplicated(t *testing.T) {
	sysroot := t.TempDir()
	write(t, sysroot, "usr/lib/libshared.so", elfgen.Config{})
	write(t, sysroot, "usr/lib/liba.so", elfgen.Config{Needed: []string{"libshared.so"}})
	write(t, sysroot, "usr/lib/libb.so", elfgen.Config{Needed: []string{"libshared.so"}})
	app := write(t, sysroot, "app", elfgen.Config{
		Type: elf.ET_EXEC, Needed: []string{"liba.so", "libb.so"},
	})

	g := build(t, app, sysroot)
	// app, liba, libb, libshared: sharing, not duplication
	if len(g.Nodes()) != 4 {
		t.Fatalf("nodes: %d", len(g.Nodes()))
	}
}

func TestRootFailureIsFatal(t *testing.T) {
	if _, err := Build(context.Background(),
		filepath.Join(t.TempDir(), "missing"),
		resolver.NewSearchContext(t.TempDir(), nil, 0)); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "junk")
	data := make([]byte, 100)
	copy(data, "definitely not an elf binary, just padding text")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Build(context.Background(), path,
		resolver.NewSearchContext(t.TempDir(), nil, 0)); !errors.Is(err, models.ErrNotElf) {
		t.Fatalf("expected ErrNotElf, got %v", err)
	}
}

func TestIdempotence(t *testing.T) {
	sysroot := t.TempDir()
	write(t, sysroot, "usr/lib/liba.so", elfgen.Config{Needed: []string{"libmissing.so"}})
	app := write(t, sysroot, "app", elfgen.Config{Type: elf.ET_EXEC, Needed: []string{"liba.so"}})

	g1 := build(t, app, sysroot)
	g2 := build(t, app, sysroot)
	n1, n2 := g1.Nodes(), g2.Nodes()
	if len(n1) != len(n2) {
		t.Fatalf("node counts differ: %d vs %d", len(n1), len(n2))
	}
	for i := range n1 {
		if n1[i].Key() != n2[i].Key() {
			t.Fatalf("node %d differs: %q vs %q", i, n1[i].Key(), n2[i].Key())
		}
		if len(g1.Edges(n1[i].Path)) != len(g2.Edges(n2[i].Path)) {
			t.Fatalf("edge counts differ at %s", n1[i].Path)
		}
	}
}

func TestCancelledContext(t *testing.T) {
	sysroot := t.TempDir()
	app := write(t, sysroot, "app", elfgen.Config{Type: elf.ET_EXEC})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Build(ctx, app, resolver.NewSearchContext(sysroot, nil, 0)); err == nil {
		t.Fatal("expected context error")
	}
}
