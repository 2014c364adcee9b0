package main

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mgutz/ansi"
	"github.com/spf13/cobra"

	"github.com/elfwalk/elfwalk/graph"
	"github.com/elfwalk/elfwalk/models"
	"github.com/elfwalk/elfwalk/resolver"
	"github.com/elfwalk/elfwalk/ui"
)

var (
	sysroot     string
	libraryPath string
	archHint    string
	interactive bool
	noColor     bool
)

var archBits = map[string]int{
	"x86": 32, "arm": 32, "mips": 32, "ppc": 32,
	"x86_64": 64, "arm64": 64, "ppc64": 64,
	"riscv": 64, "s390x": 64, "sparc64": 64,
}

// hintBits turns the --arch flag into a word-size preference for default
// directory ordering. The binary's own architecture is always auto-detected
// from its header; this only breaks lib vs lib64 ties.
func hintBits() (int, error) {
	if archHint == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(archHint); err == nil {
		if n == 32 || n == 64 {
			return n, nil
		}
		return 0, fmt.Errorf("arch hint must be 32, 64, or an architecture name, got %q", archHint)
	}
	if bits, ok := archBits[archHint]; ok {
		return bits, nil
	}
	return 0, fmt.Errorf("unknown architecture hint %q", archHint)
}

var rootCmd = &cobra.Command{
	Use:          "elfwalk <binary>",
	Short:        "Resolve the dynamic library dependency graph of an ELF binary without loading it",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		bits, err := hintBits()
		if err != nil {
			return err
		}
		lp := libraryPath
		if lp == "" {
			lp = os.Getenv("LD_LIBRARY_PATH")
		}
		var overrides []string
		if lp != "" {
			overrides = filepath.SplitList(lp)
		}
		sctx := resolver.NewSearchContext(sysroot, overrides, bits)
		g, err := graph.Build(cmd.Context(), args[0], sctx)
		if err != nil {
			return err
		}
		if interactive {
			return ui.Run(g)
		}
		render(cmd.OutOrStdout(), g, !noColor)
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&sysroot, "sysroot", "/", "filesystem root to resolve libraries against")
	rootCmd.Flags().StringVar(&libraryPath, "library-path", "", "colon-separated override directories (defaults to $LD_LIBRARY_PATH)")
	rootCmd.Flags().StringVar(&archHint, "arch", "", "word-size hint for lib vs lib64 ordering (32, 64, or an architecture name)")
	rootCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "browse the dependency graph in a TUI")
	rootCmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

func endianName(d *models.ElfDescriptor) string {
	if d.ByteOrder == binary.BigEndian {
		return "big"
	}
	return "little"
}

func linkage(d *models.ElfDescriptor) string {
	if d.Static() {
		return "static"
	}
	if d.Type == elf.ET_DYN {
		return "shared object"
	}
	return "dynamic executable"
}

func render(w io.Writer, g *models.DependencyGraph, color bool) {
	code := func(s string) string {
		if color {
			return ansi.ColorCode(s)
		}
		return ""
	}
	reset := ""
	if color {
		reset = ansi.Reset
	}
	cRes, cMiss := code("green"), code("red+b")
	cMism, cCorr := code("yellow"), code("magenta")

	for _, node := range g.Nodes() {
		if node.Kind != models.EntryResolved {
			continue
		}
		d := node.Desc
		cycle := ""
		if g.InCycle(node.Path) {
			cycle = " (participates in a dependency cycle)"
		}
		fmt.Fprintf(w, "%s: %d-bit %s endian %s %s%s\n",
			node.Path, d.Bits, endianName(d), d.Arch, linkage(d), cycle)
		for _, e := range g.Edges(node.Path) {
			switch e.To.Kind {
			case models.EntryResolved:
				fmt.Fprintf(w, "    %s => %s%s%s\n", e.Name, cRes, e.To.Path, reset)
			case models.EntryUnresolved:
				fmt.Fprintf(w, "    %s => %snot found%s\n", e.Name, cMiss, reset)
			case models.EntryArchMismatch:
				fmt.Fprintf(w, "    %s => %s%s is %s, need %s%s\n",
					e.Name, cMism, e.To.Path, e.To.Found, e.To.Expected, reset)
			case models.EntryCorrupt:
				fmt.Fprintf(w, "    %s => %s%v%s\n", e.Name, cCorr, e.To.Err, reset)
			}
		}
	}
	if n := len(g.Failures()); n > 0 {
		fmt.Fprintf(w, "unresolved entries: %d\n", n)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
