package resolver

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/elfwalk/elfwalk/loader"
	"github.com/elfwalk/elfwalk/models"
)

type OutcomeKind int

const (
	// Found: a readable, architecture-compatible candidate; Desc is set.
	Found OutcomeKind = iota

	// NotFound: no candidate file existed in any searched directory.
	NotFound

	// FoundIncompatible: candidates existed but none matched the
	// requester's architecture triple; Path/FoundArch describe the last
	// one seen.
	FoundIncompatible

	// FoundCorrupt: the only candidates found failed extraction; Path and
	// Err describe the last one seen.
	FoundCorrupt
)

// Outcome is the result of one library search. Failure outcomes carry
// enough detail to become graph entries; they are data, not errors.
type Outcome struct {
	Kind      OutcomeKind
	Desc      *models.ElfDescriptor
	Path      string
	FoundArch models.ArchTriple
	Err       error
}

// Resolve searches for the dependency called name on behalf of requester.
// First compatible match wins; an incompatible or unparseable candidate is
// remembered for diagnostics but never stops the search, since a later
// directory may hold a usable build.
func Resolve(name string, requester *models.ElfDescriptor, sctx *models.SearchContext) Outcome {
	if !safeName(name) {
		return Outcome{Kind: NotFound}
	}

	var incompatible, corrupt *Outcome
	for _, dir := range searchDirs(requester, sctx) {
		candidate := filepath.Join(sctx.Sysroot, dir, name)
		if !contained(sctx.Sysroot, candidate) {
			continue
		}
		fi, err := os.Stat(candidate)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		if unix.Access(candidate, unix.R_OK) != nil {
			continue
		}
		desc, err := loader.ExtractPath(candidate)
		if err != nil {
			corrupt = &Outcome{Kind: FoundCorrupt, Path: candidate, Err: err}
			continue
		}
		if !desc.CompatibleWith(requester) {
			incompatible = &Outcome{
				Kind:      FoundIncompatible,
				Path:      candidate,
				FoundArch: desc.Triple(),
			}
			continue
		}
		return Outcome{Kind: Found, Desc: desc, Path: candidate}
	}
	// No compatible match anywhere: prefer the most diagnostic failure.
	if incompatible != nil {
		return *incompatible
	}
	if corrupt != nil {
		return *corrupt
	}
	return Outcome{Kind: NotFound}
}

// searchDirs builds the ordered directory list for one lookup. The rpath
// and runpath tiers are reserved but inactive; resolution does not yet
// honor DT_RPATH/DT_RUNPATH.
func searchDirs(requester *models.ElfDescriptor, sctx *models.SearchContext) []string {
	var dirs []string
	// tier: DT_RPATH entries of the requester (reserved, inactive)
	dirs = append(dirs, sctx.Overrides...)
	// tier: DT_RUNPATH entries of the requester (reserved, inactive)
	dirs = append(dirs, orderedDefaults(requester, sctx)...)
	return dirs
}

// orderedDefaults reorders the default directories so word-size-appropriate
// ones come first: lib64 before lib for 64-bit requesters, the reverse for
// 32-bit. The context hint wins over the requester when set.
func orderedDefaults(requester *models.ElfDescriptor, sctx *models.SearchContext) []string {
	bits := sctx.HintBits
	if bits == 0 {
		bits = requester.Bits
	}
	var preferred, fallback []string
	for _, dir := range sctx.DefaultDirs {
		if strings.HasSuffix(dir, "64") == (bits == 64) {
			preferred = append(preferred, dir)
		} else {
			fallback = append(fallback, dir)
		}
	}
	return append(preferred, fallback...)
}

// safeName rejects dependency names that could escape the sysroot before
// any file-existence check happens. Real DT_NEEDED entries are bare
// sonames; anything with a path separator is suspect.
func safeName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsRune(name, os.PathSeparator) || strings.ContainsRune(name, '/') {
		return false
	}
	return true
}

// contained verifies that path stays under sysroot after cleaning.
func contained(sysroot, path string) bool {
	rel, err := filepath.Rel(sysroot, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}
