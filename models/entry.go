package models

import "fmt"

type EntryKind int

const (
	// EntryResolved is a dependency located on disk with a compatible
	// architecture; Desc is populated and Path is canonical.
	EntryResolved EntryKind = iota

	// EntryUnresolved is a needed name with no matching file in any
	// searched directory.
	EntryUnresolved

	// EntryArchMismatch is a needed name whose only matches were built
	// for the wrong architecture/word size/endianness.
	EntryArchMismatch

	// EntryCorrupt is a needed name whose only match existed on disk but
	// failed metadata extraction.
	EntryCorrupt
)

func (k EntryKind) String() string {
	switch k {
	case EntryResolved:
		return "resolved"
	case EntryUnresolved:
		return "unresolved"
	case EntryArchMismatch:
		return "wrong architecture"
	case EntryCorrupt:
		return "corrupt"
	}
	return fmt.Sprintf("EntryKind(%d)", int(k))
}

// ResolutionEntry is one node of the dependency graph. Resolved entries are
// keyed by canonical path; failure entries by (name, requester).
type ResolutionEntry struct {
	Kind EntryKind

	// Name is the DT_NEEDED string that produced this entry. Empty for
	// the root node, which was named directly by the caller.
	Name string

	// Path is the canonical resolved path for EntryResolved, or the path
	// of the offending candidate for EntryArchMismatch/EntryCorrupt.
	Path string

	// Requester is the canonical path of the binary that asked for Name.
	// Only set on failure entries.
	Requester string

	// Desc is present on EntryResolved only.
	Desc *ElfDescriptor

	// Expected and Found describe an architecture mismatch.
	Expected ArchTriple
	Found    ArchTriple

	// Err is the extraction failure behind an EntryCorrupt node.
	Err error
}

// Key returns the identity under which the graph stores this entry.
func (e *ResolutionEntry) Key() string {
	if e.Kind == EntryResolved {
		return e.Path
	}
	return e.Name + "\x00" + e.Requester
}
