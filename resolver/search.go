package resolver

import "github.com/elfwalk/elfwalk/models"

// DefaultDirs is where the dynamic loader looks when nothing else matches.
// This can vary somewhat by system, so the list may need to grow.
var DefaultDirs = []string{"lib", "lib64", "usr/lib", "usr/lib64"}

// NewSearchContext assembles the configuration for one resolution run.
// overrides is an already-split LD_LIBRARY_PATH-style list; the caller owns
// sourcing it from the environment. hintBits of 32 or 64 forces the default
// directory preference, 0 lets each requester decide.
func NewSearchContext(sysroot string, overrides []string, hintBits int) *models.SearchContext {
	if sysroot == "" {
		sysroot = "/"
	}
	return &models.SearchContext{
		Sysroot:     sysroot,
		Overrides:   overrides,
		DefaultDirs: DefaultDirs,
		HintBits:    hintBits,
	}
}
