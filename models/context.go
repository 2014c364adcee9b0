package models

// SearchContext is the immutable configuration for one resolution run. All
// directory entries are sysroot-relative; joining them back under Sysroot is
// what keeps resolution from escaping the inspected image.
type SearchContext struct {
	// Sysroot is substituted for / when locating libraries.
	Sysroot string

	// Overrides are LD_LIBRARY_PATH-style directories, searched first,
	// in listed order.
	Overrides []string

	// DefaultDirs are the loader default directories, searched after the
	// overrides, in listed order (subject to word-size preference).
	DefaultDirs []string

	// HintBits optionally forces the word-size preference used to order
	// the default directories (lib64 before lib and so on). Zero means
	// follow the requesting binary.
	HintBits int
}
