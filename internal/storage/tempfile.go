// Package storage implements the anonymous-temporary-then-atomic-link
// lifecycle the data model requires for the on-disk core file (spec.md
// §3 "Lifecycle", §4.5 "File state"). Filesystem-level helpers are listed
// as an external collaborator in spec.md §1; this package is this repo's
// concrete adapter, built directly on golang.org/x/sys/unix the way
// canonical-lxd uses that package throughout its low-level filesystem
// code.
package storage

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// DirMode is the mode the storage directory is created with (spec.md §6).
const DirMode = 0755

// FileMode is the mode the installed core file is given (spec.md §3).
const FileMode = 0640

// EnsureDir creates the storage directory if it does not already exist.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, DirMode); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", dir, err)
	}

	return nil
}

// OpenAnonymous opens an unnamed temporary file inside dir (the "anonymous
// temporary" of the GLOSSARY), materialised into the directory only by a
// later call to LinkInto.
func OpenAnonymous(dir string) (*os.File, error) {
	fd, err := unix.Open(dir, unix.O_TMPFILE|unix.O_RDWR|unix.O_CLOEXEC, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open anonymous temporary in %s: %w", dir, err)
	}

	return os.NewFile(uintptr(fd), dir+"/(anonymous)"), nil
}

// LinkInto atomically materialises the anonymous temporary f at path,
// reaching the LINKED file state (spec.md §4.5). It must only be called
// after mode/ACL/xattr application and fsync.
func LinkInto(f *os.File, path string) error {
	selfFD := fmt.Sprintf("/proc/self/fd/%d", f.Fd())

	err := unix.Linkat(unix.AT_FDCWD, selfFD, unix.AT_FDCWD, path, unix.AT_SYMLINK_FOLLOW)
	if err != nil {
		return fmt.Errorf("failed to link anonymous temporary into %s: %w", path, err)
	}

	return nil
}

// CopyResult reports the outcome of a bounded copy.
type CopyResult struct {
	Written   int64
	Truncated bool
}

// CopyWithLimit copies from src into dst, stopping (without error) once
// limit bytes have been written even if src has more data, reporting that
// as Truncated (spec.md §4.2 step 2: "Truncation ... must be reported").
func CopyWithLimit(dst io.Writer, src io.Reader, limit int64) (CopyResult, error) {
	limited := io.LimitReader(src, limit)

	written, err := io.Copy(dst, limited)
	if err != nil {
		return CopyResult{Written: written}, fmt.Errorf("failed to write working copy: %w", err)
	}

	if written < limit {
		return CopyResult{Written: written}, nil
	}

	// Written == limit: check for one more byte of input to distinguish
	// "core was exactly limit bytes" from "core was truncated".
	var probe [1]byte

	n, _ := src.Read(probe[:])

	return CopyResult{Written: written, Truncated: n > 0}, nil
}
