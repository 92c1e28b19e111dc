// Package collector implements the privilege-separated ingestion pipeline
// that owns storage, compression, vacuuming, ACL assignment, stack-trace
// generation and journal submission (spec.md §4.2), plus the
// Special-Crash bypass (spec.md §4.3) that shares its save-external and
// policy-evict steps.
package collector

import (
	"fmt"
	"io"
	"os"

	"github.com/systemd/coredump-go/internal/config"
	"github.com/systemd/coredump-go/internal/coredump"
	"github.com/systemd/coredump-go/internal/storage"
)

// WorkingCopy is the anonymous temporary file created by SaveExternal,
// tracking the data needed by every later pipeline step.
type WorkingCopy struct {
	File      *os.File
	Size      int64
	Truncated bool
}

// Close releases the working copy's descriptor. Because the file is an
// anonymous temporary (spec.md §4.5 GLOSSARY) it has no name to unlink:
// closing the last descriptor is enough to discard it if it was never
// linked into place, and has no effect on a copy that already was.
func (w *WorkingCopy) Close() error {
	if w.File == nil {
		return nil
	}

	err := w.File.Close()
	w.File = nil

	return err
}

// IngestLimit computes min(RLIMIT, max(ProcessSizeMax, storage-maximum))
// per spec.md §4.2 step 2.
func IngestLimit(cfg config.Config, rlimit uint64) int64 {
	storageMax := cfg.StorageMax()

	ceiling := cfg.ProcessSizeMax
	if storageMax > ceiling {
		ceiling = storageMax
	}

	if rlimit < ceiling {
		ceiling = rlimit
	}

	return int64(ceiling)
}

// PageSize is used to decide whether core dumping is disabled by policy
// (spec.md §4.2 step 2: "If the resource limit is below the page size the
// entire processing is skipped").
const PageSize = 4096

// ErrDisabledByPolicy is returned by SaveExternal when RLIMIT is below
// PageSize.
var ErrDisabledByPolicy = fmt.Errorf("core dumping disabled by policy: resource limit below page size")

// SaveExternal streams the core from src into a fresh anonymous temporary
// under dir, unconditionally, even when the intended storage is
// journal-only or none (spec.md §4.2 step 2).
func SaveExternal(dir string, src io.Reader, cfg config.Config, ctx *coredump.Context) (*WorkingCopy, error) {
	rlimit := ctx.Rlimit()
	if rlimit < PageSize {
		return nil, ErrDisabledByPolicy
	}

	if err := storage.EnsureDir(dir); err != nil {
		return nil, err
	}

	f, err := storage.OpenAnonymous(dir)
	if err != nil {
		return nil, err
	}

	limit := IngestLimit(cfg, rlimit)

	result, err := storage.CopyWithLimit(f, src, limit)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("local-fatal: %w", err)
	}

	return &WorkingCopy{File: f, Size: result.Written, Truncated: result.Truncated}, nil
}

// ShouldRetainExternal decides the policy-evict step (spec.md §4.2 step
// 3). Because the working copy is an anonymous temporary that has never
// been linked into a named path, "unlink the on-disk file" is realised
// here as simply never calling storage.LinkInto for it — the descriptor
// stays open for the remaining in-memory steps regardless.
func ShouldRetainExternal(cfg config.Config, size int64) bool {
	if cfg.Storage != config.StorageExternal {
		return false
	}

	return size <= int64(cfg.ExternalSizeMax)
}
