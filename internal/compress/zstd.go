// Package compress adapts the Collector's optional compression step
// (spec.md §4.2 step 8) to github.com/klauspost/compress/zstd, promoted
// here from canonical-lxd's indirect dependency on klauspost/compress to
// a direct one.
package compress

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Suffix is appended to the stored filename when compression succeeds
// (spec.md §3).
const Suffix = ".zst"

// Compressor compresses src into dst. A failure at any step means the
// caller falls back to the uncompressed working copy (spec.md §4.2 step
// 8, §7 "Best-effort").
type Compressor interface {
	Compress(dst io.Writer, src io.Reader) error
}

// Zstd is the production Compressor.
type Zstd struct{}

func (Zstd) Compress(dst io.Writer, src io.Reader) error {
	w, err := zstd.NewWriter(dst)
	if err != nil {
		return fmt.Errorf("failed to open zstd writer: %w", err)
	}

	if _, err := io.Copy(w, src); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to compress: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize compressed stream: %w", err)
	}

	return nil
}
