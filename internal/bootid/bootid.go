// Package bootid resolves the kernel boot identifier used to disambiguate
// pids across reboots in stored core filenames (spec.md §3).
package bootid

import (
	"os"
	"strings"

	"github.com/google/uuid"
)

const procPath = "/proc/sys/kernel/random/boot_id"

// Read returns the 32-hex-character boot identifier. If the kernel value
// cannot be read, a random uuid is generated instead so the pipeline can
// still proceed (grounded in spec.md §9's "best-effort side effects never
// poison the pipeline" stance applied to this auxiliary value).
func Read() string {
	raw, err := os.ReadFile(procPath)
	if err != nil {
		return strings.ReplaceAll(uuid.New().String(), "-", "")
	}

	return strings.ReplaceAll(strings.TrimSpace(string(raw)), "-", "")
}
