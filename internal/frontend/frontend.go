// Package frontend implements the kernel-invoked half of the pipeline
// (spec.md §4.1): argument parsing, self-recursion guarding, /proc
// enrichment, containerisation detection, and the wire hand-off to the
// Collector.
package frontend

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/systemd/coredump-go/internal/coredump"
)

// ErrInvalidInvocation is returned when one of the first six positional
// arguments is missing (spec.md §4.1: "Absence of any of the first six
// positional arguments fails with an invalid-invocation error").
var ErrInvalidInvocation = fmt.Errorf("invalid invocation: expected pid uid gid signal timestamp rlimit [comm...]")

// ParseArgs decodes Invocation A's positional arguments (spec.md §6:
// "argv = [prog, pid, uid, gid, signal, timestamp, rlimit,
// comm-tokens...]") into a Context. comm is read from /proc/<pid>/comm
// when available, falling back to the joined comm-tokens tail.
func ParseArgs(argv []string) (*coredump.Context, error) {
	if len(argv) < 7 {
		return nil, ErrInvalidInvocation
	}

	positional := argv[1:7]
	for _, v := range positional {
		if v == "" {
			return nil, ErrInvalidInvocation
		}
	}

	ctx := coredump.New()
	ctx.Set(coredump.PID, positional[0])
	ctx.Set(coredump.UID, positional[1])
	ctx.Set(coredump.GID, positional[2])
	ctx.Set(coredump.Signal, positional[3])
	ctx.Set(coredump.Timestamp, positional[4])
	ctx.Set(coredump.RLimit, positional[5])

	comm := strings.Join(argv[7:], " ")

	pid, err := strconv.Atoi(positional[0])
	if err == nil {
		if fromProc, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid)); err == nil {
			comm = strings.TrimRight(string(fromProc), "\n")
		}
	}

	ctx.Set(coredump.Comm, comm)

	if err := ctx.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInvocation, err)
	}

	return ctx, nil
}

// DisableSelfCoredump guards against self-recursion (spec.md §4.1
// responsibility 1; original_source's main() calls this unconditionally
// at entry before any other work).
func DisableSelfCoredump() error {
	if err := unix.Prctl(unix.PR_SET_DUMPABLE, 0, 0, 0, 0); err != nil {
		return fmt.Errorf("failed to disable core dumping for self: %w", err)
	}

	return nil
}

// CorePatternPath is the kernel sink the Special-Crash Path overwrites
// (spec.md §4.1 responsibility 2, scenario S6).
const CorePatternPath = "/proc/sys/kernel/core_pattern"

// DisableCorePattern overwrites the kernel core-pattern sink with a no-op
// disposition, taken only on a supervisor-scope crash to stop a crash
// loop from reinvoking this handler (spec.md §4.1 responsibility 2,
// scenario S6: "rewritten to |/bin/false").
func DisableCorePattern() error {
	if err := os.WriteFile(CorePatternPath, []byte("|/bin/false"), 0644); err != nil {
		return fmt.Errorf("failed to disable core_pattern: %w", err)
	}

	return nil
}
