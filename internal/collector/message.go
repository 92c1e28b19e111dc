package collector

import (
	"fmt"

	"github.com/systemd/coredump-go/internal/coredump"
)

// ComposeMessage builds the MESSAGE= field (spec.md §4.2 step 7): the
// one-line summary alone, or that line followed by a blank line and the
// trace when a stack trace was produced.
func ComposeMessage(ctx *coredump.Context, trace string) string {
	summary := fmt.Sprintf("Process %s (%s) of user %s dumped core.",
		ctx.MustGet(coredump.PID), ctx.MustGet(coredump.Comm), ctx.MustGet(coredump.UID))

	if trace == "" {
		return summary
	}

	return summary + "\n\n" + trace
}

// TruncationMessage renders the dedicated SIZE_LIMIT notice (spec.md §4.2
// step 2, §8 scenario S2: "a SIZE_LIMIT log line referencing" the limit).
func TruncationMessage(ctx *coredump.Context, limit int64) string {
	return fmt.Sprintf("SIZE_LIMIT: core for process %s (%s) was truncated to %d bytes",
		ctx.MustGet(coredump.PID), ctx.MustGet(coredump.Comm), limit)
}
