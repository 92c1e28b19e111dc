// Package xattrs attaches the best-effort user.coredump.* extended
// attributes to a stored core file (spec.md §3), using
// github.com/pkg/xattr the way canonical-lxd depends on it.
package xattrs

import (
	"fmt"

	"github.com/pkg/xattr"

	"github.com/systemd/coredump-go/internal/coredump"
)

// attrNames maps the context keys that get an xattr to their name. RLIMIT
// deliberately has none: original_source/coredump.c's fix_xattr table has
// no slot for it (see SPEC_FULL.md §9, Open Question 1).
var attrNames = map[coredump.ContextKey]string{
	coredump.PID:       "user.coredump.pid",
	coredump.UID:       "user.coredump.uid",
	coredump.GID:       "user.coredump.gid",
	coredump.Signal:    "user.coredump.signal",
	coredump.Timestamp: "user.coredump.timestamp",
	coredump.Comm:      "user.coredump.comm",
	coredump.Exe:       "user.coredump.exe",
}

// Apply sets the xattrs reproducing ctx's values on the open file at
// path. Best-effort: every individual failure is collected but does not
// stop the remaining attributes from being attempted, and the first
// error (if any) is returned for the caller to log as a warning.
func Apply(path string, ctx *coredump.Context) error {
	var firstErr error

	for key, name := range attrNames {
		value, ok := ctx.Get(key)
		if !ok || value == "" {
			continue
		}

		err := xattr.Set(path, name, []byte(value))
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to set xattr %s: %w", name, err)
		}
	}

	return firstErr
}
