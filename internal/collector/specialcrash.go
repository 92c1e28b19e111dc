package collector

import (
	"fmt"
	"io"

	"golang.org/x/sys/unix"

	"github.com/systemd/coredump-go/internal/acl"
	"github.com/systemd/coredump-go/internal/bootid"
	"github.com/systemd/coredump-go/internal/config"
	"github.com/systemd/coredump-go/internal/coredump"
	"github.com/systemd/coredump-go/internal/filename"
	"github.com/systemd/coredump-go/internal/storage"
	"github.com/systemd/coredump-go/internal/xattrs"
)

// SpecialCrash runs the Special-Crash Path (spec.md §4.3): forces
// Storage to external unless it is none, runs save-external and
// policy-evict, and, when the file is retained, sets its mode, ACL and
// xattrs, syncs it and links it into dir. No privilege drop, no
// compression, no stack trace, no
// journal submission — it runs entirely as the frontend's own (typically
// root) credentials, on the assumption the journal sink is unreachable.
func SpecialCrash(dir string, src io.Reader, cfg config.Config, ctx *coredump.Context) error {
	if cfg.Storage != config.StorageNone {
		cfg.Storage = config.StorageExternal
	}

	wc, err := SaveExternal(dir, src, cfg, ctx)
	if err != nil {
		if err == ErrDisabledByPolicy {
			return nil
		}

		return fmt.Errorf("local-fatal: %w", err)
	}
	defer wc.Close()

	if !ShouldRetainExternal(cfg, wc.Size) {
		return nil
	}

	selfPath := fmt.Sprintf("/proc/self/fd/%d", wc.File.Fd())

	if err := unix.Fchmod(int(wc.File.Fd()), storage.FileMode); err != nil {
		return fmt.Errorf("failed to set core file mode: %w", err)
	}

	_ = acl.SetUserRead(selfPath, ctx.Uid(), storage.FileMode)
	_ = xattrs.Apply(selfPath, ctx)

	if err := wc.File.Sync(); err != nil {
		return fmt.Errorf("local-fatal: failed to sync core file: %w", err)
	}

	name := filename.Build(filename.Components{
		Comm:        ctx.MustGet(coredump.Comm),
		UID:         ctx.MustGet(coredump.UID),
		BootID:      bootid.Read(),
		PID:         ctx.MustGet(coredump.PID),
		TimestampUS: filename.ToMicroseconds(ctx.MustGet(coredump.Timestamp)),
	})

	return storage.LinkInto(wc.File, dir+"/"+name)
}
