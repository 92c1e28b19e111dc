package collector

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/systemd/coredump-go/internal/acl"
	"github.com/systemd/coredump-go/internal/bootid"
	"github.com/systemd/coredump-go/internal/compress"
	"github.com/systemd/coredump-go/internal/config"
	"github.com/systemd/coredump-go/internal/coredump"
	"github.com/systemd/coredump-go/internal/filename"
	"github.com/systemd/coredump-go/internal/identity"
	"github.com/systemd/coredump-go/internal/journal"
	"github.com/systemd/coredump-go/internal/logging"
	"github.com/systemd/coredump-go/internal/storage"
	"github.com/systemd/coredump-go/internal/trace"
	"github.com/systemd/coredump-go/internal/vacuum"
	"github.com/systemd/coredump-go/internal/xattrs"
)

// StorageDir is the well-known storage directory (spec.md §6).
const StorageDir = "/var/lib/systemd/coredump"

// Pipeline holds the collaborators the ten-step ingestion pipeline
// (spec.md §4.2) is built from. Every field has a production default;
// tests override individual collaborators.
type Pipeline struct {
	Dir        string
	Config     config.Config
	Trace      trace.Generator
	Compressor compress.Compressor
	Journal    journal.Sender
	Log        *logging.Logger
	LookupUser func(string) (*user.User, error)
}

// NewPipeline builds a Pipeline wired to production collaborators.
func NewPipeline(cfg config.Config, log *logging.Logger) *Pipeline {
	return &Pipeline{
		Dir:        StorageDir,
		Config:     cfg,
		Trace:      trace.None{},
		Compressor: compress.Zstd{},
		Journal:    journal.System,
		Log:        log,
		LookupUser: identity.LookupServiceUser,
	}
}

func (p *Pipeline) vacuumPolicy() vacuum.Policy {
	policy := vacuum.Policy{}
	if p.Config.KeepFreeSet() {
		policy.KeepFree = p.Config.KeepFree
	}

	if p.Config.MaxUseSet() {
		policy.MaxUse = p.Config.MaxUse
	}

	return policy
}

// Run classifies the received field vector into a Context, then executes
// the ten-step pipeline against it and the handed-off core descriptor
// (spec.md §4.2).
func (p *Pipeline) Run(fields []coredump.Field, coreFD int) error {
	src := os.NewFile(uintptr(coreFD), "core")
	defer src.Close()

	ctx, err := ExtractContext(fields)
	if err != nil {
		return err
	}

	// Step 1: pre-vacuum.
	if err := vacuum.Run(p.Dir, p.vacuumPolicy(), nil); err != nil {
		p.Log.Warn("pre-vacuum failed", map[string]interface{}{"error": err.Error()})
	}

	// Step 2: save external.
	wc, err := SaveExternal(p.Dir, src, p.Config, ctx)
	if err != nil {
		if err == ErrDisabledByPolicy {
			p.Log.Info("core dumping disabled by resource limit", map[string]interface{}{
				"pid":  ctx.MustGet(coredump.PID),
				"comm": ctx.MustGet(coredump.Comm),
			})

			return nil
		}

		return fmt.Errorf("local-fatal: %w", err)
	}
	defer wc.Close()

	if wc.Truncated {
		limit := IngestLimit(p.Config, ctx.Rlimit())

		p.Log.Info("SIZE_LIMIT", map[string]interface{}{
			"pid":   ctx.MustGet(coredump.PID),
			"comm":  ctx.MustGet(coredump.Comm),
			"limit": limit,
		})

		truncFields := append(append([]coredump.Field{}, fields...),
			coredump.NewField("MESSAGE", TruncationMessage(ctx, limit)))

		if err := journal.Emit(p.Journal, truncFields); err != nil {
			p.Log.Warn("failed to submit SIZE_LIMIT journal record", map[string]interface{}{"error": err.Error()})
		}
	}

	// Step 3: policy evict.
	retain := ShouldRetainExternal(p.Config, wc.Size)

	// Step 4: post-vacuum, exempting the working copy.
	if exempt, err := vacuum.ExemptFromFD(int(wc.File.Fd())); err == nil {
		if err := vacuum.Run(p.Dir, p.vacuumPolicy(), &exempt); err != nil {
			p.Log.Warn("post-vacuum failed", map[string]interface{}{"error": err.Error()})
		}
	}

	// Step 5: privilege drop. The working copy is chowned to the drop
	// target first so the still-open descriptor remains writable for the
	// fchmod/fsetxattr/link calls steps 8-9 make after the drop.
	target, err := identity.Resolve(ctx.Uid(), ctx.Gid(), acl.IsSystemIdentity, p.LookupUser)
	if err != nil {
		p.Log.Warn("failed to resolve drop identity, falling back to root", map[string]interface{}{"error": err.Error()})
	}

	if err := unix.Fchown(int(wc.File.Fd()), target.UID, target.GID); err != nil {
		p.Log.Warn("failed to chown working copy ahead of privilege drop", map[string]interface{}{"error": err.Error()})
	}

	if err := identity.Drop(target); err != nil {
		return fmt.Errorf("local-fatal: %w", err)
	}

	// Step 6: stack trace.
	traceText := ""

	if p.Trace != nil && wc.Size <= int64(p.Config.ProcessSizeMax) {
		text, err := p.Trace.Generate(int(wc.File.Fd()), ctx.MustGet(coredump.Exe))
		if err != nil {
			p.Log.Warn("stack trace generation failed", map[string]interface{}{"error": err.Error()})
		} else {
			traceText = text
		}
	}

	// Step 7: message compose.
	message := ComposeMessage(ctx, traceText)

	// Steps 8-9: compress (if applicable) then commit permissions and
	// link.
	var storedPath string

	if retain {
		storedPath, err = p.commitAndLink(wc, ctx, target)
		if err != nil {
			return fmt.Errorf("local-fatal: %w", err)
		}
	}

	// Step 10: journal emit.
	out := append([]coredump.Field{}, fields...)
	out = append(out, coredump.NewField("MESSAGE", message))

	if storedPath != "" {
		out = append(out, coredump.NewField("COREDUMP_FILENAME", storedPath))
	}

	if p.Config.Storage == config.StorageJournal && wc.Size <= int64(p.Config.JournalSizeMax) {
		raw, err := readBack(wc.File)
		if err != nil {
			p.Log.Warn("failed to read back core for inline journal storage", map[string]interface{}{"error": err.Error()})
		} else {
			out = append(out, coredump.Field{Name: "COREDUMP", Value: raw})
		}
	} else if p.Config.Storage == config.StorageJournal {
		p.Log.Warn("core exceeds JournalSizeMax, not inlined", map[string]interface{}{
			"size":  wc.Size,
			"limit": p.Config.JournalSizeMax,
		})
	}

	if err := journal.Emit(p.Journal, out); err != nil {
		return fmt.Errorf("failed to submit journal record: %w", err)
	}

	return nil
}

// commitAndLink applies mode/ACL/xattrs, optionally compressing first,
// fsyncs, and atomically links the result into the storage directory
// (spec.md §4.2 steps 8-9). It returns the final filename.
func (p *Pipeline) commitAndLink(wc *WorkingCopy, ctx *coredump.Context, target identity.Target) (string, error) {
	activeFile := wc.File
	suffix := ""

	if p.Config.Compress {
		compressed, err := p.tryCompress(wc)
		if err == nil {
			activeFile = compressed
			suffix = compress.Suffix
		} else {
			p.Log.Warn("compression failed, retaining uncompressed core", map[string]interface{}{"error": err.Error()})
		}
	}

	if err := unix.Fchmod(int(activeFile.Fd()), storage.FileMode); err != nil {
		p.Log.Warn("failed to set core file mode", map[string]interface{}{"error": err.Error()})
	}

	selfPath := fmt.Sprintf("/proc/self/fd/%d", activeFile.Fd())
	if err := acl.SetUserRead(selfPath, target.UID, storage.FileMode); err != nil {
		p.Log.Warn("failed to set ACL on core file", map[string]interface{}{"error": err.Error()})
	}

	if err := xattrs.Apply(selfPath, ctx); err != nil {
		p.Log.Warn("failed to set xattrs on core file", map[string]interface{}{"error": err.Error()})
	}

	if err := activeFile.Sync(); err != nil {
		return "", fmt.Errorf("failed to sync core file: %w", err)
	}

	name := filename.Build(filename.Components{
		Comm:        ctx.MustGet(coredump.Comm),
		UID:         ctx.MustGet(coredump.UID),
		BootID:      bootid.Read(),
		PID:         ctx.MustGet(coredump.PID),
		TimestampUS: filename.ToMicroseconds(ctx.MustGet(coredump.Timestamp)),
	}) + suffix

	path := filepath.Join(p.Dir, name)

	if err := storage.LinkInto(activeFile, path); err != nil {
		return "", err
	}

	if activeFile != wc.File {
		_ = activeFile.Close()
	}

	return path, nil
}

func (p *Pipeline) tryCompress(wc *WorkingCopy) (*os.File, error) {
	if _, err := wc.File.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("failed to rewind working copy: %w", err)
	}

	compressedTemp, err := storage.OpenAnonymous(p.Dir)
	if err != nil {
		return nil, err
	}

	if err := p.Compressor.Compress(compressedTemp, wc.File); err != nil {
		_ = compressedTemp.Close()
		return nil, err
	}

	return compressedTemp, nil
}

func readBack(f *os.File) ([]byte, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("failed to rewind working copy: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat working copy: %w", err)
	}

	buf := make([]byte, info.Size())

	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("failed to read back working copy: %w", err)
	}

	return buf, nil
}
