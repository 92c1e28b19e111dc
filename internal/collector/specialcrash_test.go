package collector_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemd/coredump-go/internal/collector"
	"github.com/systemd/coredump-go/internal/config"
)

func TestSpecialCrashWritesFileWithNoJournalSubmission(t *testing.T) {
	cfg := config.Default()
	cfg.Compress = false

	dir := t.TempDir()

	fields := baseFields(t)
	ctx, err := collector.ExtractContext(fields)
	require.NoError(t, err)

	fd := coreFile(t, 4096)
	src := os.NewFile(uintptr(fd), "core")
	defer src.Close()

	require.NoError(t, collector.SpecialCrash(dir, src, cfg, ctx))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "core.hello.")
}

func TestSpecialCrashForcesExternalStorage(t *testing.T) {
	cfg := config.Default()
	cfg.Storage = config.StorageJournal
	cfg.Compress = false

	dir := t.TempDir()

	fields := baseFields(t)
	ctx, err := collector.ExtractContext(fields)
	require.NoError(t, err)

	fd := coreFile(t, 4096)
	src := os.NewFile(uintptr(fd), "core")
	defer src.Close()

	require.NoError(t, collector.SpecialCrash(dir, src, cfg, ctx))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "storage=journal must still be forced to external for the special-crash path")
}

func TestSpecialCrashHonoursStorageNone(t *testing.T) {
	cfg := config.Default()
	cfg.Storage = config.StorageNone

	dir := t.TempDir()

	fields := baseFields(t)
	ctx, err := collector.ExtractContext(fields)
	require.NoError(t, err)

	fd := coreFile(t, 4096)
	src := os.NewFile(uintptr(fd), "core")
	defer src.Close()

	require.NoError(t, collector.SpecialCrash(dir, src, cfg, ctx))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
