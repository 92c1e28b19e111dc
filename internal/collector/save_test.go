package collector_test

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemd/coredump-go/internal/collector"
	"github.com/systemd/coredump-go/internal/config"
	"github.com/systemd/coredump-go/internal/coredump"
)

func TestIngestLimit(t *testing.T) {
	cfg := config.Default()
	cfg.ProcessSizeMax = 1024
	cfg.ExternalSizeMax = 4096

	assert.EqualValues(t, 4096, collector.IngestLimit(cfg, 1<<40))
	assert.EqualValues(t, 2048, collector.IngestLimit(cfg, 2048))
}

func TestSaveExternalDisabledByPolicy(t *testing.T) {
	cfg := config.Default()

	fields := baseFields(t)
	for i, f := range fields {
		if f.Name == "COREDUMP_RLIMIT" {
			fields[i] = coredump.NewField("COREDUMP_RLIMIT", "10")
		}
	}

	ctx, err := collector.ExtractContext(fields)
	require.NoError(t, err)

	_, err = collector.SaveExternal(t.TempDir(), bytes.NewReader(nil), cfg, ctx)
	assert.ErrorIs(t, err, collector.ErrDisabledByPolicy)
}

func TestSaveExternalTruncates(t *testing.T) {
	cfg := config.Default()
	cfg.ExternalSizeMax = 512
	cfg.ProcessSizeMax = 512

	ctx, err := collector.ExtractContext(baseFields(t))
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("x"), 4096)

	wc, err := collector.SaveExternal(t.TempDir(), bytes.NewReader(payload), cfg, ctx)
	require.NoError(t, err)
	defer wc.Close()

	assert.True(t, wc.Truncated)
	assert.EqualValues(t, 512, wc.Size)
}

func TestShouldRetainExternal(t *testing.T) {
	cfg := config.Default()
	cfg.ExternalSizeMax = 1024

	assert.True(t, collector.ShouldRetainExternal(cfg, 512))
	assert.False(t, collector.ShouldRetainExternal(cfg, 2048))

	cfg.Storage = config.StorageJournal
	assert.False(t, collector.ShouldRetainExternal(cfg, 512))
}

func TestWorkingCopyCloseIsIdempotent(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "wc")
	require.NoError(t, err)

	wc := &collector.WorkingCopy{File: f}
	require.NoError(t, wc.Close())
	require.NoError(t, wc.Close())
}
