package collector_test

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"strconv"
	"testing"

	systemdjournal "github.com/coreos/go-systemd/v22/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemd/coredump-go/internal/collector"
	"github.com/systemd/coredump-go/internal/compress"
	"github.com/systemd/coredump-go/internal/config"
	"github.com/systemd/coredump-go/internal/coredump"
	"github.com/systemd/coredump-go/internal/logging"
	"github.com/systemd/coredump-go/internal/trace"
)

type fakeSender struct {
	message string
	vars    map[string]string
	calls   int
}

func (f *fakeSender) Send(message string, priority systemdjournal.Priority, vars map[string]string) error {
	f.message = message
	f.vars = vars
	f.calls++
	return nil
}

func coreFile(t *testing.T, size int) int {
	t.Helper()

	f, err := os.CreateTemp(t.TempDir(), "core-input")
	require.NoError(t, err)

	_, err = f.Write(make([]byte, size))
	require.NoError(t, err)

	_, err = f.Seek(0, 0)
	require.NoError(t, err)

	t.Cleanup(func() { f.Close() })

	return int(f.Fd())
}

func baseFields(t *testing.T) []coredump.Field {
	t.Helper()

	uid := os.Getuid()
	gid := os.Getgid()

	return []coredump.Field{
		coredump.NewField("COREDUMP_PID", "4242"),
		coredump.NewField("COREDUMP_UID", strconv.Itoa(uid)),
		coredump.NewField("COREDUMP_GID", strconv.Itoa(gid)),
		coredump.NewField("COREDUMP_SIGNAL", "11"),
		coredump.NewField("COREDUMP_TIMESTAMP", "1700000000000000"),
		coredump.NewField("COREDUMP_RLIMIT", "18446744073709551615"),
		coredump.NewField("COREDUMP_COMM", "hello"),
	}
}

func newTestPipeline(t *testing.T, cfg config.Config) (*collector.Pipeline, *fakeSender) {
	t.Helper()

	sender := &fakeSender{}

	p := collector.NewPipeline(cfg, logging.New())
	p.Dir = t.TempDir()
	p.Journal = sender
	p.Trace = trace.None{}
	p.LookupUser = func(string) (*user.User, error) { return nil, fmt.Errorf("unused in test") }

	return p, sender
}

func TestRunHappyPathExternal(t *testing.T) {
	cfg := config.Default()
	cfg.Compress = false

	p, sender := newTestPipeline(t, cfg)

	fd := coreFile(t, 4096)
	require.NoError(t, p.Run(baseFields(t), fd))

	assert.Equal(t, 1, sender.calls)
	assert.Contains(t, sender.message, "dumped core.")

	entries, err := os.ReadDir(p.Dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "core.hello.")
}

func TestRunRlimitBelowPageSizeSkipsEverything(t *testing.T) {
	cfg := config.Default()
	p, sender := newTestPipeline(t, cfg)

	fields := baseFields(t)
	for i, f := range fields {
		if f.Name == "COREDUMP_RLIMIT" {
			fields[i] = coredump.NewField("COREDUMP_RLIMIT", "100")
		}
	}

	fd := coreFile(t, 4096)
	require.NoError(t, p.Run(fields, fd))

	assert.Equal(t, 0, sender.calls)

	entries, err := os.ReadDir(p.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunInlineJournalStorage(t *testing.T) {
	cfg := config.Default()
	cfg.Storage = config.StorageJournal

	p, sender := newTestPipeline(t, cfg)

	payload := make([]byte, 1024)
	for i := range payload {
		payload[i] = byte(i)
	}

	tmp, err := os.CreateTemp(t.TempDir(), "core-input")
	require.NoError(t, err)
	_, err = tmp.Write(payload)
	require.NoError(t, err)
	_, err = tmp.Seek(0, 0)
	require.NoError(t, err)

	require.NoError(t, p.Run(baseFields(t), int(tmp.Fd())))

	assert.Equal(t, string(payload), sender.vars["COREDUMP"])

	entries, err := os.ReadDir(p.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "journal storage must not retain a file on disk")
}

func TestRunTruncationEmitsExtraRecord(t *testing.T) {
	cfg := config.Default()
	cfg.ProcessSizeMax = 1024
	cfg.ExternalSizeMax = 1024
	cfg.Compress = false

	p, sender := newTestPipeline(t, cfg)

	fd := coreFile(t, 10*1024)
	require.NoError(t, p.Run(baseFields(t), fd))

	// One record for the SIZE_LIMIT notice, one for the crash itself.
	assert.Equal(t, 2, sender.calls)

	entries, err := os.ReadDir(p.Dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	info, err := entries[0].Info()
	require.NoError(t, err)
	assert.LessOrEqual(t, info.Size(), int64(1024))
}

func TestRunStorageNoneNeverRetains(t *testing.T) {
	cfg := config.Default()
	cfg.Storage = config.StorageNone

	p, _ := newTestPipeline(t, cfg)

	fd := coreFile(t, 4096)
	require.NoError(t, p.Run(baseFields(t), fd))

	entries, err := os.ReadDir(p.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunCompressionFallback(t *testing.T) {
	cfg := config.Default()
	cfg.Compress = true

	p, _ := newTestPipeline(t, cfg)
	p.Compressor = failingCompressor{}

	fd := coreFile(t, 4096)
	require.NoError(t, p.Run(baseFields(t), fd))

	entries, err := os.ReadDir(p.Dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Name(), compress.Suffix)
}

type failingCompressor struct{}

func (failingCompressor) Compress(io.Writer, io.Reader) error {
	return fmt.Errorf("no compressor available")
}
