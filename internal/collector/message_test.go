package collector_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemd/coredump-go/internal/collector"
)

func TestComposeMessageWithoutTrace(t *testing.T) {
	ctx, err := collector.ExtractContext(baseFields(t))
	require.NoError(t, err)

	msg := collector.ComposeMessage(ctx, "")
	assert.Contains(t, msg, "Process 4242 (hello) of user")
	assert.Contains(t, msg, "dumped core.")
	assert.NotContains(t, msg, "\n\n")
}

func TestComposeMessageWithTrace(t *testing.T) {
	ctx, err := collector.ExtractContext(baseFields(t))
	require.NoError(t, err)

	msg := collector.ComposeMessage(ctx, "#0 0x1234 in main")
	assert.Contains(t, msg, "dumped core.\n\n#0 0x1234 in main")
}

func TestTruncationMessage(t *testing.T) {
	ctx, err := collector.ExtractContext(baseFields(t))
	require.NoError(t, err)

	msg := collector.TruncationMessage(ctx, 1024)
	assert.Contains(t, msg, "truncated to 1024 bytes")
	assert.Contains(t, msg, "4242")
}
