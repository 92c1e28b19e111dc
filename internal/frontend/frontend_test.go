package frontend_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemd/coredump-go/internal/coredump"
	"github.com/systemd/coredump-go/internal/frontend"
)

func TestParseArgsHappyPath(t *testing.T) {
	argv := []string{"systemd-coredump", "4242", "1000", "1000", "11", "1700000000000000", "18446744073709551615", "hello"}

	ctx, err := frontend.ParseArgs(argv)
	require.NoError(t, err)

	assert.Equal(t, 4242, ctx.Pid())
	assert.Equal(t, 1000, ctx.Uid())
	assert.Equal(t, "hello", ctx.MustGet(coredump.Comm))
}

func TestParseArgsMissingPositional(t *testing.T) {
	_, err := frontend.ParseArgs([]string{"systemd-coredump", "4242", "1000"})
	assert.ErrorIs(t, err, frontend.ErrInvalidInvocation)
}

func TestParseArgsEmptyPositionalRejected(t *testing.T) {
	argv := []string{"systemd-coredump", "4242", "", "1000", "11", "1700000000000000", "100"}
	_, err := frontend.ParseArgs(argv)
	assert.ErrorIs(t, err, frontend.ErrInvalidInvocation)
}

func TestParseArgsCommTokensJoined(t *testing.T) {
	argv := []string{"systemd-coredump", "99999999", "1000", "1000", "11", "1700000000000000", "100", "my", "process"}

	ctx, err := frontend.ParseArgs(argv)
	require.NoError(t, err)

	// pid 99999999 almost certainly does not exist, so /proc/<pid>/comm is
	// unreadable and the argv tail is used instead.
	assert.Equal(t, "my process", ctx.MustGet(coredump.Comm))
}

func TestContainerCmdlineSelfIsNotContainerised(t *testing.T) {
	_, ok := frontend.ContainerCmdline(1)
	assert.False(t, ok, "pid 1 has no containerising ancestor to report")
}
