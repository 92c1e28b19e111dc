package wire_test

import (
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/systemd/coredump-go/internal/coredump"
	"github.com/systemd/coredump-go/internal/wire"
)

func socketpair(t *testing.T) (*net.UnixConn, *net.UnixConn) {
	t.Helper()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	require.NoError(t, err)

	left, err := net.FileConn(os.NewFile(uintptr(fds[0]), "left"))
	require.NoError(t, err)

	right, err := net.FileConn(os.NewFile(uintptr(fds[1]), "right"))
	require.NoError(t, err)

	return left.(*net.UnixConn), right.(*net.UnixConn)
}

func TestSendReceiveRoundTrip(t *testing.T) {
	client, server := socketpair(t)
	defer client.Close()
	defer server.Close()

	fields := []coredump.Field{
		coredump.NewField("COREDUMP_PID", "4242"),
		coredump.NewField("COREDUMP_COMM", "hello"),
	}

	core, err := os.CreateTemp(t.TempDir(), "core")
	require.NoError(t, err)
	defer core.Close()

	done := make(chan error, 1)
	go func() {
		done <- wire.SendFields(client, fields, int(core.Fd()), nil)
	}()

	gotFields, fd, err := wire.ReceiveFields(server)
	require.NoError(t, err)
	require.NoError(t, <-done)

	defer unix.Close(fd)

	require.Len(t, gotFields, 2)
	assert.Equal(t, "COREDUMP_PID", gotFields[0].Name)
	assert.Equal(t, "4242", string(gotFields[0].Value))
	assert.Equal(t, "hello", string(gotFields[1].Value))
	assert.Greater(t, fd, 0)
}

func TestReceiveFieldsRejectsNonRegularFile(t *testing.T) {
	client, server := socketpair(t)
	defer client.Close()
	defer server.Close()

	pipeR, pipeW, err := os.Pipe()
	require.NoError(t, err)
	defer pipeR.Close()
	defer pipeW.Close()

	done := make(chan error, 1)
	go func() {
		done <- wire.SendFields(client, nil, int(pipeR.Fd()), nil)
	}()

	_, _, err = wire.ReceiveFields(server)
	assert.Error(t, err, "a pipe descriptor must be rejected as bad-message")
	require.NoError(t, <-done)
}

func TestReceiveFieldsBadMessageOnNoAncillaryData(t *testing.T) {
	client, server := socketpair(t)
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	go func() {
		// Terminal datagram with no SCM_RIGHTS payload at all.
		_, _, err := client.WriteMsgUnix(nil, nil, nil)
		done <- err
	}()

	_, _, err := wire.ReceiveFields(server)
	assert.Error(t, err)
	require.NoError(t, <-done)
}

func TestSendFieldsHalvesOversizedPayload(t *testing.T) {
	client, server := socketpair(t)
	defer client.Close()
	defer server.Close()

	huge := make([]byte, 4*1024*1024)
	for i := range huge {
		huge[i] = 'a'
	}

	fields := []coredump.Field{{Name: "COREDUMP_ENVIRON", Value: huge}}

	core, err := os.CreateTemp(t.TempDir(), "core")
	require.NoError(t, err)
	defer core.Close()

	done := make(chan error, 1)
	go func() {
		done <- wire.SendFields(client, fields, int(core.Fd()), nil)
	}()

	var fragments [][]byte

	buf := make([]byte, wire.MaxDatagram)
	oob := make([]byte, 64)

	for {
		n, oobn, _, _, err := server.ReadMsgUnix(buf, oob)
		require.NoError(t, err)

		if n == 0 {
			_ = oobn
			break
		}

		fragment := make([]byte, n)
		copy(fragment, buf[:n])
		fragments = append(fragments, fragment)
	}

	require.NoError(t, <-done)
	require.Len(t, fragments, 2, "an oversized field must be split into a truncated data fragment and a separate ellipsis fragment")

	f, ok := coredump.ParseField(fragments[0])
	require.True(t, ok, "first fragment must still be a well-formed NAME=VALUE datagram")
	assert.Equal(t, "COREDUMP_ENVIRON", f.Name)
	assert.Less(t, len(f.Value), len(huge))

	assert.Equal(t, "...", string(fragments[1]))
}
