// Package wire implements the datagram-based metadata-plus-file-descriptor
// handoff protocol between the kernel frontend and the collector
// (spec.md §6): a sequence of NAME=VALUE datagrams over AF_UNIX
// SOCK_SEQPACKET, terminated by a zero-length datagram whose ancillary
// data carries the core file descriptor via SCM_RIGHTS.
package wire

import (
	"errors"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/systemd/coredump-go/internal/coredump"
)

// SocketPath is the well-known filesystem address of the collector socket
// (spec.md §6).
const SocketPath = "/run/systemd/coredump"

// minSegmentSize is the floor for the message-too-large halving loop
// (spec.md §9 open question: "suggested: 1 byte").
const minSegmentSize = 1

// ellipsis is appended, as its own fragment, to a field value that had to
// be truncated to fit a single datagram.
const ellipsis = "..."

// Dial connects to the collector's well-known socket as a SOCK_SEQPACKET
// client, the role the kernel frontend plays.
func Dial(path string) (*net.UnixConn, error) {
	addr := &net.UnixAddr{Name: path, Net: "unixpacket"}

	conn, err := net.DialUnix("unixpacket", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to collector socket %s: %w", path, err)
	}

	return conn, nil
}

// Logger is the minimal interface wire needs for reporting a hit of the
// halving-loop floor; satisfied by *logging.Logger.
type Logger interface {
	Warn(msg string, fields logrus.Fields)
}

// SendFields transmits fields as one datagram per field, halving any
// field whose payload is rejected with EMSGSIZE until it fits (appending a
// 3-byte "..." continuation fragment), then sends the terminal zero-length
// datagram carrying coreFD as ancillary SCM_RIGHTS data.
func SendFields(conn *net.UnixConn, fields []coredump.Field, coreFD int, log Logger) error {
	for _, f := range fields {
		if err := sendField(conn, f, log); err != nil {
			return err
		}
	}

	rights := unix.UnixRights(coreFD)

	_, _, err := conn.WriteMsgUnix(nil, rights, nil)
	if err != nil {
		return fmt.Errorf("failed to send terminal fd-carrying datagram: %w", err)
	}

	return nil
}

// sendField sends f's payload as a single datagram, halving it and
// retrying on EMSGSIZE until a halved payload is accepted; if any halving
// occurred, a trailing "..." fragment is sent as a second datagram to
// mark the truncation (spec.md §4.1 responsibility 4, §6).
func sendField(conn *net.UnixConn, f coredump.Field, log Logger) error {
	payload := []byte(f.String())
	truncated := false

	for {
		_, err := conn.Write(payload)
		if err == nil {
			break
		}

		if !isMessageTooLarge(err) {
			return fmt.Errorf("failed to send field %s: %w", f.Name, err)
		}

		if len(payload) <= minSegmentSize {
			if log != nil {
				log.Warn("field payload hit the minimum segment size floor without being accepted", logrus.Fields{"field": f.Name})
			}

			return fmt.Errorf("field %s could not be sent even at the minimum segment size", f.Name)
		}

		payload = payload[:len(payload)/2]
		truncated = true
	}

	if !truncated {
		return nil
	}

	if _, err := conn.Write([]byte(ellipsis)); err != nil {
		return fmt.Errorf("failed to send continuation fragment for field %s: %w", f.Name, err)
	}

	return nil
}

func isMessageTooLarge(err error) bool {
	return errors.Is(err, unix.EMSGSIZE)
}

// MaxDatagram is the read buffer size for incoming field datagrams; well
// above any single COREDUMP_ field this repo ever sends.
const MaxDatagram = 64 * 1024

// oobSpace is large enough to hold one SCM_RIGHTS control message
// carrying a single file descriptor.
var oobSpace = unix.CmsgSpace(4)

// ReceiveFields reads datagrams from conn until the terminal zero-length,
// fd-carrying datagram is seen, returning the accumulated fields and the
// received file descriptor. Any other termination, or a terminal datagram
// carrying zero or more than one descriptor, is reported as an error
// (spec.md §4.5, §9: "duplicates or wrong type are bad-message").
func ReceiveFields(conn *net.UnixConn) ([]coredump.Field, int, error) {
	var fields []coredump.Field

	buf := make([]byte, MaxDatagram)
	oob := make([]byte, oobSpace)

	for {
		n, oobn, flags, _, err := conn.ReadMsgUnix(buf, oob)
		if err != nil {
			return nil, -1, fmt.Errorf("bad-message: failed to read datagram: %w", err)
		}

		if flags&unix.MSG_CTRUNC != 0 {
			return nil, -1, errors.New("bad-message: control message truncated")
		}

		if n == 0 {
			fd, err := extractSingleFD(oob[:oobn])
			if err != nil {
				return nil, -1, err
			}

			return fields, fd, nil
		}

		field, ok := coredump.ParseField(buf[:n])
		if !ok {
			// Not a well-formed NAME=VALUE datagram; skip rather than
			// fail the whole connection, mirroring the "missing values
			// simply omit the field" best-effort posture of spec.md §4.1.
			continue
		}

		fields = append(fields, field)
	}
}

func extractSingleFD(oob []byte) (int, error) {
	if len(oob) == 0 {
		return -1, errors.New("bad-message: terminal datagram carried no ancillary data")
	}

	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return -1, fmt.Errorf("bad-message: failed to parse control message: %w", err)
	}

	if len(msgs) != 1 {
		return -1, fmt.Errorf("bad-message: expected exactly one control message, got %d", len(msgs))
	}

	fds, err := unix.ParseUnixRights(&msgs[0])
	if err != nil {
		return -1, fmt.Errorf("bad-message: failed to parse SCM_RIGHTS: %w", err)
	}

	if len(fds) != 1 {
		for _, fd := range fds {
			_ = unix.Close(fd)
		}

		return -1, fmt.Errorf("bad-message: expected exactly one file descriptor, got %d", len(fds))
	}

	fd := fds[0]

	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("bad-message: failed to stat received descriptor: %w", err)
	}

	if stat.Mode&unix.S_IFMT != unix.S_IFREG {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("bad-message: received descriptor is not a regular file")
	}

	return fd, nil
}
