// Package journal adapts the accumulated field vector to the structured
// journal sink collaborator (spec.md §1 lists it as external: "consumes
// vectors of name=value fields plus raw blobs"). The concrete adapter
// here wraps github.com/coreos/go-systemd/v22/journal, the library the
// rest of the retrieval pack (nestybox-sysbox-fs's go-systemd dependency,
// and the field-naming convention shown by the packetbeat journalfield
// module) is built around.
package journal

import (
	"fmt"
	"strconv"

	systemdjournal "github.com/coreos/go-systemd/v22/journal"

	"github.com/systemd/coredump-go/internal/coredump"
)

// MessageID is the constant systemd-coredump journal entries carry
// (spec.md §6).
const MessageID = "fc2e22bc6ee647b6b90729ab34a250b1"

// DefaultPriority is PRIORITY=2 ("crit") per spec.md §6.
const DefaultPriority = systemdjournal.PriCrit

// Sender is the minimal surface this package needs from the journal sink,
// satisfied by System (a wrapper around systemdjournal.Send) and by test
// fakes.
type Sender interface {
	Send(message string, priority systemdjournal.Priority, vars map[string]string) error
}

// systemSender calls straight through to the real journald socket.
type systemSender struct{}

func (systemSender) Send(message string, priority systemdjournal.Priority, vars map[string]string) error {
	return systemdjournal.Send(message, priority, vars)
}

// System is the production Sender, talking to the local journald socket.
var System Sender = systemSender{}

// Available reports whether the local journald socket is reachable, the
// way systemdjournal.Enabled() does.
func Available() bool {
	return systemdjournal.Enabled()
}

// Emit submits fields as a single journal record. MESSAGE and PRIORITY
// fields, if present, are pulled out into the Sender's dedicated
// parameters; every other field (including MESSAGE_ID and, when present,
// the binary COREDUMP payload) becomes a journal variable. Testable
// property 1 (spec.md §8) requires MESSAGE_ID and the required context
// fields to be present; this function does not itself enforce that —
// callers build the field vector per spec.md §6.
func Emit(sender Sender, fields []coredump.Field) error {
	var message string

	priority := DefaultPriority

	vars := make(map[string]string, len(fields))

	for _, f := range fields {
		switch f.Name {
		case "MESSAGE":
			message = string(f.Value)
		case "PRIORITY":
			if p, err := strconv.Atoi(string(f.Value)); err == nil {
				priority = systemdjournal.Priority(p)
			}
		default:
			vars[f.Name] = string(f.Value)
		}
	}

	vars["MESSAGE_ID"] = MessageID

	if err := sender.Send(message, priority, vars); err != nil {
		return fmt.Errorf("failed to submit journal record: %w", err)
	}

	return nil
}
