package frontend

import (
	"fmt"

	"github.com/systemd/coredump-go/internal/coredump"
	"github.com/systemd/coredump-go/internal/unitid"
	"github.com/systemd/coredump-go/internal/wire"
)

// BuildFields assembles the full journal field vector for a crash (spec.md
// §6): the required Context keys, the best-effort /proc enrichment
// fields, the crashing process's unit identity, and the
// containerisation-detection result, each captured independently so a
// single missing value never fails the whole vector.
func BuildFields(ctx *coredump.Context) []coredump.Field {
	var fields []coredump.Field

	for key := coredump.ContextKey(0); key < coredump.NumContextKeys(); key++ {
		if v, ok := ctx.Get(key); ok {
			fields = append(fields, coredump.NewField(key.JournalName(), v))
		}
	}

	pid := ctx.Pid()

	fields = append(fields, Enrich(pid)...)

	if unit, err := unitid.Unit(pid); err == nil && unit != "" {
		fields = append(fields, coredump.NewField("COREDUMP_UNIT", unit))
	}

	// OWNER_UID has no logind client to consult in this dependency set,
	// but it is otherwise just the crashing uid: derive it from the
	// context rather than drop the field.
	if uid, ok := ctx.Get(coredump.UID); ok {
		fields = append(fields, coredump.NewField("COREDUMP_OWNER_UID", uid))
	}

	if cmdline, ok := ContainerCmdline(pid); ok {
		fields = append(fields, coredump.NewField("COREDUMP_CONTAINER_CMDLINE", cmdline))
	}

	return fields
}

// Send opens the collector socket and transmits fields plus the core
// descriptor, per spec.md §4.1 responsibility 4.
func Send(sockPath string, fields []coredump.Field, coreFD int, log wire.Logger) error {
	conn, err := wire.Dial(sockPath)
	if err != nil {
		return fmt.Errorf("failed to reach collector: %w", err)
	}
	defer conn.Close()

	if err := wire.SendFields(conn, fields, coreFD, log); err != nil {
		return fmt.Errorf("failed to hand off crash to collector: %w", err)
	}

	return nil
}
