package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/systemd/coredump-go/internal/collector"
	"github.com/systemd/coredump-go/internal/config"
	"github.com/systemd/coredump-go/internal/coredump"
	"github.com/systemd/coredump-go/internal/frontend"
	"github.com/systemd/coredump-go/internal/logging"
	"github.com/systemd/coredump-go/internal/unitid"
	"github.com/systemd/coredump-go/internal/wire"
)

type cmdHandler struct {
	global *cmdGlobal
}

func (c *cmdHandler) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Args = cobra.MinimumNArgs(6)
	cmd.RunE = c.run
	cmd.DisableFlagParsing = true

	return cmd
}

func (c *cmdHandler) run(cmd *cobra.Command, args []string) error {
	log := logging.New()

	if err := frontend.DisableSelfCoredump(); err != nil {
		log.Warn("failed to disable core dumping for self", map[string]interface{}{"error": err.Error()})
	}

	ctx, err := frontend.ParseArgs(append([]string{"systemd-coredump"}, args...))
	if err != nil {
		return err
	}

	if unit, err := unitid.Unit(ctx.Pid()); err == nil && unitid.IsSpecial(unit) {
		return c.runSpecialCrash(log, unit, ctx)
	}

	fields := frontend.BuildFields(ctx)

	if err := frontend.Send(wire.SocketPath, fields, int(os.Stdin.Fd()), log); err != nil {
		return fmt.Errorf("local-fatal: %w", err)
	}

	return nil
}

// runSpecialCrash implements the Special-Crash Path (spec.md §4.3):
// reached when the crashing process's unit is the supervisor scope or the
// journal service, on the assumption the normal datagram hand-off is
// unreachable.
func (c *cmdHandler) runSpecialCrash(log *logging.Logger, unit string, ctx *coredump.Context) error {
	if unit == unitid.SupervisorScope {
		if err := frontend.DisableCorePattern(); err != nil {
			log.Warn("failed to disable core_pattern after supervisor crash", map[string]interface{}{"error": err.Error()})
		}
	}

	cfg, err := config.Load(config.DefaultPath)
	if err != nil {
		return fmt.Errorf("local-fatal: %w", err)
	}

	if err := collector.SpecialCrash(collector.StorageDir, os.Stdin, cfg, ctx); err != nil {
		return fmt.Errorf("local-fatal: %w", err)
	}

	return nil
}
