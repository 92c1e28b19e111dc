package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systemd/coredump-go/internal/activation"
	"github.com/systemd/coredump-go/internal/collector"
	"github.com/systemd/coredump-go/internal/config"
	"github.com/systemd/coredump-go/internal/logging"
	"github.com/systemd/coredump-go/internal/wire"
)

type cmdDaemon struct {
	global *cmdGlobal
}

func (c *cmdDaemon) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.RunE = c.run

	return cmd
}

func (c *cmdDaemon) run(cmd *cobra.Command, args []string) error {
	log := logging.New()

	path := config.DefaultPath
	if c.global.flagConfig != "" {
		path = c.global.flagConfig
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	conn, err := activation.Connection()
	if err != nil {
		return fmt.Errorf("failed to acquire socket-activation connection: %w", err)
	}
	defer conn.Close()

	fields, coreFD, err := wire.ReceiveFields(conn)
	if err != nil {
		return err
	}

	pipeline := collector.NewPipeline(cfg, log)

	if err := pipeline.Run(fields, coreFD); err != nil {
		return err
	}

	return nil
}
