package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/systemd/coredump-go/internal/version"
)

type cmdGlobal struct {
	flagHelp    bool
	flagVersion bool
	flagConfig  string
}

func main() {
	daemonCmd := cmdDaemon{}
	app := daemonCmd.Command()
	app.Use = "systemd-coredump-collector"
	app.Short = "Core-dump ingestion collector"
	app.Long = `Description:
  Core-dump ingestion collector

  Socket-activated service accepting one core-dump hand-off per
  invocation: owns storage, compression, vacuuming, ACL assignment,
  stack-trace generation, and journal submission.
`
	app.SilenceUsage = true
	app.CompletionOptions = cobra.CompletionOptions{DisableDefaultCmd: true}

	globalCmd := cmdGlobal{}
	app.PersistentFlags().BoolVar(&globalCmd.flagVersion, "version", false, "Print version number")
	app.PersistentFlags().BoolVarP(&globalCmd.flagHelp, "help", "h", false, "Print help")
	app.PersistentFlags().StringVar(&globalCmd.flagConfig, "config", "", "Path to coredump.conf")
	daemonCmd.global = &globalCmd

	app.SetVersionTemplate("{{.Version}}\n")
	app.Version = version.Version

	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
