package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/systemd/coredump-go/internal/version"
)

type cmdGlobal struct {
	flagHelp    bool
	flagVersion bool
}

func main() {
	handlerCmd := cmdHandler{}
	app := handlerCmd.Command()
	app.Use = "systemd-coredump pid uid gid signal timestamp rlimit [comm...]"
	app.Short = "Kernel core-dump handler"
	app.Long = `Description:
  Kernel core-dump handler

  Invoked by the kernel as the core_pattern handler with the crashing
  process's core image on standard input and its identifying metadata as
  positional arguments. Forwards everything to the collector over a local
  socket.
`
	app.SilenceUsage = true
	app.CompletionOptions = cobra.CompletionOptions{DisableDefaultCmd: true}

	globalCmd := cmdGlobal{}
	app.PersistentFlags().BoolVar(&globalCmd.flagVersion, "version", false, "Print version number")
	app.PersistentFlags().BoolVarP(&globalCmd.flagHelp, "help", "h", false, "Print help")
	handlerCmd.global = &globalCmd

	app.SetVersionTemplate("{{.Version}}\n")
	app.Version = version.Version

	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
