package main

import (
	"os"

	"github.com/ptmscope/ptmscope/cmd"
	"github.com/ptmscope/ptmscope/internal/conf"
	"github.com/ptmscope/ptmscope/internal/logging"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	logging.Init()

	settings := conf.Setting()
	settings.Version = version
	settings.BuildDate = buildDate

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		logging.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
