// Command ledgerctl operates on the fund ledger from the shell: open accounts, post
// flows, sync snapshots, reconcile and run the daily pipeline by hand.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	for _, c := range commands {
		commander.Register(c, "")
	}
	flag.StringVar(&configPath, "config", envOr("FUNDLEDGER_CONFIG", "configs/config.yaml"), "Path to the config file.")
	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
