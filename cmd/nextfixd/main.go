// Command nextfixd runs the FIX session engine as a standalone daemon:
// it loads declarative session configuration, accepts and dials TCP
// connections, and drives each session's state machine, gap-fill
// engine, liveness engine, and send pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	appversion "github.com/nextfix-go/nextfix/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "nextfixd",
		Short: "FIX session engine daemon",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file (YAML)")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newVersionCmd())

	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon, accepting and dialing FIX sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configPath)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(appversion.Full("nextfixd"))
			return nil
		},
	}
}

func appVersion() string {
	return appversion.Version
}
