// Command bridged runs the VISTA bridge: it watches deposit addresses on the
// source chain and mirrors validated deposits onto the destination chain.
package main

import (
	"fmt"
	"os"

	"cosmossdk.io/log"
	"github.com/spf13/cobra"

	"github.com/bayareaeagle/VBJC/pkg/bridge"
	"github.com/bayareaeagle/VBJC/pkg/mirror"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bridged",
		Short: "VISTA cross-chain bridge relay service",
	}

	rootCmd.AddCommand(startCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the bridge relay service",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.NewLogger(os.Stderr)
			cfg := bridge.ConfigFromEnv()
			return runService(cfg, logger)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the bridge version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(mirror.BridgeVersion)
		},
	}
}
