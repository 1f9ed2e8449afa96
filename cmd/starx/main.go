// Starx is a Pomelo-protocol client and bridge daemon.
//
// It keeps one session to a Pomelo/StartX server alive, exposes its
// requests and notifies over a local REST API and an interactive console,
// journals traffic to SQLite and mirrors pushes to MQTT.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ___| |_ __ _ _ ____  __
 / __| __/ _' | '__\ \/ /
 \__ \ || (_| | |   >  <
 |___/\__\__,_|_|  /_/\_\  %s
`

func main() {
	rootCmd := &cobra.Command{
		Use:   "starx",
		Short: "Pomelo protocol client and bridge",
		Long: `Starx speaks the Pomelo/StartX wire protocol.

Run it as a daemon to bridge one upstream session to a local REST API,
console, SQLite journal and MQTT broker, or use the one-shot request and
notify commands to talk to a server directly.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		runCmd(),
		requestCmd(),
		notifyCmd(),
		setupCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

func printBanner() {
	fmt.Printf(banner, version)
}
