package troop

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(sweepCmd)

	viper.SetEnvPrefix("TROOP")
	viper.AutomaticEnv()
}

var RootCmd = &cobra.Command{
	Use:   "troop",
	Short: "Coordinator for a donated-compute inference grid",
	Long: `troop runs the trust and settlement core of a peer-to-peer inference
grid: it tracks donated nodes, mints capability tickets for authorized
jobs, and keeps the time-credit ledger that pays donors for their work.`,
}

func Execute(version string) {
	RootCmd.Version = version
	RootCmd.SetVersionTemplate(fmt.Sprintf("Troop Version: %s\n", version))

	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
