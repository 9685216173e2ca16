package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "faycoin",
	Short: "Fay coin balance synchronizer",
	Long: `faycoin keeps one Fay coin balance consistent across every process on the
host that shares the same storage file and broadcast channel.

Run "faycoin relay" once to host the channel, then point any number of
contexts at it with channel.relay_url (or FAYCOIN_RELAY_URL).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "config file (missing file means defaults)")

	rootCmd.AddCommand(relayCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(subtractCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
