package main

import (
	"fmt"
	"os"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "sessionguard",
	Short: "Single-active-session enforcement and inactivity expiry",
	Long: `sessionguard coordinates independent execution contexts so at most one
authenticated session stays active per user, and expires sessions after a
bounded period of inactivity.`,
}

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the websocket broadcast relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRelay()
	},
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate contexts racing to hold the active session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSimulate()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sessionguard v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.sessionguard/config.toml)")

	simulateCmd.Flags().IntVar(&simTabs, "tabs", 3, "number of simulated contexts")
	simulateCmd.Flags().DurationVar(&simTimeout, "inactivity-timeout", 6*time.Second, "inactivity timeout for the demo")
	simulateCmd.Flags().DurationVar(&simWarning, "warning-threshold", 3*time.Second, "warning threshold for the demo")

	rootCmd.AddCommand(relayCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
