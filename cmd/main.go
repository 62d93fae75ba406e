/*
Package main is the entry point for the MentorLink server.

The root command loads configuration and initializes the global logging system.
Subcommands run the HTTP and WebSocket server (serve), apply database migrations
(migrate), seed user profiles (user add) and mint development credentials (token).
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mentorlink/internal/configs"
	"mentorlink/internal/pkg/logx"
)

var cfg *configs.AppConfig

var rootCmd = &cobra.Command{
	Use:           "mentorlink",
	Short:         "Real-time mentor messaging and call signaling server",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := configs.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded

		logx.InitGlobalLogger(cfg.IsDevelopment())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, tokenCmd, userCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}
