package main

import (
	"errors"
	"fmt"
	"os"

	"geminivoice-go/cmd/voicectl/commands"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := &commands.Options{}
	var envFile string

	rootCmd := &cobra.Command{
		Use:   "voicectl",
		Short: "Manage voice chat credentials and storage offline",
		Long: `voicectl edits the credential pool document and the storage schema
without a running voice chat client. Environment and keychain credentials
are shown but never written.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "Config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file")
	rootCmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		commands.NewKeysCommand(opts),
		commands.NewMigrateCommand(opts),
	)
	return rootCmd.Execute()
}
