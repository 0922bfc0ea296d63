package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	_ = godotenv.Load()

	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sharevault-admin",
		Short: "ShareVault maintenance CLI",
		Long: `ShareVault maintenance CLI

Runs maintenance tasks directly against the configured repository.
Configuration is read from the same environment variables as the server
(DATABASE_TYPE, DATABASE_URL, MONGO_DATABASE, POSTGRES_SCHEMA, SITE_URL, ...)
and from a .env file in the current directory.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(NewBackfillCommand())
	rootCmd.AddCommand(NewCategoriesCommand())
	rootCmd.AddCommand(NewPostsCommand())
	rootCmd.AddCommand(NewSitemapCommand())
	rootCmd.AddCommand(NewTokenCommand())
	rootCmd.AddCommand(NewPingCommand())

	return rootCmd
}
