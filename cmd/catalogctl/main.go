// Package main is the entry point for catalogctl, the paper catalog command
// line. Each operation is a subcommand: ingest, ingest-work, export, import
// and schedule.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for catalogctl.
var rootCmd = &cobra.Command{
	Use:   "catalogctl",
	Short: "Maintain the OpenAlex paper catalog",
	Long: `catalogctl fills a PostgreSQL paper catalog from OpenAlex and moves it between
databases as JSON snapshots.

Settings come from config.yaml and PAPERCATALOG_* environment variables. A .env
file in the working directory is loaded first when present.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		return loadEnvFile(envFile)
	},
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before the configuration")
	rootCmd.PersistentFlags().String("log-level", "", "override logging.level")
}

// loadEnvFile loads path into the environment. A missing file is not an error;
// variables already set win over the file.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
