// Package commands implements the CLI for chunkvault server management.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "chunkvault",
	Short: "ChunkVault - content-addressed chunk store with safe space reclamation",
	Long: `ChunkVault stores immutable content-addressed chunks and reclaims the
space of unreferenced ones. A reference ledger tracks which commits, tags,
stashes and uploads hold each chunk; the garbage collector deletes chunks
only after they have been continuously unreferenced for a grace period.

Use "chunkvault [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/chunkvault/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(haltCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(purgeCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}
