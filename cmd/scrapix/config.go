package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"scrapix/pkg/config"
	errs "scrapix/pkg/errors"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage scrapix configuration files.

Configuration is loaded from, highest priority first:
  - Command line flags
  - SCRAPIX_* environment variables
  - .env files
  - Configuration file
  - Default values`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to a file",
	Long: `Write the default configuration, including the selector table, to
.scrapix.yaml or to the path given with --config.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration from every source and report problems such as
malformed selectors, non-positive timeouts or an unknown rate limit
strategy.`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)

	// These must work on a broken configuration.
	for _, c := range []*cobra.Command{initCmd, validateCmd} {
		c.PersistentPreRunE = setupWithoutConfig
	}
}

func setupWithoutConfig(cmd *cobra.Command, args []string) error {
	printer = newStdoutPrinter()
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = ".scrapix.yaml"
	}
	if _, err := os.Stat(path); err == nil {
		return errs.New(errs.ErrorTypeInput, fmt.Sprintf("configuration file already exists: %s", path))
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return errs.Wrap(errs.ErrorTypeStorage, "failed to create configuration file", err)
	}

	printer.Success("Configuration file created: " + path)
	printer.Printf("\nNext steps:\n")
	printer.Printf("1. Adjust the selectors and pacing in %s\n", path)
	printer.Printf("2. Run 'scrapix config validate' to check it\n")
	printer.Printf("3. Start harvesting with 'scrapix scrape <query>'\n")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}
	printer.Printf("%s", data)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if _, err := config.Load(configFile, nil); err != nil {
		return errs.Wrap(errs.ErrorTypeInput, "configuration is invalid", err)
	}
	printer.Success("Configuration is valid")
	return nil
}
