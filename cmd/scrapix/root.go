package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"scrapix/pkg/config"
	errs "scrapix/pkg/errors"
	"scrapix/pkg/logger"
	"scrapix/pkg/ui"
)

var (
	// Version information, set at build time.
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	noColor    bool
	quiet      bool
	verbose    bool

	// Set up by PersistentPreRunE for every command.
	cfg     *config.Config
	log     logger.Logger
	printer *ui.Printer
)

var rootCmd = &cobra.Command{
	Use:   "scrapix",
	Short: "Harvest full-size image URLs from a web image search",
	Long: `scrapix drives a real browser through an image search results page,
opens thumbnails one by one and records the full-size image each reveals.

Results are kept per save directory in urls.json and merged across runs,
so repeated sessions for the same query only add new images. The saved
set can then be downloaded concurrently.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
}

// Exit statuses beyond the generic failure.
const (
	exitFailure = 1
	exitInput   = 2
	exitBlocked = 3
)

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.NewPrinter(os.Stderr, noColor, false).Error("scrapix failed", err)
		os.Exit(exitCode(err))
	}
}

// exitCode separates bad input and a page the session could not get
// past from other failures.
func exitCode(err error) int {
	switch {
	case errs.IsFatal(err):
		return exitBlocked
	case errs.Is(err, errs.ErrorTypeInput):
		return exitInput
	default:
		return exitFailure
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.scrapix.yaml or $HOME/.config/scrapix/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error, disabled)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	rootCmd.SetVersionTemplate(`scrapix {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// setup loads configuration with the flags the user actually set and
// initializes logging and terminal output.
func setup(cmd *cobra.Command) error {
	flags := changedFlags(cmd)
	switch {
	case verbose:
		flags["log-level"] = "debug"
	case quiet:
		flags["log-level"] = "error"
	}

	c, err := config.Load(configFile, flags)
	if err != nil {
		return err
	}
	logger.Version = version
	if err := logger.Initialize(&c.Logging); err != nil {
		return err
	}

	cfg = c
	log = logger.WithFields(map[string]interface{}{"command": cmd.Name()})
	printer = ui.NewPrinter(os.Stdout, c.Logging.NoColor || noColor, quiet)
	return nil
}

func newStdoutPrinter() *ui.Printer {
	return ui.NewPrinter(os.Stdout, noColor, quiet)
}

// changedFlags collects the config-backed flags set on the command line.
func changedFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	fs := cmd.Flags()
	if fs.Changed("log-level") {
		flags["log-level"] = logLevel
	}
	if fs.Changed("no-color") {
		flags["no-color"] = noColor
	}
	if fs.Lookup("headless") != nil && fs.Changed("headless") {
		v, _ := fs.GetBool("headless")
		flags["headless"] = v
	}
	if fs.Lookup("concurrent") != nil && fs.Changed("concurrent") {
		v, _ := fs.GetInt("concurrent")
		flags["concurrent"] = v
	}
	if fs.Lookup("pacing") != nil && fs.Changed("pacing") {
		v, _ := fs.GetBool("pacing")
		flags["pacing"] = v
	}
	if fs.Lookup("home") != nil && fs.Changed("home") {
		v, _ := fs.GetString("home")
		flags["home"] = v
	}
	return flags
}
