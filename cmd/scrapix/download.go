package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"scrapix/pkg/metadata"
	"scrapix/pkg/storage"
)

var urlsFile string

var downloadCmd = &cobra.Command{
	Use:   "download <save-dir>",
	Short: "Download every image saved in a save directory",
	Long: `Download the images listed in <save-dir>/urls.json into <save-dir>.

Files are named after the last segment of their URL. Files that already
exist are left alone unless --force is given. One failed download never
stops the others.`,
	Example: `  scrapix download .cache/scrapix/duck
  scrapix download --urls other.json --force ./ducks`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().StringVar(&urlsFile, "urls", "", "results file (default: <save-dir>/urls.json)")
	downloadCmd.Flags().BoolVar(&force, "force", false, "redownload files that already exist")
	downloadCmd.Flags().Int("concurrent", 0, "number of concurrent downloads")
}

func runDownload(cmd *cobra.Command, args []string) error {
	dir := args[0]
	path := urlsFile
	if path == "" {
		path = filepath.Join(dir, cfg.Output.URLsFile)
	}

	// Read before anything touches the network or the directory.
	results, err := storage.ReadFile(path, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printer.Info("Results", path)
	printer.Info("Images", strconv.Itoa(results.Len()))

	client, err := newFetchClient(cfg, "", log)
	if err != nil {
		return err
	}

	var rec *metadata.Record
	if metadata.Exists(dir, cfg.Output.SessionFile) {
		if rec, err = metadata.Load(dir, cfg.Output.SessionFile); err != nil {
			log.WithError(err).Warn("Ignoring unreadable session record")
			rec = nil
		}
	}
	return downloadAndRecord(ctx, client, results, dir, rec)
}
