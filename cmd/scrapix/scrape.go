package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"scrapix/internal/downloader"
	"scrapix/pkg/browser"
	"scrapix/pkg/config"
	"scrapix/pkg/crawler"
	errs "scrapix/pkg/errors"
	"scrapix/pkg/metadata"
	"scrapix/pkg/pacing"
	"scrapix/pkg/result"
	"scrapix/pkg/session"
	"scrapix/pkg/storage"
	"scrapix/pkg/ui"
	"scrapix/pkg/validator"
)

var (
	// Scrape command flags
	saveDir    string
	limit      int
	skip       int
	keywords   []string
	minRes     string
	maxRes     string
	doDownload bool
	force      bool
	fresh      bool
	runTimeout time.Duration
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape <query...>",
	Short: "Harvest image URLs for a search query",
	Long: `Open an image search for the query and collect full-size image URLs
until the limit is reached or the results run out.

New results are merged into <dir>/urls.json unless --fresh is given, in
which case the previous file is kept as urls.json.bak and replaced.
A screenshot, the page source and a session.json record are written
next to the results.`,
	Example: `  # Collect 20 images of ducks
  scrapix scrape -n 20 duck

  # Skip the first 10 thumbnails and exclude toys
  scrapix scrape --skip 10 -k toy -k plush rubber duck

  # Only large images, then download them
  scrapix scrape --min-res 1280x720 --download mountain lake

  # Watch the browser work
  scrapix scrape --headless=false duck`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	scrapeCmd.Flags().StringVarP(&saveDir, "dir", "d", "", "save directory (default: <home>/<query>)")
	scrapeCmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of new images to collect")
	scrapeCmd.Flags().IntVar(&skip, "skip", 0, "number of leading thumbnails to ignore")
	scrapeCmd.Flags().StringArrayVarP(&keywords, "keyword", "k", nil, "exclude results whose title or url contains this keyword (repeatable)")
	scrapeCmd.Flags().StringVar(&minRes, "min-res", "", "minimum resolution, e.g. 640x480")
	scrapeCmd.Flags().StringVar(&maxRes, "max-res", "", "maximum resolution, e.g. 1920x1080")
	scrapeCmd.Flags().Bool("headless", true, "run the browser without a window")
	scrapeCmd.Flags().Bool("pacing", true, "pause between interactions")
	scrapeCmd.Flags().String("home", "", "base directory for save directories")
	scrapeCmd.Flags().Int("concurrent", 0, "number of concurrent downloads")
	scrapeCmd.Flags().BoolVar(&doDownload, "download", false, "download the saved images after harvesting")
	scrapeCmd.Flags().BoolVar(&force, "force", false, "redownload files that already exist")
	scrapeCmd.Flags().BoolVar(&fresh, "fresh", false, "replace saved results instead of merging")
	scrapeCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "overall deadline for the run (0 for none)")
}

// scrapeParams turns the command line into session parameters.
func scrapeParams(args []string, c *config.Config) (session.Params, error) {
	p := session.Params{
		Query:            strings.TrimSpace(strings.Join(args, " ")),
		Limit:            limit,
		Skip:             skip,
		ExcludedKeywords: keywords,
		Headless:         c.Browser.Headless,
		Mode:             storage.ModeMerge,
	}
	if fresh {
		p.Mode = storage.ModeReplace
	}
	for _, bound := range []struct {
		raw string
		dst **validator.Resolution
	}{{minRes, &p.MinResolution}, {maxRes, &p.MaxResolution}} {
		if bound.raw == "" {
			continue
		}
		res, err := validator.ParseResolution(bound.raw)
		if err != nil {
			return p, errs.Wrap(errs.ErrorTypeInput, "invalid resolution", err)
		}
		*bound.dst = &res
	}
	if err := p.Validate(); err != nil {
		return p, errs.Wrap(errs.ErrorTypeInput, "invalid arguments", err)
	}
	return p, nil
}

func defaultSaveDir(home, query string) string {
	return filepath.Join(home, query)
}

func runScrape(cmd *cobra.Command, args []string) error {
	params, err := scrapeParams(args, cfg)
	if err != nil {
		return err
	}
	dir := saveDir
	if dir == "" {
		dir = defaultSaveDir(cfg.Output.HomeDirectory, params.Query)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}

	printer.Logo()
	printer.Info("Query", params.Query)
	printer.Info("Save directory", dir)

	pacer := pacing.FromConfig(cfg.Pacing, cfg.Browser.UserAgents)
	userAgent := resolveUserAgent(ctx, cfg, pacer, log)

	client, err := newFetchClient(cfg, userAgent, log)
	if err != nil {
		return err
	}

	var prober validator.DimensionProber
	if params.MinResolution != nil || params.MaxResolution != nil {
		prober = client
	}

	chrome, err := browser.Launch(ctx, chromeOptions(cfg, params.Headless, userAgent))
	if err != nil {
		return errs.Wrap(errs.ErrorTypeNavigation, "failed to launch browser", err)
	}
	defer chrome.Close()

	progress := ui.NewHarvestProgress(printer, params.Query, params.Limit)
	harvester := crawler.New(chrome, validator.New(prober, log), pacer, crawlerMarkers(cfg),
		crawler.Timeouts{Click: cfg.Timeouts.Click}, log)
	harvester.OnEvent = progress.Observe

	controller := session.New(session.Deps{
		Page:     chrome,
		Store:    storage.NewResultStore(dir, cfg.Output.URLsFile, log),
		Crawler:  harvester,
		Pacer:    pacer,
		Markers:  sessionMarkers(cfg),
		Timeouts: sessionTimeouts(cfg),
		Diagnostics: session.DiagnosticsOptions{
			OnSuccess: cfg.Diagnostics.CaptureOnSuccess,
			Names:     diagnosticNames(cfg),
		},
		RecordFile: cfg.Output.SessionFile,
		SearchURL:  cfg.Search.SearchURL,
		Logger:     log,
	})

	printer.Highlight(fmt.Sprintf("Harvesting up to %d new images", params.Limit))
	out, err := controller.Run(ctx, params)
	if out == nil {
		return err
	}
	if err != nil {
		printer.Printf("\n")
		if out.Merged != nil {
			printer.Warning(fmt.Sprintf("Saved %d results before the run stopped", out.Merged.Len()))
		}
		if out.Record != nil && out.Record.Screenshot != "" {
			printer.Info("Screenshot", out.Record.Screenshot)
		}
		return err
	}
	progress.Finish(out.Merged.Len())

	if !doDownload {
		return nil
	}
	return downloadAndRecord(ctx, client, out.Merged, dir, out.Record)
}

// downloadAndRecord downloads results into dir and, when rec is set,
// stores the totals in the run record.
func downloadAndRecord(ctx context.Context, client downloader.Fetcher, results result.Set, dir string, rec *metadata.Record) error {
	sorted := results.Sorted()
	manager := newDownloadManager(cfg, client, log)
	progress := ui.NewDownloadProgress(printer, len(sorted))
	manager.OnOutcome = func(o downloader.Outcome) {
		progress.Record(string(o.Status), o.Bytes, o.Result.URL(), o.Err)
	}

	outcomes := manager.DownloadAll(ctx, sorted, dir, force || cfg.Download.OverwriteExisting)
	progress.Complete(dir)

	sum := downloader.Summarize(outcomes)
	if rec != nil {
		rec.Downloads = &metadata.Downloads{
			Downloaded: sum.Downloaded,
			Skipped:    sum.Skipped,
			Failed:     sum.Failed,
			Bytes:      sum.Bytes,
		}
		if err := rec.Save(dir, cfg.Output.SessionFile); err != nil {
			log.WithError(err).Warn("Failed to update session record")
		}
	}

	if err := downloader.Errors(outcomes); err != nil {
		log.WithError(err).WarnWithFields("Some downloads failed", map[string]interface{}{
			"failed": sum.Failed,
		})
	}
	if ctx.Err() != nil {
		return errs.Wrap(errs.ErrorTypeCancelled, "download interrupted", ctx.Err())
	}
	return nil
}
