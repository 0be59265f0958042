package main

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"scrapix/pkg/diagnostics"
	errs "scrapix/pkg/errors"
	"scrapix/pkg/metadata"
	"scrapix/pkg/ui"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <session-dir>",
	Short: "Explain what a captured results page contains",
	Long: `Check the page source captured by the last session in <session-dir>
against the configured selectors and print the session record.

Use it when a run harvests nothing: it shows whether the thumbnails and
enlarged images the selectors expect are present, and whether the page
was a challenge.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	dir := args[0]
	found := false

	if metadata.Exists(dir, cfg.Output.SessionFile) {
		rec, err := metadata.Load(dir, cfg.Output.SessionFile)
		if err != nil {
			return errs.Wrap(errs.ErrorTypeInput, "unreadable session record", err)
		}
		printRecord(printer, rec)
		found = true
	}

	page := filepath.Join(dir, cfg.Output.PageFile)
	html, err := os.ReadFile(page)
	switch {
	case err == nil:
		report, err := diagnostics.Inspect(string(html), inspectProbe(cfg))
		if err != nil {
			return errs.Wrap(errs.ErrorTypeInput, "unreadable page source", err)
		}
		printReport(printer, report)
		found = true
	case !os.IsNotExist(err):
		return errs.Wrap(errs.ErrorTypeStorage, "failed to read page source", err)
	}

	if !found {
		return errs.New(errs.ErrorTypeInput, fmt.Sprintf("no session record or page source in %s", dir))
	}
	return nil
}

func printRecord(p *ui.Printer, r *metadata.Record) {
	p.Printf("%s\n", p.Magenta("Session"))
	p.Printf("  run        %s\n", r.RunID)
	p.Printf("  query      %q\n", r.Query)
	p.Printf("  state      %s\n", stateColor(p, r.State))
	if r.Error != "" {
		p.Printf("  error      %s\n", p.Red(r.Error))
	}
	p.Printf("  started    %s (%s)\n", r.StartedAt.Format("2006-01-02 15:04:05"), r.Duration().Round(time.Second))
	p.Printf("  params     limit=%d skip=%d mode=%s", r.Params.Limit, r.Params.Skip, r.Params.Mode)
	if len(r.Params.ExcludedKeywords) > 0 {
		p.Printf(" exclude=%s", strings.Join(r.Params.ExcludedKeywords, ","))
	}
	if r.Params.MinResolution != "" {
		p.Printf(" min=%s", r.Params.MinResolution)
	}
	if r.Params.MaxResolution != "" {
		p.Printf(" max=%s", r.Params.MaxResolution)
	}
	p.Printf("\n")
	p.Printf("  results    %d loaded, %d harvested, %d saved\n", r.Loaded, r.Harvested, r.Saved)
	p.Printf("  crawl      %d passes, %d clicked, %d click failures, %d empty\n",
		r.Stats.Passes, r.Stats.Clicked, r.Stats.InteractionFailures, r.Stats.Empty)
	for _, reason := range slices.Sorted(maps.Keys(r.Stats.Verdicts)) {
		p.Printf("    %-18s %d\n", reason, r.Stats.Verdicts[reason])
	}
	if d := r.Downloads; d != nil {
		p.Printf("  downloads  %d downloaded, %d skipped, %d failed (%s)\n",
			d.Downloaded, d.Skipped, d.Failed, ui.FormatBytes(d.Bytes))
	}
	p.Printf("\n")
}

func printReport(p *ui.Printer, r *diagnostics.Report) {
	p.Printf("%s\n", p.Magenta("Page"))
	p.Printf("  title      %q\n", r.Title)
	if r.Challenge {
		p.Printf("  challenge  %s\n", p.Red("detected"))
	} else {
		p.Printf("  challenge  %s\n", p.Green("none"))
	}
	printCount(p, "thumbnails", r.Thumbnails)
	for _, c := range r.Images {
		printCount(p, "image", c)
	}
	for _, c := range r.Consent {
		printCount(p, "consent", c)
	}
	printCount(p, "images link", r.ImagesLink)
	if len(r.ImageURLs) > 0 {
		p.Printf("  enlarged image URLs\n")
		for _, u := range r.ImageURLs {
			p.Printf("    %s\n", u)
		}
	}
}

func printCount(p *ui.Printer, label string, c diagnostics.Count) {
	value := fmt.Sprintf("%d", c.Matches)
	switch {
	case !c.Supported:
		value = p.Dim("n/a")
	case c.Matches == 0:
		value = p.Yellow(value)
	default:
		value = p.Green(value)
	}
	p.Printf("  %-10s %s %s\n", label, value, p.Dim(c.Selector))
}

func stateColor(p *ui.Printer, state string) string {
	switch state {
	case "completed":
		return p.Green(state)
	case "failed":
		return p.Red(state)
	default:
		return p.Yellow(state)
	}
}
