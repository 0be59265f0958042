package main

import (
	"context"

	"scrapix/internal/downloader"
	"scrapix/pkg/browser"
	"scrapix/pkg/config"
	"scrapix/pkg/crawler"
	"scrapix/pkg/diagnostics"
	"scrapix/pkg/fetch"
	"scrapix/pkg/logger"
	"scrapix/pkg/pacing"
	"scrapix/pkg/ratelimit"
	"scrapix/pkg/retry"
	"scrapix/pkg/session"
)

func crawlerMarkers(c *config.Config) crawler.Markers {
	return crawler.Markers{
		Thumbnail:       c.Search.Thumbnail,
		Images:          c.Search.Images,
		SourceAttribute: c.Search.SourceAttribute,
		TitleAttribute:  c.Search.TitleAttribute,
		SchemeMarker:    c.Search.SchemeMarker,
		ProxyMarker:     c.Search.ProxyMarker,
	}
}

func sessionMarkers(c *config.Config) session.Markers {
	return session.Markers{
		Challenge:           c.Search.Challenge,
		ChallengeIndicators: c.Search.ChallengeIndicators,
		Consent:             c.Search.Consent,
		ImagesLink:          c.Search.ImagesLink(),
	}
}

func sessionTimeouts(c *config.Config) session.Timeouts {
	return session.Timeouts{
		Navigation: c.Timeouts.Navigation,
		Challenge:  c.Timeouts.Challenge,
		Consent:    c.Timeouts.Consent,
		ImagesLink: c.Timeouts.ImagesLink,
		Capture:    c.Diagnostics.CaptureTimeout,
	}
}

func diagnosticNames(c *config.Config) diagnostics.Names {
	return diagnostics.Names{
		Screenshot: c.Output.ScreenshotFile,
		Page:       c.Output.PageFile,
	}
}

func inspectProbe(c *config.Config) diagnostics.Probe {
	return diagnostics.Probe{
		Thumbnail:           c.Search.Thumbnail,
		Images:              c.Search.Images,
		Consent:             c.Search.Consent,
		ImagesLink:          c.Search.ImagesLink(),
		ChallengeIndicators: c.Search.ChallengeIndicators,
	}
}

// newFetchClient builds the HTTP client shared by resolution probing and
// downloading, so both draw from one rate limit.
func newFetchClient(c *config.Config, userAgent string, log logger.Logger) (*fetch.Client, error) {
	limiter, err := ratelimit.NewFromConfig(c.RateLimit)
	if err != nil {
		return nil, err
	}
	client := fetch.NewClient(c.Download.DownloadTimeout, userAgent, limiter, retry.FromConfig(c.Retry, log), log)
	for k, v := range c.Download.Headers {
		client.SetHeader(k, v)
	}
	return client, nil
}

func newDownloadManager(c *config.Config, client downloader.Fetcher, log logger.Logger) *downloader.Manager {
	return downloader.NewManager(client, c.Download.ConcurrentDownloads, log)
}

// resolveUserAgent picks the configured agent, or asks a throwaway
// headless browser for its own when probing is enabled.
func resolveUserAgent(ctx context.Context, c *config.Config, pacer pacing.Policy, log logger.Logger) string {
	if ua := pacer.UserAgent(); ua != "" {
		return ua
	}
	if !c.Browser.ProbeAgent {
		return ""
	}
	ua, err := browser.ProbeUserAgent(ctx, c.Browser.ExecPath)
	if err != nil {
		log.WithError(err).Warn("User agent probe failed, using browser default")
		return ""
	}
	log.DebugWithFields("Probed user agent", map[string]interface{}{"user_agent": ua})
	return ua
}

func chromeOptions(c *config.Config, headless bool, userAgent string) browser.ChromeOptions {
	return browser.ChromeOptions{
		Headless:     headless,
		UserAgent:    userAgent,
		WindowWidth:  c.Browser.WindowWidth,
		WindowHeight: c.Browser.WindowHeight,
		ExecPath:     c.Browser.ExecPath,
	}
}
