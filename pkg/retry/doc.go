// Package retry re-runs transient failures with backoff.
//
// Image fetches fail for reasons that go away on their own: a dropped
// connection, a 503, a 429 from a busy CDN. Do retries those and gives up
// immediately on failures that will not change, such as a 404.
//
//	cfg := retry.FromConfig(appCfg.Retry, log)
//	body, err := retry.DoWithResult(ctx, func(ctx context.Context) (io.ReadCloser, error) {
//		return open(ctx, url)
//	}, cfg)
//
// Whether an error is transient is decided by DefaultRetryIf, which defers
// to the typed errors in scrapix/pkg/errors.
package retry
