// Package fetch retrieves harvested images over HTTP.
package fetch

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	errs "scrapix/pkg/errors"
	"scrapix/pkg/logger"
	"scrapix/pkg/ratelimit"
	"scrapix/pkg/retry"
)

// DefaultUserAgent is sent when the caller has no browser agent to reuse.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36"

// Client performs rate-limited, retried GET requests for image URLs.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	limiter    ratelimit.Limiter
	retry      *retry.Config
	logger     logger.Logger
}

// NewClient creates a Client. limiter and retryCfg may be nil.
func NewClient(timeout time.Duration, userAgent string, limiter ratelimit.Limiter, retryCfg *retry.Config, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if retryCfg == nil {
		retryCfg = &retry.Config{MaxAttempts: 1}
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		headers: map[string]string{
			"User-Agent":      userAgent,
			"Accept":          "image/avif,image/webp,image/apng,image/*,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
			"Sec-Fetch-Dest":  "image",
			"Sec-Fetch-Mode":  "no-cors",
			"Sec-Fetch-Site":  "cross-site",
		},
		limiter: limiter,
		retry:   retryCfg,
		logger:  log,
	}
}

// SetHeader overrides one request header.
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// Open returns the body of a successful GET. The caller closes it.
func (c *Client) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	resp, err := retry.DoWithResult(ctx, func(ctx context.Context) (*http.Response, error) {
		return c.get(ctx, url)
	}, c.retry)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Dimensions reads only as much of the image as its header needs.
func (c *Client) Dimensions(ctx context.Context, url string) (int, int, error) {
	body, err := c.Open(ctx, url)
	if err != nil {
		return 0, 0, err
	}
	defer body.Close()

	cfg, format, err := image.DecodeConfig(body)
	if err != nil {
		return 0, 0, errs.Wrap(errs.ErrorTypeExtraction, "unrecognised image format", err)
	}
	c.logger.DebugWithFields("Probed image size", map[string]interface{}{
		"url":    url,
		"format": format,
		"width":  cfg.Width,
		"height": cfg.Height,
	})
	return cfg.Width, cfg.Height, nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeInput, "invalid image URL", err)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.WithError(err).DebugWithFields("HTTP request failed", map[string]interface{}{
			"url":      url,
			"duration": time.Since(start),
		})
		return nil, errs.Wrap(errs.ErrorTypeNetwork, "request failed", err)
	}
	logger.LogHTTP(c.logger, req.Method, url, resp.StatusCode, time.Since(start))

	if err := checkResponseStatus(resp); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// checkResponseStatus maps a response status onto the typed error that
// decides whether it is retried.
func checkResponseStatus(resp *http.Response) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}

	var t errs.ErrorType
	switch {
	case code == http.StatusNotFound || code == http.StatusGone:
		t = errs.ErrorTypeNotFound
	case code == http.StatusTooManyRequests:
		t = errs.ErrorTypeRateLimit
	case errs.IsRetryableStatusCode(code):
		t = errs.ErrorTypeServerError
	default:
		t = errs.ErrorTypeHTTP
	}
	return &errs.Error{
		Type:    t,
		Message: fmt.Sprintf("unexpected status %d", code),
		Code:    code,
	}
}
