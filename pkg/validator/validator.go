// Package validator decides whether a harvested candidate is worth keeping.
package validator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"scrapix/pkg/logger"
	"scrapix/pkg/result"
)

// Verdict is the outcome of a check. The zero value accepts.
type Verdict int

const (
	Accept Verdict = iota
	RejectMissingField
	RejectDuplicate
	RejectKeyword
	RejectResolution
)

func (v Verdict) String() string {
	switch v {
	case Accept:
		return "accepted"
	case RejectMissingField:
		return "missing_field"
	case RejectDuplicate:
		return "duplicate"
	case RejectKeyword:
		return "excluded_keyword"
	case RejectResolution:
		return "resolution"
	default:
		return "verdict(" + strconv.Itoa(int(v)) + ")"
	}
}

// Resolution is an image size in pixels.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// ParseResolution parses "WxH" (also "W,H").
func ParseResolution(s string) (Resolution, error) {
	sep := strings.IndexAny(s, "xX,")
	if sep < 0 {
		return Resolution{}, fmt.Errorf("resolution %q: want WIDTHxHEIGHT", s)
	}
	w, err := strconv.Atoi(strings.TrimSpace(s[:sep]))
	if err != nil {
		return Resolution{}, fmt.Errorf("resolution %q: bad width: %w", s, err)
	}
	h, err := strconv.Atoi(strings.TrimSpace(s[sep+1:]))
	if err != nil {
		return Resolution{}, fmt.Errorf("resolution %q: bad height: %w", s, err)
	}
	if w < 0 || h < 0 {
		return Resolution{}, fmt.Errorf("resolution %q: dimensions must not be negative", s)
	}
	return Resolution{Width: w, Height: h}, nil
}

// Rules are the per-session acceptance criteria. Nil bounds impose nothing.
type Rules struct {
	ExcludedKeywords []string
	MinResolution    *Resolution
	MaxResolution    *Resolution
}

func (r Rules) hasBounds() bool {
	return r.MinResolution != nil || r.MaxResolution != nil
}

// DimensionProber reads an image's pixel size from its URL.
type DimensionProber interface {
	Dimensions(ctx context.Context, url string) (width, height int, err error)
}

// Validator applies the acceptance rules in a fixed order and stops at the
// first rejection.
type Validator struct {
	prober DimensionProber
	logger logger.Logger
}

// New creates a Validator. prober may be nil when no session sets
// resolution bounds; bounds are then treated as satisfied.
func New(prober DimensionProber, log logger.Logger) *Validator {
	return &Validator{prober: prober, logger: log}
}

// Accept reports whether candidate passes every rule.
func (v *Validator) Accept(ctx context.Context, candidate result.Result, known result.Lookup, rules Rules) bool {
	return v.Check(ctx, candidate, known, rules) == Accept
}

// Check returns the first rule candidate fails, or Accept.
func (v *Validator) Check(ctx context.Context, candidate result.Result, known result.Lookup, rules Rules) Verdict {
	title, ok := candidate.Title()
	if !ok || !candidate.Valid() {
		return RejectMissingField
	}

	if known != nil && known.Contains(candidate) {
		return RejectDuplicate
	}

	if containsKeyword(title, candidate.URL(), rules.ExcludedKeywords) {
		return RejectKeyword
	}

	if rules.hasBounds() && !v.withinBounds(ctx, candidate.URL(), rules) {
		return RejectResolution
	}

	return Accept
}

// containsKeyword ignores empty keywords; session parameters reject them
// before a harvest starts.
func containsKeyword(title, url string, keywords []string) bool {
	lt, lu := strings.ToLower(title), strings.ToLower(url)
	for _, k := range keywords {
		k = strings.ToLower(k)
		if k == "" {
			continue
		}
		if strings.Contains(lt, k) || strings.Contains(lu, k) {
			return true
		}
	}
	return false
}

// withinBounds passes images whose size cannot be determined; a broken
// image surfaces at download time instead.
func (v *Validator) withinBounds(ctx context.Context, url string, rules Rules) bool {
	if v.prober == nil {
		return true
	}

	w, h, err := v.prober.Dimensions(ctx, url)
	if err != nil {
		v.logger.WithError(err).DebugWithFields("Image size unknown, skipping resolution check", map[string]interface{}{
			"url": url,
		})
		return true
	}

	if lo := rules.MinResolution; lo != nil && (w < lo.Width || h < lo.Height) {
		return false
	}
	if hi := rules.MaxResolution; hi != nil && (w > hi.Width || h > hi.Height) {
		return false
	}
	return true
}
