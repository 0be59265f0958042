package session

import (
	"errors"
	"fmt"
	"strings"

	"scrapix/pkg/crawler"
	"scrapix/pkg/metadata"
	"scrapix/pkg/storage"
	"scrapix/pkg/validator"
)

// Params is the immutable input of one run.
type Params struct {
	Query            string
	Limit            int
	Skip             int
	ExcludedKeywords []string
	MinResolution    *validator.Resolution
	MaxResolution    *validator.Resolution
	Headless         bool
	Mode             storage.Mode
}

// Validate reports every problem with p at once.
func (p Params) Validate() error {
	var problems []error
	if strings.TrimSpace(p.Query) == "" {
		problems = append(problems, errors.New("query must not be empty"))
	}
	if p.Limit <= 0 {
		problems = append(problems, fmt.Errorf("limit must be positive, got %d", p.Limit))
	}
	for _, k := range p.ExcludedKeywords {
		if strings.TrimSpace(k) == "" {
			problems = append(problems, errors.New("excluded keyword must not be blank"))
			break
		}
	}
	if p.Skip < 0 {
		problems = append(problems, fmt.Errorf("skip must not be negative, got %d", p.Skip))
	}
	if lo, hi := p.MinResolution, p.MaxResolution; lo != nil && hi != nil {
		if lo.Width > hi.Width || lo.Height > hi.Height {
			problems = append(problems, fmt.Errorf("minimum resolution %s exceeds maximum %s", lo, hi))
		}
	}
	return errors.Join(problems...)
}

func (p Params) request() crawler.Request {
	return crawler.Request{
		Query: p.Query,
		Limit: p.Limit,
		Skip:  p.Skip,
		Rules: validator.Rules{
			ExcludedKeywords: p.ExcludedKeywords,
			MinResolution:    p.MinResolution,
			MaxResolution:    p.MaxResolution,
		},
	}
}

func (p Params) record() metadata.Params {
	mp := metadata.Params{
		Limit:            p.Limit,
		Skip:             p.Skip,
		ExcludedKeywords: p.ExcludedKeywords,
		Headless:         p.Headless,
		Mode:             p.Mode.String(),
	}
	if p.MinResolution != nil {
		mp.MinResolution = p.MinResolution.String()
	}
	if p.MaxResolution != nil {
		mp.MaxResolution = p.MaxResolution.String()
	}
	return mp
}
