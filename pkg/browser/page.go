package browser

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Find when a required element is missing.
var ErrNotFound = errors.New("element not found")

// Page is the only surface through which the crawl talks to a browser tab.
// Implementations are not safe for concurrent use; one tab, one caller.
type Page interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	Find(ctx context.Context, sel Selector, opts FindOptions) ([]Element, error)
	Evaluate(ctx context.Context, script string, out any) error
	Screenshot(ctx context.Context, path string) error
	PageSource(ctx context.Context) (string, error)
}

// Element is a handle on a node of the current document.
type Element interface {
	Click(ctx context.Context) error
	// Attribute returns the attribute value and whether it is present.
	Attribute(ctx context.Context, name string) (string, bool, error)
	ScrollIntoView(ctx context.Context) error
	String() string
}

// FindOptions controls a lookup.
//
// With All set, every current match is returned and an empty result is not
// an error; a positive Timeout waits for at least one match first. Without
// All, Find waits up to Timeout for the first match and returns it alone; a
// miss is ErrNotFound when Required and an empty result otherwise.
type FindOptions struct {
	Timeout  time.Duration
	Required bool
	All      bool
}

// FindFirst returns the first element matching sel within timeout, or nil
// when there is none.
func FindFirst(ctx context.Context, p Page, sel Selector, timeout time.Duration) (Element, error) {
	els, err := p.Find(ctx, sel, FindOptions{Timeout: timeout})
	if err != nil || len(els) == 0 {
		return nil, err
	}
	return els[0], nil
}
