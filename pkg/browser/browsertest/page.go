// Package browsertest provides an in-memory browser.Page for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"scrapix/pkg/browser"
)

// ProxyURL is the kind of low-resolution source a preview image shows
// before the full image has loaded.
const ProxyURL = "https://encrypted-tbn0.gstatic.com/images?q=tbn:preview"

// Layout names the selectors the fake page answers to.
type Layout struct {
	Thumbnail  browser.Selector
	Images     []browser.Selector
	Challenge  browser.Selector
	Consent    []browser.Selector
	ImagesLink browser.Selector
}

// Thumb describes one result tile and the image it reveals when clicked.
type Thumb struct {
	Title   string
	NoTitle bool
	URL     string
	// Marker is the index into Layout.Images of the element showing the
	// enlarged image.
	Marker int
	// ProxyOnly makes the panel show only a proxied preview.
	ProxyOnly bool
	ClickErr  error
}

// Page is a scripted browser.Page. Thumbnails are revealed in batches of
// Batch (all at once when zero); scrolling the last visible one into view
// loads the next batch.
type Page struct {
	mu sync.Mutex

	layout  Layout
	thumbs  []Thumb
	visible int
	open    int

	Batch             int
	Title             string
	Source            string
	ChallengePresent  bool
	ConsentIndex      int
	ImagesLinkPresent bool
	NavigateErr       error
	ScreenshotErr     error
	SourceErr         error
	FindErr           error
	// BeforeClick runs ahead of every thumbnail click.
	BeforeClick func(index int)

	Navigations    []string
	Clicked        []int
	Scrolled       []int
	ConsentClicked bool
	ImagesClicked  bool
	Screenshots    []string
}

// NewPage returns a page in the images-ready state: no challenge, no
// consent banner, images link present.
func NewPage(layout Layout, thumbs ...Thumb) *Page {
	return &Page{
		layout:            layout,
		thumbs:            thumbs,
		open:              -1,
		ConsentIndex:      -1,
		ImagesLinkPresent: true,
		Title:             "results",
		Source:            "<html><body></body></html>",
	}
}

// Visible reports how many thumbnails are currently loaded.
func (p *Page) Visible() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visibleLocked()
}

func (p *Page) visibleLocked() int {
	if p.visible == 0 {
		p.visible = len(p.thumbs)
		if p.Batch > 0 && p.Batch < len(p.thumbs) {
			p.visible = p.Batch
		}
	}
	return p.visible
}

func (p *Page) Navigate(ctx context.Context, url string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	p.Navigations = append(p.Navigations, url)
	return p.NavigateErr
}

func (p *Page) Find(ctx context.Context, sel browser.Selector, opts browser.FindOptions) ([]browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	els, err := p.match(sel)
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if len(els) == 0 {
		if opts.Required {
			return nil, fmt.Errorf("%w: %s", browser.ErrNotFound, sel)
		}
		return nil, nil
	}
	if !opts.All {
		els = els[:1]
	}
	return els, nil
}

func (p *Page) match(sel browser.Selector) ([]browser.Element, error) {
	switch {
	case sel == p.layout.Thumbnail:
		if p.FindErr != nil {
			return nil, p.FindErr
		}
		n := p.visibleLocked()
		els := make([]browser.Element, n)
		for i := 0; i < n; i++ {
			els[i] = &thumbElement{page: p, index: i}
		}
		return els, nil
	case sel == p.layout.Challenge:
		if p.ChallengePresent {
			return []browser.Element{&staticElement{name: "challenge"}}, nil
		}
	case sel == p.layout.ImagesLink:
		if p.ImagesLinkPresent {
			return []browser.Element{&staticElement{name: "images-link", onClick: p.locked(func() { p.ImagesClicked = true })}}, nil
		}
	}

	for i, c := range p.layout.Consent {
		if sel == c && i == p.ConsentIndex {
			return []browser.Element{&staticElement{name: "consent", onClick: p.locked(func() { p.ConsentClicked = true })}}, nil
		}
	}

	for i, img := range p.layout.Images {
		if sel != img || p.open < 0 {
			continue
		}
		th := p.thumbs[p.open]
		var els []browser.Element
		if th.Marker == i || th.ProxyOnly {
			els = append(els, &imageElement{src: ProxyURL, alt: th.Title, noAlt: th.NoTitle})
		}
		if th.Marker == i && !th.ProxyOnly {
			els = append(els, &imageElement{src: th.URL, alt: th.Title, noAlt: th.NoTitle})
		}
		return els, nil
	}
	return nil, nil
}

func (p *Page) locked(f func()) func() {
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		f()
	}
}

func (p *Page) Evaluate(ctx context.Context, script string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s, ok := out.(*string)
	if !ok || script != "document.title" {
		return errors.New("browsertest: unsupported script")
	}
	p.mu.Lock()
	*s = p.Title
	p.mu.Unlock()
	return nil
}

func (p *Page) Screenshot(_ context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ScreenshotErr != nil {
		return p.ScreenshotErr
	}
	p.Screenshots = append(p.Screenshots, path)
	return os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n"), 0644)
}

func (p *Page) PageSource(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Source, p.SourceErr
}

type thumbElement struct {
	page  *Page
	index int
}

func (e *thumbElement) Click(ctx context.Context) error {
	if hook := e.page.BeforeClick; hook != nil {
		hook(e.index)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p := e.page
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.thumbs[e.index].ClickErr; err != nil {
		return err
	}
	p.open = e.index
	p.Clicked = append(p.Clicked, e.index)
	return nil
}

func (e *thumbElement) Attribute(context.Context, string) (string, bool, error) {
	return "", false, nil
}

func (e *thumbElement) ScrollIntoView(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := e.page
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Scrolled = append(p.Scrolled, e.index)
	if e.index == p.visibleLocked()-1 && p.visible < len(p.thumbs) {
		p.visible = min(p.visible+max(p.Batch, 1), len(p.thumbs))
	}
	return nil
}

func (e *thumbElement) String() string {
	return fmt.Sprintf("thumbnail[%d]", e.index)
}

type imageElement struct {
	src, alt string
	noAlt    bool
}

func (e *imageElement) Click(context.Context) error          { return nil }
func (e *imageElement) ScrollIntoView(context.Context) error { return nil }
func (e *imageElement) String() string                       { return "img[" + e.src + "]" }

func (e *imageElement) Attribute(_ context.Context, name string) (string, bool, error) {
	switch name {
	case "src":
		return e.src, true, nil
	case "alt":
		return e.alt, !e.noAlt, nil
	}
	return "", false, nil
}

type staticElement struct {
	name    string
	onClick func()
}

func (e *staticElement) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.onClick != nil {
		e.onClick()
	}
	return nil
}

func (e *staticElement) Attribute(context.Context, string) (string, bool, error) {
	return "", false, nil
}

func (e *staticElement) ScrollIntoView(context.Context) error { return nil }
func (e *staticElement) String() string                       { return e.name }
