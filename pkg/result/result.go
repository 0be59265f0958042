// Package result defines the harvested image reference and the set used to
// deduplicate it.
package result

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
)

// Result is an image title and source URL. Values are immutable and
// comparable: two Results are equal when both fields match exactly,
// including whether a title is present at all.
type Result struct {
	title    string
	hasTitle bool
	url      string
}

// New returns a titled Result.
func New(title, url string) Result {
	return Result{title: title, hasTitle: true, url: url}
}

// Untitled returns a Result with no title.
func Untitled(url string) Result {
	return Result{url: url}
}

// Title returns the title and whether one is present.
func (r Result) Title() (string, bool) {
	return r.title, r.hasTitle
}

// URL returns the image source URL.
func (r Result) URL() string {
	return r.url
}

// Valid reports whether the Result carries a source URL.
func (r Result) Valid() bool {
	return r.url != ""
}

func (r Result) String() string {
	if !r.hasTitle {
		return "<untitled> " + r.url
	}
	return r.title + " " + r.url
}

type record struct {
	Title *string `json:"title"`
	URL   string  `json:"url"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	rec := record{URL: r.url}
	if r.hasTitle {
		rec.Title = &r.title
	}
	return json.Marshal(rec)
}

func (r *Result) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return errors.New("result record is null")
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	if rec.Title == nil {
		*r = Untitled(rec.URL)
	} else {
		*r = New(*rec.Title, rec.URL)
	}
	return nil
}

// Lookup answers membership queries.
type Lookup interface {
	Contains(r Result) bool
}

// Set is an unordered collection of distinct Results.
type Set map[Result]struct{}

// NewSet returns a set holding rs.
func NewSet(rs ...Result) Set {
	s := make(Set, len(rs))
	for _, r := range rs {
		s.Add(r)
	}
	return s
}

// Add inserts r and reports whether it was new.
func (s Set) Add(r Result) bool {
	if _, ok := s[r]; ok {
		return false
	}
	s[r] = struct{}{}
	return true
}

func (s Set) Contains(r Result) bool {
	_, ok := s[r]
	return ok
}

func (s Set) Len() int {
	return len(s)
}

// Merge adds every member of other to s.
func (s Set) Merge(other Set) {
	for r := range other {
		s[r] = struct{}{}
	}
}

// Union returns a new set with the members of s and other.
func (s Set) Union(other Set) Set {
	u := make(Set, len(s)+len(other))
	u.Merge(s)
	u.Merge(other)
	return u
}

// Sorted returns the members ordered by URL, then title.
func (s Set) Sorted() []Result {
	out := make([]Result, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.url != b.url {
			return a.url < b.url
		}
		if a.hasTitle != b.hasTitle {
			return !a.hasTitle
		}
		return a.title < b.title
	})
	return out
}

type either struct{ a, b Lookup }

func (e either) Contains(r Result) bool {
	return e.a.Contains(r) || e.b.Contains(r)
}

// Either returns a Lookup reporting membership in a or b without copying
// either of them.
func Either(a, b Lookup) Lookup {
	return either{a: a, b: b}
}
