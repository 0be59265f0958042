package browser

import (
	"errors"
	"fmt"
	"strings"
)

// Selector addresses an element by tag name plus exactly one of an element
// id, a class name, its visible (link) text, or an XPath query.
type Selector struct {
	Tag   string `yaml:"tag,omitempty" json:"tag,omitempty"`
	ID    string `yaml:"id,omitempty" json:"id,omitempty"`
	Class string `yaml:"class,omitempty" json:"class,omitempty"`
	Text  string `yaml:"text,omitempty" json:"text,omitempty"`
	XPath string `yaml:"xpath,omitempty" json:"xpath,omitempty"`
}

// ByID, ByClass, ByText and ByXPath build selectors for the common cases.
func ByID(tag, id string) Selector       { return Selector{Tag: tag, ID: id} }
func ByClass(tag, class string) Selector { return Selector{Tag: tag, Class: class} }
func ByText(tag, text string) Selector   { return Selector{Tag: tag, Text: text} }
func ByXPath(tag, xpath string) Selector { return Selector{Tag: tag, XPath: xpath} }

// Validate checks that exactly one addressing mode is set.
func (s Selector) Validate() error {
	set := 0
	for _, v := range []string{s.ID, s.Class, s.Text, s.XPath} {
		if v != "" {
			set++
		}
	}
	switch {
	case set == 0:
		return errors.New("selector needs one of id, class, text or xpath")
	case set > 1:
		return fmt.Errorf("selector %s sets more than one of id, class, text or xpath", s)
	case strings.ContainsAny(s.Class, " \t"):
		return fmt.Errorf("selector class %q must be a single class name", s.Class)
	}
	return nil
}

func (s Selector) tag() string {
	if s.Tag == "" {
		return "*"
	}
	return s.Tag
}

// Expression renders the selector as an XPath expression.
func (s Selector) Expression() string {
	tag := s.tag()
	switch {
	case s.XPath != "":
		return s.XPath
	case s.ID != "":
		return fmt.Sprintf("//%s[@id=%s]", tag, xpathLiteral(s.ID))
	case s.Class != "":
		return fmt.Sprintf("//%s[contains(concat(' ', normalize-space(@class), ' '), %s)]",
			tag, xpathLiteral(" "+s.Class+" "))
	case s.Text != "":
		return fmt.Sprintf("//%s[normalize-space(.)=%s]", tag, xpathLiteral(s.Text))
	default:
		return "//" + tag
	}
}

// CSS renders the selector as a CSS selector. Text and XPath selectors have
// no CSS form.
func (s Selector) CSS() (string, bool) {
	tag := s.Tag
	if tag == "*" {
		tag = ""
	}
	switch {
	case s.XPath != "" || s.Text != "":
		return "", false
	case s.ID != "":
		return tag + "#" + s.ID, true
	case s.Class != "":
		return tag + "." + s.Class, true
	default:
		return s.tag(), true
	}
}

func (s Selector) String() string {
	switch {
	case s.ID != "":
		return s.tag() + "#" + s.ID
	case s.Class != "":
		return s.tag() + "." + s.Class
	case s.Text != "":
		return fmt.Sprintf("%s[text=%q]", s.tag(), s.Text)
	case s.XPath != "":
		return s.XPath
	default:
		return s.tag()
	}
}

// xpathLiteral quotes v for use inside an XPath expression.
func xpathLiteral(v string) string {
	if !strings.Contains(v, "'") {
		return "'" + v + "'"
	}
	if !strings.Contains(v, `"`) {
		return `"` + v + `"`
	}
	parts := strings.Split(v, "'")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = "'" + p + "'"
	}
	return "concat(" + strings.Join(quoted, `, "'", `) + ")"
}
