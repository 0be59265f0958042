// Package ui renders human-facing command output. Logs go to stderr
// through pkg/logger; everything here writes to the Printer's writer.
package ui

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Banner is printed at the top of interactive runs.
const Banner = `
  ┌─┐┌─┐┬─┐┌─┐┌─┐┬─┐ ┬
  └─┐│  ├┬┘├─┤├─┘│┌┴┬┘
  └─┘└─┘┴└─┴ ┴┴  ┴┴ └─  image search harvester
`

const (
	ansiCyan    = "\033[36m"
	ansiYellow  = "\033[33m"
	ansiRed     = "\033[31m"
	ansiGreen   = "\033[32m"
	ansiMagenta = "\033[35m"
	ansiDim     = "\033[2m"
	ansiReset   = "\033[0m"
)

// Printer writes styled lines. Colour and carriage-return redraws are
// used only when the writer is a terminal.
type Printer struct {
	w     io.Writer
	color bool
	tty   bool
	quiet bool
}

// NewPrinter creates a Printer for w.
func NewPrinter(w io.Writer, noColor, quiet bool) *Printer {
	tty := IsTerminal(w)
	return &Printer{w: w, color: tty && !noColor, tty: tty, quiet: quiet}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Width returns the terminal width, or 80 when unknown.
func (p *Printer) Width() int {
	if f, ok := p.w.(*os.File); ok && p.tty {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			return w
		}
	}
	return 80
}

func (p *Printer) paint(code, s string) string {
	if !p.color {
		return s
	}
	return code + s + ansiReset
}

func (p *Printer) Cyan(s string) string    { return p.paint(ansiCyan, s) }
func (p *Printer) Yellow(s string) string  { return p.paint(ansiYellow, s) }
func (p *Printer) Red(s string) string     { return p.paint(ansiRed, s) }
func (p *Printer) Green(s string) string   { return p.paint(ansiGreen, s) }
func (p *Printer) Magenta(s string) string { return p.paint(ansiMagenta, s) }
func (p *Printer) Dim(s string) string     { return p.paint(ansiDim, s) }

// Printf writes unconditionally; quiet mode only silences the helpers
// below.
func (p *Printer) Printf(format string, args ...interface{}) {
	fmt.Fprintf(p.w, format, args...)
}

// Logo prints the banner on interactive terminals.
func (p *Printer) Logo() {
	if p.quiet || !p.tty {
		return
	}
	fmt.Fprint(p.w, p.Cyan(Banner))
}

// Error prints an error line. It is never silenced.
func (p *Printer) Error(msg string, err error) {
	if err != nil {
		msg += ": " + err.Error()
	}
	fmt.Fprintln(p.w, p.Red("✗ "+msg))
}

func (p *Printer) Success(msg string) {
	if !p.quiet {
		fmt.Fprintln(p.w, p.Green("✓ "+msg))
	}
}

func (p *Printer) Warning(msg string) {
	if !p.quiet {
		fmt.Fprintln(p.w, p.Yellow("! "+msg))
	}
}

// Info prints a label/value pair.
func (p *Printer) Info(label, value string) {
	if !p.quiet {
		fmt.Fprintf(p.w, "%s: %s\n", p.Cyan(label), p.Yellow(value))
	}
}

func (p *Printer) Highlight(msg string) {
	if !p.quiet {
		fmt.Fprintln(p.w, p.Magenta(msg))
	}
}
