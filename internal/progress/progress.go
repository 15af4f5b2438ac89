// Package progress shows byte progress while sim-state files are copied into
// job folders. Those files are large enough that an interactive user would
// otherwise see the submission hang.
package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// Reporter receives progress updates for one copy at a time.
type Reporter interface {
	Start(total int64, description string)
	Update(current int64)
	Finish()
}

// Discard ignores every update.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Start(int64, string) {}
func (discard) Update(int64)        {}
func (discard) Finish()             {}

// Bar draws a byte progress bar for each copy.
type Bar struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

// NewBar creates a bar writing to out.
func NewBar(out io.Writer) *Bar {
	return &Bar{out: out}
}

// ForTerminal returns a Bar on stderr when stderr is a terminal, Discard
// otherwise. Batch logs then carry no bar redraws.
func ForTerminal() Reporter {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return NewBar(os.Stderr)
	}
	return Discard
}

// Start begins a new bar of total bytes.
func (b *Bar) Start(total int64, description string) {
	b.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(b.out),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(200),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(b.out) }),
	)
}

// Update moves the bar to current bytes.
func (b *Bar) Update(current int64) {
	if b.bar != nil {
		_ = b.bar.Set64(current)
	}
}

// Finish completes and drops the bar.
func (b *Bar) Finish() {
	if b.bar != nil {
		_ = b.bar.Finish()
		b.bar = nil
	}
}

// CountingReader reports the cumulative bytes read through it.
type CountingReader struct {
	r        io.Reader
	reporter Reporter
	n        int64
}

// NewCountingReader wraps r.
func NewCountingReader(r io.Reader, reporter Reporter) *CountingReader {
	return &CountingReader{r: r, reporter: reporter}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	c.reporter.Update(c.n)
	return n, err
}
