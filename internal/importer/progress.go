package importer

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// ProgressReporter reports the progress of the page being processed. The
// grand total is unknown until the source is exhausted so it's scaled per page.
type ProgressReporter interface {
	StartPage(page, items int)
	Increment()
	FinishPage()
}

// NoopProgress doesn't report anything.
const NoopProgress = noopProgress(0)

type noopProgress int

func (noopProgress) StartPage(int, int) {}
func (noopProgress) Increment()         {}
func (noopProgress) FinishPage()        {}

// TerminalProgress draws a progress bar of the current page on a writer.
type TerminalProgress struct {
	w     io.Writer
	page  int
	total int
	done  int
	mu    sync.Mutex
}

// NewTerminalProgress returns a new terminal progress reporter.
func NewTerminalProgress(w io.Writer) *TerminalProgress {
	return &TerminalProgress{w: w}
}

func (p *TerminalProgress) StartPage(page, items int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.page = page
	p.total = items
	p.done = 0
	p.print()
}

func (p *TerminalProgress) Increment() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	p.print()
}

func (p *TerminalProgress) FinishPage() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w)
}

func (p *TerminalProgress) print() {
	const barWidth = 40
	if p.total <= 0 {
		fmt.Fprintf(p.w, "\r  page %d: empty", p.page)
		return
	}

	pct := float64(p.done) / float64(p.total) * 100
	filled := int(pct / 100 * barWidth)
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", barWidth-filled)
	fmt.Fprintf(p.w, "\r  page %d [%s] %3.0f%% %d/%d", p.page, bar, pct, p.done, p.total)
}
