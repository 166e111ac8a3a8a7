// Package cli holds terminal output helpers for the backoffice command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/coopfund/backoffice/internal/app/services/dbsync"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

// Printer writes either human-readable lines or a single JSON document.
type Printer struct {
	out   io.Writer
	JSON  bool
	color bool
}

// NewPrinter writes to out. Colour is enabled only for terminals.
func NewPrinter(out io.Writer, jsonOutput bool) *Printer {
	if out == nil {
		out = os.Stdout
	}
	return &Printer{out: out, JSON: jsonOutput, color: isTerminal(out)}
}

func (p *Printer) mark(symbol, color, message string) {
	if p.color {
		fmt.Fprintf(p.out, "%s%s%s %s\n", color, symbol, colorReset, message)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", symbol, message)
}

func (p *Printer) Success(message string) { p.mark("✓", colorGreen, message) }
func (p *Printer) Error(message string)   { p.mark("✗", colorRed, message) }
func (p *Printer) Warning(message string) { p.mark("⚠", colorYellow, message) }
func (p *Printer) Info(message string)    { p.mark("ℹ", colorBlue, message) }

// Result prints v as JSON in JSON mode and calls human otherwise.
func (p *Printer) Result(v interface{}, human func(w io.Writer)) error {
	if p.JSON {
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	human(p.out)
	return nil
}

// SyncReport renders per-table counters of one sync run.
func (p *Printer) SyncReport(result dbsync.Result, took time.Duration) error {
	return p.Result(result, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TABLE\tDIRECTION\tINSERTED\tUPDATED\tSKIPPED\tDEFERRED\tCONFLICTS")
		for _, t := range result.Tables {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\n", t.Table, t.Direction, t.Inserted, t.Updated, t.Skipped, t.Deferred, t.Conflicts)
		}
		tw.Flush()
		for _, l := range result.Logs {
			fmt.Fprintf(w, "log %s: %d copied, %d deleted, %d skipped\n", l.Direction, l.Copied, l.Deleted, l.Skipped)
		}
		p.Success(fmt.Sprintf("sync finished in %s", FormatDuration(took)))
	})
}

// Spinner animates a single status line until stopped.
type Spinner struct {
	frames  []string
	current int
	prefix  string
	out     io.Writer
	color   bool

	mu     sync.Mutex
	active bool
	done   chan struct{}
}

// NewSpinner returns a stopped spinner. It draws nothing when out is not a
// terminal.
func NewSpinner(out io.Writer, prefix string) *Spinner {
	return &Spinner{
		frames: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		prefix: prefix,
		out:    out,
		color:  isTerminal(out),
	}
}

func (s *Spinner) Start() {
	s.mu.Lock()
	if s.active || !s.color {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.mu.Lock()
				if !s.active {
					s.mu.Unlock()
					return
				}
				fmt.Fprintf(s.out, "\r%s%s%s %s", colorCyan, s.frames[s.current], colorReset, s.prefix)
				s.current = (s.current + 1) % len(s.frames)
				s.mu.Unlock()
			case <-done:
				return
			}
		}
	}()
}

// Stop clears the line. Safe to call more than once.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.active = false
	close(s.done)
	fmt.Fprint(s.out, "\r"+strings.Repeat(" ", len(s.prefix)+4)+"\r")
}

// FormatDuration renders d at a resolution suited to job timings.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
