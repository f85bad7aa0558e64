package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/kirillkom/prn-reconciler/internal/core/domain"
)

// progressPrinter redraws one status line per snapshot while a run is in
// flight. It stays silent when the writer is not a terminal.
type progressPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
	last    string
	drawn   bool
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, enabled: isTerminal(w)}
}

func (p *progressPrinter) Publish(_ context.Context, snap domain.Snapshot) error {
	if !p.enabled {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if !snap.Progress.Running {
		if p.drawn {
			fmt.Fprintln(p.w)
			p.drawn = false
		}
		return nil
	}
	line := progressLine(snap)
	if line == p.last {
		return nil
	}
	p.last = line
	p.drawn = true
	_, err := fmt.Fprintf(p.w, "\r\033[K%s", line)
	return err
}

func progressLine(snap domain.Snapshot) string {
	progress := snap.Progress
	if progress.Current == 0 {
		return snap.Message
	}
	return fmt.Sprintf("[%d/%d] %s", progress.Current, progress.Total, snap.Message)
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
