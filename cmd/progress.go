// progress.go - download progress line and size formatting
// Main functions: newDownloadProgress, humanSize
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/docker/go-units"
	"golang.org/x/term"

	"github.com/7blacky7/hf2onnx/huggingface"
)

var sizeUnits = []string{"B", "kB", "MB", "GB", "TB", "PB", "EB", "ZB", "YB"}

func humanSize(n int64) string {
	return units.CustomSize("%.2f%s", float64(n), 1000.0, sizeUnits)
}

// downloadProgress renders a single self-overwriting status line while
// snapshot files download. It stays silent when w is not a terminal.
type downloadProgress struct {
	mu       sync.Mutex
	w        io.Writer
	enabled  bool
	last     time.Time
	width    int
	finished bool
}

func newDownloadProgress(w io.Writer) *downloadProgress {
	p := &downloadProgress{w: w}
	if f, ok := w.(*os.File); ok {
		p.enabled = term.IsTerminal(int(f.Fd()))
	}
	return p
}

// Callback returns the function handed to the registry.
func (p *downloadProgress) Callback() huggingface.ProgressCallback {
	return p.update
}

func (p *downloadProgress) update(downloaded, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.enabled || p.finished {
		return
	}

	done := total > 0 && downloaded >= total
	if !done && time.Since(p.last) < 100*time.Millisecond {
		return
	}
	p.last = time.Now()

	line := fmt.Sprintf("downloading %s", humanSize(downloaded))
	if total > 0 {
		line = fmt.Sprintf("downloading %s / %s (%d%%)", humanSize(downloaded), humanSize(total), downloaded*100/total)
	}
	p.render(line)

	if done {
		fmt.Fprintln(p.w)
		p.finished = true
	}
}

func (p *downloadProgress) render(line string) {
	pad := ""
	if n := p.width - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	p.width = len(line)
	fmt.Fprintf(p.w, "\r%s%s", line, pad)
}

// Reset allows the next download to draw a fresh line.
func (p *downloadProgress) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.width > 0 && !p.finished {
		fmt.Fprintln(p.w)
	}
	p.finished = false
	p.width = 0
}
