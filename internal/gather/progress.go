package gather

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// progressTracker manages the .completed file so reruns skip days that were
// already archived.
type progressTracker struct {
	mu        sync.Mutex
	completed map[string]struct{}
	writer    *bufio.Writer
	file      *os.File
	dir       string
}

// newProgressTracker creates a tracker rooted at dir and loads any existing
// .completed entries.
func newProgressTracker(dir string) (*progressTracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating progress dir: %w", err)
	}

	pt := &progressTracker{
		completed: make(map[string]struct{}),
		dir:       dir,
	}

	path := filepath.Join(dir, ".completed")
	data, err := os.ReadFile(path)
	if err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			day := strings.TrimSpace(line)
			if day != "" {
				pt.completed[day] = struct{}{}
			}
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening .completed: %w", err)
	}
	pt.file = f
	pt.writer = bufio.NewWriter(f)
	return pt, nil
}

// IsCompleted returns true if day was already archived.
func (p *progressTracker) IsCompleted(day string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.completed[day]
	return ok
}

// MarkCompleted records day and flushes it to disk.
func (p *progressTracker) MarkCompleted(day string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.completed[day]; ok {
		return nil
	}
	p.completed[day] = struct{}{}
	if _, err := p.writer.WriteString(day + "\n"); err != nil {
		return fmt.Errorf("writing to .completed: %w", err)
	}
	return p.writer.Flush()
}

// Count returns the number of completed days.
func (p *progressTracker) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.completed)
}

// Close flushes and closes the .completed file.
func (p *progressTracker) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer != nil {
		p.writer.Flush()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}
