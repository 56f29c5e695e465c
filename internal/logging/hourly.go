package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// hourlyWriter is an io.Writer that rotates to a new file named after
// the current hour, under dir/service/YYYY-MM-DD-HH.log.
type hourlyWriter struct {
	dir     string
	service string

	mu      sync.Mutex
	file    *os.File
	current string // hour key the open file was opened for
}

func newHourlyWriter(dir, service string) *hourlyWriter {
	return &hourlyWriter{dir: dir, service: service}
}

func (w *hourlyWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	hourKey := time.Now().Format("2006-01-02-15")
	if w.file == nil || hourKey != w.current {
		if err := w.rotate(hourKey); err != nil {
			return 0, err
		}
	}

	return w.file.Write(p)
}

func (w *hourlyWriter) rotate(hourKey string) error {
	if w.file != nil {
		_ = w.file.Close()
	}

	serviceDir := filepath.Join(w.dir, w.service)
	if err := os.MkdirAll(serviceDir, 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}

	path := filepath.Join(serviceDir, hourKey+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	w.file = f
	w.current = hourKey
	return nil
}

func (w *hourlyWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}
