// Package logging mirrors the standard logger to a file so recent server
// output can be served over the diagnostics API.
package logging

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// maxLineLength bounds a single scanned log line.
const maxLineLength = 1024 * 1024

var (
	mu      sync.Mutex
	logFile *os.File
	logPath string
)

// ErrDisabled is returned when file logging was never initialized.
var ErrDisabled = errors.New("file logging disabled")

// Init sends log output to both stdout and the file at path.
// An empty path leaves logging on stdout only.
func Init(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", path, err)
	}

	mu.Lock()
	if logFile != nil {
		logFile.Close()
	}
	logFile, logPath = f, path
	mu.Unlock()

	log.SetOutput(io.MultiWriter(os.Stdout, f))
	log.Printf("Logging to file: %s", path)
	return nil
}

// Close restores stdout logging and closes the file.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	log.SetOutput(os.Stdout)
	err := logFile.Close()
	logFile, logPath = nil, ""
	return err
}

// ReadTail returns the last n lines of the log file, oldest first.
func ReadTail(n int) ([]string, error) {
	mu.Lock()
	defer mu.Unlock()
	if logPath == "" {
		return nil, ErrDisabled
	}
	if n <= 0 {
		return []string{}, nil
	}

	f, err := os.Open(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	// Ring of the last n lines.
	ring := make([]string, n)
	total := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	for scanner.Scan() {
		ring[total%n] = scanner.Text()
		total++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan log file: %w", err)
	}

	if total <= n {
		return ring[:total], nil
	}
	start := total % n
	return append(ring[start:], ring[:start]...), nil
}

// Clear truncates the log file.
func Clear() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return ErrDisabled
	}
	if err := logFile.Truncate(0); err != nil {
		return fmt.Errorf("truncate log file: %w", err)
	}
	if _, err := logFile.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek log file: %w", err)
	}
	return nil
}

// Join renders lines the way the logs endpoint returns them.
func Join(lines []string) string {
	return strings.Join(lines, "\n")
}
