// Package testing holds helpers and fakes shared by the spotlist test suites.
package testing

import (
	"errors"
	"io"
	"os"
	"testing"
)

var (
	errWriteFailed = errors.New("write failed")
	errWriteLimit  = errors.New("write limit exceeded")
)

// FWriter rejects every write, for exercising output error paths.
type FWriter struct{}

func (*FWriter) Write([]byte) (int, error) { return 0, errWriteFailed }

// LimitedWriter forwards to target until maxWrites writes have gone through.
type LimitedWriter struct {
	target    io.Writer
	maxWrites int
	count     int
}

// NewLimitedWriter returns a writer that has already seen written writes.
func NewLimitedWriter(maxWrites, written int, target io.Writer) *LimitedWriter {
	return &LimitedWriter{target: target, maxWrites: maxWrites, count: written}
}

func (w *LimitedWriter) Write(p []byte) (int, error) {
	if w.count >= w.maxWrites {
		return 0, errWriteLimit
	}
	w.count++
	return w.target.Write(p)
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if info, err := os.Stat(path); err != nil {
		t.Errorf("expected file %s: %v", path, err)
	} else if info.IsDir() {
		t.Errorf("expected %s to be a file, found a directory", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

func MustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}
