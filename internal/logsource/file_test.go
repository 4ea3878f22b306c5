package logsource

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(&bytes.Buffer{})
}

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue_log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write log fixture: %v", err)
	}
	return path
}

func TestOpenReadsFullFile(t *testing.T) {
	content := "1700000000|call-1|support|NONE|ENTERQUEUE\n"
	source := NewFileSource(writeLog(t, content), 0, testLogger())

	rc, err := source.Open()
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != content {
		t.Errorf("read %q, want %q", data, content)
	}
}

func TestOpenMissingFile(t *testing.T) {
	source := NewFileSource(filepath.Join(t.TempDir(), "missing"), 0, testLogger())

	if _, err := source.Open(); err == nil {
		t.Fatal("expected error for missing log file")
	}
}

func TestBudgetExceededMidScan(t *testing.T) {
	content := strings.Repeat("x", 100)
	source := NewFileSource(writeLog(t, content), 10, testLogger())

	rc, err := source.Open()
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer rc.Close()

	_, err = io.ReadAll(rc)
	if !errors.Is(err, ErrScanBudget) {
		t.Errorf("error = %v, want ErrScanBudget", err)
	}
}

func TestBudgetExactlyFileSize(t *testing.T) {
	content := strings.Repeat("x", 64)
	source := NewFileSource(writeLog(t, content), 64, testLogger())

	rc, err := source.Open()
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("a budget matching the file size must not fail: %v", err)
	}
	if len(data) != 64 {
		t.Errorf("read %d bytes, want 64", len(data))
	}
}
