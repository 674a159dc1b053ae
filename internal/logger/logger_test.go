package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_WritesLevelFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	l, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	l.Info("camera %d opened", 0)
	l.Warning("read timeout")
	l.Error("audit append failed")
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	tests := []struct {
		file   string
		prefix string
		text   string
	}{
		{InfoFile, "INFO", "camera 0 opened"},
		{WarningFile, "WARNING", "read timeout"},
		{ErrorFile, "ERROR", "audit append failed"},
	}
	for _, tt := range tests {
		data, err := os.ReadFile(filepath.Join(dir, tt.file))
		if err != nil {
			t.Fatalf("Read %s: %v", tt.file, err)
		}
		line := string(data)
		if !strings.HasPrefix(line, tt.prefix) || !strings.Contains(line, tt.text) {
			t.Errorf("%s: unexpected content %q", tt.file, line)
		}
		if !strings.Contains(line, "logger_test.go") {
			t.Errorf("%s: caller file missing in %q", tt.file, line)
		}
	}
	if l.Dir() != dir {
		t.Errorf("Dir = %q, want %q", l.Dir(), dir)
	}
}

func TestCleanLogs(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer l.Close()

	l.Warning("something")
	if err := l.CleanLogs(WarningFile); err != nil {
		t.Fatalf("CleanLogs failed: %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, WarningFile))
	if err != nil || info.Size() != 0 {
		t.Errorf("Warning file not truncated: %v %v", info, err)
	}

	if err := l.CleanLogs("../passwd"); err == nil {
		t.Error("Expected error for unknown log file")
	}
}

func TestNew_WriterBacked(t *testing.T) {
	var info, warn, errs bytes.Buffer
	l := New(&info, &warn, &errs)

	l.Info("a")
	l.Warning("b")
	l.Error("c")

	if !strings.Contains(info.String(), "a") || !strings.Contains(warn.String(), "b") || !strings.Contains(errs.String(), "c") {
		t.Errorf("Messages routed to wrong writers: %q %q %q", info.String(), warn.String(), errs.String())
	}
	if err := l.CleanLogs(InfoFile); err != nil {
		t.Errorf("CleanLogs on writer-backed logger: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
