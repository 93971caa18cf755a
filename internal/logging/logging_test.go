package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRoutesByLevel(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logFile := filepath.Join(t.TempDir(), "najdeno.log")

	logger, cleanup, err := New(Options{Level: "info", File: logFile, Stdout: &stdout, Stderr: &stderr})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Debug("hidden")
	logger.Info("item reported")
	logger.Warn("candidate cap reached")
	logger.Error("classifier failed")
	cleanup()

	if strings.Contains(stdout.String(), "hidden") {
		t.Error("debug entry should be filtered at info level")
	}
	if !strings.Contains(stdout.String(), "item reported") || !strings.Contains(stdout.String(), "candidate cap reached") {
		t.Errorf("expected info and warn on stdout, got %q", stdout.String())
	}
	if strings.Contains(stdout.String(), "classifier failed") {
		t.Error("error entry should not be on stdout")
	}
	if !strings.Contains(stderr.String(), "classifier failed") {
		t.Errorf("expected error on stderr, got %q", stderr.String())
	}

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	for _, msg := range []string{"item reported", "candidate cap reached", "classifier failed"} {
		if !strings.Contains(string(content), msg) {
			t.Errorf("expected %q in log file", msg)
		}
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, _, err := New(Options{Level: "chatty"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
