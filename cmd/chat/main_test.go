package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultURLPrefersInterviewerURL(t *testing.T) {
	t.Setenv("INTERVIEWER_API_URL", "http://a:8000")
	t.Setenv("NEXT_PUBLIC_API_URL", "http://b:8000")
	if got := defaultURL(); got != "http://a:8000" {
		t.Errorf("Expected INTERVIEWER_API_URL, got %q", got)
	}

	t.Setenv("INTERVIEWER_API_URL", "")
	if got := defaultURL(); got != "http://b:8000" {
		t.Errorf("Expected NEXT_PUBLIC_API_URL fallback, got %q", got)
	}
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.log")
	logger, closeLog, err := newLogger(path)
	if err != nil {
		t.Fatalf("newLogger failed: %v", err)
	}
	logger.Info("hello", "k", "v")
	if err := closeLog(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(data) == 0 {
		t.Error("Expected log output in file")
	}
}
