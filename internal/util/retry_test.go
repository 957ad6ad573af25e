package util

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"EAGAIN", syscall.EAGAIN, true},
		{"EBUSY", syscall.EBUSY, true},
		{"ETIMEDOUT", syscall.ETIMEDOUT, true},
		{"EIO", syscall.EIO, true},
		{"ENOENT (not retryable)", syscall.ENOENT, false},
		{"EPERM (not retryable)", syscall.EPERM, false},
		{"timeout in message", errors.New("connection timeout"), true},
		{"broken pipe in message", errors.New("write: broken pipe"), true},
		{"generic error", errors.New("invalid argument"), false},
		{"PathError with ETIMEDOUT", &os.PathError{Op: "remove", Path: "/x", Err: syscall.ETIMEDOUT}, true},
		{"PathError with ENOENT", &os.PathError{Op: "remove", Path: "/x", Err: syscall.ENOENT}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.expected {
				t.Errorf("IsRetryableError(%v) = %v, expected %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestRetryWithBackoff_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	cfg := &RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond}

	result, err := RetryWithBackoff(cfg, func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", syscall.ETIMEDOUT
		}
		return "ok", nil
	}, "test operation")

	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result != "ok" {
		t.Errorf("Expected result 'ok', got: %s", result)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got: %d", attempts)
	}
}

func TestRetryWithBackoff_FailureAfterMaxRetries(t *testing.T) {
	attempts := 0
	cfg := &RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond}

	_, err := RetryWithBackoff(cfg, func() (int, error) {
		attempts++
		return 0, syscall.ETIMEDOUT
	}, "test operation")

	if err == nil {
		t.Fatal("Expected error after max retries, got nil")
	}
	if !errors.Is(err, syscall.ETIMEDOUT) {
		t.Errorf("Expected wrapped ETIMEDOUT, got: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got: %d", attempts)
	}
}

func TestRetryWithBackoff_NonRetryableError(t *testing.T) {
	attempts := 0
	_, err := RetryWithBackoff(DefaultRetryConfig(), func() (int, error) {
		attempts++
		return 0, syscall.ENOENT
	}, "test operation")

	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt for non-retryable error, got: %d", attempts)
	}
}

func TestRetryableRemove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	if err := RetryableRemove(path, nil); err != nil {
		t.Fatalf("RetryableRemove failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected file to be removed, stat err = %v", err)
	}

	// Already gone counts as removed
	if err := RetryableRemove(path, nil); err != nil {
		t.Errorf("Expected nil error for missing file, got: %v", err)
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	if cfg.MaxAttempts != 3 {
		t.Errorf("Expected MaxAttempts=3, got: %d", cfg.MaxAttempts)
	}
	if cfg.InitialWait != 100*time.Millisecond {
		t.Errorf("Expected InitialWait=100ms, got: %v", cfg.InitialWait)
	}
	if cfg.MaxWait != 5*time.Second {
		t.Errorf("Expected MaxWait=5s, got: %v", cfg.MaxWait)
	}
}
