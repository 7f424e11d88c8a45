package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// -----------------------------------------------------------------------------
// Severity Tests
// -----------------------------------------------------------------------------

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// Typed Error Tests
// -----------------------------------------------------------------------------

func TestSpawnError(t *testing.T) {
	cause := errors.New("executable file not found in $PATH")
	err := NewSpawnError("chromedriver", cause)

	if !errors.Is(err, ErrSpawnFailed) {
		t.Error("errors.Is(err, ErrSpawnFailed) = false, want true")
	}
	if errors.Is(err, ErrDriverStartTimeout) {
		t.Error("SpawnError should not match ErrDriverStartTimeout")
	}
	if !errors.Is(err, cause) {
		t.Error("SpawnError should unwrap to its cause")
	}
	if got := err.Error(); !strings.Contains(got, "path=chromedriver") {
		t.Errorf("Error() = %q, want it to contain path", got)
	}
	if err.IsRetryable() {
		t.Error("SpawnError should not be retryable")
	}
}

func TestDriverStartTimeoutError(t *testing.T) {
	err := NewDriverStartTimeoutError("localhost:4444", 100, errors.New("connection refused"))

	if !errors.Is(err, ErrDriverStartTimeout) {
		t.Error("errors.Is(err, ErrDriverStartTimeout) = false, want true")
	}
	if !IsRetryable(err) {
		t.Error("DriverStartTimeoutError should be retryable")
	}
	if err.Attempts != 100 {
		t.Errorf("Attempts = %d, want 100", err.Attempts)
	}
	want := "driver start timeout [endpoint=localhost:4444]: not ready after 100 attempts: connection refused"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestSessionCreationError(t *testing.T) {
	t.Run("with code and message", func(t *testing.T) {
		err := NewSessionCreationError("session not created", "Chrome failed to start").
			WithEndpoint("localhost:9515")

		want := "session creation error [endpoint=localhost:9515, code=session not created]: Chrome failed to start"
		if got := err.Error(); got != want {
			t.Errorf("Error() = %q, want %q", got, want)
		}
		if !errors.Is(err, ErrSessionCreation) {
			t.Error("errors.Is(err, ErrSessionCreation) = false, want true")
		}
	})

	t.Run("with cause only", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := NewSessionCreationError("", "").WithCause(cause)

		if got := err.Error(); got != "session creation error: connection reset" {
			t.Errorf("Error() = %q", got)
		}
		if !errors.Is(err, cause) {
			t.Error("SessionCreationError should match its cause")
		}
	})

	t.Run("errors.As through wrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("acquire: %w", NewSessionCreationError("invalid argument", "bad caps"))

		var sce *SessionCreationError
		if !errors.As(wrapped, &sce) {
			t.Fatal("errors.As failed")
		}
		if sce.Code != "invalid argument" {
			t.Errorf("Code = %q, want %q", sce.Code, "invalid argument")
		}
	})
}

func TestPoolClosedError(t *testing.T) {
	err := NewPoolClosedError("chrome")

	if !errors.Is(err, ErrPoolClosed) {
		t.Error("errors.Is(err, ErrPoolClosed) = false, want true")
	}
	if got := err.Error(); got != "pool closed [pool=chrome]" {
		t.Errorf("Error() = %q", got)
	}
	if GetSeverity(err) != SeverityInfo {
		t.Errorf("GetSeverity() = %v, want info", GetSeverity(err))
	}
	if got := NewPoolClosedError("").Error(); got != "pool closed" {
		t.Errorf("Error() = %q, want %q", got, "pool closed")
	}
}

func TestProcessTerminationError(t *testing.T) {
	err := NewProcessTerminationError(4242, "SIGKILL", errors.New("operation not permitted"))

	if !errors.Is(err, ErrProcessTermination) {
		t.Error("errors.Is(err, ErrProcessTermination) = false, want true")
	}
	if GetSeverity(err) != SeverityWarning {
		t.Errorf("GetSeverity() = %v, want warning", GetSeverity(err))
	}
	if got := err.Error(); !strings.Contains(got, "pgid=4242, signal=SIGKILL") {
		t.Errorf("Error() = %q", got)
	}
}

// -----------------------------------------------------------------------------
// Helper Tests
// -----------------------------------------------------------------------------

func TestClassificationOfPlainErrors(t *testing.T) {
	plain := errors.New("boom")

	if IsRetryable(plain) {
		t.Error("plain errors should not be retryable")
	}
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
	if GetSeverity(plain) != SeverityError {
		t.Errorf("GetSeverity(plain) = %v, want error", GetSeverity(plain))
	}
	if GetSeverity(nil) != SeverityDebug {
		t.Errorf("GetSeverity(nil) = %v, want debug", GetSeverity(nil))
	}
}
