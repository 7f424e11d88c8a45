package driver

import (
	"context"
	"fmt"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/Iron-Ham/wdpool/internal/errors"
	"github.com/Iron-Ham/wdpool/internal/testutil"
	"github.com/Iron-Ham/wdpool/internal/webdriver"
)

// refusedAfter returns a probe that fails with a connection-refused error k
// times before reporting ready.
func refusedAfter(k int, calls *atomic.Int32) func(context.Context) (webdriver.Status, error) {
	return func(context.Context) (webdriver.Status, error) {
		n := int(calls.Add(1))
		if n <= k {
			return webdriver.Status{}, fmt.Errorf("%w: dial: %w", errors.ErrDriverUnhealthy, syscall.ECONNREFUSED)
		}
		return webdriver.Status{Ready: true, Message: "ready"}, nil
	}
}

func fastOptions() Options {
	return Options{
		Port:          9515,
		RetryDelay:    time.Millisecond,
		MaxRetryDelay: 2 * time.Millisecond,
	}
}

func TestStart_ReadyAfterFailures(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		retries  int
		wantErr  bool
	}{
		{"ready immediately", 0, 5, false},
		{"ready before budget", 4, 5, false},
		{"failures equal budget", 5, 5, true},
		{"failures exceed budget", 9, 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			d := New(fastOptions())
			d.probe = refusedAfter(tt.failures, &calls)

			err := d.Start(context.Background(), tt.retries)

			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Start: %v", err)
				}
				if !d.Status().Ready {
					t.Error("Status().Ready = false after successful start")
				}
				if got := int(calls.Load()); got != tt.failures+1 {
					t.Errorf("probe calls = %d, want %d", got, tt.failures+1)
				}
				if !d.Viable() {
					t.Error("started driver should be viable")
				}
				return
			}

			if !errors.Is(err, errors.ErrDriverStartTimeout) {
				t.Fatalf("err = %v, want ErrDriverStartTimeout", err)
			}
			var timeoutErr *errors.DriverStartTimeoutError
			if !errors.As(err, &timeoutErr) {
				t.Fatalf("expected *DriverStartTimeoutError, got %T", err)
			}
			if timeoutErr.Attempts != tt.retries {
				t.Errorf("Attempts = %d, want %d", timeoutErr.Attempts, tt.retries)
			}
			if !errors.Is(err, syscall.ECONNREFUSED) {
				t.Error("timeout should wrap the last connection error")
			}
			if d.Viable() {
				t.Error("driver that failed to start must not be viable")
			}
		})
	}
}

func TestStart_NonTransportErrorFailsFast(t *testing.T) {
	var calls atomic.Int32
	d := New(fastOptions())
	d.probe = func(context.Context) (webdriver.Status, error) {
		calls.Add(1)
		return webdriver.Status{}, &webdriver.ProtocolError{Code: webdriver.CodeUnknownCommand, Status: 404}
	}

	err := d.Start(context.Background(), 10)
	var perr *webdriver.ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *ProtocolError", err)
	}
	if calls.Load() != 1 {
		t.Errorf("probe calls = %d, want 1", calls.Load())
	}
}

func TestStart_ContextBoundsPolling(t *testing.T) {
	var calls atomic.Int32
	opts := fastOptions()
	opts.RetryDelay = 50 * time.Millisecond
	opts.MaxRetryDelay = 50 * time.Millisecond
	d := New(opts)
	d.probe = refusedAfter(1000, &calls)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := d.Start(ctx, 1000)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("Start ignored the context deadline")
	}
}

func TestStart_AgainstFakeDriver(t *testing.T) {
	fake := testutil.NewFakeDriver(t)
	fake.NotReadyFor(2)

	d := New(Options{
		Port:       fake.Port(),
		RetryDelay: time.Millisecond,
	})
	if err := d.Start(context.Background(), 10); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if fake.StatusCalls() != 3 {
		t.Errorf("StatusCalls = %d, want 3", fake.StatusCalls())
	}
	if d.Pid() != 0 {
		t.Errorf("Pid() = %d, want 0 without a command", d.Pid())
	}
	if d.Client().BaseURL() != d.Endpoint() {
		t.Errorf("client bound to %q, endpoint %q", d.Client().BaseURL(), d.Endpoint())
	}
}

func TestStart_ConnectionRefusedTimesOut(t *testing.T) {
	d := New(Options{
		Port:          testutil.FreePort(t),
		RetryDelay:    time.Millisecond,
		MaxRetryDelay: time.Millisecond,
	})

	err := d.Start(context.Background(), 3)
	if !errors.Is(err, errors.ErrDriverStartTimeout) {
		t.Fatalf("err = %v, want ErrDriverStartTimeout", err)
	}
}

func TestStart_SpawnsAndClosesProcess(t *testing.T) {
	testutil.SkipIfNoBinary(t, "sleep")
	fake := testutil.NewFakeDriver(t)

	var gotPort int
	d := New(Options{
		Command: "sleep",
		Args: func(port int) []string {
			gotPort = port
			return []string{"30"}
		},
		Port:       fake.Port(),
		RetryDelay: time.Millisecond,
	})
	if err := d.Start(context.Background(), 10); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if gotPort != fake.Port() {
		t.Errorf("Args called with port %d, want %d", gotPort, fake.Port())
	}
	if d.Pid() <= 0 {
		t.Fatalf("Pid() = %d, want spawned process", d.Pid())
	}

	if err := d.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if !d.Closed() || d.Viable() || d.Reusable() {
		t.Error("closed driver must not be viable or reusable")
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestStart_MissingBinary(t *testing.T) {
	d := New(Options{Command: "wdpool-no-such-driver", Port: 9515})
	err := d.Start(context.Background(), 1)
	if !errors.Is(err, errors.ErrSpawnFailed) {
		t.Fatalf("err = %v, want ErrSpawnFailed", err)
	}
	if d.Viable() {
		t.Error("driver whose binary is missing must not be viable")
	}
}

func TestStart_ProcessExitMarksClosed(t *testing.T) {
	testutil.SkipIfNoBinary(t, "sh")
	fake := testutil.NewFakeDriver(t)

	d := New(Options{
		Command:    "sh",
		Args:       func(int) []string { return []string{"-c", "sleep 0.2; exit 1"} },
		Port:       fake.Port(),
		RetryDelay: time.Millisecond,
	})
	if err := d.Start(context.Background(), 10); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for d.Viable() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if d.Viable() {
		t.Error("driver should become non-viable after its process exits")
	}
}

func TestStartAfterClose(t *testing.T) {
	d := New(fastOptions())
	_ = d.Close()
	if err := d.Start(context.Background(), 1); !errors.Is(err, errors.ErrDriverClosed) {
		t.Errorf("err = %v, want ErrDriverClosed", err)
	}
}

func TestPortAllocation(t *testing.T) {
	d := New(Options{})
	port, err := d.Port()
	if err != nil {
		t.Fatalf("Port: %v", err)
	}
	if port <= 0 {
		t.Fatalf("Port() = %d", port)
	}
	again, _ := d.Port()
	if again != port {
		t.Errorf("Port() changed from %d to %d", port, again)
	}
	if want := fmt.Sprintf("http://localhost:%d", port); d.Endpoint() != want {
		t.Errorf("Endpoint() = %q, want %q", d.Endpoint(), want)
	}
}

func TestURLOverridesHostAndPort(t *testing.T) {
	d := New(Options{URL: "http://grid:4444/wd/hub", Port: 1234})
	if d.Endpoint() != "http://grid:4444/wd/hub" {
		t.Errorf("Endpoint() = %q", d.Endpoint())
	}
}

func TestReusableOverride(t *testing.T) {
	no := false
	d := New(Options{Reusable: &no})
	if d.Reusable() {
		t.Error("Reusable() = true despite override")
	}
	if !d.Viable() {
		t.Error("override should not affect viability")
	}
}

func TestConcurrency(t *testing.T) {
	if got := New(Options{}).Concurrency(); got != Unbounded {
		t.Errorf("default Concurrency() = %d, want Unbounded", got)
	}
	if got := New(Options{Concurrency: 1}).Concurrency(); got != 1 {
		t.Errorf("Concurrency() = %d, want 1", got)
	}
	if got := New(Options{Concurrency: -3}).Concurrency(); got != Unbounded {
		t.Errorf("negative Concurrency() = %d, want Unbounded", got)
	}
}
