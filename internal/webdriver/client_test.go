package webdriver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/Iron-Ham/wdpool/internal/errors"
	"github.com/Iron-Ham/wdpool/internal/testutil"
)

func TestNewClient_BaseURL(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
	}{
		{"localhost:9515", "http://localhost:9515"},
		{"http://hub:4444/wd/hub/", "http://hub:4444/wd/hub"},
		{"https://grid.example.com", "https://grid.example.com"},
	}
	for _, tt := range tests {
		if got := NewClient(tt.endpoint).BaseURL(); got != tt.want {
			t.Errorf("NewClient(%q).BaseURL() = %q, want %q", tt.endpoint, got, tt.want)
		}
	}
}

func TestClient_Status(t *testing.T) {
	fake := testutil.NewFakeDriver(t)
	fake.NotReadyFor(1)
	c := NewClient(fake.Addr())
	ctx := context.Background()

	st, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Ready {
		t.Error("first Status().Ready = true, want false")
	}

	st, err = c.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.Ready {
		t.Error("second Status().Ready = false, want true")
	}
	if st.Message != "ready" {
		t.Errorf("Message = %q, want %q", st.Message, "ready")
	}
}

func TestClient_NewSession(t *testing.T) {
	fake := testutil.NewFakeDriver(t)
	c := NewClient(fake.URL())
	ctx := context.Background()

	s, err := c.NewSession(ctx, []byte(`{"alwaysMatch":{"browserName":"chrome"}}`))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if s.ID != "session-1" {
		t.Errorf("ID = %q, want %q", s.ID, "session-1")
	}
	if got := fake.LastCapabilities(); got != `{"alwaysMatch":{"browserName":"chrome"}}` {
		t.Errorf("capabilities sent = %s", got)
	}
	if len(s.Capabilities) == 0 {
		t.Error("expected matched capabilities to be recorded")
	}
}

func TestClient_NewSessionLegacyEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":0,"sessionId":"legacy-1","value":{"browserName":"firefox"}}`))
	}))
	defer srv.Close()

	s, err := NewClient(srv.URL).NewSession(context.Background(), nil)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if s.ID != "legacy-1" {
		t.Errorf("ID = %q, want %q", s.ID, "legacy-1")
	}
}

func TestClient_NewSessionProtocolError(t *testing.T) {
	fake := testutil.NewFakeDriver(t)
	fake.FailNextSession(http.StatusInternalServerError, CodeSessionNotCreated, "Chrome version must be >= 120")
	c := NewClient(fake.Addr())

	_, err := c.NewSession(context.Background(), nil)
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ProtocolError, got %T: %v", err, err)
	}
	if perr.Code != CodeSessionNotCreated {
		t.Errorf("Code = %q, want %q", perr.Code, CodeSessionNotCreated)
	}
	if perr.Status != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", perr.Status)
	}
	if IsDriverUnhealthy(err) {
		t.Error("session not created should not mark the driver unhealthy")
	}
}

func TestSession_Commands(t *testing.T) {
	fake := testutil.NewFakeDriver(t)
	c := NewClient(fake.Addr())
	ctx := context.Background()

	s, err := c.NewSession(ctx, nil)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if err := s.Navigate(ctx, "https://example.com/"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	url, err := s.CurrentURL(ctx)
	if err != nil {
		t.Fatalf("CurrentURL: %v", err)
	}
	if url != "https://example.com/" {
		t.Errorf("CurrentURL = %q", url)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got, _ := fake.SessionURL(s.ID); got != BlankURL {
		t.Errorf("url after Reset = %q, want %q", got, BlankURL)
	}
	if fake.CookieDeletes(s.ID) != 1 {
		t.Errorf("CookieDeletes = %d, want 1", fake.CookieDeletes(s.ID))
	}

	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if fake.LiveSessions() != 0 {
		t.Errorf("LiveSessions = %d, want 0", fake.LiveSessions())
	}

	_, err = s.CurrentURL(ctx)
	if !IsDriverUnhealthy(err) {
		t.Errorf("command on deleted session: IsDriverUnhealthy = false, err = %v", err)
	}
}

func TestSession_Guarded(t *testing.T) {
	fake := testutil.NewFakeDriver(t)
	c := NewClient(fake.URL())
	ctx := context.Background()

	s, err := c.NewSession(ctx, []byte(`{"alwaysMatch":{}}`))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	var blocked bool
	g := s.Guarded(func() error {
		if blocked {
			return errors.ErrSessionReleased
		}
		return nil
	})
	if g.ID != s.ID {
		t.Errorf("guarded ID = %q, want %q", g.ID, s.ID)
	}
	if err := g.Navigate(ctx, "https://example.com/"); err != nil {
		t.Fatalf("Navigate through open guard: %v", err)
	}

	blocked = true
	if err := g.Navigate(ctx, "https://other.example/"); !errors.Is(err, errors.ErrSessionReleased) {
		t.Errorf("Navigate through closed guard = %v, want ErrSessionReleased", err)
	}
	if err := g.Reset(ctx); !errors.Is(err, errors.ErrSessionReleased) {
		t.Errorf("Reset through closed guard = %v, want ErrSessionReleased", err)
	}

	if url, _ := fake.SessionURL(s.ID); url != "https://example.com/" {
		t.Errorf("remote URL = %q, want the page navigated before the guard closed", url)
	}
	if err := s.Navigate(ctx, BlankURL); err != nil {
		t.Errorf("unguarded handle should be unaffected: %v", err)
	}
}

func TestClient_ConnectionRefusedIsUnhealthy(t *testing.T) {
	port := testutil.FreePort(t)
	c := NewClient("localhost:" + strconv.Itoa(port))

	_, err := c.Status(context.Background())
	if err == nil {
		t.Fatal("expected error against closed port")
	}
	if !IsDriverUnhealthy(err) {
		t.Errorf("IsDriverUnhealthy = false, err = %v", err)
	}
}

func TestClient_CanceledContextIsNotUnhealthy(t *testing.T) {
	fake := testutil.NewFakeDriver(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(fake.Addr()).Status(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if IsDriverUnhealthy(err) {
		t.Error("a canceled request should not mark the driver unhealthy")
	}
}

func TestRequesterComposition(t *testing.T) {
	var _ Requester = (*Client)(nil)
	var _ Requester = (*Session)(nil)
}
