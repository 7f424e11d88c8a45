// Package testutil provides testing utilities for wdpool tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strconv"
	"sync"
	"testing"

	"github.com/tidwall/gjson"
)

// FakeDriver is an in-process WebDriver remote end backed by httptest. It
// implements just enough of the protocol for pool and driver tests and
// records what it was asked to do.
type FakeDriver struct {
	server *httptest.Server

	mu            sync.Mutex
	nextID        int
	sessions      map[string]*fakeSession
	created       int
	deleted       int
	statusCalls   int
	notReady      int
	sessionErrors []protocolError
	lastCaps      string
}

type fakeSession struct {
	url           string
	cookieDeletes int
}

type protocolError struct {
	status  int
	code    string
	message string
}

// NewFakeDriver starts a fake remote end that is shut down when the test
// completes.
func NewFakeDriver(t *testing.T) *FakeDriver {
	t.Helper()

	f := &FakeDriver{sessions: make(map[string]*fakeSession)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", f.handleStatus)
	mux.HandleFunc("POST /session", f.handleNewSession)
	mux.HandleFunc("DELETE /session/{id}", f.handleDeleteSession)
	mux.HandleFunc("POST /session/{id}/url", f.handleNavigate)
	mux.HandleFunc("GET /session/{id}/url", f.handleCurrentURL)
	mux.HandleFunc("DELETE /session/{id}/cookie", f.handleDeleteCookies)

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

// Addr returns host:port of the fake remote end.
func (f *FakeDriver) Addr() string {
	return f.server.Listener.Addr().String()
}

// Port returns the TCP port the fake remote end listens on.
func (f *FakeDriver) Port() int {
	return f.server.Listener.Addr().(*net.TCPAddr).Port
}

// URL returns the base URL of the fake remote end.
func (f *FakeDriver) URL() string {
	return f.server.URL
}

// Close shuts the server down so subsequent requests fail to connect.
func (f *FakeDriver) Close() {
	f.server.Close()
}

// NotReadyFor makes the next n status requests report ready=false.
func (f *FakeDriver) NotReadyFor(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notReady = n
}

// FailNextSession makes the next session request fail with the given W3C
// error code and HTTP status.
func (f *FakeDriver) FailNextSession(status int, code, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionErrors = append(f.sessionErrors, protocolError{status: status, code: code, message: message})
}

// ExpireSession forgets id so later commands against it fail with
// "invalid session id".
func (f *FakeDriver) ExpireSession(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
}

// SessionsCreated returns how many sessions were created.
func (f *FakeDriver) SessionsCreated() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

// SessionsDeleted returns how many sessions were deleted by the client.
func (f *FakeDriver) SessionsDeleted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleted
}

// LiveSessions returns how many sessions currently exist.
func (f *FakeDriver) LiveSessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

// StatusCalls returns how many times GET /status was served.
func (f *FakeDriver) StatusCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

// LastCapabilities returns the raw capabilities of the last session request.
func (f *FakeDriver) LastCapabilities() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCaps
}

// SessionURL returns the current URL of session id and whether it exists.
func (f *FakeDriver) SessionURL(id string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return "", false
	}
	return s.url, true
}

// CookieDeletes returns how many times cookies were cleared on session id.
func (f *FakeDriver) CookieDeletes(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		return s.cookieDeletes
	}
	return 0
}

func (f *FakeDriver) handleStatus(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	f.statusCalls++
	ready := f.notReady <= 0
	if !ready {
		f.notReady--
	}
	f.mu.Unlock()

	writeValue(w, http.StatusOK, map[string]any{
		"ready":   ready,
		"message": map[bool]string{true: "ready", false: "starting"}[ready],
	})
}

func (f *FakeDriver) handleNewSession(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.lastCaps = gjson.GetBytes(body, "capabilities").Raw
	if len(f.sessionErrors) > 0 {
		perr := f.sessionErrors[0]
		f.sessionErrors = f.sessionErrors[1:]
		f.mu.Unlock()
		writeError(w, perr.status, perr.code, perr.message)
		return
	}
	f.nextID++
	id := "session-" + strconv.Itoa(f.nextID)
	f.sessions[id] = &fakeSession{url: "about:blank"}
	f.created++
	caps := f.lastCaps
	f.mu.Unlock()

	if caps == "" {
		caps = "{}"
	}
	writeValue(w, http.StatusOK, map[string]any{
		"sessionId":    id,
		"capabilities": json.RawMessage(caps),
	})
}

func (f *FakeDriver) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if _, ok := f.lookup(w, r); !ok {
		return
	}
	f.mu.Lock()
	delete(f.sessions, r.PathValue("id"))
	f.deleted++
	f.mu.Unlock()
	writeValue(w, http.StatusOK, nil)
}

func (f *FakeDriver) handleNavigate(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s, ok := f.lookup(w, r)
	if !ok {
		return
	}
	f.mu.Lock()
	s.url = gjson.GetBytes(body, "url").String()
	f.mu.Unlock()
	writeValue(w, http.StatusOK, nil)
}

func (f *FakeDriver) handleCurrentURL(w http.ResponseWriter, r *http.Request) {
	s, ok := f.lookup(w, r)
	if !ok {
		return
	}
	f.mu.Lock()
	url := s.url
	f.mu.Unlock()
	writeValue(w, http.StatusOK, url)
}

func (f *FakeDriver) handleDeleteCookies(w http.ResponseWriter, r *http.Request) {
	s, ok := f.lookup(w, r)
	if !ok {
		return
	}
	f.mu.Lock()
	s.cookieDeletes++
	f.mu.Unlock()
	writeValue(w, http.StatusOK, nil)
}

func (f *FakeDriver) lookup(w http.ResponseWriter, r *http.Request) (*fakeSession, bool) {
	id := r.PathValue("id")
	f.mu.Lock()
	s, ok := f.sessions[id]
	f.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "invalid session id", fmt.Sprintf("no session %q", id))
	}
	return s, ok
}

func writeValue(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"value": value})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeValue(w, status, map[string]any{
		"error":      code,
		"message":    message,
		"stacktrace": "",
	})
}

// FreePort returns a TCP port on localhost that nothing is listening on.
func FreePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	if err := l.Close(); err != nil {
		t.Fatalf("failed to release port: %v", err)
	}
	return port
}

// SkipIfNoBinary skips the test if name is not installed.
func SkipIfNoBinary(t *testing.T, name string) {
	t.Helper()

	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not found in PATH, skipping test", name)
	}
}
