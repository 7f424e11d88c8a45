package pool

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/Iron-Ham/wdpool/internal/driver"
	"github.com/Iron-Ham/wdpool/internal/errors"
	"github.com/Iron-Ham/wdpool/internal/webdriver"
)

// Session is a pooled WebDriver session. Close returns it to the pool
// rather than deleting it on the remote end. Once released or retired,
// every request through the handle fails with errors.ErrSessionReleased;
// the remote session may already belong to another borrower.
type Session struct {
	*webdriver.Session

	desc  *webdriver.Session // descriptor owned by the cache
	cache *SessionCache
	owner *BridgeController
	done  atomic.Bool
}

func newSession(ws *webdriver.Session, cache *SessionCache, owner *BridgeController) *Session {
	s := &Session{desc: ws, cache: cache, owner: owner}
	s.Session = ws.Guarded(s.checkHeld)
	return s
}

func (s *Session) checkHeld() error {
	if s.done.Load() {
		return fmt.Errorf("session %s: %w", s.desc.ID, errors.ErrSessionReleased)
	}
	return nil
}

// Driver returns the driver hosting the session.
func (s *Session) Driver() *driver.Driver {
	return s.cache.Driver()
}

// Release returns the session to the pool. Later calls are no-ops.
func (s *Session) Release(ctx context.Context) error {
	return s.owner.Release(ctx, s)
}

// Close releases the session.
func (s *Session) Close() error {
	return s.Release(context.Background())
}

// Retire tells the pool the session's driver is unusable.
func (s *Session) Retire() error {
	return s.owner.Retire(s)
}

// Released reports whether the session has been released or retired.
func (s *Session) Released() bool {
	return s.done.Load()
}

func (s *Session) markDone() bool {
	return s.done.CompareAndSwap(false, true)
}
