// Package webdriver is a minimal W3C WebDriver client.
//
// It covers what a session pool needs from a remote end: readiness via
// GET /status, session creation and deletion, and the navigation and cookie
// commands used to reset a session between borrowers. Responses are decoded
// with gjson directly from the {"value": ...} envelope, and error envelopes
// surface as [*ProtocolError] carrying the W3C error code.
//
// Transport failures and "invalid session id" errors match
// errors.ErrDriverUnhealthy; see [IsDriverUnhealthy].
package webdriver
