// Package driver represents a single running WebDriver remote end.
//
// A [Driver] either spawns a vendor binary (chromedriver, geckodriver,
// safaridriver) under a [process.Group] or points at a remote end managed
// elsewhere. [Driver.Start] polls GET /status with linear backoff until the
// remote end is ready. [Driver.Concurrency] tells a pool how many sessions
// the driver can host at once.
package driver
