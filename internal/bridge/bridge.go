package bridge

import (
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/Iron-Ham/wdpool/internal/driver"
	"github.com/Iron-Ham/wdpool/internal/logging"
	"github.com/tidwall/sjson"
)

// Bridge describes one vendor's driver: how to spawn it, how many sessions
// one instance hosts, and which capabilities a new session must request.
type Bridge interface {
	// Name is the registry key, e.g. "chrome".
	Name() string
	// Version returns the driver's self-reported version.
	Version(ctx context.Context) (string, error)
	// Concurrency is how many sessions one driver hosts; 0 is unbounded.
	Concurrency() int
	// Capabilities returns the JSON capabilities object for POST /session.
	Capabilities(headless bool) []byte
	// NewDriver returns an unstarted driver for this vendor.
	NewDriver(logger *logging.Logger) *driver.Driver
}

// Supported reports whether b's driver is installed and answers.
func Supported(ctx context.Context, b Bridge) bool {
	v, err := b.Version(ctx)
	return err == nil && v != ""
}

// local is a driver binary spawned on this machine.
type local struct {
	name        string
	cfg         *config
	concurrency int
	args        func(port int) []string
	browser     string
	optionsKey  string
	headlessArg string
}

func (b *local) Name() string {
	return b.name
}

// Path returns the driver executable.
func (b *local) Path() string {
	return b.cfg.path
}

func (b *local) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, b.cfg.path, "--version").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (b *local) Concurrency() int {
	return b.concurrency
}

func (b *local) Capabilities(headless bool) []byte {
	caps, _ := sjson.SetBytes([]byte(`{}`), "alwaysMatch.browserName", b.browser)
	if b.optionsKey != "" {
		args := []string{}
		if headless && b.headlessArg != "" {
			args = append(args, b.headlessArg)
		}
		caps, _ = sjson.SetBytes(caps, "alwaysMatch."+escapePath(b.optionsKey)+".args", args)
	}
	if b.name == "chrome" {
		caps, _ = sjson.SetBytes(caps, "alwaysMatch.webSocketUrl", true)
	}
	return caps
}

func (b *local) NewDriver(logger *logging.Logger) *driver.Driver {
	return driver.New(driver.Options{
		Bridge:        b.name,
		Command:       b.cfg.path,
		Args:          b.args,
		Env:           b.cfg.env,
		Concurrency:   b.concurrency,
		GracePeriod:   b.cfg.gracePeriod,
		RetryDelay:    b.cfg.retryDelay,
		MaxRetryDelay: b.cfg.maxRetryDelay,
		Logger:        logger,
	})
}

// Chrome returns a bridge for chromedriver. One chromedriver hosts any
// number of sessions.
func Chrome(opts ...Option) Bridge {
	cfg := newConfig("chromedriver", opts)
	return &local{
		name:        "chrome",
		cfg:         cfg,
		concurrency: cfg.concurrencyOr(driver.Unbounded),
		args: func(port int) []string {
			return []string{"--port=" + strconv.Itoa(port)}
		},
		browser:     "chrome",
		optionsKey:  "goog:chromeOptions",
		headlessArg: "--headless",
	}
}

// Firefox returns a bridge for geckodriver, which serves one session at a
// time.
func Firefox(opts ...Option) Bridge {
	cfg := newConfig("geckodriver", opts)
	return &local{
		name:        "firefox",
		cfg:         cfg,
		concurrency: cfg.concurrencyOr(1),
		args: func(port int) []string {
			return []string{"--port", strconv.Itoa(port)}
		},
		browser:     "firefox",
		optionsKey:  "moz:firefoxOptions",
		headlessArg: "-headless",
	}
}

// Safari returns a bridge for safaridriver. Safari has no headless mode and
// automates one window at a time.
func Safari(opts ...Option) Bridge {
	cfg := newConfig("safaridriver", opts)
	return &local{
		name:        "safari",
		cfg:         cfg,
		concurrency: cfg.concurrencyOr(1),
		args: func(port int) []string {
			return []string{"--port=" + strconv.Itoa(port)}
		},
		browser: "safari",
	}
}

// escapePath escapes sjson path metacharacters in a single key.
func escapePath(key string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return r.Replace(key)
}

// MergeCapabilities applies overrides to base. Keys are sjson paths such as
// "alwaysMatch.acceptInsecureCerts"; a nil value deletes the path.
func MergeCapabilities(base []byte, overrides map[string]any) ([]byte, error) {
	if len(base) == 0 {
		base = []byte(`{}`)
	}
	out := append([]byte(nil), base...)
	for _, key := range sortedKeys(overrides) {
		var err error
		if v := overrides[key]; v == nil {
			out, err = sjson.DeleteBytes(out, key)
		} else {
			out, err = sjson.SetBytes(out, key, v)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
