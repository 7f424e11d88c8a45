package bridge

import (
	"context"
	"fmt"

	"github.com/Iron-Ham/wdpool/internal/driver"
	"github.com/Iron-Ham/wdpool/internal/logging"
	"github.com/Iron-Ham/wdpool/internal/webdriver"
	"github.com/tidwall/sjson"
)

// remote is a remote end managed elsewhere, such as a Selenium grid. No
// process is spawned; drivers only wrap the URL.
type remote struct {
	cfg         *config
	concurrency int
	browser     string
}

// Remote returns a bridge for an externally managed remote end at the URL
// set with WithURL. browser is the browserName to request; empty requests
// whatever the remote end offers.
func Remote(browser string, opts ...Option) Bridge {
	cfg := newConfig("", opts)
	return &remote{
		cfg:         cfg,
		concurrency: cfg.concurrencyOr(driver.Unbounded),
		browser:     browser,
	}
}

func (b *remote) Name() string {
	return "remote"
}

// Version reports the remote end's status message.
func (b *remote) Version(ctx context.Context) (string, error) {
	if b.cfg.url == "" {
		return "", fmt.Errorf("remote bridge: no URL configured")
	}
	st, err := webdriver.NewClient(b.cfg.url).Status(ctx)
	if err != nil {
		return "", err
	}
	if st.Message == "" {
		return "ready", nil
	}
	return st.Message, nil
}

func (b *remote) Concurrency() int {
	return b.concurrency
}

func (b *remote) Capabilities(bool) []byte {
	if b.browser == "" {
		return []byte(`{"alwaysMatch":{}}`)
	}
	caps, _ := sjson.SetBytes([]byte(`{}`), "alwaysMatch.browserName", b.browser)
	return caps
}

func (b *remote) NewDriver(logger *logging.Logger) *driver.Driver {
	return driver.New(driver.Options{
		Bridge:        "remote",
		URL:           b.cfg.url,
		Concurrency:   b.concurrency,
		RetryDelay:    b.cfg.retryDelay,
		MaxRetryDelay: b.cfg.maxRetryDelay,
		Logger:        logger,
	})
}
