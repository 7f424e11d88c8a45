package webdriver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Iron-Ham/wdpool/internal/errors"
	"github.com/tidwall/gjson"
)

// DefaultTimeout bounds a single request against a remote end.
const DefaultTimeout = 60 * time.Second

const userAgent = "wdpool"

// Requester issues requests against a path relative to some root: the remote
// end for a [Client], the session for a [Session]. Each call returns the
// decoded "value" member of the response envelope.
type Requester interface {
	Get(ctx context.Context, path string) (gjson.Result, error)
	Post(ctx context.Context, path string, body []byte) (gjson.Result, error)
	Delete(ctx context.Context, path string) (gjson.Result, error)
}

// requester implements Requester once; Client and Session embed it with
// different prefixes.
type requester struct {
	http    *http.Client
	baseURL string
	prefix  string
	// guard, if set, runs before every request; a non-nil error aborts it.
	guard func() error
}

func (r requester) Get(ctx context.Context, path string) (gjson.Result, error) {
	v, _, err := r.do(ctx, http.MethodGet, path, nil)
	return v, err
}

func (r requester) Post(ctx context.Context, path string, body []byte) (gjson.Result, error) {
	if body == nil {
		body = []byte("{}")
	}
	v, _, err := r.do(ctx, http.MethodPost, path, body)
	return v, err
}

func (r requester) Delete(ctx context.Context, path string) (gjson.Result, error) {
	v, _, err := r.do(ctx, http.MethodDelete, path, nil)
	return v, err
}

// do performs the request and returns the "value" member along with the
// whole decoded envelope.
func (r requester) do(ctx context.Context, method, path string, body []byte) (gjson.Result, gjson.Result, error) {
	if r.guard != nil {
		if err := r.guard(); err != nil {
			return gjson.Result{}, gjson.Result{}, err
		}
	}
	url := r.baseURL + r.prefix + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return gjson.Result{}, gjson.Result{}, fmt.Errorf("build %s %s: %w", method, url, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	resp, err := r.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return gjson.Result{}, gjson.Result{}, fmt.Errorf("%s %s: %w", method, url, ctxErr)
		}
		return gjson.Result{}, gjson.Result{}, fmt.Errorf("%w: %s %s: %w", errors.ErrDriverUnhealthy, method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, gjson.Result{}, fmt.Errorf("%w: read %s %s: %w", errors.ErrDriverUnhealthy, method, url, err)
	}

	if perr := decodeError(resp.StatusCode, data); perr != nil {
		return gjson.Result{}, gjson.Result{}, perr
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return gjson.Result{}, gjson.Result{}, nil
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, gjson.Result{}, fmt.Errorf("%s %s: invalid JSON response", method, url)
	}

	envelope := gjson.ParseBytes(data)
	return envelope.Get("value"), envelope, nil
}

// Client talks to a single remote end (a driver process or a remote hub).
type Client struct {
	requester
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.http = c
	}
}

// NewClient returns a client for endpoint, which may be "host:port" or a
// full URL such as "http://hub:4444/wd/hub".
func NewClient(endpoint string, opts ...ClientOption) *Client {
	base := strings.TrimRight(endpoint, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	c := &Client{requester: requester{
		http:    &http.Client{Timeout: DefaultTimeout},
		baseURL: base,
	}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the remote end's root URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Status is the decoded payload of GET /status.
type Status struct {
	Ready   bool
	Message string
	Raw     string
}

// Status queries GET /status.
func (c *Client) Status(ctx context.Context) (Status, error) {
	v, err := c.Get(ctx, "/status")
	if err != nil {
		return Status{}, err
	}
	return Status{
		Ready:   v.Get("ready").Bool(),
		Message: v.Get("message").String(),
		Raw:     v.Raw,
	}, nil
}

// NewSession issues POST /session. capabilities is the raw JSON object sent
// as "capabilities"; nil sends an empty object.
func (c *Client) NewSession(ctx context.Context, capabilities []byte) (*Session, error) {
	if len(capabilities) == 0 {
		capabilities = []byte("{}")
	}
	body := make([]byte, 0, len(capabilities)+20)
	body = append(body, `{"capabilities":`...)
	body = append(body, capabilities...)
	body = append(body, '}')

	value, envelope, err := c.do(ctx, http.MethodPost, "/session", body)
	if err != nil {
		return nil, err
	}

	// W3C remote ends nest the result under "value"; legacy ones put
	// sessionId at the top level.
	id := value.Get("sessionId").String()
	caps := value.Get("capabilities")
	if id == "" {
		id = envelope.Get("sessionId").String()
		if !caps.Exists() {
			caps = envelope.Get("capabilities")
		}
	}
	if id == "" {
		return nil, &ProtocolError{
			Code:    CodeSessionNotCreated,
			Message: "response carried no sessionId",
			Status:  http.StatusOK,
		}
	}

	s := c.Session(id)
	if caps.Exists() {
		s.Capabilities = []byte(caps.Raw)
	}
	return s, nil
}

// Session returns a handle for an existing session id.
func (c *Client) Session(id string) *Session {
	return &Session{
		requester: requester{
			http:    c.http,
			baseURL: c.baseURL,
			prefix:  "/session/" + id,
		},
		ID: id,
	}
}
