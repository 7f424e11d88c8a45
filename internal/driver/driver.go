package driver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Iron-Ham/wdpool/internal/errors"
	"github.com/Iron-Ham/wdpool/internal/logging"
	"github.com/Iron-Ham/wdpool/internal/process"
	"github.com/Iron-Ham/wdpool/internal/webdriver"
	"github.com/google/uuid"
)

// Readiness polling defaults.
const (
	DefaultRetries       = 100
	DefaultRetryDelay    = 10 * time.Millisecond
	DefaultMaxRetryDelay = time.Second
)

// Unbounded is the concurrency of a driver that accepts any number of
// simultaneous sessions.
const Unbounded = 0

// Options configures a Driver.
type Options struct {
	// Bridge names the vendor for logging.
	Bridge string

	// Command is the driver binary. Empty means the remote end is managed
	// elsewhere and nothing is spawned.
	Command string
	// Args builds the command line for the chosen port.
	Args func(port int) []string
	// Env is the process environment. Nil inherits the parent's.
	Env []string

	// Host defaults to "localhost".
	Host string
	// Port is the port the driver listens on. Zero allocates an ephemeral one.
	Port int
	// URL addresses an externally managed remote end and takes precedence
	// over Host and Port.
	URL string

	// Concurrency is how many sessions the driver hosts at once.
	// Unbounded (0) means no limit.
	Concurrency int
	// Reusable overrides whether the driver may keep serving sessions.
	// Nil means reusable until closed.
	Reusable *bool

	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	GracePeriod   time.Duration

	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Driver is one running browser-driver instance, optionally backed by a
// supervised process group.
type Driver struct {
	id     string
	opts   Options
	logger *logging.Logger

	mu       sync.Mutex
	port     int
	endpoint string
	group    *process.Group
	client   *webdriver.Client
	status   webdriver.Status
	closed   bool

	probe func(ctx context.Context) (webdriver.Status, error)
}

// New returns an unstarted driver.
func New(opts Options) *Driver {
	if opts.Host == "" {
		opts.Host = "localhost"
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.MaxRetryDelay <= 0 {
		opts.MaxRetryDelay = DefaultMaxRetryDelay
	}
	if opts.Concurrency < 0 {
		opts.Concurrency = Unbounded
	}

	id := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	if opts.Bridge != "" {
		logger = logger.WithBridge(opts.Bridge)
	}

	d := &Driver{
		id:     id,
		opts:   opts,
		logger: logger.WithDriver(id),
	}
	d.probe = d.statusProbe
	return d
}

// ID returns the driver's unique identifier.
func (d *Driver) ID() string {
	return d.id
}

// Port returns the port the driver listens on, allocating one if needed.
func (d *Driver) Port() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.portLocked()
}

func (d *Driver) portLocked() (int, error) {
	if d.port != 0 {
		return d.port, nil
	}
	if d.opts.Port != 0 {
		d.port = d.opts.Port
		return d.port, nil
	}
	port, err := ephemeralPort(d.opts.Host)
	if err != nil {
		return 0, err
	}
	d.port = port
	return port, nil
}

// ephemeralPort binds port 0 and returns the port the kernel chose. The port
// is released before the driver binds it, which is racy but rarely loses.
func ephemeralPort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, fmt.Errorf("allocate port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// Endpoint returns the remote end's base URL.
func (d *Driver) Endpoint() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	endpoint, _ := d.endpointLocked()
	return endpoint
}

func (d *Driver) endpointLocked() (string, error) {
	if d.endpoint != "" {
		return d.endpoint, nil
	}
	if d.opts.URL != "" {
		d.endpoint = d.opts.URL
		return d.endpoint, nil
	}
	port, err := d.portLocked()
	if err != nil {
		return "", err
	}
	d.endpoint = "http://" + net.JoinHostPort(d.opts.Host, strconv.Itoa(port))
	return d.endpoint, nil
}

// Client returns the HTTP client bound to the driver's endpoint, creating it
// on first use.
func (d *Driver) Client() *webdriver.Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clientLocked()
}

func (d *Driver) clientLocked() *webdriver.Client {
	if d.client == nil {
		endpoint, _ := d.endpointLocked()
		var opts []webdriver.ClientOption
		if d.opts.HTTPClient != nil {
			opts = append(opts, webdriver.WithHTTPClient(d.opts.HTTPClient))
		}
		d.client = webdriver.NewClient(endpoint, opts...)
	}
	return d.client
}

// Start spawns the driver binary, if any, and polls GET /status until the
// remote end reports ready. Each failed attempt sleeps attempt*RetryDelay,
// capped at MaxRetryDelay. Connection failures and ready=false are retried;
// other errors fail immediately. After retries attempts Start fails with
// *errors.DriverStartTimeoutError. ctx bounds the whole loop.
//
// On failure the spawned process group is closed and the driver is marked
// closed so it is never offered as capacity.
func (d *Driver) Start(ctx context.Context, retries int) error {
	if retries <= 0 {
		retries = DefaultRetries
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errors.ErrDriverClosed
	}
	endpoint, err := d.endpointLocked()
	if err != nil {
		d.mu.Unlock()
		return err
	}
	port := d.port
	d.mu.Unlock()

	if d.opts.Command != "" {
		var args []string
		if d.opts.Args != nil {
			args = d.opts.Args(port)
		}
		group, err := process.Spawn(d.opts.Command, args,
			process.WithEnv(d.opts.Env),
			process.WithGracePeriod(d.opts.GracePeriod),
			process.WithLogger(d.logger),
			process.WithOnExit(d.onProcessExit),
		)
		if err != nil {
			d.markClosed()
			return err
		}
		d.mu.Lock()
		d.group = group
		d.mu.Unlock()
	}

	d.logger.Debug("waiting for driver to start", "endpoint", endpoint)

	if err := d.waitReady(ctx, endpoint, retries); err != nil {
		d.logger.Warn("driver failed to start", "endpoint", endpoint, "error", err)
		_ = d.Close()
		return err
	}
	return nil
}

func (d *Driver) waitReady(ctx context.Context, endpoint string, retries int) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		st, err := d.probe(ctx)
		switch {
		case err == nil && st.Ready:
			d.mu.Lock()
			d.status = st
			d.mu.Unlock()
			d.logger.Info("driver ready", "endpoint", endpoint, "attempts", attempt)
			return nil
		case err == nil:
			lastErr = fmt.Errorf("not ready: %s", st.Message)
		case ctx.Err() != nil:
			return ctx.Err()
		case webdriver.IsDriverUnhealthy(err):
			lastErr = err
		default:
			return err
		}

		if attempt >= retries {
			return errors.NewDriverStartTimeoutError(endpoint, attempt, lastErr)
		}
		if exited, exitErr := d.processExited(); exited {
			return errors.NewSpawnError(d.opts.Command, fmt.Errorf("exited before ready: %v", exitErr))
		}

		delay := min(time.Duration(attempt)*d.opts.RetryDelay, d.opts.MaxRetryDelay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (d *Driver) statusProbe(ctx context.Context) (webdriver.Status, error) {
	return d.Client().Status(ctx)
}

func (d *Driver) processExited() (bool, error) {
	d.mu.Lock()
	group := d.group
	d.mu.Unlock()
	if group == nil {
		return false, nil
	}
	select {
	case <-group.Done():
		return true, group.ExitErr()
	default:
		return false, nil
	}
}

func (d *Driver) onProcessExit(err error) {
	d.mu.Lock()
	wasClosed := d.closed
	d.closed = true
	d.mu.Unlock()
	if !wasClosed {
		d.logger.Warn("driver process exited", "error", err)
	}
}

func (d *Driver) markClosed() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

// Status returns the payload of the last successful readiness check.
func (d *Driver) Status() webdriver.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Concurrency returns how many sessions this driver hosts at once;
// Unbounded (0) means no limit.
func (d *Driver) Concurrency() int {
	return d.opts.Concurrency
}

// Pid returns the process group ID of the spawned binary, or 0 for an
// externally managed driver.
func (d *Driver) Pid() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.group == nil {
		return 0
	}
	return d.group.Pid()
}

// Closed reports whether the driver has been closed. Once true it stays true.
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Viable reports whether the driver may accept new sessions.
func (d *Driver) Viable() bool {
	return !d.Closed()
}

// Reusable reports whether sessions on this driver may be handed out again.
func (d *Driver) Reusable() bool {
	if d.opts.Reusable != nil {
		return *d.opts.Reusable
	}
	return !d.Closed()
}

// Close marks the driver closed and terminates its process group, if any.
// It is safe to call more than once.
func (d *Driver) Close() error {
	d.mu.Lock()
	d.closed = true
	group := d.group
	d.mu.Unlock()

	if group == nil {
		return nil
	}
	return group.Close()
}

// String implements fmt.Stringer for log output.
func (d *Driver) String() string {
	return fmt.Sprintf("driver.Driver(id=%s, endpoint=%s)", d.id, d.Endpoint())
}
