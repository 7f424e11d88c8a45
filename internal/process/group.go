package process

import (
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/Iron-Ham/wdpool/internal/errors"
	"github.com/Iron-Ham/wdpool/internal/logging"
)

// DefaultGracePeriod is how long Close waits for the group leader to exit
// after SIGINT before escalating to SIGKILL.
const DefaultGracePeriod = time.Second

// killWait bounds the wait for the leader to be reaped after SIGKILL.
const killWait = time.Second

// State is the lifecycle state of a process group.
type State int

const (
	StateSpawned State = iota
	StateRunning
	StateTerminating
	StateReaped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateSpawned:
		return "spawned"
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	case StateReaped:
		return "reaped"
	default:
		return "unknown"
	}
}

// Option configures Spawn.
type Option func(*options)

type options struct {
	gracePeriod time.Duration
	logger      *logging.Logger
	onExit      func(err error)
	env         []string
}

// WithGracePeriod sets how long Close waits after SIGINT before SIGKILL.
// Non-positive values fall back to DefaultGracePeriod.
func WithGracePeriod(d time.Duration) Option {
	return func(o *options) {
		o.gracePeriod = d
	}
}

// WithLogger sets the logger used for termination and unexpected-exit events.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithOnExit registers a callback invoked once after the leader exits,
// whether it was closed or died on its own. err is the leader's wait error.
func WithOnExit(fn func(err error)) Option {
	return func(o *options) {
		o.onExit = fn
	}
}

// WithEnv sets the process environment. Nil inherits the parent's.
func WithEnv(env []string) Option {
	return func(o *options) {
		o.env = env
	}
}

// Group is a spawned process running as the leader of its own process group.
// All signals are delivered to the whole group so that browsers started by a
// driver are torn down with it.
//
// Group is safe for concurrent use.
type Group struct {
	cmd    *exec.Cmd
	pgid   int
	grace  time.Duration
	logger *logging.Logger
	onExit func(error)

	mu      sync.Mutex
	state   State
	closing bool
	exitErr error

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Spawn starts name with args as the leader of a new process group.
// Standard input, output and error are connected to the null device.
// Fails with *errors.SpawnError if the executable cannot be found or exec fails.
func Spawn(name string, args []string, opts ...Option) (*Group, error) {
	cfg := &options{
		gracePeriod: DefaultGracePeriod,
		logger:      logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.gracePeriod <= 0 {
		cfg.gracePeriod = DefaultGracePeriod
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return nil, errors.NewSpawnError(name, err)
	}

	// Nil Stdin/Stdout/Stderr are wired to os.DevNull by os/exec.
	cmd := exec.Command(path, args...)
	cmd.Env = cfg.env
	cmd.SysProcAttr = groupSysProcAttr()

	g := &Group{
		cmd:    cmd,
		grace:  cfg.gracePeriod,
		logger: cfg.logger,
		onExit: cfg.onExit,
		state:  StateSpawned,
		done:   make(chan struct{}),
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.NewSpawnError(path, err)
	}

	g.pgid = cmd.Process.Pid
	g.logger = g.logger.With("pgid", g.pgid, "path", path)
	g.setState(StateRunning)
	g.logger.Debug("process group spawned", "args", args)

	go g.watch()

	return g, nil
}

// watch waits on the leader. An exit that Close did not request triggers
// Close so the rest of the group is torn down.
func (g *Group) watch() {
	err := g.cmd.Wait()

	g.mu.Lock()
	g.exitErr = err
	unexpected := !g.closing
	g.mu.Unlock()
	close(g.done)

	if unexpected {
		if err != nil {
			g.logger.Error("process exited unexpectedly", "error", err)
		} else {
			g.logger.Warn("process exited before close was requested")
		}
		_ = g.Close()
	}

	if g.onExit != nil {
		g.onExit(err)
	}
}

// Pid returns the process group ID, which equals the leader's PID.
func (g *Group) Pid() int {
	return g.pgid
}

// Done returns a channel closed when the group leader has exited.
func (g *Group) Done() <-chan struct{} {
	return g.done
}

// ExitErr returns the leader's wait error once Done is closed.
func (g *Group) ExitErr() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.exitErr
}

// State returns the current lifecycle state.
func (g *Group) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Group) setState(s State) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}

// Close terminates the group. It sends SIGINT to every member, waits up to
// the grace period for the leader to exit, then sends SIGKILL, and finally
// reaps any remaining members. It is idempotent; concurrent callers block
// until the first call finishes.
//
// A non-nil error wraps one or more *errors.ProcessTerminationError values and
// is informational: the group is treated as reaped either way.
func (g *Group) Close() error {
	g.closeOnce.Do(func() {
		g.closeErr = g.terminate()
	})
	return g.closeErr
}

func (g *Group) terminate() error {
	g.mu.Lock()
	g.closing = true
	g.state = StateTerminating
	g.mu.Unlock()

	var errs []error

	select {
	case <-g.done:
		// Leader already gone; still signal in case children linger.
		if err := signalGroup(g.pgid, sigInterrupt); err != nil && !isNoSuchProcess(err) {
			errs = append(errs, errors.NewProcessTerminationError(g.pgid, "SIGINT", err))
		}
	default:
		if err := signalGroup(g.pgid, sigInterrupt); err != nil && !isNoSuchProcess(err) {
			errs = append(errs, errors.NewProcessTerminationError(g.pgid, "SIGINT", err))
		}

		timer := time.NewTimer(g.grace)
		select {
		case <-g.done:
			timer.Stop()
		case <-timer.C:
			g.logger.Info("grace period expired, killing process group", "grace", g.grace)
			if err := signalGroup(g.pgid, sigKill); err != nil && !isNoSuchProcess(err) {
				errs = append(errs, errors.NewProcessTerminationError(g.pgid, "SIGKILL", err))
			}
			select {
			case <-g.done:
			case <-time.After(killWait):
				g.logger.Error("process group survived SIGKILL")
			}
		}
	}

	// The leader belongs to watch; reaping it here would leave cmd.Wait
	// with ECHILD instead of its exit status.
	select {
	case <-g.done:
		reapGroup(g.pgid)
	default:
	}
	g.setState(StateReaped)

	if len(errs) > 0 {
		err := errors.Join(errs...)
		g.logger.Warn("process group termination reported errors", "error", err)
		return err
	}
	g.logger.Debug("process group reaped")
	return nil
}

// String implements fmt.Stringer for log output.
func (g *Group) String() string {
	return fmt.Sprintf("process.Group(pgid=%d, state=%s)", g.pgid, g.State())
}
