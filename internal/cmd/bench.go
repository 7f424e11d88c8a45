package cmd

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/Iron-Ham/wdpool/internal/config"
	"github.com/Iron-Ham/wdpool/internal/pool"
	"github.com/Iron-Ham/wdpool/internal/webdriver"
	cpool "github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
)

var benchCmd = &cobra.Command{
	Use:   "bench [bridge...]",
	Short: "Run sessions through a pool and report timings",
	Long: `Borrow sessions from a pool per bridge, navigate each one, and report
how long borrowing took and how many drivers the pool needed.

Without arguments the configured bridge is used. With --watch, edits to
pool.maximum in the config file are applied to the running pools.`,
	RunE: runBench,
}

var (
	benchSessions    int
	benchConcurrency int
	benchURL         string
	benchWatch       bool
)

func init() {
	benchCmd.Flags().IntVarP(&benchSessions, "sessions", "n", 10, "sessions to borrow per bridge")
	benchCmd.Flags().IntVarP(&benchConcurrency, "concurrency", "j", 4, "sessions borrowed at the same time")
	benchCmd.Flags().StringVar(&benchURL, "url", webdriver.BlankURL, "page each session navigates to")
	benchCmd.Flags().BoolVar(&benchWatch, "watch", false, "apply config file changes to pool.maximum while running")
	benchCmd.Flags().Int("max", 0, "maximum driver processes per bridge (overrides pool.maximum)")
	benchCmd.Flags().Int("min", 0, "drivers started before the run (overrides pool.minimum)")
	benchCmd.Flags().String("reset", "", "session reset policy: none or blank (overrides pool.reset_policy)")
	rootCmd.AddCommand(benchCmd)
}

type benchResult struct {
	Bridge  string
	Runs    int
	Failed  int
	Drivers int
	Elapsed time.Duration
	Mean    time.Duration
	P50     time.Duration
	Slowest time.Duration
	Err     error
}

func runBench(cmd *cobra.Command, args []string) error {
	if benchSessions <= 0 {
		return fmt.Errorf("--sessions must be positive")
	}
	if benchConcurrency <= 0 {
		return fmt.Errorf("--concurrency must be positive")
	}

	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	names := args
	if len(names) == 0 {
		b, err := e.bridge(ctx)
		if err != nil {
			return err
		}
		names = []string{b.Name()}
	}

	pools := pool.NewCache(e.newPool)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := pools.Close(closeCtx); err != nil {
			e.logger.Warn("closing pools reported errors", "error", err)
		}
	}()

	if benchWatch {
		config.Watch(e.v, e.logger, func(cfg *config.Config) {
			e.setPoolMaximum(cfg.Pool.Maximum)
			for _, name := range names {
				// Bridges the run has not reached yet pick the value up
				// when their pool is built.
				p, ok := pools.Get(name)
				if !ok {
					continue
				}
				p.SetMaximum(cfg.Pool.Maximum)
				e.logger.Info("pool maximum updated", "bridge", name, "maximum", cfg.Pool.Maximum)
			}
		})
	}

	results := make([]benchResult, 0, len(names))
	for _, name := range names {
		p, err := pools.For(ctx, name)
		if err != nil {
			results = append(results, benchResult{Bridge: name, Err: err})
			continue
		}
		results = append(results, benchPool(ctx, p, benchSessions, benchConcurrency, benchURL))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderBench(detectTerminal(out), results))

	for _, r := range results {
		if r.Err != nil {
			return fmt.Errorf("bench %s: %w", r.Bridge, r.Err)
		}
	}
	return nil
}

// benchPool borrows n sessions from p, at most concurrency at a time, and
// navigates each to url.
func benchPool(ctx context.Context, p *pool.Pool, n, concurrency int, url string) benchResult {
	var (
		mu        sync.Mutex
		durations = make([]time.Duration, 0, n)
		failed    int
		firstErr  error
	)

	start := time.Now()
	wp := cpool.New().WithMaxGoroutines(concurrency)
	for range n {
		wp.Go(func() {
			began := time.Now()
			err := p.WithSession(ctx, func(s *pool.Session) error {
				return s.Navigate(ctx, url)
			})
			took := time.Since(began)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			durations = append(durations, took)
		})
	}
	wp.Wait()

	res := benchResult{
		Bridge:  p.Name(),
		Runs:    n,
		Failed:  failed,
		Drivers: p.Stats().Outstanding,
		Elapsed: time.Since(start),
	}
	if len(durations) == 0 {
		res.Err = firstErr
		return res
	}

	slices.Sort(durations)
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	res.Mean = total / time.Duration(len(durations))
	res.P50 = durations[len(durations)/2]
	res.Slowest = durations[len(durations)-1]
	return res
}

func renderBench(t terminal, results []benchResult) string {
	ms := func(d time.Duration) string {
		return d.Round(time.Millisecond).String()
	}

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		if r.Err != nil && r.Runs == 0 {
			rows = append(rows, []string{r.Bridge, "-", "-", "-", "-", "-", "-", t.status(false, truncate(r.Err.Error(), 60))})
			continue
		}
		status := t.status(r.Failed == 0, fmt.Sprintf("%d/%d ok", r.Runs-r.Failed, r.Runs))
		rows = append(rows, []string{
			r.Bridge,
			strconv.Itoa(r.Runs),
			strconv.Itoa(r.Drivers),
			ms(r.Elapsed),
			ms(r.Mean),
			ms(r.P50),
			ms(r.Slowest),
			status,
		})
	}
	return t.table([]string{"BRIDGE", "SESSIONS", "DRIVERS", "TOTAL", "MEAN", "P50", "SLOWEST", "RESULT"}, rows)
}
