package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/Iron-Ham/wdpool/internal/webdriver"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [endpoint]",
	Short: "Show the readiness of a WebDriver remote end",
	Long: `Query GET /status on a WebDriver remote end.

With an endpoint argument (host:port or URL) the running remote end is
queried directly. Without one, a driver for the configured bridge is
started, queried once it reports ready, and shut down again.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

var statusTimeout time.Duration

func init() {
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 30*time.Second, "how long to wait for the driver")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
	defer cancel()

	out := cmd.OutOrStdout()
	t := detectTerminal(out)

	if len(args) == 1 {
		client := webdriver.NewClient(args[0])
		st, err := client.Status(ctx)
		if err != nil {
			return fmt.Errorf("query %s: %w", client.BaseURL(), err)
		}
		printStatus(out, t, [][2]string{
			{"endpoint", client.BaseURL()},
			{"ready", t.status(st.Ready, strconv.FormatBool(st.Ready))},
			{"message", st.Message},
		})
		return nil
	}

	b, err := e.bridge(ctx)
	if err != nil {
		return err
	}
	d := b.NewDriver(e.logger.WithBridge(b.Name()))
	defer func() {
		if err := d.Close(); err != nil {
			e.logger.Warn("driver shutdown reported errors", "error", err)
		}
	}()

	start := time.Now()
	if err := d.Start(ctx, e.cfg.Driver.StartRetries); err != nil {
		return fmt.Errorf("start %s driver: %w", b.Name(), err)
	}
	st := d.Status()

	rows := [][2]string{
		{"bridge", b.Name()},
		{"endpoint", d.Endpoint()},
	}
	if pid := d.Pid(); pid > 0 {
		rows = append(rows, [2]string{"pid", strconv.Itoa(pid)})
	}
	rows = append(rows,
		[2]string{"ready", t.status(st.Ready, strconv.FormatBool(st.Ready))},
		[2]string{"message", st.Message},
		[2]string{"startup", time.Since(start).Round(time.Millisecond).String()},
	)
	printStatus(out, t, rows)
	return nil
}

func printStatus(w io.Writer, t terminal, rows [][2]string) {
	for _, row := range rows {
		fmt.Fprintf(w, "%s %s\n", t.label(fmt.Sprintf("%-9s", row[0]+":")), row[1])
	}
}
