package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Iron-Ham/wdpool/internal/bridge"
	"github.com/spf13/cobra"
)

var bridgesCmd = &cobra.Command{
	Use:   "bridges",
	Short: "List the supported bridges and their installed drivers",
	Long: `List every bridge wdpool knows about with the driver version it reports.

A bridge whose driver cannot be found or fails to report a version is shown
as unavailable. The remote bridge is available when remote.url points at a
reachable remote end.`,
	Args: cobra.NoArgs,
	RunE: runBridges,
}

var bridgesTimeout time.Duration

func init() {
	bridgesCmd.Flags().DurationVar(&bridgesTimeout, "timeout", 5*time.Second, "how long to wait for each driver to report its version")
	rootCmd.AddCommand(bridgesCmd)
}

type bridgeInfo struct {
	Name        string
	Version     string
	Concurrency int
	Err         error
}

func runBridges(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	r := e.registry()
	var infos []bridgeInfo
	for _, name := range r.Names() {
		b, err := e.newBridge(name)
		if err != nil {
			infos = append(infos, bridgeInfo{Name: name, Err: err})
			continue
		}
		infos = append(infos, probeBridge(cmd.Context(), b, bridgesTimeout))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderBridges(detectTerminal(out), infos))
	return nil
}

func probeBridge(ctx context.Context, b bridge.Bridge, timeout time.Duration) bridgeInfo {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	version, err := b.Version(ctx)
	return bridgeInfo{
		Name:        b.Name(),
		Version:     version,
		Concurrency: b.Concurrency(),
		Err:         err,
	}
}

func renderBridges(t terminal, infos []bridgeInfo) string {
	// Name, concurrency and status columns plus borders take about 40 columns.
	versionWidth := max(t.width-40, 20)

	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		concurrency := "unbounded"
		if info.Concurrency > 0 {
			concurrency = strconv.Itoa(info.Concurrency)
		}
		status := t.status(true, "available")
		version := info.Version
		if info.Err != nil {
			status = t.status(false, "unavailable")
			version = t.label(info.Err.Error())
		}
		rows = append(rows, []string{info.Name, truncate(version, versionWidth), concurrency, status})
	}
	return t.table([]string{"BRIDGE", "VERSION", "SESSIONS/DRIVER", "STATUS"}, rows)
}
