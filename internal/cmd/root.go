package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Iron-Ham/wdpool/internal/bridge"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// appFs is the filesystem config files are read from. Tests swap in a
// memory filesystem.
var appFs = afero.NewOsFs()

var rootCmd = &cobra.Command{
	Use:   "wdpool",
	Short: "Pooled WebDriver sessions for browser automation",
	Long: `wdpool manages a bounded pool of WebDriver driver processes
(chromedriver, geckodriver, safaridriver or a remote end) and hands out
browser sessions from them, reusing drivers and sessions between borrowers.`,
	SilenceUsage: true,
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context so pools shut their drivers down before exiting.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $XDG_CONFIG_HOME/wdpool/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringP("bridge", "b", "",
		fmt.Sprintf("bridge to use: chrome, firefox, safari or remote (env %s)", bridge.EnvBridge))
}
