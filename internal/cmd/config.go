package cmd

import (
	"fmt"

	"github.com/Iron-Ham/wdpool/internal/config"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View wdpool configuration",
	Long: `View wdpool configuration.

Without arguments, displays the effective configuration after defaults,
the config file, WDPOOL_* environment variables and flags are combined.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration as YAML",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	out := cmd.OutOrStdout()
	if used := e.v.ConfigFileUsed(); used != "" && fileExists(used) {
		fmt.Fprintf(out, "# Config file: %s\n", used)
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	settings := e.v.AllSettings()
	if len(e.cfg.Capabilities) > 0 {
		settings["capabilities"] = e.cfg.Capabilities
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	_, err = out.Write(data)
	return err
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	if path == "" {
		path = config.ConfigFile()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, path)
	if !fileExists(path) {
		fmt.Fprintln(cmd.ErrOrStderr(), "(file does not exist; defaults are used)")
	}
	return nil
}

func fileExists(path string) bool {
	ok, err := afero.Exists(appFs, path)
	return err == nil && ok
}
