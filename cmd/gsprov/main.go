// Gsprov drives a GainSpan GS1011 module connected to a serial port of the
// host.
//
// It can associate the module, send single AT commands and run the
// provisioning web server that lets a browser change the wireless settings
// of the module.
//
// Usage:
//
//	gsprov [command] [flags]
//
// See 'gsprov --help' for available commands.
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/embeddedgo/gsat/internal/config"
	"github.com/embeddedgo/gsat/internal/logging"
)

// Set at build time with -ldflags="-X main.version=v1.2.3".
var version = ""

func init() {
	if version != "" {
		return
	}
	version = "dev"
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
}

var (
	configPath string
	logLevel   string

	cfg *config.Config
)

func main() {
	err := rootCmd.Execute()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gsprov",
	Short: "GainSpan S2W module provisioning tool",
	Long: `A utility for GainSpan GS1011 serial-to-WiFi modules.

Associates the module, sends AT commands and serves the provisioning web
page that allows to change the wireless settings from a browser.

The configuration is read from a YAML file (see 'gsprov config init').
GSAT_PORT, GSAT_BAUD, GSAT_SSID and GSAT_KEY override the file settings.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
		level := logLevel
		if level == "" {
			level = cfg.LogLevel
		}
		return logging.Initialize(level)
	},
}

func init() {
	rootCmd.Version = version
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// no configuration needed
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gsprov %s\n", version)
	},
}
