package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/embeddedgo/gsat"
	"github.com/embeddedgo/gsat/gsweb"
	"github.com/embeddedgo/gsat/internal/config"
	"github.com/embeddedgo/gsat/internal/logging"
)

// Command flags
var (
	skipAssociate bool
	saveProfile   bool
	serveInterval time.Duration
	choices       []string
	forceInit     bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(atCmd)
	rootCmd.AddCommand(associateCmd)
	rootCmd.AddCommand(configCmd)

	serveCmd.Flags().BoolVar(&skipAssociate, "no-associate", false, "Do not associate the module before starting the server")
	serveCmd.Flags().BoolVar(&saveProfile, "save", false, "Write the wireless settings applied from the web page back to the configuration file")
	serveCmd.Flags().DurationVar(&serveInterval, "interval", 20*time.Millisecond, "Client polling interval")
	serveCmd.Flags().StringArrayVar(&choices, "choice", nil, "Add a client choice to the page (VALUE:LABEL, VALUE is a single character)")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSaveCmd)
	configInitCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite an existing file")
}

// serveCmd runs the provisioning web server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the provisioning web server",
	Long: `Associate the module and serve the provisioning page on its web port.

The page allows to change the wireless mode, security, channel, rate, SSID
and key of the module. Submitted settings are applied immediately. Client
choices added with --choice are printed when selected.`,
	Example: `  # Factory settings: limited AP "GAINSPAN", page at http://192.168.3.1/
  gsprov serve

  # Remember the settings changed from the browser
  gsprov serve --save

  # Simple remote control page
  gsprov serve --choice F:Forward --choice S:Stop`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func buildPage(d *gsat.Device) (*gsweb.Page, error) {
	page := gsweb.ProvisioningPage(d.Wireless())
	for _, c := range choices {
		v, label, _ := strings.Cut(c, ":")
		if len(v) != 1 {
			return nil, fmt.Errorf("bad choice %q: value must be a single character", c)
		}
		if err := page.AddChoice("choice", gsweb.Dropdown, v[0], label); err != nil {
			return nil, fmt.Errorf("bad choice %q: %w", c, err)
		}
	}
	return page, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, port, err := openDevice()
	if err != nil {
		return err
	}
	defer port.Close()

	if !skipAssociate {
		if err := associate(ctx, d); err != nil {
			return err
		}
	}
	page, err := buildPage(d)
	if err != nil {
		return err
	}
	srv := gsweb.NewServer(d, page, &gsweb.Config{
		Port:   cfg.Web.Port,
		NoAuth: cfg.Web.NoAuth,
		Logger: logging.GetLogger(),
	})
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start the web server: %w", err)
	}
	fmt.Printf("Serving the provisioning page on port %d (Ctrl+C to stop)\n", cfg.Web.Port)

	ticker := time.NewTicker(serveInterval)
	defer ticker.Stop()
	last := d.Wireless()
	for {
		select {
		case <-ctx.Done():
			fmt.Println("Stopping")
			return srv.Stop()
		case <-ticker.C:
		}
		if err := srv.ProcessClientRequest(ctx); err != nil {
			return err
		}
		for {
			c, ok := srv.NextChoice()
			if !ok {
				break
			}
			fmt.Printf("Client choice: %c\n", c)
		}
		if wp := d.Wireless(); wp != last {
			last = wp
			fmt.Printf("Wireless settings changed: SSID %s, mode %s, channel %d\n", wp.SSID, wp.Mode, wp.Channel)
			if saveProfile {
				cfg.SetWireless(wp)
				if err := cfg.Save(configPath); err != nil {
					logging.Error("failed to save configuration", zap.Error(err))
				}
			}
		}
	}
}

func associate(ctx context.Context, d *gsat.Device) error {
	wp := d.Wireless()
	fmt.Printf("Associating (SSID %s, mode %s, channel %d)...\n", wp.SSID, wp.Mode, wp.Channel)
	act, err := d.Associate(ctx)
	if err != nil {
		return fmt.Errorf("association failed: %w", err)
	}
	if act == gsat.ActivationTrueWithErrors {
		fmt.Println("Associated, some setup commands failed (see the log)")
	} else {
		fmt.Println("Associated")
	}
	return nil
}

// associateCmd runs the association sequence only
var associateCmd = &cobra.Command{
	Use:   "associate",
	Short: "Associate the module using the configured profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, port, err := openDevice()
		if err != nil {
			return err
		}
		defer port.Close()
		if err := associate(cmd.Context(), d); err != nil {
			return err
		}
		if n := d.Network(); n != nil {
			fmt.Printf("Address: %s/%s gateway %s\n", n.IP, n.Subnet, n.Gateway)
		} else {
			fmt.Println("Address: DHCP")
		}
		return nil
	},
}

// atCmd sends a single AT command
var atCmd = &cobra.Command{
	Use:   "at COMMAND",
	Short: "Send an AT command and print the response",
	Example: `  gsprov at +VER=?
  gsprov at AT+NSTAT=?`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, port, err := openDevice()
		if err != nil {
			return err
		}
		defer port.Close()
		resp, err := d.Cmd(cmd.Context(), strings.TrimPrefix(args[0], "AT"))
		if resp != "" {
			fmt.Println(resp)
		}
		fmt.Println(gsat.OutcomeOf(err))
		var pe *gsat.ProtocolError
		if errors.As(err, &pe) {
			return nil // the module answered
		}
		return err
	},
}

// configCmd groups the configuration file commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Args:  cobra.NoArgs,
	// the existing file may be broken
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil && !forceInit {
			return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
		}
		if err := config.DefaultConfig().Save(configPath); err != nil {
			return err
		}
		fmt.Printf("Default configuration written to %s\n", configPath)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after applying the environment overrides and
check it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return config.Validate(cfg)
	},
}

var configSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Write the effective configuration back to the file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		return cfg.Save(configPath)
	},
}
