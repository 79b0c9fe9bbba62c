// Matrixctl discovers and drives UDP-controlled matrix and multiviewer
// switchers on the local network.
//
// It broadcasts the discovery probe, tracks the devices that answer, and
// sends raw hex commands to a configured or discovered device. Connection
// status is shown in an interactive dashboard (watch) or streamed to
// WebSocket clients (serve).
//
// Usage:
//
//	matrixctl [command] [flags]
//
// See 'matrixctl --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mixma5ter/matrixctl/internal/config"
	"github.com/mixma5ter/matrixctl/internal/logging"
	"github.com/mixma5ter/matrixctl/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	configPath string
	deviceHost string
	devicePort int
	listenAddr string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "matrixctl",
	Short: "UDP matrix switcher control utility",
	Long: `Discover and control UDP matrix and multiviewer switchers.

Devices are found by broadcasting a discovery probe on the configured port.
Commands are sent as raw hex to the configured host or to an explicit target.
Settings are read from the config file and can be overridden with flags.`,
	Version:       version.Get().Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(logLevel)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default is the user config dir)")
	rootCmd.PersistentFlags().StringVar(&deviceHost, "host", "", "Device IPv4 address (overrides device.host)")
	rootCmd.PersistentFlags().IntVar(&devicePort, "port", 0, "Device UDP port (overrides device.port)")
	rootCmd.PersistentFlags().StringVar(&listenAddr, "listen", "", "Local UDP bind address (overrides preferences.listen_addr)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default from "+logging.LogLevelEnvVar+")")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Get()
		fmt.Printf("matrixctl %s\n", info)
		fmt.Printf("  go:       %s\n", info.GoVersion)
		fmt.Printf("  platform: %s\n", info.Platform)
	},
}

// loadSettings reads the registry and applies flag overrides. The returned
// module config is validated by the session on Init.
func loadSettings(cmd *cobra.Command) (*config.Registry, config.ModuleConfig, error) {
	reg, err := config.Load(configPath)
	if err != nil {
		return nil, config.ModuleConfig{}, err
	}

	cfg := *reg.Device
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = deviceHost
	}
	if flags.Changed("port") {
		cfg.Port = devicePort
	}
	if flags.Changed("listen") {
		reg.Preferences.ListenAddr = listenAddr
	}
	return reg, cfg, nil
}
