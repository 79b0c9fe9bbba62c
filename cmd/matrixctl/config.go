package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mixma5ter/matrixctl/internal/config"
	"github.com/mixma5ter/matrixctl/internal/ui"
)

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change saved settings",
	Long: `Show or change the settings stored in the config file.

Settable keys:
  device.host                   switcher IPv4 address
  device.port                   switcher UDP port (1-65535)
  preferences.discover_timeout  discover wait in seconds
  preferences.listen_addr       local UDP bind address
  preferences.stale_after       drop silent devices after N seconds (0 keeps them)
  preferences.serve_addr        serve listen address
  preferences.mdns_service      service browsed by discover --mdns
  preferences.mdns_filter       only probe mDNS instances whose name contains this`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		data, err := reg.Marshal()
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:       "get KEY",
	Short:     "Print one setting",
	Args:      cobra.ExactArgs(1),
	ValidArgs: config.Keys,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		value, err := reg.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Change one setting",
	Example: `  matrixctl config set device.host 192.168.1.50
  matrixctl config set device.port 7000
  matrixctl config set preferences.stale_after 300`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := reg.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := reg.Save(configPath); err != nil {
			return err
		}

		ui.NewPrinter(os.Stdout).PrintSuccess("Configuration saved",
			ui.Detail{Key: args[0], Value: args[1]})
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			fmt.Println(configPath)
			return nil
		}
		path, err := config.GetConfigPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}
