package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sandboxkit/sandboxctl/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Initialize a sandboxctl configuration file with default values.

By default, the configuration file is created at
$XDG_CONFIG_HOME/sandboxctl/config.yaml. Use --config to specify a custom
path.

Examples:
  # Initialize with default location
  sandboxctl init

  # Initialize with custom path
  sandboxctl init --config /etc/sandboxctl/config.yaml

  # Force overwrite existing config
  sandboxctl init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if !initForce {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
		}
	}

	if err := config.SaveConfig(config.GetDefaultConfig(), configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file, at minimum seed.private_dir and access.base_domain")
	fmt.Println("  2. Provision a sandbox with: sandboxctl provision <name> <tag>")
	fmt.Printf("  3. Or specify custom config: sandboxctl provision <name> <tag> --config %s\n", configPath)

	return nil
}
