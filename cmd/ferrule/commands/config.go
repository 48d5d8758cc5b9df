package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ferrule-dev/ferrule/config"
	"github.com/ferrule-dev/ferrule/errors"
)

// ConfigCmd manages the ferrule configuration
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage ferrule configuration",
	Long: `Display and manage ferrule configuration settings.

Configuration sources (in order of precedence):
1. Environment variables (FERRULE_* prefix)
2. Project config (./ferrule.toml or ./.ferrule.toml, searched upward)
3. User config (~/.ferrule/ferrule.toml)
4. System config (/etc/ferrule/ferrule.toml)
5. Default values

Examples:
  ferrule config show                 # Show current configuration
  ferrule config show --format json   # Show configuration in JSON format
  ferrule config get log.level        # Get a specific config value
  ferrule config init                 # Write a starter user config`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the current ferrule configuration merged from all sources",
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., log.level, code.workspace_root)",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Write a commented starter configuration file.

Without --path the file is written to ~/.ferrule/ferrule.toml. An
existing file is never overwritten.`,
	RunE: runConfigInit,
}

var (
	configFormat   string
	configInitPath string
)

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	configInitCmd.Flags().StringVar(&configInitPath, "path", "", "Destination file (default ~/.ferrule/ferrule.toml)")

	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configGetCmd)
	ConfigCmd.AddCommand(configInitCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		fmt.Println(string(data))

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Printf("# ferrule configuration\n%s", string(data))

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		fmt.Printf("# ferrule configuration\n%s", string(data))

	default:
		return errors.Newf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}

	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	v := config.GetViper()
	if !v.IsSet(key) {
		return errors.Newf("configuration key %q not found", key)
	}

	fmt.Println(config.Get(key))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configInitPath
	if path == "" {
		path = config.UserConfigPath()
		if path == "" {
			return errors.New("cannot resolve home directory, pass --path")
		}
	}

	if err := config.WriteDefault(path); err != nil {
		return err
	}

	pterm.Success.Printf("Wrote starter configuration to %s\n", path)
	return nil
}
