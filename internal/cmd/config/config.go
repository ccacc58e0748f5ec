// Package config provides CLI commands for managing DAACS configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	appconfig "github.com/Iron-Ham/daacs/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Wrapper functions for exec to allow testing
var execLookPath = exec.LookPath
var execCommand = exec.Command

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify DAACS configuration",
	Long: `View or modify DAACS configuration.

Settings are read from the config file, then DAACS_* environment variables
(e.g. DAACS_EXECUTION_MAX_ITERATIONS), then command-line flags.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation and the new value is validated before it is saved, e.g.:
  daacs config set execution.max_iterations 5
  daacs config set execution.parallel_execution true
  daacs config set roles.backend.source plugin
  daacs config set roles.backend.plugin.provider anthropic
  daacs config set cli_assistant.sandbox_permissions disk-full-access,network

Run 'daacs config show' to see every key.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/daacs/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in your editor",
	Long: `Open the config file in your preferred editor.

Uses $EDITOR environment variable, or falls back to common editors (vim, nano, vi).
If no config file exists, creates one with default values first.`,
	RunE: runConfigEdit,
}

var configInitForce bool

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configEditCmd)
}

// Register adds all config-related commands to the given parent command.
// This is the main entry point for integrating the config subpackage with
// the root command.
func Register(parent *cobra.Command) {
	parent.AddCommand(configCmd)
}

// redacted masks API keys in displayed configuration.
func redacted(cfg appconfig.Config) appconfig.Config {
	mask := func(pc *appconfig.PluginConfig) {
		if pc.APIKey != "" {
			pc.APIKey = "****"
		}
	}
	for _, rc := range []*appconfig.RoleConfig{&cfg.Roles.Orchestrator, &cfg.Roles.Backend, &cfg.Roles.Frontend} {
		mask(&rc.Plugin)
		mask(&rc.Fallback)
	}
	return cfg
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return enc.Close()
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := appconfig.Load()
	if err != nil {
		var verrs appconfig.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		fmt.Fprintf(out, "Configuration is invalid, showing defaults:\n%v\n\n", err)
		cfg = appconfig.Default()
	}

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}
	return writeYAML(out, redacted(*cfg))
}

// parseValue converts value to the type of the key's current setting.
func parseValue(key, value string) (any, error) {
	switch viper.Get(key).(type) {
	case bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return b, nil
	case int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		return n, nil
	case float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected number", key)
		}
		return f, nil
	case []string:
		if value == "" {
			return []string{}, nil
		}
		return strings.Split(value, ","), nil
	default:
		return value, nil
	}
}

// knownKey reports whether key is a leaf setting, including role fields
// that have no default.
func knownKey(key string) bool {
	if key == "config" {
		return false
	}
	if slices.Contains(viper.AllKeys(), key) {
		return true
	}
	parts := strings.Split(key, ".")
	if len(parts) < 3 || parts[0] != "roles" {
		return false
	}
	switch parts[1] {
	case appconfig.RoleOrchestrator, appconfig.RoleBackend, appconfig.RoleFrontend:
	default:
		return false
	}
	if len(parts) == 3 {
		return parts[2] == "cli_type"
	}
	if len(parts) != 4 || (parts[2] != "plugin" && parts[2] != "fallback") {
		return false
	}
	return slices.Contains([]string{"provider", "model", "api_key", "base_url"}, parts[3])
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := strings.ToLower(args[0])
	value := args[1]
	out := cmd.OutOrStdout()

	if !knownKey(key) {
		return fmt.Errorf("unknown configuration key: %s\nRun 'daacs config show' to see valid keys", key)
	}

	typedValue, err := parseValue(key, value)
	if err != nil {
		return err
	}

	previous := viper.Get(key)
	viper.Set(key, typedValue)
	if _, err := appconfig.Load(); err != nil {
		viper.Set(key, previous)
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	// Ensure config directory exists
	configDir := appconfig.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := appconfig.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(out, "Set %s = %v\n", key, typedValue)
	fmt.Fprintf(out, "Config saved to %s\n", configFile)
	return nil
}

const configHeader = `# DAACS configuration
#
# Roles choose where model calls go:
#   source: cli_assistant  the CLI named by cli_assistant.type (codex, claude_code, gemini)
#   source: plugin         an HTTP provider (openai, anthropic, gemini) set under plugin:
#   source: mock           canned responses, no model calls
#
# Every key can be overridden with DAACS_<SECTION>_<KEY>,
# e.g. DAACS_EXECUTION_MAX_ITERATIONS=5

`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := appconfig.ConfigDir()
	configFile := appconfig.ConfigFile()
	out := cmd.OutOrStdout()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil && !configInitForce {
		return fmt.Errorf("config file already exists at %s\nUse 'daacs config set' to modify values", configFile)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(configHeader)
	if err := writeYAML(&sb, appconfig.Default()); err != nil {
		return err
	}
	if err := os.WriteFile(configFile, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(out, "Created config file at %s\n", configFile)
	fmt.Fprintln(out, "Edit this file to customize DAACS's behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := appconfig.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(appconfig.ConfigDir(), "config.yaml"))
	fmt.Fprintf(out, "  2. $HOME/.config/daacs/config.yaml\n")
	fmt.Fprintf(out, "  3. ./config.yaml (current directory)\n")
	fmt.Fprintln(out, "\nEnvironment variables: DAACS_* (e.g., DAACS_EXECUTION_MAX_ITERATIONS)")
	return nil
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	configFile := appconfig.ConfigFile()

	// Check if config file exists, if not create it
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		fmt.Fprintln(cmd.OutOrStdout(), "Config file doesn't exist, creating with defaults...")
		if err := runConfigInit(cmd, args); err != nil {
			return err
		}
	}

	// Find an editor
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		for _, e := range []string{"vim", "nano", "vi"} {
			if _, err := execLookPath(e); err == nil {
				editor = e
				break
			}
		}
	}
	if editor == "" {
		return fmt.Errorf("no editor found. Set $EDITOR environment variable")
	}

	editorCmd := execCommand(editor, configFile)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor exited with error: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Config file saved: %s\n", configFile)
	return nil
}
