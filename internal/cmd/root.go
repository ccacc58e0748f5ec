package cmd

import (
	"strings"

	configcmd "github.com/Iron-Ham/daacs/internal/cmd/config"
	"github.com/Iron-Ham/daacs/internal/cmd/observability"
	"github.com/Iron-Ham/daacs/internal/cmd/planning"
	"github.com/Iron-Ham/daacs/internal/cmd/project"
	"github.com/Iron-Ham/daacs/internal/cmd/session"
	"github.com/Iron-Ham/daacs/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "daacs",
	Short: "Dual-track LLM code generation orchestrator",
	Long: `DAACS turns a natural-language goal into a generated full-stack project.

It drives code-generation CLIs or model APIs through a plan, generate,
verify, judge and replan loop across a backend and a frontend track that
are judged together for API compatibility.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/daacs/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "debug log level (debug/info/warn/error)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	session.Register(rootCmd)
	planning.Register(rootCmd)
	project.Register(rootCmd)
	observability.Register(rootCmd)
	configcmd.Register(rootCmd)
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/daacs")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("DAACS")
	// Nested keys map to env vars with dots replaced,
	// e.g. DAACS_EXECUTION_MAX_ITERATIONS for execution.max_iterations
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
