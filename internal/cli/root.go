package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/factcheck/internal/model"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "factcheck",
	Short: "Factcheck - multimodal claim verification with an LLM in the loop",
	Long: `Factcheck verifies textual and image claims.

For each claim it iterates a plan, act and judge loop: the language model
plans evidence-gathering actions (web search, image geolocation, manipulation
detection), the tools execute them, and the model judges whether the
accumulated evidence is enough for a verdict.

Every run produces a fact-checking report with reasoning, actions, evidence,
the verdict and a justification citing the sources.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number and build information for Factcheck.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("factcheck v0.1.0")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.factcheck/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		// Search for config in home directory
		viper.AddConfigPath(filepath.Join(home, ".factcheck"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match FACTCHECK_* (llm.model -> FACTCHECK_LLM_MODEL)
	viper.SetEnvPrefix("FACTCHECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// envOverrides lists the settings that FACTCHECK_* variables may override
var envOverrides = []struct {
	key   string
	apply func(cfg *model.Config, value string)
}{
	{"llm.provider", func(c *model.Config, v string) { c.LLM.Provider = v }},
	{"llm.model", func(c *model.Config, v string) { c.LLM.Model = v }},
	{"llm.api_key", func(c *model.Config, v string) { c.LLM.APIKey = v }},
	{"llm.base_url", func(c *model.Config, v string) { c.LLM.BaseURL = v }},
	{"loop.variant", func(c *model.Config, v string) { c.Loop.Variant = v }},
	{"search.backends", func(c *model.Config, v string) { c.Search.Backends = splitList(v) }},
	{"tools.geolocator_url", func(c *model.Config, v string) { c.Tools.GeolocatorURL = v }},
	{"tools.manipulation_url", func(c *model.Config, v string) { c.Tools.ManipulationURL = v }},
	{"tools.knowledge_base", func(c *model.Config, v string) { c.Tools.KnowledgeBase = v }},
	{"cache.dir", func(c *model.Config, v string) { c.Cache.Dir = v }},
	{"output.dir", func(c *model.Config, v string) { c.Output.Dir = v }},
}

// loadConfig merges defaults, the config file and FACTCHECK_* variables.
// Command flags are applied by each command afterwards.
func loadConfig() (model.Config, error) {
	cfg := model.DefaultConfig()

	if path := viper.ConfigFileUsed(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	for _, o := range envOverrides {
		if v := viper.GetString(o.key); v != "" {
			o.apply(&cfg, v)
		}
	}
	return cfg, nil
}

// newLogger builds the structured logger; --verbose enables debug output
func newLogger() (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Encoding = "console"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zcfg.Build()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
