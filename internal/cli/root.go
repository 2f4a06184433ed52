package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/assay/internal/model"
)

// Version is set at build time
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "assay",
	Short: "Assay - Epistemic evaluation of ideas (non-normative)",
	Long: `Assay evaluates how well an idea is supported.

It clarifies the idea, maps what is known about it, decomposes it into
sub-claims with logical dependencies, gathers tiered evidence and reports a
calibrated confidence for each of five dimensions: novelty, theoretical
soundness, empirical support, feasibility and impact.

It does not determine whether an idea is true.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "assay %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.assay/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads the config file and ASSAY_* environment variables
func initConfig() {
	if err := registerDefaults(viper.GetViper(), model.DefaultConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "Error registering defaults: %v\n", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(filepath.Join(home, ".assay"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// ASSAY_SEARCH_BASE_URL sets search.base_url
	viper.SetEnvPrefix("ASSAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	// Keys without a rendered default
	for _, key := range []string{"llm.api_key", "llm.base_url", "search.http_proxy", "search.https_proxy", "search.no_proxy"} {
		_ = viper.BindEnv(key)
	}

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// registerDefaults makes every config key known to viper so environment
// variables resolve for keys missing from the config file
func registerDefaults(v *viper.Viper, cfg *model.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return err
	}
	setDefaults(v, "", tree)
	return nil
}

func setDefaults(v *viper.Viper, prefix string, tree map[string]any) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		// Maps with free-form keys (venue_map) stay whole
		if sub, ok := val.(map[string]any); ok && key != "tiers.venue_map" {
			setDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

// loadConfig resolves the effective configuration: flags are applied by the
// commands on top of this
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Analysis.MaxLoopCount < 0 {
		return nil, fmt.Errorf("analysis.max_loop_count must be >= 0")
	}
	if e := cfg.Analysis.Extraordinariness; e < 0 || e > 1 {
		return nil, fmt.Errorf("analysis.extraordinariness %v outside [0,1]", e)
	}
	t := cfg.Scoring.Thresholds
	if !(0 < t.VeryLow && t.VeryLow < t.Low && t.Low < t.Moderate && t.Moderate < t.High && t.High < 1) {
		return nil, fmt.Errorf("scoring.thresholds must increase strictly within (0,1)")
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = providerKey(cfg.LLM.Provider)
	}
	if cfg.LLM.BaseURL == "" && strings.EqualFold(cfg.LLM.Provider, "ollama") {
		cfg.LLM.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	return cfg, nil
}

func providerKey(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic", "claude":
		return os.Getenv("ANTHROPIC_API_KEY")
	default:
		return ""
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// defaultDataDir holds the archive and search cache unless configured
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".assay"
	}
	return filepath.Join(home, ".assay")
}
