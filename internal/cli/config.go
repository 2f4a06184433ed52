package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/assay/internal/model"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Assay configuration",
	Long: `Manage Assay configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (ASSAY_*, e.g. ASSAY_SEARCH_BASE_URL)
3. Config file (~/.assay/config.yaml)
4. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if f := viper.ConfigFileUsed(); f != "" {
			fmt.Fprintf(os.Stderr, "Configuration file: %s\n\n", f)
		} else {
			fmt.Fprintf(os.Stderr, "No configuration file found (using defaults)\n\n")
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Long:  `Create ~/.assay/config.yaml (or the --config path) holding every option at its default.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = filepath.Join(defaultDataDir(), "config.yaml")
		}
		if err := writeDefaultConfig(path); err != nil {
			return err
		}

		fmt.Printf("✓ Created default configuration: %s\n", path)
		fmt.Printf("\nTo view the effective configuration:\n")
		fmt.Printf("  assay config show\n")
		fmt.Printf("\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

const configHeader = `# Assay configuration
#
# Configuration hierarchy (highest to lowest priority):
#   1. CLI flags
#   2. Environment variables (ASSAY_*)
#   3. This config file
#   4. Built-in defaults
#
# API keys are read from the environment only:
#   export OPENAI_API_KEY=sk-...
#   export ANTHROPIC_API_KEY=sk-ant-...
#   export OLLAMA_BASE_URL=http://localhost:11434

`

// writeDefaultConfig refuses to overwrite an existing file
func writeDefaultConfig(path string) (err error) {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s\nUse 'assay config show' to view it, or delete it first to recreate", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("error creating config file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close config file: %w", closeErr)
		}
	}()

	if _, err := f.WriteString(configHeader); err != nil {
		return fmt.Errorf("error writing config: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("error writing config: %w", err)
	}
	return nil
}
