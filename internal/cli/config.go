package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/lemmata/internal/config"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Lemmata configuration",
	Long: `Manage Lemmata configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags (--backend, --model)
2. Environment variables (LEMMATA_*, provider API keys)
3. Config file (~/.lemmata/config.yaml)
4. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration after merging defaults, config file, environment and flags. API keys are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if configFile := viper.ConfigFileUsed(); configFile != "" {
			fmt.Fprintf(os.Stderr, "Configuration file: %s\n\n", configFile)
		} else {
			fmt.Fprintf(os.Stderr, "No configuration file found (using defaults)\n\n")
		}

		banner(os.Stdout, "Current Configuration")
		fmt.Println()
		if err := writeYAML(os.Stdout, maskKeys(cfg)); err != nil {
			return err
		}
		fmt.Println()
		fmt.Println("Configuration hierarchy (highest to lowest priority):")
		fmt.Println("  1. CLI flags")
		fmt.Println("  2. Environment variables (LEMMATA_*, OPENAI_API_KEY, ANTHROPIC_API_KEY, GOOGLE_API_KEY)")
		fmt.Println("  3. Config file (~/.lemmata/config.yaml)")
		fmt.Println("  4. Defaults")
		fmt.Println()
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize default configuration file",
	Long:  `Create a default configuration file at ~/.lemmata/config.yaml with every available option.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("error finding home directory: %w", err)
		}
		configPath := filepath.Join(home, ".lemmata", "config.yaml")

		if err := initConfigFile(configPath); err != nil {
			return err
		}

		fmt.Printf("✓ Created default configuration: %s\n", configPath)
		fmt.Printf("\nTo view the configuration:\n")
		fmt.Printf("  lemmata config show\n")
		fmt.Printf("\nTo customize, edit the file with your preferred editor:\n")
		fmt.Printf("  $EDITOR %s\n\n", configPath)
		return nil
	},
}

// initConfigFile writes the commented default configuration to path. It
// refuses to overwrite an existing file.
func initConfigFile(path string) (err error) {
	if _, statErr := os.Stat(path); statErr == nil {
		return fmt.Errorf("config file already exists: %s\nUse 'lemmata config show' to view it, or delete it first to recreate", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating config file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close config file: %w", closeErr)
		}
	}()

	// Helper for writing with error checking
	printf := func(format string, a ...any) {
		if err != nil {
			return
		}
		_, err = fmt.Fprintf(f, format, a...)
	}

	printf("# Lemmata Configuration File\n")
	printf("#\n")
	printf("# Configuration hierarchy (highest to lowest priority):\n")
	printf("#   1. CLI flags\n")
	printf("#   2. Environment variables (LEMMATA_*)\n")
	printf("#   3. This config file\n")
	printf("#   4. Built-in defaults\n\n")
	if err != nil {
		return err
	}

	if err = writeYAML(f, config.Default()); err != nil {
		return err
	}

	printf("\n# API keys (recommended to use environment variables instead):\n")
	printf("#   export OPENAI_API_KEY=sk-...\n")
	printf("#   export ANTHROPIC_API_KEY=sk-ant-...\n")
	printf("#   export GOOGLE_API_KEY=...\n")
	printf("#   export OLLAMA_BASE_URL=http://localhost:11434/v1\n")
	return err
}

func writeYAML(w io.Writer, cfg config.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	return enc.Close()
}

// maskKeys hides all but the last four characters of every API key
func maskKeys(cfg config.Config) config.Config {
	mask := func(key string) string {
		if key == "" {
			return ""
		}
		if len(key) <= 8 {
			return "****"
		}
		return "****" + key[len(key)-4:]
	}
	cfg.Backends.OpenAI.APIKey = mask(cfg.Backends.OpenAI.APIKey)
	cfg.Backends.Anthropic.APIKey = mask(cfg.Backends.Anthropic.APIKey)
	cfg.Backends.Google.APIKey = mask(cfg.Backends.Google.APIKey)
	cfg.Backends.Ollama.APIKey = mask(cfg.Backends.Ollama.APIKey)
	return cfg
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
