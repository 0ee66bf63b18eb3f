package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is stamped at build time
var Version = "v0.3.0"

var (
	cfgFile   string
	verbose   bool
	logFormat string
	backendID string
	modelName string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "lemmata",
	Short: "Lemmata - conjecture discovery with double-judged proofs",
	Long: `Lemmata orchestrates generative reasoning backends to discover and prove
mathematical results.

Starting from seed results it reviews the literature, predicts likely-new
statements, drops the ones already known, and accepts a proof only when two
independent judges agree it is correct.

A judge's acceptance is evidence, not a certificate. Read the proofs.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command. Interrupts cancel the command's context so
// long runs can persist what they have and stop.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of Lemmata.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lemmata %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.lemmata/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logs)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format: console or json")
	rootCmd.PersistentFlags().StringVar(&backendID, "backend", "", "backend for every stage (openai, anthropic, google, ollama)")
	rootCmd.PersistentFlags().StringVar(&modelName, "model", "", "model for every stage")

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
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(filepath.Join(home, ".lemmata"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match LEMMATA_*
	viper.SetEnvPrefix("LEMMATA")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}
