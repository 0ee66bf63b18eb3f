package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Load decodes the settings held by v over the defaults, fills API keys from the
// environment when the config file leaves them empty, and validates the result.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()
	if v != nil {
		if err := v.Unmarshal(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}
	cfg.Backends = cfg.Backends.withEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (b BackendsConfig) withEnv(getenv func(string) string) BackendsConfig {
	first := func(current string, keys ...string) string {
		if current != "" {
			return current
		}
		for _, k := range keys {
			if val := getenv(k); val != "" {
				return val
			}
		}
		return ""
	}
	b.OpenAI.APIKey = first(b.OpenAI.APIKey, "OPENAI_API_KEY")
	b.OpenAI.BaseURL = first(b.OpenAI.BaseURL, "OPENAI_BASE_URL")
	b.Anthropic.APIKey = first(b.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	b.Google.APIKey = first(b.Google.APIKey, "GOOGLE_API_KEY", "GEMINI_API_KEY")
	if url := getenv("OLLAMA_BASE_URL"); url != "" {
		b.Ollama.BaseURL = url
	}
	return b
}
