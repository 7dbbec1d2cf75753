// Package config loads the application configuration: built-in defaults,
// overridden by an optional YAML file, overridden by environment variables.
//
// Environment variables (effect in parentheses):
//
//	CONFIG_PATH          (YAML file location, read by main)
//	DB_PATH              (sqlite session store location)
//	REDIS_URL            (redis session store address; selects nothing by itself)
//	STORE_BACKEND        (session store backend: memory, sqlite or redis)
//	OLLAMA_HOST          (ollama daemon base URL)
//	OLLAMA_MODEL         (ollama model name)
//	OPENAI_BASE_URL      (OpenAI-compatible endpoint for the fallback model)
//	OPENAI_MODEL         (fallback model name)
//	GOOGLE_REDIRECT_URI  (OAuth redirect for the calendar connection)
//	SECRETS_FILE         (optional plaintext secrets file)
//	DATA_DIR             (token files and other local state)
//	LOG_LEVEL, LOG_FORMAT, LOG_OUTPUT, LOG_FILE
//
// API keys (SERPER_API_KEY, OPENAI_API_KEY, OCR_API_KEY, GOOGLE_CLIENT_ID,
// GOOGLE_CLIENT_SECRET) are read through the secrets store, not here.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"smartdesk/internal/core"
	"smartdesk/internal/logger"
)

type StoreConfig struct {
	// Backend selects the session store: "memory", "sqlite" or "redis".
	Backend string `yaml:"backend" envconfig:"STORE_BACKEND"`
	Path    string `yaml:"path" envconfig:"DB_PATH"`
	// RedisURL is only used when Backend is "redis".
	RedisURL string `yaml:"redis_url" envconfig:"REDIS_URL"`
	// SessionTTLSeconds bounds message age for pruning; 0 disables the
	// age bound.
	SessionTTLSeconds int `yaml:"session_ttl_seconds" envconfig:"SESSION_TTL_SECONDS"`
}

func (s StoreConfig) SessionTTL() time.Duration {
	return time.Duration(s.SessionTTLSeconds) * time.Second
}

type OllamaConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"OLLAMA_ENABLED"`
	BaseURL string `yaml:"base_url" envconfig:"OLLAMA_HOST"`
	Model   string `yaml:"model" envconfig:"OLLAMA_MODEL"`
}

type OpenAIConfig struct {
	BaseURL string `yaml:"base_url" envconfig:"OPENAI_BASE_URL"`
	Model   string `yaml:"model" envconfig:"OPENAI_MODEL"`
}

type LLMConfig struct {
	Ollama         OllamaConfig `yaml:"ollama"`
	OpenAI         OpenAIConfig `yaml:"openai"`
	MaxTokens      int          `yaml:"max_tokens"`
	Temperature    float64      `yaml:"temperature"`
	TimeoutSeconds int          `yaml:"timeout_seconds"`
	MaxRetries     uint64       `yaml:"max_retries"`
}

func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

type SearchConfig struct {
	Endpoint       string `yaml:"endpoint"`
	MaxResults     int    `yaml:"max_results"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     uint64 `yaml:"max_retries"`
}

func (s SearchConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

type OCRConfig struct {
	Endpoint       string `yaml:"endpoint"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (o OCRConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

type CalendarConfig struct {
	RedirectURL         string `yaml:"redirect_url" envconfig:"GOOGLE_REDIRECT_URI"`
	TimeoutSeconds      int    `yaml:"timeout_seconds"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	ReminderWindowMin   int    `yaml:"reminder_window_minutes"`
}

func (c CalendarConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c CalendarConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c CalendarConfig) ReminderWindow() time.Duration {
	return time.Duration(c.ReminderWindowMin) * time.Minute
}

type Config struct {
	Persona     core.Persona   `yaml:"persona"`
	Log         logger.Config  `yaml:"log"`
	Store       StoreConfig    `yaml:"store"`
	LLM         LLMConfig      `yaml:"llm"`
	Search      SearchConfig   `yaml:"search"`
	OCR         OCRConfig      `yaml:"ocr"`
	Calendar    CalendarConfig `yaml:"calendar"`
	SecretsFile string         `yaml:"secrets_file" envconfig:"SECRETS_FILE"`
	DataDir     string         `yaml:"data_dir" envconfig:"DATA_DIR"`
}

// Default returns the built-in configuration, matching the defaults the
// assistant shipped with.
func Default() Config {
	return Config{
		Persona: core.Persona{
			Name:              "SmartDesk AI",
			Personality:       "Helpful, proactive, and efficient assistant",
			MemoryLimit:       50,
			CalendarReminders: true,
		},
		Log: logger.Config{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Store: StoreConfig{
			Backend:           "sqlite",
			Path:              "data/smartdesk.db",
			SessionTTLSeconds: 0,
		},
		LLM: LLMConfig{
			Ollama: OllamaConfig{
				Enabled: true,
				BaseURL: "http://localhost:11434",
				Model:   "mistral",
			},
			OpenAI: OpenAIConfig{
				BaseURL: "https://api.groq.com/openai/v1",
				Model:   "llama3-8b-8192",
			},
			MaxTokens:      1500,
			Temperature:    0.3,
			TimeoutSeconds: 30,
			MaxRetries:     2,
		},
		Search: SearchConfig{
			Endpoint:       "https://google.serper.dev/search",
			MaxResults:     8,
			TimeoutSeconds: 15,
			MaxRetries:     2,
		},
		OCR: OCRConfig{
			Endpoint:       "http://localhost:8884/ocr",
			TimeoutSeconds: 30,
		},
		Calendar: CalendarConfig{
			RedirectURL:         "http://localhost:8501/oauth/callback",
			TimeoutSeconds:      15,
			PollIntervalSeconds: 300,
			ReminderWindowMin:   30,
		},
		DataDir: "data",
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// No file is fine, defaults plus env apply.
		case err != nil:
			return cfg, fmt.Errorf("error reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("error parsing YAML: %w", err)
			}
		}
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("error reading environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store.Backend {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Persona.MemoryLimit < 0 {
		return fmt.Errorf("persona memory_limit must be >= 0")
	}
	return nil
}
