// Package config loads the quizd configuration once at process start.
//
// Values come from an optional YAML file (QUIZD_CONFIG) overridden by
// environment variables. The resulting Config is immutable by convention:
// it is constructed once in main and passed by reference into every
// component that needs it. No component reads ambient environment state.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level quizd configuration.
type Config struct {
	// StudentEmail and StudentSecret authenticate inbound solve requests
	// (email case-insensitive, secret exact) and are forwarded with answer
	// submissions.
	StudentEmail  string `yaml:"student_email"`
	StudentSecret string `yaml:"student_secret"`

	// GatewayURL is the base URL of the OpenAI-compatible LLM gateway.
	GatewayURL   string `yaml:"gateway_url"`
	GatewayToken string `yaml:"gateway_token"`
	Model        string `yaml:"model"`

	// ChainTimeout is the wall-clock budget for one quiz chain, checked
	// between questions only.
	ChainTimeout time.Duration `yaml:"chain_timeout"`

	// RetryCount is the total number of download attempts per resource URL.
	RetryCount int `yaml:"retry_count"`

	// SubmitOverride, when set, wins over any submission URL inferred from
	// the question page. Meant for test deployments against a fixed grader.
	SubmitOverride string `yaml:"submit_override"`

	// BrowserRemote is the WebSocket URL of an external Chrome instance.
	// Empty means launch a local headless Chrome.
	BrowserRemote string `yaml:"browser_remote"`

	// Interpreter runs sandboxed solution code. Default: python3.
	Interpreter string `yaml:"interpreter"`

	// DownloadWorkers bounds concurrent resource downloads per question.
	DownloadWorkers int `yaml:"download_workers"`

	// EventDB is the SQLite path for the business event log. Empty disables
	// persistence (the in-memory ring still records everything).
	EventDB string `yaml:"event_db"`

	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`
}

// Load reads the optional YAML file named by QUIZD_CONFIG, applies
// environment overrides, then defaults. Returns an error only for a
// malformed file; missing credentials are surfaced by Validate.
func Load() (*Config, error) {
	cfg := &Config{}

	if path := os.Getenv("QUIZD_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config parse: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// Validate checks the fields without which a chain cannot run.
func (c *Config) Validate() error {
	if c.StudentEmail == "" {
		return fmt.Errorf("config: student_email is required")
	}
	if c.StudentSecret == "" {
		return fmt.Errorf("config: student_secret is required")
	}
	if c.GatewayToken == "" {
		return fmt.Errorf("config: gateway_token is required")
	}
	return nil
}

func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.StudentEmail, "STUDENT_EMAIL")
	set(&c.StudentSecret, "STUDENT_SECRET")
	set(&c.GatewayURL, "GATEWAY_URL")
	set(&c.GatewayToken, "GATEWAY_TOKEN")
	set(&c.Model, "LLM_MODEL")
	set(&c.SubmitOverride, "SUBMIT_OVERRIDE")
	set(&c.BrowserRemote, "BROWSER_REMOTE")
	set(&c.Interpreter, "SANDBOX_INTERPRETER")
	set(&c.EventDB, "EVENT_DB")
	set(&c.Port, "PORT")
	set(&c.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("CHAIN_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.ChainTimeout = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("RETRY_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RetryCount = n
		}
	}
	if v := os.Getenv("DOWNLOAD_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.DownloadWorkers = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.GatewayURL == "" {
		c.GatewayURL = "https://aipipe.org/openrouter/v1"
	}
	if c.Model == "" {
		c.Model = "openai/gpt-4o-mini"
	}
	if c.ChainTimeout <= 0 {
		c.ChainTimeout = 170 * time.Second
	}
	if c.RetryCount <= 0 {
		c.RetryCount = 3
	}
	if c.Interpreter == "" {
		c.Interpreter = "python3"
	}
	if c.DownloadWorkers <= 0 {
		c.DownloadWorkers = 4
	}
	if c.Port == "" {
		c.Port = "8000"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
