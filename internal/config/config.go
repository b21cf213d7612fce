package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	OpenRouterAPIKey string  `mapstructure:"openrouter_api_key" yaml:"openrouter_api_key"`
	E2BAPIKey        string  `mapstructure:"e2b_api_key" yaml:"e2b_api_key"`
	TogetherAPIKey   string  `mapstructure:"together_api_key" yaml:"together_api_key"`
	DefaultModel     string  `mapstructure:"default_model" yaml:"default_model"`
	FallbackModel    string  `mapstructure:"fallback_model" yaml:"fallback_model"`
	LicenseKey       string  `mapstructure:"license_key" yaml:"license_key"`
	Temperature      float64 `mapstructure:"temperature" yaml:"temperature"`
	TokenTiers       []int   `mapstructure:"token_tiers" yaml:"token_tiers"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Sandbox
	SandboxTemplate   string `mapstructure:"sandbox_template" yaml:"sandbox_template"`
	SandboxTimeoutSec int    `mapstructure:"sandbox_timeout_sec" yaml:"sandbox_timeout_sec"`

	// Web app
	ServerAddr  string `mapstructure:"server_addr" yaml:"server_addr"`
	MaxUploadMB int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
	PreviewRows int    `mapstructure:"preview_rows" yaml:"preview_rows"`
}

const dirName = ".vizagent"

// DefaultPath returns ~/.vizagent/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, dirName, "config.yaml"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.vizagent/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	// the file holds API keys
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("VIZAGENT")
	v.AutomaticEnv()
	// conventional provider variables work without the prefix
	_ = v.BindEnv("openrouter_api_key", "VIZAGENT_OPENROUTER_API_KEY", "OPENROUTER_API_KEY")
	_ = v.BindEnv("e2b_api_key", "VIZAGENT_E2B_API_KEY", "E2B_API_KEY")
	_ = v.BindEnv("together_api_key", "VIZAGENT_TOGETHER_API_KEY", "TOGETHER_API_KEY")

	// Defaults
	v.SetDefault("openrouter_api_key", "")
	v.SetDefault("e2b_api_key", "")
	v.SetDefault("together_api_key", "")
	v.SetDefault("default_model", "google/gemini-2.0-flash-exp:free")
	v.SetDefault("fallback_model", "google/gemini-2.0-flash-exp:free")
	v.SetDefault("license_key", "PRO-2025")
	v.SetDefault("temperature", 0.2)
	v.SetDefault("token_tiers", []int{2000, 500, 200})
	// HTTP/retry defaults; the tier ladder does its own stepping, so one attempt
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 1)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	v.SetDefault("sandbox_template", "code-interpreter-v1")
	v.SetDefault("sandbox_timeout_sec", 300)
	v.SetDefault("server_addr", ":8501")
	v.SetDefault("max_upload_mb", 25)
	v.SetDefault("preview_rows", 10)

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		v.AddConfigPath(filepath.Join(home, dirName))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read; an explicit file that exists must parse
	if err := v.ReadInConfig(); err != nil && cfgFile != "" && fileExists(cfgFile) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// HTTPTimeout is the per-request timeout for provider calls.
func (g *Global) HTTPTimeout() time.Duration {
	return time.Duration(g.HTTPTimeoutSec) * time.Second
}

// RetryDelays returns the base and max backoff for 429/5xx retries.
func (g *Global) RetryDelays() (base, ceiling time.Duration) {
	return time.Duration(g.RetryBaseDelayMs) * time.Millisecond, time.Duration(g.RetryMaxDelayMs) * time.Millisecond
}

// SandboxLifetime is how long a sandbox may live before E2B reaps it.
func (g *Global) SandboxLifetime() time.Duration {
	return time.Duration(g.SandboxTimeoutSec) * time.Second
}

// MaxUploadBytes is the upload size limit for the web app.
func (g *Global) MaxUploadBytes() int64 {
	return int64(g.MaxUploadMB) << 20
}

// Keys lists the settable keys in display order.
func Keys() []string {
	return []string{
		"openrouter_api_key", "e2b_api_key", "together_api_key",
		"default_model", "fallback_model", "license_key", "temperature", "token_tiers",
		"http_timeout_sec", "retry_max_attempts", "retry_base_delay_ms", "retry_max_delay_ms",
		"sandbox_template", "sandbox_timeout_sec",
		"server_addr", "max_upload_mb", "preview_rows",
	}
}

// Set assigns a single key from its string form.
func (g *Global) Set(key, val string) error {
	setInt := func(dst *int, min int) error {
		i, err := strconv.Atoi(val)
		if err != nil || i < min {
			return fmt.Errorf("invalid int for %s: %v", key, val)
		}
		*dst = i
		return nil
	}
	switch key {
	case "openrouter_api_key":
		g.OpenRouterAPIKey = val
	case "e2b_api_key":
		g.E2BAPIKey = val
	case "together_api_key":
		g.TogetherAPIKey = val
	case "default_model":
		g.DefaultModel = val
	case "fallback_model":
		g.FallbackModel = val
	case "license_key":
		g.LicenseKey = val
	case "temperature":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f < 0 || f > 2 {
			return fmt.Errorf("invalid float for temperature: %v", val)
		}
		g.Temperature = f
	case "token_tiers":
		tiers, err := parseTiers(val)
		if err != nil {
			return err
		}
		g.TokenTiers = tiers
	case "http_timeout_sec":
		return setInt(&g.HTTPTimeoutSec, 1)
	case "retry_max_attempts":
		return setInt(&g.RetryMaxAttempts, 1)
	case "retry_base_delay_ms":
		return setInt(&g.RetryBaseDelayMs, 0)
	case "retry_max_delay_ms":
		return setInt(&g.RetryMaxDelayMs, 0)
	case "sandbox_template":
		g.SandboxTemplate = val
	case "sandbox_timeout_sec":
		return setInt(&g.SandboxTimeoutSec, 1)
	case "server_addr":
		g.ServerAddr = val
	case "max_upload_mb":
		return setInt(&g.MaxUploadMB, 1)
	case "preview_rows":
		return setInt(&g.PreviewRows, 1)
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

// parseTiers reads "2000,500,200" into a strictly positive list.
func parseTiers(val string) ([]int, error) {
	parts := strings.Split(val, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		i, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || i <= 0 {
			return nil, fmt.Errorf("invalid token_tiers: %q (want comma-separated positive ints)", val)
		}
		out = append(out, i)
	}
	return out, nil
}
