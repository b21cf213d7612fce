package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/vizagent/internal/ai"
	cfgpkg "github.com/KaramelBytes/vizagent/internal/config"
	"github.com/KaramelBytes/vizagent/internal/logging"
)

var (
	// Global flags
	cfgFile string
	debug   bool
	// Retry/HTTP flags (override config if set)
	flagHTTPTimeoutSec   int
	flagRetryMaxAttempts int
	flagRetryBaseDelayMs int
	flagRetryMaxDelayMs  int

	// Loaded configuration
	cfg *cfgpkg.Global
)

var rootCmd = &cobra.Command{
	Use:   "vizagent",
	Short: "VizAgent: ask questions about a CSV and get charts back",
	Long: `VizAgent uploads a CSV to a secure E2B sandbox, asks an OpenRouter model to
write pandas/matplotlib code for your question, runs it, and shows the chart,
table, or text it produced. Use "vizagent serve" for the web app or
"vizagent ask" from the terminal.`,
	SilenceUsage: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	// Initialize configuration before executing commands
	cobra.OnInitialize(loadConfig)
	if err := rootCmd.Execute(); err != nil {
		logging.Error(err.Error())
		os.Exit(1)
	}
}

func init() {
	// Persistent global flags available to all subcommands
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.vizagent/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")
	rootCmd.PersistentFlags().IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxAttempts, "retry-max", 0, "max attempts per request on 429/5xx (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryBaseDelayMs, "retry-base-ms", 0, "base retry backoff in ms (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxDelayMs, "retry-max-ms", 0, "max retry backoff cap in ms (overrides config)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: allow running commands that don't need config
		logging.Warn(fmt.Sprintf("failed to load config: %v", err))
		return
	}
	cfg = c
	applyFlagOverrides()
}

// applyFlagOverrides lets the persistent flags win over file and env values.
func applyFlagOverrides() {
	f := rootCmd.PersistentFlags()
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		cfg.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("retry-max") && flagRetryMaxAttempts > 0 {
		cfg.RetryMaxAttempts = flagRetryMaxAttempts
	}
	if f.Changed("retry-base-ms") && flagRetryBaseDelayMs > 0 {
		cfg.RetryBaseDelayMs = flagRetryBaseDelayMs
	}
	if f.Changed("retry-max-ms") && flagRetryMaxDelayMs > 0 {
		cfg.RetryMaxDelayMs = flagRetryMaxDelayMs
	}
}

// requireConfig returns the loaded config or loads it on demand.
func requireConfig() (*cfgpkg.Global, error) {
	if cfg != nil {
		return cfg, nil
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg = c
	applyFlagOverrides()
	return cfg, nil
}

// runtimeFor builds a provider runtime from the effective config. An empty
// baseURL keeps the provider's default endpoint.
func runtimeFor(c *cfgpkg.Global, provider, apiKey, baseURL string) (ai.Runtime, error) {
	base, ceiling := c.RetryDelays()
	rt, ok := ai.GetRuntime(provider, ai.RuntimeConfig{
		APIKey:      apiKey,
		HTTPTimeout: c.HTTPTimeout(),
		RetryMax:    c.RetryMaxAttempts,
		BaseDelay:   base,
		MaxDelay:    ceiling,
		BaseURL:     baseURL,
	})
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (available: %v)", provider, ai.Providers())
	}
	return rt, nil
}
