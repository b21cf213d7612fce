package cmd

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/vizagent/internal/agent"
	"github.com/KaramelBytes/vizagent/internal/ai"
	"github.com/KaramelBytes/vizagent/internal/analysis"
	cfgpkg "github.com/KaramelBytes/vizagent/internal/config"
	"github.com/KaramelBytes/vizagent/internal/logging"
	"github.com/KaramelBytes/vizagent/internal/render"
	"github.com/KaramelBytes/vizagent/internal/sandbox"
	"github.com/KaramelBytes/vizagent/internal/utils"
)

var (
	askModel    string
	askOutDir   string
	askLicense  string
	askShowCode bool
)

// Overridable in tests.
var (
	newAnalysisRuntime = func(c *cfgpkg.Global, apiKey string) (ai.Runtime, error) {
		return runtimeFor(c, ai.ProviderOpenRouter, apiKey, "")
	}
	newSandboxes = func(c *cfgpkg.Global, apiKey string) agent.Sandboxes {
		return agent.FromE2B(sandbox.NewClient(sandbox.Config{
			APIKey:   apiKey,
			Template: c.SandboxTemplate,
			Lifetime: c.SandboxLifetime(),
		}))
	}
)

var askCmd = &cobra.Command{
	Use:   "ask <file.csv> <question>",
	Short: "Ask a question about a CSV and save the resulting charts",
	Long: `Upload the CSV to an E2B sandbox, let the selected OpenRouter model write
pandas/matplotlib code for the question, run it, and show what it produced.
Charts are written as PNG files into --out-dir; tables and text are printed.`,
	Example: `  vizagent ask sales.csv "Show me average sales by category as a bar chart"
  vizagent ask sales.csv "Top 10 products by revenue" --model "[FREE] Llama 3.3 70B" --show-code`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		path := args[0]
		question := strings.TrimSpace(strings.Join(args[1:], " "))
		if question == "" {
			return agent.ErrNoQuestion
		}
		if c.OpenRouterAPIKey == "" {
			return errors.New("OpenRouter API key is missing: set OPENROUTER_API_KEY or run 'vizagent config set openrouter_api_key <key>'")
		}
		if c.E2BAPIKey == "" {
			return errors.New("E2B API key is missing: set E2B_API_KEY or run 'vizagent config set e2b_api_key <key>'")
		}
		model, err := resolveModel(askModel, c)
		if err != nil {
			return err
		}
		if ai.RequiresLicense(model) && !licensed(askLicense, c.LicenseKey) {
			return fmt.Errorf("model %s is locked for Free users: pass --license with your Pro license key", model)
		}

		if !strings.EqualFold(filepath.Ext(path), ".csv") {
			return fmt.Errorf("%s: only .csv files are supported", path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read dataset: %w", err)
		}
		name := utils.SanitizeFileName(filepath.Base(path))
		opt := analysis.DefaultOptions()
		if c.PreviewRows > 0 {
			opt.HeadRows = c.PreviewRows
		}
		prof, err := analysis.ProfileBytes(data, name, opt)
		if err != nil {
			return err
		}
		rows, cols := prof.Shape()
		logging.Info(fmt.Sprintf("Loaded %s: %d rows, %d columns", name, rows, cols))

		rt, err := newAnalysisRuntime(c, c.OpenRouterAPIKey)
		if err != nil {
			return err
		}
		analyst := &agent.Analyst{
			Runtime:     rt,
			Sandboxes:   newSandboxes(c, c.E2BAPIKey),
			Tiers:       c.TokenTiers,
			Temperature: c.Temperature,
			Fallback:    c.FallbackModel,
			Progress:    consoleProgress,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		out, runErr := analyst.Run(ctx, agent.Request{
			Question:    question,
			Model:       model,
			DatasetName: name,
			Dataset:     data,
			Profile:     prof,
		})
		w := cmd.OutOrStdout()
		if out != nil && askShowCode && out.Code != "" {
			fmt.Fprintf(w, "\n# Generated by %s\n%s\n\n", out.Model, out.Code)
		}
		if runErr != nil {
			return describeFailure(runErr)
		}

		views, err := render.Views(out.Execution.Results, out.Execution.StdoutText())
		if errors.Is(err, render.ErrNothingToShow) {
			logging.Warn("No visualization generated. Try rephrasing your query.")
			return nil
		}
		if err := writeViews(w, views, askOutDir); err != nil {
			return err
		}
		logging.Success("Analysis complete!")
		return nil
	},
}

func consoleProgress(level agent.Level, msg string) {
	switch level {
	case agent.LevelWarn:
		logging.Warn(msg)
	case agent.LevelSuccess:
		logging.Success(msg)
	default:
		logging.Step(msg)
	}
}

// resolveModel accepts a picker label or a model ID; empty selects the
// configured default.
func resolveModel(v string, c *cfgpkg.Global) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		if c.DefaultModel != "" {
			return c.DefaultModel, nil
		}
		return ai.DefaultModel, nil
	}
	if opt, ok := ai.OptionByLabel(v); ok {
		return opt.ID, nil
	}
	if strings.HasPrefix(v, "[") {
		return "", fmt.Errorf("unknown model label %q (see 'vizagent models')", v)
	}
	return v, nil
}

func licensed(given, want string) bool {
	if given == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(want)) == 1
}

// describeFailure maps analysis errors onto the messages the web app shows.
func describeFailure(err error) error {
	var execErr *sandbox.ExecutionError
	var unreachable *ai.UnreachableError
	var authErr *ai.AuthError
	switch {
	case errors.Is(err, agent.ErrNoResponse):
		return errors.New("failed to generate LLM response after multiple attempts")
	case errors.As(err, &execErr):
		if execErr.Traceback != "" {
			fmt.Fprintln(logging.Err, execErr.Traceback)
		}
		return fmt.Errorf("code execution error: %w", err)
	case errors.As(err, &authErr):
		for _, h := range ai.KeyHint(ai.ProviderOpenRouter, err) {
			logging.Info(h)
		}
		return fmt.Errorf("error communicating with OpenRouter: %w", err)
	case ai.StatusCode(err) != 0 || errors.As(err, &unreachable):
		return fmt.Errorf("error communicating with OpenRouter: %w", err)
	default:
		logging.Info("Please check your API keys and try again.")
		return err
	}
}

// writeViews saves images into dir and prints tables and text to w.
func writeViews(w io.Writer, views []render.View, dir string) error {
	img := 0
	for _, v := range views {
		switch v.Kind {
		case render.KindImage:
			img++
			if err := utils.EnsureDir(dir); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			path := filepath.Join(dir, fmt.Sprintf("chart_%d.png", img))
			if err := utils.SafeWriteFile(path, v.PNG); err != nil {
				return err
			}
			fmt.Fprintf(w, "✓ Wrote %s (%dx%d)\n", path, v.Width, v.Height)
		case render.KindTable:
			if err := printTable(w, v.Table); err != nil {
				return err
			}
		case render.KindError:
			logging.Error(v.Text)
		default:
			if v.Caption != "" {
				fmt.Fprintf(w, "%s:\n", v.Caption)
			}
			fmt.Fprintln(w, v.Text)
		}
	}
	return nil
}

func printTable(w io.Writer, t *render.Table) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.Columns, "\t")+"\t")
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t")+"\t")
	}
	return tw.Flush()
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askModel, "model", "m", "", "model ID or picker label (default from config)")
	askCmd.Flags().StringVar(&askOutDir, "out-dir", ".", "directory for generated charts")
	askCmd.Flags().StringVar(&askLicense, "license", "", "Pro license key for premium models")
	askCmd.Flags().BoolVar(&askShowCode, "show-code", false, "print the generated Python code")
}
