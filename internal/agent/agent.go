// Package agent runs one analysis round trip: upload the dataset to a fresh
// sandbox, ask the model for Python, execute it, and tear the sandbox down.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/KaramelBytes/vizagent/internal/ai"
	"github.com/KaramelBytes/vizagent/internal/analysis"
	"github.com/KaramelBytes/vizagent/internal/extract"
	"github.com/KaramelBytes/vizagent/internal/prompt"
	"github.com/KaramelBytes/vizagent/internal/sandbox"
)

// DefaultTiers are the max_tokens budgets tried in order.
var DefaultTiers = []int{2000, 500, 200}

const DefaultTemperature = 0.2

var (
	// ErrNoResponse means every tier failed with a recoverable error.
	ErrNoResponse = errors.New("failed to generate LLM response after multiple attempts")
	ErrNoModel    = errors.New("no model selected")
	ErrNoQuestion = errors.New("please enter a question about your data")
	ErrNoDataset  = errors.New("no dataset uploaded")
)

// Level classifies a progress message.
type Level int

const (
	LevelStep Level = iota
	LevelWarn
	LevelSuccess
)

// Progress receives human-readable status updates during Run.
type Progress func(level Level, msg string)

// Session is a live sandbox.
type Session interface {
	WriteFile(ctx context.Context, path string, data []byte) error
	RunCode(ctx context.Context, code string) (*sandbox.Execution, error)
	Kill(ctx context.Context) error
}

// Sandboxes starts sandboxes.
type Sandboxes interface {
	Start(ctx context.Context) (Session, error)
}

type e2bSandboxes struct{ c *sandbox.Client }

func (e e2bSandboxes) Start(ctx context.Context) (Session, error) {
	sbx, err := e.c.Create(ctx)
	if err != nil {
		return nil, err
	}
	return sbx, nil
}

// FromE2B adapts an E2B client to Sandboxes.
func FromE2B(c *sandbox.Client) Sandboxes { return e2bSandboxes{c: c} }

// Analyst wires a model runtime to a sandbox provider. Fallback is the model
// switched to when the selected one is busy.
type Analyst struct {
	Runtime     ai.Runtime
	Sandboxes   Sandboxes
	Tiers       []int
	Temperature float64
	Fallback    string
	Progress    Progress
}

// Request is one question about one dataset. DatasetName is the file name
// the generated code reads, e.g. "sales.csv".
type Request struct {
	Question    string
	Model       string
	DatasetName string
	Dataset     []byte
	Profile     *analysis.Profile
}

// Outcome is what a Run produced. It is returned alongside errors once the
// model has been asked, so callers can still show the switched model and the
// generated code.
type Outcome struct {
	Model     string
	Response  string
	Code      string
	Execution *sandbox.Execution
	Attempts  int
}

func (a *Analyst) report(level Level, format string, args ...any) {
	if a.Progress != nil {
		a.Progress(level, fmt.Sprintf(format, args...))
	}
}

func (a *Analyst) tiers() []int {
	if len(a.Tiers) == 0 {
		return DefaultTiers
	}
	return a.Tiers
}

func (a *Analyst) fallback() string {
	if a.Fallback == "" {
		return ai.FallbackModel
	}
	return a.Fallback
}

func (a *Analyst) temperature() float64 {
	if a.Temperature == 0 {
		return DefaultTemperature
	}
	return a.Temperature
}

// Run executes req end to end. The sandbox is always killed before returning.
func (a *Analyst) Run(ctx context.Context, req Request) (out *Outcome, err error) {
	if strings.TrimSpace(req.Model) == "" {
		return nil, ErrNoModel
	}
	if strings.TrimSpace(req.Question) == "" {
		return nil, ErrNoQuestion
	}
	if req.DatasetName == "" || req.Profile == nil {
		return nil, ErrNoDataset
	}
	if a.Runtime == nil || a.Sandboxes == nil {
		return nil, errors.New("analyst is not configured")
	}

	a.report(LevelStep, "Initializing secure sandbox...")
	sbx, err := a.Sandboxes.Start(ctx)
	if err != nil {
		return nil, fmt.Errorf("start sandbox: %w", err)
	}
	defer func() {
		// a cancelled request context must not leak the sandbox
		killCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		_ = sbx.Kill(killCtx)
	}()

	a.report(LevelStep, "Uploading dataset to sandbox...")
	path := prompt.DatasetPath(req.DatasetName)
	if err := sbx.WriteFile(ctx, path, req.Dataset); err != nil {
		return nil, fmt.Errorf("upload dataset: %w", err)
	}
	a.report(LevelSuccess, "Dataset uploaded: %s", req.DatasetName)

	system := prompt.SystemPrompt(path, prompt.ColumnsInfo(req.Profile))
	out = &Outcome{Model: req.Model}
	reply, err := a.generate(ctx, out, prompt.Messages(system, req.Question))
	if err != nil {
		return out, err
	}
	out.Response = reply
	out.Code = extract.PythonCode(reply)

	a.report(LevelStep, "Executing code in E2B sandbox...")
	exec, err := sbx.RunCode(ctx, out.Code)
	if err != nil {
		return out, fmt.Errorf("execute code: %w", err)
	}
	out.Execution = exec
	if exec.Error != nil {
		return out, exec.Error
	}
	return out, nil
}

// generate walks the token tiers. A 402 steps down to the next tier; a busy
// model switches to the fallback and continues with the next tier; anything
// else aborts.
func (a *Analyst) generate(ctx context.Context, out *Outcome, msgs []ai.Message) (string, error) {
	tiers := a.tiers()
	for i, limit := range tiers {
		out.Attempts = i + 1
		a.report(LevelStep, "Generating analysis (Attempt %d with %d tokens)...", i+1, limit)
		resp, err := a.Runtime.Generate(ctx, ai.GenerateRequest{
			Model:       out.Model,
			Messages:    msgs,
			MaxTokens:   limit,
			Temperature: a.temperature(),
		})
		if err == nil {
			return resp.Content(), nil
		}
		switch {
		case ai.IsQuotaExhausted(err) && i < len(tiers)-1:
			a.report(LevelWarn, "Credit limit reached for %d tokens. Retrying with lower limit...", limit)
			continue
		case ai.IsBusy(err) && out.Model != a.fallback():
			a.report(LevelWarn, "Model %s is busy (Rate Limit). Switching to %s...", out.Model, a.fallback())
			out.Model = a.fallback()
			continue
		default:
			return "", err
		}
	}
	return "", ErrNoResponse
}
