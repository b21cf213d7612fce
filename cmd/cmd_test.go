package cmd

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/vizagent/internal/agent"
	"github.com/KaramelBytes/vizagent/internal/ai"
	cfgpkg "github.com/KaramelBytes/vizagent/internal/config"
	"github.com/KaramelBytes/vizagent/internal/logging"
	"github.com/KaramelBytes/vizagent/internal/sandbox"
)

const salesCSV = "category,sales\nA,10\nB,20\nA,30\n"

// isolate points HOME at a temp dir, clears provider keys and resets the
// package-level flag variables that stick between Execute calls.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{"OPENROUTER_API_KEY", "E2B_API_KEY", "TOGETHER_API_KEY", "VIZAGENT_LICENSE_KEY"} {
		t.Setenv(k, "")
	}
	cfg, cfgFile = nil, ""
	askModel, askLicense, askOutDir, askShowCode = "", "", ".", false
	anaDelimiter, anaOutput, anaMaxRows, anaHeadRows, anaShowPrompt = "", "", 0, 0, false
	checkKeyValue, checkKeyModel, checkKeyBaseURL = "", "", ""
	abDelimiter, abOutDir, abHeadRows, abMaxRows, abJobs, abQuiet = "", "", 0, 0, 4, false
	serveAddr = ""

	oldOut, oldErr := logging.Out, logging.Err
	logging.Out, logging.Err = &bytes.Buffer{}, &bytes.Buffer{}
	t.Cleanup(func() {
		logging.Out, logging.Err = oldOut, oldErr
		cfg = nil
	})
	return home
}

// run executes the root command and returns what it wrote to stdout.
func run(t *testing.T, in string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(in))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeCSV(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", mask(""))
	assert.Equal(t, "******", mask("abc"))
	assert.Equal(t, "sk-****xyz", mask("sk-or-v1-xyz"))
}

func TestParseDelimiter(t *testing.T) {
	for in, want := range map[string]rune{"tab": '\t', ";": ';', "pipe": '|', "comma": ','} {
		got, err := parseDelimiter(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseDelimiter("ab")
	assert.Error(t, err)
}

func TestResolveModel(t *testing.T) {
	c := &cfgpkg.Global{DefaultModel: "openai/gpt-4o"}

	got, err := resolveModel("", c)
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o", got)

	got, err = resolveModel("[premium] deepseek r1", c)
	require.NoError(t, err)
	assert.Equal(t, "deepseek/deepseek-r1", got)

	got, err = resolveModel("mistralai/mistral-7b-instruct", c)
	require.NoError(t, err)
	assert.Equal(t, "mistralai/mistral-7b-instruct", got)

	_, err = resolveModel("[FREE] Nope", c)
	assert.Error(t, err)

	got, err = resolveModel("", &cfgpkg.Global{})
	require.NoError(t, err)
	assert.Equal(t, ai.DefaultModel, got)
}

func TestModelsListsTiers(t *testing.T) {
	isolate(t)
	out, err := run(t, "", "models")
	require.NoError(t, err)
	assert.Contains(t, out, "[PREMIUM] DeepSeek R1")
	assert.Contains(t, out, "premium")
	assert.Contains(t, out, ai.FallbackModel+" (default) (fallback)")
}

func TestAnalyzePrintsProfile(t *testing.T) {
	home := isolate(t)
	path := writeCSV(t, home, "sales.csv", salesCSV)

	out, err := run(t, "", "analyze", path, "--show-prompt")
	require.NoError(t, err)
	assert.Contains(t, out, "Rows: 3")
	assert.Contains(t, out, "Columns: 2")
	assert.Contains(t, out, "| sales | int64 | 3 | 0 |")
	assert.Contains(t, out, "[SYSTEM PROMPT]")
	assert.Contains(t, out, "sales.csv")
}

func TestAnalyzeWritesOutputFile(t *testing.T) {
	home := isolate(t)
	path := writeCSV(t, home, "semi.csv", "a;b\n1;x\n")
	dst := filepath.Join(home, "report.md")

	out, err := run(t, "", "analyze", path, "--delimiter", "semicolon", "-o", dst)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Wrote")

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Contains(t, string(data), "| b | object | 1 | 0 |")
}

func TestConfigSetThenShowMasksSecrets(t *testing.T) {
	home := isolate(t)
	file := filepath.Join(home, "vz", "config.yaml")

	_, err := run(t, "", "config", "set", "openrouter_api_key", "sk-or-secret-123", "--config", file)
	require.NoError(t, err)
	_, err = run(t, "", "config", "set", "preview_rows", "25", "--config", file)
	require.NoError(t, err)

	cfg = nil
	out, err := run(t, "", "config", "show", "--config", file)
	require.NoError(t, err)
	assert.Contains(t, out, "openrouter_api_key: sk-****123")
	assert.Contains(t, out, "preview_rows: 25")
	assert.NotContains(t, out, "secret")

	_, err = run(t, "", "config", "set", "no_such_key", "1", "--config", file)
	assert.Error(t, err)
}

type stubRuntime struct {
	models []string
	reply  string
}

func (s *stubRuntime) Generate(_ context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	s.models = append(s.models, req.Model)
	return &ai.GenerateResponse{Choices: []ai.Choice{{Message: ai.Message{Role: "assistant", Content: s.reply}}}}, nil
}

type stubSession struct {
	exec    *sandbox.Execution
	written []string
	killed  bool
}

func (s *stubSession) WriteFile(_ context.Context, path string, _ []byte) error {
	s.written = append(s.written, path)
	return nil
}

func (s *stubSession) RunCode(context.Context, string) (*sandbox.Execution, error) {
	return s.exec, nil
}

func (s *stubSession) Kill(context.Context) error {
	s.killed = true
	return nil
}

type stubSandboxes struct{ sess *stubSession }

func (s stubSandboxes) Start(context.Context) (agent.Session, error) { return s.sess, nil }

func tinyPNG(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 3, 2))))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// stubAnalysis swaps the OpenRouter and E2B constructors for in-memory fakes.
func stubAnalysis(t *testing.T, exec *sandbox.Execution) (*stubRuntime, *stubSession) {
	t.Helper()
	rt := &stubRuntime{reply: "Sure:\n```python\nimport pandas as pd\nprint('hi')\n```"}
	sess := &stubSession{exec: exec}
	oldRT, oldSB := newAnalysisRuntime, newSandboxes
	newAnalysisRuntime = func(*cfgpkg.Global, string) (ai.Runtime, error) { return rt, nil }
	newSandboxes = func(*cfgpkg.Global, string) agent.Sandboxes { return stubSandboxes{sess: sess} }
	t.Cleanup(func() { newAnalysisRuntime, newSandboxes = oldRT, oldSB })
	return rt, sess
}

func TestAskWritesChartsAndPrintsTables(t *testing.T) {
	home := isolate(t)
	t.Setenv("OPENROUTER_API_KEY", "sk-or-test")
	t.Setenv("E2B_API_KEY", "e2b_test")
	path := writeCSV(t, home, "my sales.csv", salesCSV)
	outDir := filepath.Join(home, "charts")

	rt, sess := stubAnalysis(t, &sandbox.Execution{
		Results: []sandbox.Result{
			{PNG: tinyPNG(t)},
			{Data: json.RawMessage(`{"category":{"0":"A","1":"B"},"sales":{"0":40,"1":20}}`)},
		},
		Stdout: []string{"done\n"},
	})

	out, err := run(t, "", "ask", path, "Total", "sales", "by", "category", "--out-dir", outDir, "--show-code")
	require.NoError(t, err)

	assert.Equal(t, []string{ai.DefaultModel}, rt.models)
	assert.Equal(t, []string{"./my_sales.csv"}, sess.written)
	assert.True(t, sess.killed)

	assert.Contains(t, out, "print('hi')")
	assert.Contains(t, out, "chart_1.png (3x2)")
	assert.Contains(t, out, "category")
	assert.Contains(t, out, "40")
	assert.Contains(t, out, "Output:\ndone")
	_, err = os.Stat(filepath.Join(outDir, "chart_1.png"))
	assert.NoError(t, err)
}

func TestAskNothingToShowIsNotAnError(t *testing.T) {
	home := isolate(t)
	t.Setenv("OPENROUTER_API_KEY", "sk-or-test")
	t.Setenv("E2B_API_KEY", "e2b_test")
	path := writeCSV(t, home, "s.csv", salesCSV)
	stubAnalysis(t, &sandbox.Execution{})

	_, err := run(t, "", "ask", path, "anything")
	require.NoError(t, err)
	assert.Contains(t, logging.Out.(*bytes.Buffer).String(), "No visualization generated")
}

func TestAskRequiresKeysAndLicense(t *testing.T) {
	home := isolate(t)
	path := writeCSV(t, home, "s.csv", salesCSV)
	stubAnalysis(t, &sandbox.Execution{})

	_, err := run(t, "", "ask", path, "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OpenRouter API key is missing")

	t.Setenv("OPENROUTER_API_KEY", "sk-or-test")
	cfg = nil
	_, err = run(t, "", "ask", path, "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E2B API key is missing")

	t.Setenv("E2B_API_KEY", "e2b_test")
	cfg = nil
	_, err = run(t, "", "ask", path, "q", "--model", "[PREMIUM] Claude 3.5 Sonnet")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked for Free users")

	_, err = run(t, "", "ask", path, "q", "--model", "[PREMIUM] Claude 3.5 Sonnet", "--license", "PRO-2025")
	assert.NoError(t, err)
}

func TestAskRejectsNonCSV(t *testing.T) {
	home := isolate(t)
	t.Setenv("OPENROUTER_API_KEY", "sk-or-test")
	t.Setenv("E2B_API_KEY", "e2b_test")
	path := writeCSV(t, home, "data.txt", salesCSV)
	stubAnalysis(t, &sandbox.Execution{})

	_, err := run(t, "", "ask", path, "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only .csv files")
}

func fakeTogether(t *testing.T, wantKey string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer "+wantKey {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"Invalid API key provided","type":"invalid_request_error"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"c1","choices":[{"index":0,"message":{"role":"assistant","content":"Hello"}}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckKeySucceeds(t *testing.T) {
	isolate(t)
	srv := fakeTogether(t, "tg-good")

	out, err := run(t, "", "check-key", "--key", "tg-good", "--base-url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "working correctly")
	assert.Contains(t, logging.Out.(*bytes.Buffer).String(), "Response: Hello")
}

func TestCheckKeyPromptsAndExplainsFailure(t *testing.T) {
	isolate(t)
	srv := fakeTogether(t, "tg-good")

	out, err := run(t, "tg-bad\n", "check-key", "--base-url", srv.URL)
	require.Error(t, err)
	assert.Contains(t, out, "Enter your Together AI API key:")
	assert.Contains(t, out, "Solutions:")
	assert.Contains(t, out, "1. Double-check your API key at https://api.together.ai/settings/api-keys")
}

func TestCheckKeyEmptyPrompt(t *testing.T) {
	isolate(t)
	_, err := run(t, "\n", "check-key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no API key provided")
}
