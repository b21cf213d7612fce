package web

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/vizagent/internal/agent"
	"github.com/KaramelBytes/vizagent/internal/ai"
	"github.com/KaramelBytes/vizagent/internal/analysis"
	"github.com/KaramelBytes/vizagent/internal/prompt"
	"github.com/KaramelBytes/vizagent/internal/render"
	"github.com/KaramelBytes/vizagent/internal/sandbox"
	"github.com/KaramelBytes/vizagent/internal/utils"
)

const customQuery = "Custom query..."

// ExampleQueries are offered above the question box.
var ExampleQueries = []string{
	"Show me the distribution of values in the first numeric column",
	"Create a bar chart comparing categories",
	"Show correlation between numeric columns as a heatmap",
	"What are the top 10 values by frequency?",
	"Create a scatter plot of the two main numeric columns",
}

// User-facing validation messages.
const (
	msgNeedOpenRouterKey = "Please enter your OpenRouter API key in the sidebar"
	msgNeedE2BKey        = "Please enter your E2B API key in the sidebar"
	msgNeedQuestion      = "Please enter a question about your data"
	msgNeedDataset       = "Please upload a CSV file to get started"
	msgLocked            = "This model is locked for Free users."
)

type modelChoice struct {
	ID       string
	Label    string
	Premium  bool
	Selected bool
}

type datasetView struct {
	Name     string
	Rows     int
	Cols     int
	ShowFull bool
	Preview  *render.Table
	Columns  []analysis.Column
	Warnings []string
}

type pageData struct {
	Premium          bool
	HasOpenRouterKey bool
	HasE2BKey        bool
	Models           []modelChoice
	Locked           bool
	Dataset          *datasetView
	Examples         []string
	CustomQuery      string
	Flashes          []Flash
	Last             *Analysis
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		s.log.Error("template error", zap.String("template", name), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := s.store.Get(w, r)
	showFull := r.URL.Query().Get("full") == "1"

	sess.Lock()
	data := pageData{
		Premium:          sess.Premium,
		HasOpenRouterKey: sess.OpenRouterKey != "",
		HasE2BKey:        sess.E2BKey != "",
		Examples:         ExampleQueries,
		CustomQuery:      customQuery,
		Flashes:          sess.TakeFlashes(),
		Last:             sess.Last,
	}
	for _, o := range ai.Options() {
		selected := o.Label == sess.ModelLabel
		data.Models = append(data.Models, modelChoice{ID: o.ID, Label: o.Label, Premium: o.Premium, Selected: selected})
		if selected && o.Premium && !sess.Premium {
			data.Locked = true
		}
	}
	if ds := sess.Dataset; ds != nil {
		data.Dataset = newDatasetView(ds, showFull, s.cfg.PreviewRows)
	}
	sess.Unlock()

	s.render(w, "index.html", data)
}

func newDatasetView(ds *Dataset, full bool, previewRows int) *datasetView {
	p := ds.Profile
	rows, cols := p.Shape()
	records := p.Records
	if !full {
		records = p.Head(previewRows)
	}
	preview := &render.Table{Columns: append([]string{""}, p.Header()...)}
	for i, rec := range records {
		preview.Rows = append(preview.Rows, append([]string{strconv.Itoa(i)}, rec...))
	}
	return &datasetView{
		Name:     ds.Name,
		Rows:     rows,
		Cols:     cols,
		ShowFull: full,
		Preview:  preview,
		Columns:  p.Columns,
		Warnings: p.Warnings,
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "sessions": s.store.Len()})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	sess := s.store.Get(w, r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	sess.Lock()
	defer sess.Unlock()
	// blank password fields keep the stored key
	if v := strings.TrimSpace(r.PostFormValue("openrouter_key")); v != "" {
		sess.OpenRouterKey = v
	}
	if v := strings.TrimSpace(r.PostFormValue("e2b_key")); v != "" {
		sess.E2BKey = v
	}
	if r.PostFormValue("clear_keys") == "1" {
		sess.OpenRouterKey, sess.E2BKey = "", ""
	}
	if label := r.PostFormValue("model"); label != "" {
		s.selectModel(sess, label)
	}
	redirectHome(w, r)
}

// selectModel applies the premium gate; callers hold the session lock.
func (s *Server) selectModel(sess *Session, label string) {
	opt, ok := ai.OptionByLabel(label)
	if !ok {
		sess.AddFlash(FlashError, fmt.Sprintf("Unknown model: %s", label))
		return
	}
	sess.ModelLabel = opt.Label
	if opt.Premium && !sess.Premium {
		sess.Model = ""
		sess.AddFlash(FlashWarn, msgLocked)
		return
	}
	sess.Model = opt.ID
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	sess := s.store.Get(w, r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	code := r.PostFormValue("license_key")
	sess.Lock()
	defer sess.Unlock()
	if s.cfg.LicenseKey == "" || subtle.ConstantTimeCompare([]byte(code), []byte(s.cfg.LicenseKey)) != 1 {
		sess.AddFlash(FlashError, "Invalid license key")
		redirectHome(w, r)
		return
	}
	sess.Premium = true
	if opt, ok := ai.OptionByLabel(sess.ModelLabel); ok {
		sess.Model = opt.ID
	}
	sess.AddFlash(FlashSuccess, "Premium Unlocked!")
	s.log.Info("premium unlocked", zap.String("session", sess.ID))
	redirectHome(w, r)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess := s.store.Get(w, r)
	limit := s.cfg.MaxUploadBytes()
	if limit <= 0 {
		limit = 25 << 20
	}
	// allow for multipart framing on top of the file itself
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	ds, err := readDataset(r, limit, s.cfg.PreviewRows)

	sess.Lock()
	defer sess.Unlock()
	if err != nil {
		sess.AddFlash(FlashError, fmt.Sprintf("Error loading dataset: %v", err))
		redirectHome(w, r)
		return
	}
	sess.Dataset = ds
	sess.Last = nil
	for _, warn := range ds.Profile.Warnings {
		sess.AddFlash(FlashWarn, warn)
	}
	s.log.Info("dataset uploaded",
		zap.String("session", sess.ID),
		zap.String("name", ds.Name),
		zap.Int("rows", ds.Profile.Rows),
		zap.Int("columns", len(ds.Profile.Columns)))
	redirectHome(w, r)
}

func readDataset(r *http.Request, limit int64, previewRows int) (*Dataset, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, fmt.Errorf("file exceeds %d MB", limit>>20)
		}
		return nil, fmt.Errorf("read upload: %w", err)
	}
	f, hdr, err := r.FormFile("dataset")
	if err != nil {
		return nil, errors.New("choose a CSV file")
	}
	defer f.Close()
	if !strings.EqualFold(filepath.Ext(hdr.Filename), ".csv") {
		return nil, fmt.Errorf("%s is not a CSV file", hdr.Filename)
	}
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("file exceeds %d MB", limit>>20)
	}
	name := utils.SanitizeFileName(hdr.Filename)
	opt := analysis.DefaultOptions()
	if previewRows > 0 {
		opt.HeadRows = previewRows
	}
	p, err := analysis.ProfileBytes(data, name, opt)
	if err != nil {
		return nil, err
	}
	return &Dataset{Name: name, Data: data, Profile: p}, nil
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	sess := s.store.Get(w, r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	question := strings.TrimSpace(r.PostFormValue("question"))
	if question == "" {
		question = exampleQuery(r.PostFormValue("example"))
	}

	// snapshot under the lock; the run itself happens unlocked
	sess.Lock()
	orKey, e2bKey, model, ds := sess.OpenRouterKey, sess.E2BKey, sess.Model, sess.Dataset
	var problem string
	switch {
	case orKey == "":
		problem = msgNeedOpenRouterKey
	case e2bKey == "":
		problem = msgNeedE2BKey
	case question == "":
		problem = msgNeedQuestion
	case ds == nil:
		problem = msgNeedDataset
	case model == "":
		problem = msgLocked
	}
	if problem != "" {
		sess.AddFlash(FlashError, problem)
		sess.Unlock()
		redirectHome(w, r)
		return
	}
	sess.Unlock()

	last, flashes := s.runAnalysis(r, sess.ID, question, model, orKey, e2bKey, ds)

	sess.Lock()
	sess.Last = last
	for _, f := range flashes {
		sess.AddFlash(f.Level, f.Text)
	}
	sess.Unlock()
	redirectHome(w, r)
}

func exampleQuery(v string) string {
	for _, q := range ExampleQueries {
		if v == q {
			return q
		}
	}
	return ""
}

func (s *Server) runAnalysis(r *http.Request, sessionID, question, model, orKey, e2bKey string, ds *Dataset) (*Analysis, []Flash) {
	rt, err := s.newRuntime(orKey)
	if err != nil {
		return nil, []Flash{{FlashError, fmt.Sprintf("An error occurred: %v", err)}}
	}
	last := &Analysis{Question: question, Model: model}
	analyst := &agent.Analyst{
		Runtime:     rt,
		Sandboxes:   s.newSandboxes(e2bKey),
		Tiers:       s.cfg.TokenTiers,
		Temperature: s.cfg.Temperature,
		Fallback:    s.cfg.FallbackModel,
		Progress: func(level agent.Level, msg string) {
			last.Progress = append(last.Progress, Flash{Level: progressLevel(level), Text: msg})
		},
	}

	system := prompt.ForProfile(ds.Profile)
	log := s.log.With(zap.String("session", sessionID), zap.String("model", model))
	if opt, ok := ai.LookupOption(model); ok && len(analyst.Tiers) > 0 && !utils.FitsBudget(system+question, analyst.Tiers[0], opt.ContextTokens) {
		log.Warn("prompt may exceed context window", zap.Int("context_tokens", opt.ContextTokens))
	}
	log.Debug("analysis started", zap.Any("prompt_tokens", utils.TokenBreakdown(map[string]string{"system": system, "question": question})))

	start := time.Now()
	out, err := analyst.Run(r.Context(), agent.Request{
		Question:    question,
		Model:       model,
		DatasetName: ds.Name,
		Dataset:     ds.Data,
		Profile:     ds.Profile,
	})
	last.Duration = time.Since(start)
	if out != nil {
		last.Model = out.Model
		last.Response = out.Response
		last.Code = out.Code
		last.Attempts = out.Attempts
	}
	if err != nil {
		log.Warn("analysis failed", zap.Error(err), zap.Duration("duration", last.Duration))
		return last, failureFlashes(err)
	}
	log.Info("analysis complete", zap.String("answered_by", last.Model), zap.Int("attempts", last.Attempts), zap.Duration("duration", last.Duration))

	views, err := render.Views(out.Execution.Results, out.Execution.StdoutText())
	if errors.Is(err, render.ErrNothingToShow) {
		return last, []Flash{{FlashWarn, "No visualization generated. Try rephrasing your query."}}
	}
	last.Views = views
	return last, []Flash{{FlashSuccess, "Analysis complete!"}}
}

func progressLevel(l agent.Level) FlashLevel {
	switch l {
	case agent.LevelWarn:
		return FlashWarn
	case agent.LevelSuccess:
		return FlashSuccess
	default:
		return FlashInfo
	}
}

// failureFlashes maps a failed run to the messages shown to the user.
func failureFlashes(err error) []Flash {
	var execErr *sandbox.ExecutionError
	var unreachable *ai.UnreachableError
	switch {
	case errors.Is(err, agent.ErrNoResponse):
		return []Flash{{FlashError, "Failed to generate LLM response after multiple attempts."}}
	case errors.As(err, &execErr):
		return []Flash{{FlashError, fmt.Sprintf("Code execution error: %v", execErr)}}
	case ai.StatusCode(err) != 0 || errors.As(err, &unreachable):
		return []Flash{{FlashError, fmt.Sprintf("Error communicating with OpenRouter: %v", err)}}
	default:
		return []Flash{
			{FlashError, fmt.Sprintf("An error occurred: %v", err)},
			{FlashInfo, "Please check your API keys and try again."},
		}
	}
}
