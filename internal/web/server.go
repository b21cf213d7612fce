// Package web serves the single-page analysis app.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/vizagent/internal/agent"
	"github.com/KaramelBytes/vizagent/internal/ai"
	"github.com/KaramelBytes/vizagent/internal/config"
	"github.com/KaramelBytes/vizagent/internal/sandbox"
)

//go:embed templates/*.html
var templateFS embed.FS

// Options configures a Server. NewRuntime and NewSandboxes default to
// OpenRouter and E2B; tests replace them.
type Options struct {
	Config       *config.Global
	Logger       *zap.Logger
	NewRuntime   func(apiKey string) (ai.Runtime, error)
	NewSandboxes func(apiKey string) agent.Sandboxes
	SessionTTL   time.Duration
}

// Server is the web app.
type Server struct {
	cfg          *config.Global
	log          *zap.Logger
	store        *Store
	tmpl         *template.Template
	newRuntime   func(apiKey string) (ai.Runtime, error)
	newSandboxes func(apiKey string) agent.Sandboxes
	ttl          time.Duration
}

// New parses templates and wires defaults.
func New(opt Options) (*Server, error) {
	if opt.Config == nil {
		return nil, errors.New("web: config is required")
	}
	tmpl, err := template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	s := &Server{
		cfg:          opt.Config,
		log:          opt.Logger,
		tmpl:         tmpl,
		newRuntime:   opt.NewRuntime,
		newSandboxes: opt.NewSandboxes,
		ttl:          opt.SessionTTL,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.ttl <= 0 {
		s.ttl = 2 * time.Hour
	}
	if s.newRuntime == nil {
		s.newRuntime = s.openRouterRuntime
	}
	if s.newSandboxes == nil {
		s.newSandboxes = s.e2bSandboxes
	}
	s.store = NewStore(s.seedSession)
	return s, nil
}

var funcs = template.FuncMap{
	// only PNG data URIs produced by render are trusted as image sources
	"imgsrc": func(uri string) template.URL {
		if strings.HasPrefix(uri, "data:image/png;base64,") {
			return template.URL(uri)
		}
		return ""
	},
	"inc": func(i int) int { return i + 1 },
}

func (s *Server) openRouterRuntime(apiKey string) (ai.Runtime, error) {
	base, ceiling := s.cfg.RetryDelays()
	rt, ok := ai.GetRuntime(ai.ProviderOpenRouter, ai.RuntimeConfig{
		APIKey:      apiKey,
		HTTPTimeout: s.cfg.HTTPTimeout(),
		RetryMax:    s.cfg.RetryMaxAttempts,
		BaseDelay:   base,
		MaxDelay:    ceiling,
	})
	if !ok {
		return nil, fmt.Errorf("provider %q is not registered", ai.ProviderOpenRouter)
	}
	return rt, nil
}

func (s *Server) e2bSandboxes(apiKey string) agent.Sandboxes {
	return agent.FromE2B(sandbox.NewClient(sandbox.Config{
		APIKey:   apiKey,
		Template: s.cfg.SandboxTemplate,
		Lifetime: s.cfg.SandboxLifetime(),
	}))
}

func (s *Server) seedSession(sess *Session) {
	sess.OpenRouterKey = s.cfg.OpenRouterAPIKey
	sess.E2BKey = s.cfg.E2BAPIKey
	model := s.cfg.DefaultModel
	if model == "" {
		model = ai.DefaultModel
	}
	if opt, ok := ai.LookupOption(model); ok {
		sess.ModelLabel = opt.Label
		if opt.Premium {
			// premium defaults still need a license
			return
		}
	}
	sess.Model = model
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealthz)
	r.Post("/settings", s.handleSettings)
	r.Post("/unlock", s.handleUnlock)
	r.Post("/upload", s.handleUpload)
	r.Post("/analyze", s.handleAnalyze)
	return r
}

// requestLogger logs one line per request with zap.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		}()
		next.ServeHTTP(ww, r)
	})
}

// Run listens on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the HTTP server and the session sweeper on ln, shutting both
// down gracefully when ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		t := time.NewTicker(s.ttl / 4)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				if n := s.store.Sweep(s.ttl); n > 0 {
					s.log.Debug("expired sessions", zap.Int("count", n))
				}
			}
		}
	})
	return g.Wait()
}
