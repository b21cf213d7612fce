// Package sandbox is a small client for the E2B code-interpreter service:
// create a sandbox, upload a file into it, run Python, and kill it.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultAPIURL   = "https://api.e2b.app"
	DefaultDomain   = "e2b.app"
	DefaultTemplate = "code-interpreter-v1"

	envdPort        = 49983
	interpreterPort = 49999
)

// Config configures a Client. Zero values select E2B defaults.
type Config struct {
	APIKey      string
	APIURL      string
	Domain      string
	Template    string
	Lifetime    time.Duration
	HTTPTimeout time.Duration
	// HostURL maps a sandbox port to a base URL. Tests point it at a local server.
	HostURL func(port int, sandboxID, domain string) string
}

// Client creates sandboxes through the E2B control plane.
type Client struct {
	httpClient *http.Client
	cfg        Config
}

// APIError is a non-2xx answer from the control plane or a sandbox service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("sandbox api error: status=%d message=%s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("sandbox api error: status=%d", e.StatusCode)
}

// NewClient applies defaults to cfg and returns a Client.
func NewClient(cfg Config) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.Domain == "" {
		cfg.Domain = DefaultDomain
	}
	if cfg.Template == "" {
		cfg.Template = DefaultTemplate
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = 5 * time.Minute
	}
	// code runs can legitimately take a while; keep the transport timeout generous
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 5 * time.Minute
	}
	if cfg.HostURL == nil {
		cfg.HostURL = func(port int, id, domain string) string {
			return fmt.Sprintf("https://%d-%s.%s", port, id, domain)
		}
	}
	return &Client{httpClient: &http.Client{Timeout: cfg.HTTPTimeout}, cfg: cfg}
}

type createRequest struct {
	TemplateID string `json:"templateID"`
	Timeout    int    `json:"timeout"`
}

type createResponse struct {
	SandboxID       string `json:"sandboxID"`
	ClientID        string `json:"clientID"`
	EnvdVersion     string `json:"envdVersion"`
	EnvdAccessToken string `json:"envdAccessToken"`
	Domain          string `json:"domain"`
}

// Create starts a new code-interpreter sandbox.
func (c *Client) Create(ctx context.Context) (*Sandbox, error) {
	if c.cfg.APIKey == "" {
		return nil, errors.New("E2B_API_KEY is missing")
	}
	payload, err := json.Marshal(createRequest{
		TemplateID: c.cfg.Template,
		Timeout:    int(c.cfg.Lifetime.Seconds()),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL+"/sandboxes", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create sandbox: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("create sandbox: %w", decodeError(resp))
	}
	var out createResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode sandbox: %w", err)
	}
	if out.SandboxID == "" {
		return nil, errors.New("create sandbox: empty sandbox id")
	}
	domain := out.Domain
	if domain == "" {
		domain = c.cfg.Domain
	}
	return &Sandbox{
		ID:          out.SandboxID,
		ClientID:    out.ClientID,
		Domain:      domain,
		accessToken: out.EnvdAccessToken,
		client:      c,
	}, nil
}

func decodeError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	e := &APIError{StatusCode: resp.StatusCode}
	var raw map[string]any
	if json.Unmarshal(body, &raw) == nil {
		if msg, ok := raw["message"].(string); ok {
			e.Message = msg
		}
	} else if s := strings.TrimSpace(string(body)); s != "" {
		e.Message = s
	}
	return e
}
