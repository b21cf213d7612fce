package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
)

// Sandbox is a running E2B instance.
type Sandbox struct {
	ID       string
	ClientID string
	Domain   string

	accessToken string
	client      *Client
}

func (s *Sandbox) hostURL(port int) string {
	return s.client.cfg.HostURL(port, s.ID, s.Domain)
}

func (s *Sandbox) authorize(req *http.Request) {
	if s.accessToken != "" {
		req.Header.Set("X-Access-Token", s.accessToken)
	}
}

// WriteFile uploads data to dst inside the sandbox filesystem.
func (s *Sandbox) WriteFile(ctx context.Context, dst string, data []byte) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", path.Base(dst))
	if err != nil {
		return fmt.Errorf("build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("build upload: %w", err)
	}

	q := url.Values{}
	q.Set("path", dst)
	q.Set("username", "user")
	endpoint := s.hostURL(envdPort) + "/files?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	s.authorize(req)

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("write %s: %w", dst, decodeError(resp))
	}
	return nil
}

type executeRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

// RunCode executes Python in the sandbox's interpreter. A Python exception is
// reported on Execution.Error, not as the returned error.
func (s *Sandbox) RunCode(ctx context.Context, code string) (*Execution, error) {
	payload, err := json.Marshal(executeRequest{Code: code, Language: "python"})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.hostURL(interpreterPort)+"/execute", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("run code: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("run code: %w", decodeError(resp))
	}
	return parseStream(resp.Body)
}

// Kill terminates the sandbox. An already-gone sandbox is not an error.
func (s *Sandbox) Kill(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.client.cfg.APIURL+"/sandboxes/"+url.PathEscape(s.ID), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-API-Key", s.client.cfg.APIKey)
	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("kill sandbox: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("kill sandbox: %w", decodeError(resp))
	}
	return nil
}
