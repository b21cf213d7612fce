package sandbox

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// maxLine bounds a single NDJSON frame. Base64 charts can be several MB.
const maxLine = 64 << 20

// Result is one rich output of an execution, such as a displayed figure or
// the value of the last expression.
type Result struct {
	Text         string          `json:"text,omitempty"`
	HTML         string          `json:"html,omitempty"`
	Markdown     string          `json:"markdown,omitempty"`
	SVG          string          `json:"svg,omitempty"`
	PNG          string          `json:"png,omitempty"`
	JPEG         string          `json:"jpeg,omitempty"`
	PDF          string          `json:"pdf,omitempty"`
	LaTeX        string          `json:"latex,omitempty"`
	JSON         map[string]any  `json:"json,omitempty"`
	JavaScript   string          `json:"javascript,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	IsMainResult bool            `json:"is_main_result,omitempty"`
}

// Formats lists the representations present on r.
func (r Result) Formats() []string {
	var out []string
	add := func(name string, ok bool) {
		if ok {
			out = append(out, name)
		}
	}
	add("text", r.Text != "")
	add("html", r.HTML != "")
	add("markdown", r.Markdown != "")
	add("svg", r.SVG != "")
	add("png", r.PNG != "")
	add("jpeg", r.JPEG != "")
	add("pdf", r.PDF != "")
	add("latex", r.LaTeX != "")
	add("json", len(r.JSON) > 0)
	add("javascript", r.JavaScript != "")
	add("data", len(r.Data) > 0)
	return out
}

// ExecutionError is a Python exception raised by executed code.
type ExecutionError struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Traceback string `json:"traceback"`
}

func (e *ExecutionError) Error() string {
	if e.Value == "" {
		return e.Name
	}
	return e.Name + ": " + e.Value
}

// Execution collects everything a code run produced.
type Execution struct {
	Results        []Result
	Stdout         []string
	Stderr         []string
	Error          *ExecutionError
	ExecutionCount int
}

// StdoutText joins captured stdout chunks.
func (e *Execution) StdoutText() string { return strings.Join(e.Stdout, "") }

// StderrText joins captured stderr chunks.
func (e *Execution) StderrText() string { return strings.Join(e.Stderr, "") }

type frame struct {
	Type string `json:"type"`
	Result
	// stdout / stderr
	Line string `json:"text"`
	// error
	Name      string `json:"name"`
	Value     string `json:"value"`
	Traceback string `json:"traceback"`
	// number_of_executions
	ExecutionCount int `json:"execution_count"`
}

// parseStream reads the interpreter's NDJSON output into an Execution.
func parseStream(r io.Reader) (*Execution, error) {
	exec := &Execution{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLine)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var f frame
		if err := json.Unmarshal([]byte(line), &f); err != nil {
			return exec, fmt.Errorf("decode execution frame: %w", err)
		}
		switch f.Type {
		case "result":
			res := f.Result
			// "text" is shared between result and stream frames
			res.Text = f.Line
			exec.Results = append(exec.Results, res)
		case "stdout":
			exec.Stdout = append(exec.Stdout, f.Line)
		case "stderr":
			exec.Stderr = append(exec.Stderr, f.Line)
		case "error":
			exec.Error = &ExecutionError{Name: f.Name, Value: f.Value, Traceback: f.Traceback}
		case "number_of_executions":
			exec.ExecutionCount = f.ExecutionCount
		}
	}
	if err := sc.Err(); err != nil {
		return exec, fmt.Errorf("read execution stream: %w", err)
	}
	return exec, nil
}
