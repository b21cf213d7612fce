// Package render turns sandbox results into display-ready views.
package render

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"strings"

	"github.com/KaramelBytes/vizagent/internal/sandbox"
)

// ErrNothingToShow means the execution produced no displayable output.
var ErrNothingToShow = errors.New("no visualization results to display")

// Kind identifies how a view is displayed.
type Kind string

const (
	KindImage Kind = "image"
	KindTable Kind = "table"
	KindText  Kind = "text"
	KindError Kind = "error"
)

// View is one displayable item. Image views carry the decoded PNG and a data
// URI ready for an <img> tag.
type View struct {
	Kind    Kind
	Caption string
	PNG     []byte
	DataURI string
	Width   int
	Height  int
	Table   *Table
	Text    string
}

// Views classifies results: PNG first, then non-empty data, then text.
// Captured stdout is appended as a final text view.
func Views(results []sandbox.Result, stdout string) ([]View, error) {
	var views []View
	for _, r := range results {
		switch {
		case r.PNG != "":
			views = append(views, imageView(r.PNG))
		case hasData(r.Data):
			views = append(views, View{Kind: KindTable, Table: TableFrom(r.Data)})
		case strings.TrimSpace(r.Text) != "":
			views = append(views, View{Kind: KindText, Text: r.Text})
		}
	}
	if s := strings.TrimSpace(stdout); s != "" {
		views = append(views, View{Kind: KindText, Caption: "Output", Text: s})
	}
	if len(views) == 0 {
		return nil, ErrNothingToShow
	}
	return views, nil
}

func imageView(b64 string) View {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return View{Kind: KindError, Text: fmt.Sprintf("Error displaying image: %v", err)}
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return View{Kind: KindError, Text: fmt.Sprintf("Error displaying image: %v", err)}
	}
	return View{
		Kind:    KindImage,
		Caption: "Generated Visualization",
		PNG:     raw,
		DataURI: "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw),
		Width:   cfg.Width,
		Height:  cfg.Height,
	}
}

// hasData mirrors Python truthiness: null, "", {} and [] are empty.
func hasData(raw json.RawMessage) bool {
	s := string(bytes.TrimSpace(raw))
	switch s {
	case "", "null", `""`, "false", "0":
		return false
	}
	if len(s) >= 2 && (s[0] == '{' || s[0] == '[') {
		return strings.TrimSpace(s[1:len(s)-1]) != ""
	}
	return true
}
