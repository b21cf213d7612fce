package ai

import "strings"

// FallbackModel is the free model the analyst switches to when the selected
// model is rate limited or unavailable.
const FallbackModel = "google/gemini-2.0-flash-exp:free"

// DefaultModel is selected for new sessions.
const DefaultModel = FallbackModel

// ModelOption is one entry of the model picker.
type ModelOption struct {
	ID            string `json:"id"`
	Label         string `json:"label"`
	Premium       bool   `json:"premium"`
	ContextTokens int    `json:"context_tokens"`
}

// Tier returns "premium" or "free".
func (m ModelOption) Tier() string {
	if m.Premium {
		return "premium"
	}
	return "free"
}

// options is kept in picker order.
var options = []ModelOption{
	{ID: "meta-llama/llama-3.3-70b-instruct:free", Label: "[FREE] Llama 3.3 70B", ContextTokens: 131072},
	{ID: "google/gemini-2.0-flash-exp:free", Label: "[FREE] Gemini Flash 2.0", ContextTokens: 1048576},
	{ID: "openai/gpt-4o", Label: "[FREE] GPT-4o", ContextTokens: 128000},
	{ID: "deepseek/deepseek-r1", Label: "[PREMIUM] DeepSeek R1", Premium: true, ContextTokens: 163840},
	{ID: "anthropic/claude-3.5-sonnet", Label: "[PREMIUM] Claude 3.5 Sonnet", Premium: true, ContextTokens: 200000},
}

// Options returns a copy of the model picker entries.
func Options() []ModelOption {
	out := make([]ModelOption, len(options))
	copy(out, options)
	return out
}

// LookupOption finds an option by model ID.
func LookupOption(id string) (ModelOption, bool) {
	for _, o := range options {
		if o.ID == id {
			return o, true
		}
	}
	return ModelOption{}, false
}

// OptionByLabel finds an option by its picker label (case-insensitive).
func OptionByLabel(label string) (ModelOption, bool) {
	label = strings.TrimSpace(label)
	for _, o := range options {
		if strings.EqualFold(o.Label, label) {
			return o, true
		}
	}
	return ModelOption{}, false
}

// RequiresLicense reports whether the model is a premium catalog entry.
// Models outside the catalog are not gated.
func RequiresLicense(id string) bool {
	o, ok := LookupOption(id)
	return ok && o.Premium
}
