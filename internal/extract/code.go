// Package extract pulls runnable code out of model replies.
package extract

import (
	"regexp"
	"strings"
)

var (
	pythonFence  = regexp.MustCompile("(?is)```python\\s*(.*?)```")
	genericFence = regexp.MustCompile("(?s)```\\s*(.*?)```")
)

// PythonCode returns the first ```python fenced block, else the first generic
// fenced block, else the reply with any stray fence markers removed. Models
// sometimes open a fence and never close it; the fallback covers that.
func PythonCode(reply string) string {
	if m := pythonFence.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := genericFence.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1])
	}
	cleaned := strings.ReplaceAll(reply, "```python", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	return strings.TrimSpace(cleaned)
}
