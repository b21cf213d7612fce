package utils_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/vizagent/internal/utils"
)

func TestCountTokens(t *testing.T) {
	cases := []struct {
		name string
		in   string
		min  int
	}{
		{"empty", "", 0},
		{"simple", "hello world", 2},
		{"long", strings.Repeat("a", 4000), 900}, // heuristic ~ 1 tok ≈ 4 chars
	}
	for _, c := range cases {
		if got := utils.CountTokens(c.in); got < c.min {
			t.Errorf("%s: got %d < min %d", c.name, got, c.min)
		}
	}
}

func TestFitsBudget(t *testing.T) {
	prompt := strings.Repeat("abcd", 1000) // ~1000 tokens
	if !utils.FitsBudget(prompt, 2000, 0) {
		t.Fatalf("unknown window should always fit")
	}
	if !utils.FitsBudget(prompt, 2000, 8192) {
		t.Fatalf("expected fit in 8k window")
	}
	if utils.FitsBudget(prompt, 2000, 2500) {
		t.Fatalf("expected overflow in 2.5k window")
	}
}

func TestTokenBreakdown(t *testing.T) {
	got := utils.TokenBreakdown(map[string]string{"system": "abcdefgh", "user": ""})
	if got["system"] != 2 || got["user"] != 0 {
		t.Fatalf("unexpected breakdown: %v", got)
	}
}

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]string{
		"sales.csv":           "sales.csv",
		"../../etc/passwd":    "passwd.csv",
		`C:\data\Q1 2024.csv`: "Q1_2024.csv",
		"it's.csv":            "its.csv",
		"...":                 "dataset.csv",
		"":                    "dataset.csv",
	}
	for in, want := range cases {
		if got := utils.SanitizeFileName(in); got != want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSafeWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	if err := utils.EnsureDir(dir); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(dir, "chart_1.png")
	if err := utils.SafeWriteFile(p, []byte("png")); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(p)
	if err != nil || string(b) != "png" {
		t.Fatalf("read back: %q %v", b, err)
	}
	if _, err := os.Stat(p + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind")
	}
}
