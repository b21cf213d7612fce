package ai

import "testing"

func TestOptionsOrderAndTiers(t *testing.T) {
	opts := Options()
	if len(opts) != 5 {
		t.Fatalf("expected 5 model options, got %d", len(opts))
	}
	if opts[0].ID != "meta-llama/llama-3.3-70b-instruct:free" {
		t.Fatalf("unexpected first option: %s", opts[0].ID)
	}
	if !RequiresLicense("deepseek/deepseek-r1") || !RequiresLicense("anthropic/claude-3.5-sonnet") {
		t.Fatalf("expected premium models to require a license")
	}
	if RequiresLicense(FallbackModel) || RequiresLicense("some/custom-model") {
		t.Fatalf("free and unknown models must not be gated")
	}
}

func TestOptionByLabel(t *testing.T) {
	o, ok := OptionByLabel("  [premium] deepseek r1 ")
	if !ok || o.ID != "deepseek/deepseek-r1" || o.Tier() != "premium" {
		t.Fatalf("unexpected lookup: %+v ok=%v", o, ok)
	}
	if _, ok := OptionByLabel("nope"); ok {
		t.Fatalf("expected unknown label to miss")
	}
}

func TestOptionsReturnsCopy(t *testing.T) {
	a := Options()
	a[0].ID = "mutated"
	if Options()[0].ID == "mutated" {
		t.Fatalf("Options must not expose the backing slice")
	}
}
