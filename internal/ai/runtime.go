package ai

import "context"

// Runtime is a minimal interface implemented by chat-completion backends
// such as OpenRouter and Together.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider identifiers used across the CLI for selection.
const (
	ProviderOpenRouter = "openrouter"
	ProviderTogether   = "together"
)
