package ai

import (
	"context"
	"errors"
	"strings"
)

// CheckKeyPrompt is the one-shot prompt used to validate an API key.
const CheckKeyPrompt = "Say 'Hello World' in one word"

// CheckKey sends a tiny completion and returns the model's reply.
func CheckKey(ctx context.Context, rt Runtime, model string) (string, error) {
	resp, err := rt.Generate(ctx, GenerateRequest{
		Model:     model,
		Messages:  []Message{{Role: "user", Content: CheckKeyPrompt}},
		MaxTokens: 10,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no content returned from model")
	}
	return strings.TrimSpace(resp.Content()), nil
}

// KeyHint returns remediation steps for a failed key check.
func KeyHint(provider string, err error) []string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		if authErr.StatusCode == 403 {
			return []string{"Your account might not have access to this model"}
		}
		return []string{
			"Double-check your API key at " + keysURL(provider),
			"Make sure you copied the entire key",
			"Try creating a new API key",
			"Ensure your account has credits/quota available",
		}
	}
	if strings.Contains(strings.ToLower(errString(err)), "invalid api key") {
		return KeyHint(provider, &AuthError{APIError: &APIError{StatusCode: 401}})
	}
	return []string{"Check your internet connection and try again"}
}

func keysURL(provider string) string {
	switch provider {
	case ProviderOpenRouter:
		return "https://openrouter.ai/keys"
	default:
		return "https://api.together.ai/settings/api-keys"
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
