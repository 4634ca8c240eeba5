package services

import "context"

// LanguageModel is the text-in, text-out model every agent and the architect
// run on. It satisfies engine.Model.
type LanguageModel interface {
	// Generate returns the model's raw response to prompt.
	Generate(ctx context.Context, prompt string) (string, error)
}
