package driven

import (
	"context"

	"github.com/custodia-labs/complyref/internal/core/domain"
)

// LLMService is the external model collaborator: it turns an instruction,
// a context and a response schema into text expected to be schema-constrained
// JSON. The text is not trusted; callers extract and validate it.
//
// Implementations may include:
//   - Gemini (native response schema)
//   - OpenAI (json_schema response format)
//   - Anthropic (schema carried in the system prompt)
//   - Ollama (format = JSON schema)
type LLMService interface {
	// Generate produces a completion for the prompt.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// Provider returns the provider name used in error reports.
	Provider() string

	// ModelName returns the name of the LLM model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// GenerateOptions configures text generation behaviour.
type GenerateOptions struct {
	// System is an optional system instruction.
	System string

	// Schema, when set, asks the provider for JSON conforming to it.
	Schema *domain.ResponseSchema

	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64
}
