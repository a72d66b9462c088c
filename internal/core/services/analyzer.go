package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/custodia-labs/complyref/internal/core/domain"
	"github.com/custodia-labs/complyref/internal/core/ports/driven"
	"github.com/custodia-labs/complyref/internal/logger"
)

// AnalyzerOptions configures model requests.
type AnalyzerOptions struct {
	Temperature float64
	MaxTokens   int
}

// ViolationAnalyzer asks the model which evidence documents a query
// violates and validates the structured answer.
type ViolationAnalyzer struct {
	llm     driven.LLMService
	prompts driven.PromptStore
	opts    AnalyzerOptions
}

// NewViolationAnalyzer creates an analyzer. llm may be nil, in which case
// any request that needs the model fails with domain.ErrLLMUnavailable.
func NewViolationAnalyzer(llm driven.LLMService, prompts driven.PromptStore, opts AnalyzerOptions) *ViolationAnalyzer {
	return &ViolationAnalyzer{llm: llm, prompts: prompts, opts: opts}
}

// Analyze checks query against evidence in the given direction.
// Empty evidence yields an empty result without a model call.
func (a *ViolationAnalyzer) Analyze(
	ctx context.Context,
	direction domain.Direction,
	query string,
	evidence []domain.Document,
) (*domain.ViolationResult, error) {
	if !direction.IsValid() {
		return nil, fmt.Errorf("direction %q: %w", direction, domain.ErrInvalidInput)
	}

	schema := SchemaFor(direction)
	result := &domain.ViolationResult{
		Direction: direction,
		ItemsKey:  schema.ItemsKey,
		Items:     []domain.Violation{},
	}
	if len(evidence) == 0 {
		logger.Debug("no evidence for %s check, skipping model", direction)
		return result, nil
	}

	raw, err := a.ask(ctx, promptFor(direction), RenderContext(evidence), query, schema)
	if err != nil {
		return nil, err
	}

	items, err := ParseResponse(raw, schema)
	if err != nil {
		return nil, err
	}
	result.Items = items
	logger.Debug("%s check found %d violations over %d evidence documents", direction, len(items), len(evidence))
	return result, nil
}

// ask renders a prompt template and sends it with the response schema.
func (a *ViolationAnalyzer) ask(
	ctx context.Context,
	promptName, contextText, input string,
	schema domain.ResponseSchema,
) (string, error) {
	if a.llm == nil {
		return "", domain.ErrLLMUnavailable
	}

	template, err := a.prompts.Load(promptName)
	if err != nil {
		return "", fmt.Errorf("load prompt %s: %w", promptName, err)
	}
	prompt := strings.NewReplacer("{context}", contextText, "{input}", input).Replace(template)

	done := logger.Timed(a.llm.Provider() + " " + promptName)
	raw, err := a.llm.Generate(ctx, prompt, driven.GenerateOptions{
		Schema:      &schema,
		Temperature: a.opts.Temperature,
		MaxTokens:   a.opts.MaxTokens,
	})
	done()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		var perr *domain.ProviderError
		if errors.As(err, &perr) {
			return "", err
		}
		return "", &domain.ProviderError{Provider: a.llm.Provider(), Op: "generate", Err: err}
	}
	return raw, nil
}
