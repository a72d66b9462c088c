// Package providererr builds domain.ProviderError values for the embedding
// and LLM adapters, so every provider reports failures the same way.
package providererr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/custodia-labs/complyref/internal/core/domain"
)

// maxBody caps how much of an error response body is kept in the message.
const maxBody = 512

// Wrap returns err as a *domain.ProviderError. Errors that already are one
// pass through unchanged.
func Wrap(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	var perr *domain.ProviderError
	if errors.As(err, &perr) {
		return err
	}
	return &domain.ProviderError{Provider: provider, Op: op, Err: err}
}

// Status reports a non-2xx HTTP response. A 429 also matches
// domain.ErrRateLimited.
func Status(provider, op string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxBody {
		msg = msg[:maxBody] + "..."
	}

	var err error
	if status == http.StatusTooManyRequests {
		err = fmt.Errorf("status %d: %s: %w", status, msg, domain.ErrRateLimited)
	} else {
		err = fmt.Errorf("status %d: %s", status, msg)
	}
	return &domain.ProviderError{Provider: provider, Op: op, Err: err}
}

// SDK wraps an error returned by a provider SDK. SDK errors carry the HTTP
// status only in their text, so quota failures are recognised by message.
func SDK(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	if IsRateLimitMessage(err.Error()) && !errors.Is(err, domain.ErrRateLimited) {
		err = fmt.Errorf("%w: %w", err, domain.ErrRateLimited)
	}
	return Wrap(provider, op, err)
}

// IsRateLimitMessage reports whether an error message describes a quota
// rejection (HTTP 429, RESOURCE_EXHAUSTED, rate_limit_error).
func IsRateLimitMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "429") ||
		strings.Contains(lower, "resource_exhausted") ||
		strings.Contains(lower, "rate_limit") ||
		strings.Contains(lower, "quota")
}
