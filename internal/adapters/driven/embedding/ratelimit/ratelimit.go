// Package ratelimit paces calls to an embedding provider with a token bucket.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/complyref/internal/core/domain"
	"github.com/custodia-labs/complyref/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// DefaultBackoff is how long calls pause after the provider reports a quota rejection.
const DefaultBackoff = 60 * time.Second

// Limiter is a token bucket with a backoff period set on quota rejections.
type Limiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
	backoff time.Duration
	now     func() time.Time
}

// NewLimiter allows requestsPerMinute calls per minute with a burst of one.
func NewLimiter(requestsPerMinute int) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1),
		backoff: DefaultBackoff,
		now:     time.Now,
	}
}

// Wait blocks until a call can be made without exceeding the rate limit.
// It also respects any backoff period set by RecordRateLimitError.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	retryAt := l.retryAt
	now := l.now()
	l.mu.Unlock()

	if now.Before(retryAt) {
		timer := time.NewTimer(retryAt.Sub(now))
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return l.limiter.Wait(ctx)
}

// RecordRateLimitError starts a backoff period.
func (l *Limiter) RecordRateLimitError() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.retryAt = l.now().Add(l.backoff)
}

// EmbeddingService paces an inner embedding service.
type EmbeddingService struct {
	inner   driven.EmbeddingService
	limiter *Limiter
}

// Wrap returns inner paced to requestsPerMinute. A non-positive rate
// returns inner unchanged.
func Wrap(inner driven.EmbeddingService, requestsPerMinute int) driven.EmbeddingService {
	if requestsPerMinute <= 0 {
		return inner
	}
	return &EmbeddingService{inner: inner, limiter: NewLimiter(requestsPerMinute)}
}

// Embed waits for a token, then embeds text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	v, err := s.inner.Embed(ctx, text)
	s.observe(err)
	return v, err
}

// EmbedBatch waits for a token, then embeds texts. A batch costs one token.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	v, err := s.inner.EmbedBatch(ctx, texts)
	s.observe(err)
	return v, err
}

func (s *EmbeddingService) observe(err error) {
	if errors.Is(err, domain.ErrRateLimited) {
		s.limiter.RecordRateLimitError()
	}
}

// Dimensions returns the inner service's vector size.
func (s *EmbeddingService) Dimensions() int { return s.inner.Dimensions() }

// ModelName returns the inner service's model.
func (s *EmbeddingService) ModelName() string { return s.inner.ModelName() }

// Ping is not rate limited.
func (s *EmbeddingService) Ping(ctx context.Context) error { return s.inner.Ping(ctx) }

// Close closes the inner service.
func (s *EmbeddingService) Close() error { return s.inner.Close() }
