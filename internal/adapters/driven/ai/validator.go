package ai

import (
	"context"
	"time"

	"github.com/custodia-labs/complyref/internal/core/domain"
	"github.com/custodia-labs/complyref/internal/core/ports/driven"
)

var _ driven.AIConfigValidator = (*ConfigValidator)(nil)

// DefaultPingTimeout bounds one connectivity check.
const DefaultPingTimeout = 5 * time.Second

// ConfigValidator checks provider settings by building the service and
// pinging it. Unconfigured providers pass; settings validation reports
// missing keys separately.
type ConfigValidator struct {
	Timeout time.Duration
}

// NewConfigValidator creates a validator with DefaultPingTimeout.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{Timeout: DefaultPingTimeout}
}

// ValidateEmbedding pings the configured embedding provider.
func (v *ConfigValidator) ValidateEmbedding(config *domain.EmbeddingSettings) error {
	ctx, cancel := v.context()
	defer cancel()

	// Ping directly, without the request pacer.
	unpaced := config
	if config != nil {
		c := *config
		c.RequestsPerMinute = 0
		unpaced = &c
	}
	svc, err := CreateEmbeddingService(ctx, unpaced)
	if err != nil || svc == nil {
		return err
	}
	defer svc.Close()
	return svc.Ping(ctx)
}

// ValidateLLM pings the configured LLM provider.
func (v *ConfigValidator) ValidateLLM(config *domain.LLMSettings) error {
	ctx, cancel := v.context()
	defer cancel()

	svc, err := CreateLLMService(ctx, config)
	if err != nil || svc == nil {
		return err
	}
	defer svc.Close()
	return svc.Ping(ctx)
}

func (v *ConfigValidator) context() (context.Context, context.CancelFunc) {
	timeout := v.Timeout
	if timeout <= 0 {
		timeout = DefaultPingTimeout
	}
	return context.WithTimeout(context.Background(), timeout)
}
