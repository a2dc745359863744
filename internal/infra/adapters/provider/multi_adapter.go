// File: internal/infra/adapters/provider/multi_adapter.go
package provider

import (
	"context"

	"github.com/rs/zerolog"

	"vton-backend/internal/domain"
	"vton-backend/internal/domain/ports/adapter"
)

var _ adapter.ImageGenerator = (*MultiGenerator)(nil)

// MultiGenerator tries each generator in order and returns the first
// success. Order is the configured preference; a chain is typically the
// primary GPU endpoint followed by a hosted fallback.
type MultiGenerator struct {
	chain []adapter.ImageGenerator
	log   *zerolog.Logger
}

func NewMultiGenerator(log *zerolog.Logger, chain ...adapter.ImageGenerator) *MultiGenerator {
	return &MultiGenerator{chain: chain, log: log}
}

func (m *MultiGenerator) Name() string { return "multi" }

func (m *MultiGenerator) GenerateTryOnImage(ctx context.Context, input adapter.JobInput) ([]byte, error) {
	var lastErr error
	for _, g := range m.chain {
		if g == nil {
			continue
		}
		img, err := g.GenerateTryOnImage(ctx, input)
		if err == nil {
			return img, nil
		}
		lastErr = err
		m.log.Warn().Str("provider", g.Name()).Err(err).Msg("generator failed, trying next")
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, domain.ErrProviderExhausted
}
