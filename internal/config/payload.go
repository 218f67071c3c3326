package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Prajjawalk/ipc/internal/customkernel"
	"github.com/Prajjawalk/ipc/internal/recommend"
)

// BuildPayload creates the configured recommendation payload. Commitments,
// when present, wrap it so only committed responses are accepted.
func (c *Config) BuildPayload(ctx context.Context) (recommend.Recommender, error) {
	p := c.Kernel.Payload

	var payload recommend.Recommender
	switch p.Kind {
	case PayloadLocal:
		payload = recommend.NewLocal()
	case PayloadEthereum:
		eth, err := recommend.DialEthereum(ctx, p.Endpoint, p.Contract,
			recommend.WithCallTimeout(p.CallTimeout.Std()),
			recommend.WithRetry(recommend.RetryPolicy{
				Strategy:     recommend.BackoffType(p.Retry.Strategy),
				Attempts:     p.Retry.Attempts,
				InitialDelay: p.Retry.InitialDelay.Std(),
				MaxDelay:     p.Retry.MaxDelay.Std(),
			}),
		)
		if err != nil {
			return nil, err
		}
		payload = eth
	default:
		return nil, fmt.Errorf("unsupported payload kind %q", p.Kind)
	}

	if len(p.Commitments) == 0 {
		return payload, nil
	}
	commitments, err := recommend.ParseCommitments(p.Commitments)
	if err != nil {
		return nil, errors.Join(err, recommend.Close(payload))
	}
	pinned, err := recommend.NewPinned(payload, commitments, p.CacheSize)
	if err != nil {
		return nil, errors.Join(err, recommend.Close(payload))
	}
	return pinned, nil
}

// KernelOptions returns the recommendation capability options for payload.
func (c *Config) KernelOptions(payload recommend.Recommender, logger *slog.Logger) customkernel.Options {
	return customkernel.Options{
		Payload:               payload,
		Logger:                logger,
		PayloadName:           c.Kernel.Payload.Kind,
		AllowedCallers:        c.Kernel.AllowedCallerIDs(),
		Timeout:               c.Kernel.Timeout.Std(),
		AllowNondeterministic: c.Kernel.AllowNondeterministic,
	}
}
