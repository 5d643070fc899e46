package oracle

import (
	"fmt"
	"strings"

	"github.com/propflow/veritas/internal/common"
)

// New creates an oracle client based on the provided configuration, wrapped
// with per-provider rate limiting.
func New(cfg Config) (Client, error) {
	var client Client
	var err error

	switch strings.ToLower(cfg.Provider) {
	case "anthropic":
		client, err = newAnthropicClient(cfg)
	case "openai":
		client, err = newOpenAIClient(cfg)
	case "evalhttp":
		client, err = newEvalHTTPClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported oracle provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create oracle client: %w", err)
	}

	return &limitedClient{
		inner:   client,
		limiter: newRateLimiter(cfg.RateLimit),
	}, nil
}

// NewAll creates clients for every configured provider. Provider instance
// names must be unique since they key attempt results and call records.
func NewAll(cfgs []Config) ([]Client, error) {
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("at least one oracle provider must be configured")
	}

	seen := make(map[string]struct{}, len(cfgs))
	clients := make([]Client, 0, len(cfgs))

	for _, cfg := range cfgs {
		client, err := New(cfg)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[client.Name()]; dup {
			return nil, fmt.Errorf("%w: oracle provider name %s", common.ErrDuplicateEntry, client.Name())
		}
		seen[client.Name()] = struct{}{}
		clients = append(clients, client)
	}

	return clients, nil
}
