package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flowlocal/flowlocal/pkg/store"
	"github.com/flowlocal/flowlocal/pkg/store/memory"
	"github.com/flowlocal/flowlocal/pkg/store/postgres"
	"github.com/flowlocal/flowlocal/pkg/store/redis"
)

// NewStore picks a store implementation from the database URL scheme.
// An empty URL falls back to the in-memory store.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (store.Store, error) {
	if databaseURL == "" {
		logger.Info("Using in-memory store")

		return memory.NewStore(), nil
	}

	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return nil, fmt.Errorf("invalid database URL %q: missing scheme", databaseURL)
	}

	switch scheme {
	case "memory":
		logger.Info("Using in-memory store")

		return memory.NewStore(), nil
	case "redis", "rediss":
		logger.Info("Using redis store")

		return redis.NewStore(logger, databaseURL)
	case "postgres", "postgresql":
		logger.Info("Using postgres store")

		return postgres.NewStore(ctx, logger, databaseURL)
	default:
		return nil, fmt.Errorf("unsupported database scheme: %s", scheme)
	}
}
