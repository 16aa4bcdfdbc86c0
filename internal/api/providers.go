package api

import (
	"context"
	"testing"
	"time"

	"github.com/SafeMPC/steamguard/internal/config"
	"github.com/SafeMPC/steamguard/internal/metrics"
	"github.com/SafeMPC/steamguard/internal/storage"
	"github.com/dropbox/godropbox/time2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// PROVIDERS - constructors that pick an implementation from the configuration, shared by
// the CLI commands and the agent.

func NewClock(t ...*testing.T) time2.Clock {
	var clock time2.Clock

	useMock := len(t) > 0 && t[0] != nil

	if useMock {
		clock = time2.NewMockClock(time.Now())
	} else {
		clock = time2.DefaultClock
	}

	return clock
}

// NewSessionStore returns a redis backed store if an address is configured and an
// in-process store otherwise.
func NewSessionStore(ctx context.Context, cfg config.Redis) (storage.SessionStore, error) {
	if cfg.Addr == "" {
		log.Debug().Msg("No redis address configured, sessions are kept in memory")
		return storage.NewMemoryStore(), nil
	}

	client, err := storage.NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return storage.NewRedisStore(client, cfg), nil
}

// NewMetrics registers the client metrics on a fresh registry.
func NewMetrics() (*prometheus.Registry, *metrics.Metrics, error) {
	registry := prometheus.NewRegistry()

	m, err := metrics.New(registry)
	if err != nil {
		return nil, nil, err
	}

	return registry, m, nil
}
