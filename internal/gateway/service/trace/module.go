// Package trace wires the encrypted trace recorder and its store.
package trace

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomhq/loom/internal/gateway/service/trace/domain/repo"
	"github.com/loomhq/loom/internal/gateway/service/trace/domain/service"
	"github.com/loomhq/loom/internal/gateway/service/trace/store/inmemory"
	pgstore "github.com/loomhq/loom/internal/gateway/service/trace/store/postgres"
	"github.com/loomhq/loom/pkg/cryptoutil"
	"github.com/loomhq/loom/pkg/logger"
)

// Config holds the configuration for the trace module.
// Follows the Config → Complete() → New(ctx, deps) convention.
type Config struct {
	// StoreType selects the persistence backend: "postgres" or "inmemory".
	StoreType string `json:"store_type,omitempty"`

	// QueueSize bounds the recorder queue (default: 1024).
	QueueSize int `json:"queue_size,omitempty"`

	// FlushInterval is the drainer period (default: 1s).
	FlushInterval time.Duration `json:"flush_interval,omitempty"`

	// MaxBatch caps rows per flush (default: 100).
	MaxBatch int `json:"max_batch,omitempty"`
}

// CompletedConfig is the validated and completed configuration.
type CompletedConfig struct {
	*Config
}

// Complete validates and fills defaults.
func (c *Config) Complete() CompletedConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = 100
	}
	return CompletedConfig{c}
}

// Dependencies holds the external resources the trace module needs.
type Dependencies struct {
	// Pool is the shared PostgreSQL pool; nil forces the in-memory store.
	Pool *pgxpool.Pool

	// Cipher encrypts stored payloads. Nil degrades the recorder to a
	// no-op sink.
	Cipher *cryptoutil.Cipher
}

// Module is the top-level trace module.
type Module struct {
	Recorder *service.Recorder
	Store    repo.TraceRepository
}

// Close drains and stops the recorder.
func (m *Module) Close(ctx context.Context) error {
	return m.Recorder.Close(ctx)
}

// New creates and initializes the trace module from a completed config.
func (c CompletedConfig) New(ctx context.Context, deps Dependencies) (*Module, error) {
	logger.Info("[Trace] creating trace module...")

	storeType := c.StoreType
	if storeType == "" {
		if deps.Pool != nil {
			storeType = "postgres"
		} else {
			storeType = "inmemory"
		}
	}

	var store repo.TraceRepository
	switch storeType {
	case "postgres":
		if deps.Pool == nil {
			return nil, fmt.Errorf("postgres store requires a database pool")
		}
		if err := pgstore.EnsureSchema(ctx, deps.Pool); err != nil {
			return nil, fmt.Errorf("ensure trace schema: %w", err)
		}
		store = pgstore.NewTraceStore(deps.Pool)
		logger.Info("[Trace] using postgres store")
	case "inmemory":
		store = inmemory.NewTraceStore()
		logger.Info("[Trace] using in-memory store")
	default:
		return nil, fmt.Errorf("unknown trace store type %q", storeType)
	}

	recorder := service.NewRecorder(store, deps.Cipher, service.RecorderOptions{
		QueueSize:     c.QueueSize,
		FlushInterval: c.FlushInterval,
		MaxBatch:      c.MaxBatch,
	})
	return &Module{Recorder: recorder, Store: store}, nil
}
