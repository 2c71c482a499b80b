// Package conversation wires conversation memory: partitions,
// conversations, encrypted messages, snapshots and the summariser.
package conversation

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomhq/loom/internal/gateway/service/conversation/domain/service"
	"github.com/loomhq/loom/internal/gateway/service/conversation/store/inmemory"
	pgstore "github.com/loomhq/loom/internal/gateway/service/conversation/store/postgres"
	"github.com/loomhq/loom/pkg/cryptoutil"
	"github.com/loomhq/loom/pkg/logger"
)

// Config holds the configuration for the conversation module.
// Follows the Config → Complete() → New(ctx, deps) convention.
type Config struct {
	// StoreType selects the persistence backend: "postgres" or "inmemory".
	// Default: "postgres" when a pool is supplied, otherwise "inmemory".
	StoreType string `json:"store_type,omitempty"`
}

// CompletedConfig is the validated and completed configuration.
type CompletedConfig struct {
	*Config
}

// Complete validates and fills defaults.
func (c *Config) Complete() CompletedConfig {
	return CompletedConfig{c}
}

// Dependencies holds the external resources the conversation module
// needs.
type Dependencies struct {
	// Pool is the shared PostgreSQL pool; nil forces the in-memory store.
	Pool *pgxpool.Pool

	// Cipher encrypts stored content. Nil disables the module: without
	// a master key no conversation content may be persisted.
	Cipher *cryptoutil.Cipher
}

// Module is the top-level conversation module.
type Module struct {
	Manager    *service.Manager
	Summarizer service.Summarizer
}

// Enabled reports whether conversation memory is available. A nil
// module (no master key) is disabled.
func (m *Module) Enabled() bool { return m != nil && m.Manager != nil }

// New creates and initializes the conversation module from a completed
// config. Returns a nil module when no cipher is available.
func (c CompletedConfig) New(ctx context.Context, deps Dependencies) (*Module, error) {
	if deps.Cipher == nil {
		logger.Warn("[Conversation] no encryption master key configured; conversation memory is DISABLED")
		return nil, nil
	}
	logger.Info("[Conversation] creating conversation module...")

	storeType := c.StoreType
	if storeType == "" {
		if deps.Pool != nil {
			storeType = "postgres"
		} else {
			storeType = "inmemory"
		}
	}

	var manager *service.Manager
	switch storeType {
	case "postgres":
		if deps.Pool == nil {
			return nil, fmt.Errorf("postgres store requires a database pool")
		}
		if err := pgstore.EnsureSchema(ctx, deps.Pool); err != nil {
			return nil, fmt.Errorf("ensure conversation schema: %w", err)
		}
		manager = service.NewManager(
			pgstore.NewPartitionStore(deps.Pool),
			pgstore.NewConversationStore(deps.Pool),
			pgstore.NewMessageStore(deps.Pool),
			pgstore.NewSnapshotStore(deps.Pool),
			pgstore.NewLocker(deps.Pool),
			deps.Cipher,
		)
		logger.Info("[Conversation] using postgres store")
	case "inmemory":
		manager = service.NewManager(
			inmemory.NewPartitionStore(),
			inmemory.NewConversationStore(),
			inmemory.NewMessageStore(),
			inmemory.NewSnapshotStore(),
			inmemory.NewLocker(),
			deps.Cipher,
		)
		logger.Info("[Conversation] using in-memory store")
	default:
		return nil, fmt.Errorf("unknown conversation store type %q", storeType)
	}

	return &Module{Manager: manager}, nil
}
