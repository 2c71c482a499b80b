package provider

import (
	"fmt"
	"sync"
	"time"

	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
	"github.com/loomhq/loom/pkg/logger"
)

// NewForConfig builds a provider for a completed config.
func NewForConfig(pc *entity.ProviderConfig, timeout time.Duration) (Provider, error) {
	switch pc.Provider {
	case "openai":
		return NewOpenAI(pc, timeout), nil
	case "azure":
		return NewAzure(pc, timeout), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", pc.Provider)
	}
}

type cacheEntry struct {
	provider Provider
	config   entity.ProviderConfig
}

// Cache holds one provider instance per tenant, rebuilt on config
// change. Eviction is wired to tenant and agent updates; the config
// comparison inside Get is a second line of defence for multi-level
// inheritance, where an ancestor update changes a descendant's
// effective config without touching the descendant itself.
type Cache struct {
	timeout time.Duration
	entries sync.Map // tenantID → *cacheEntry
}

// NewCache creates an empty Cache.
func NewCache(timeout time.Duration) *Cache {
	return &Cache{timeout: timeout}
}

// Get returns the tenant's cached provider, rebuilding it when the
// effective config has changed since it was built.
func (c *Cache) Get(tenantID string, pc *entity.ProviderConfig) (Provider, error) {
	if v, ok := c.entries.Load(tenantID); ok {
		entry := v.(*cacheEntry)
		if entry.config == *pc {
			return entry.provider, nil
		}
	}
	p, err := NewForConfig(pc, c.timeout)
	if err != nil {
		return nil, err
	}
	c.entries.Store(tenantID, &cacheEntry{provider: p, config: *pc})
	return p, nil
}

// Evict drops the tenant's cached provider.
func (c *Cache) Evict(tenantID string) {
	if _, ok := c.entries.LoadAndDelete(tenantID); ok {
		logger.Debug("[Provider] evicted cached client for tenant %s", tenantID)
	}
}
