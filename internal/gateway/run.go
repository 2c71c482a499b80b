package gateway

import (
	"github.com/loomhq/loom/internal/gateway/config"
)

// Run starts the gateway from a validated configuration and blocks
// until shutdown.
func Run(cfg *config.Config) error {
	server, err := createAPIServer(cfg)
	if err != nil {
		return err
	}

	return server.PrepareRun().Run()
}
