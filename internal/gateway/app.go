package gateway

import (
	"github.com/loomhq/loom/internal/gateway/config"
	"github.com/loomhq/loom/internal/gateway/options"
	"github.com/loomhq/loom/pkg/app"
)

// NewApp builds the loom gateway command with the standard application
// scaffolding: sectioned flags, config binding and validation.
func NewApp(basename string) *app.App {
	opts := options.NewOptions()
	application := app.NewApp("Loom API Gateway",
		basename,
		app.WithOptions(opts),
		app.WithDescription(`The loom gateway is a multi-tenant LLM API gateway: it authenticates
API keys, resolves per-agent configuration through the tenant chain,
injects conversation memory, proxies OpenAI-compatible chat completions
and records encrypted traces.`),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.Options) app.RunFunc {
	return func(basename string) error {
		cfg, err := config.CreateConfigFromOptions(opts)
		if err != nil {
			return err
		}

		return Run(cfg)
	}
}
