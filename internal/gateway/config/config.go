package config

import (
	"github.com/loomhq/loom/internal/gateway/options"
)

// Config is the running configuration structure of the loom gateway.
type Config struct {
	*options.Options
}

// CreateConfigFromOptions creates a running configuration instance from
// the validated option set.
func CreateConfigFromOptions(opts *options.Options) (*Config, error) {
	return &Config{opts}, nil
}
