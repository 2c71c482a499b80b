package options

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
)

// ProviderOptions configures upstream chat-completion providers.
type ProviderOptions struct {
	// OpenAIAPIKey is the fallback key for tenants whose effective
	// config carries no explicit provider credentials.
	OpenAIAPIKey string        `json:"openai-api-key" mapstructure:"openai-api-key"`
	Timeout      time.Duration `json:"timeout"        mapstructure:"timeout"`
}

// NewProviderOptions creates provider options from the environment.
func NewProviderOptions() *ProviderOptions {
	return &ProviderOptions{
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		Timeout:      60 * time.Second,
	}
}

// Complete re-reads the environment so env always wins.
func (o *ProviderOptions) Complete() error {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		o.OpenAIAPIKey = key
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	return nil
}

// Validate checks the provider options.
func (o *ProviderOptions) Validate() []error {
	var errs []error
	if o.Timeout < time.Second {
		errs = append(errs, fmt.Errorf("provider timeout %s is unreasonably low", o.Timeout))
	}
	return errs
}

// AddFlags adds flags for the provider options.
func (o *ProviderOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.OpenAIAPIKey, "provider.openai-api-key", o.OpenAIAPIKey, "Fallback OpenAI API key (env OPENAI_API_KEY).")
	fs.DurationVar(&o.Timeout, "provider.timeout", o.Timeout, "Upstream request timeout.")
}

// MCPOptions configures MCP tool-server round-trips.
type MCPOptions struct {
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// NewMCPOptions creates MCP options with defaults.
func NewMCPOptions() *MCPOptions {
	return &MCPOptions{Timeout: 15 * time.Second}
}

// Validate checks the MCP options.
func (o *MCPOptions) Validate() []error { return nil }

// AddFlags adds flags for the MCP options.
func (o *MCPOptions) AddFlags(fs *pflag.FlagSet) {
	fs.DurationVar(&o.Timeout, "mcp.timeout", o.Timeout, "Tool-server POST timeout.")
}
