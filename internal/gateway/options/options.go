// Package options assembles the gateway's full command-line and
// config-file option surface from the generic per-concern blocks.
package options

import (
	genericoptions "github.com/loomhq/loom/internal/pkg/options"
	"github.com/loomhq/loom/pkg/utils/cliflag"
	"github.com/loomhq/loom/pkg/utils/json"
)

// Options is the running option set of the loom gateway.
type Options struct {
	GenericServerRunOptions *genericoptions.ServerRunOptions       `json:"server"   mapstructure:"server"`
	InsecureServing         *genericoptions.InsecureServingOptions `json:"insecure" mapstructure:"insecure"`
	PostgresOptions         *genericoptions.PostgresOptions        `json:"postgres" mapstructure:"postgres"`
	StoreOptions            *genericoptions.StoreOptions           `json:"store"    mapstructure:"store"`
	CryptoOptions           *genericoptions.CryptoOptions          `json:"crypto"   mapstructure:"crypto"`
	JWTOptions              *genericoptions.JWTOptions             `json:"jwt"      mapstructure:"jwt"`
	ProviderOptions         *genericoptions.ProviderOptions        `json:"provider" mapstructure:"provider"`
	MCPOptions              *genericoptions.MCPOptions             `json:"mcp"      mapstructure:"mcp"`
	TraceOptions            *genericoptions.TraceOptions           `json:"trace"    mapstructure:"trace"`
}

// NewOptions creates the default option set.
func NewOptions() *Options {
	return &Options{
		GenericServerRunOptions: genericoptions.NewServerRunOptions(),
		InsecureServing:         genericoptions.NewInsecureServingOptions(),
		PostgresOptions:         genericoptions.NewPostgresOptions(),
		StoreOptions:            genericoptions.NewStoreOptions(),
		CryptoOptions:           genericoptions.NewCryptoOptions(),
		JWTOptions:              genericoptions.NewJWTOptions(),
		ProviderOptions:         genericoptions.NewProviderOptions(),
		MCPOptions:              genericoptions.NewMCPOptions(),
		TraceOptions:            genericoptions.NewTraceOptions(),
	}
}

// Flags returns the sectioned flag sets of the gateway.
func (o *Options) Flags() (fss cliflag.NamedFlagSets) {
	o.GenericServerRunOptions.AddFlags(fss.FlagSet("server"))
	o.InsecureServing.AddFlags(fss.FlagSet("insecure"))
	o.PostgresOptions.AddFlags(fss.FlagSet("postgres"))
	o.StoreOptions.AddFlags(fss.FlagSet("store"))
	o.CryptoOptions.AddFlags(fss.FlagSet("crypto"))
	o.JWTOptions.AddFlags(fss.FlagSet("jwt"))
	o.ProviderOptions.AddFlags(fss.FlagSet("provider"))
	o.MCPOptions.AddFlags(fss.FlagSet("mcp"))
	o.TraceOptions.AddFlags(fss.FlagSet("trace"))
	return fss
}

// Complete fills defaults, letting the environment win over config
// files for secrets.
func (o *Options) Complete() error {
	if err := o.PostgresOptions.Complete(); err != nil {
		return err
	}
	if err := o.CryptoOptions.Complete(); err != nil {
		return err
	}
	if err := o.JWTOptions.Complete(); err != nil {
		return err
	}
	return o.ProviderOptions.Complete()
}

// Validate checks all option blocks.
func (o *Options) Validate() []error {
	var errs []error
	errs = append(errs, o.GenericServerRunOptions.Validate()...)
	errs = append(errs, o.InsecureServing.Validate()...)
	errs = append(errs, o.PostgresOptions.Validate()...)
	errs = append(errs, o.StoreOptions.Validate()...)
	errs = append(errs, o.CryptoOptions.Validate()...)
	errs = append(errs, o.JWTOptions.Validate()...)
	errs = append(errs, o.ProviderOptions.Validate()...)
	errs = append(errs, o.MCPOptions.Validate()...)
	errs = append(errs, o.TraceOptions.Validate()...)
	return errs
}

func (o *Options) String() string {
	data, _ := json.Marshal(o)
	return string(data)
}
