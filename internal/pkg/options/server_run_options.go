// Package options defines the per-concern configuration blocks of the
// gateway, each with flag registration and validation.
package options

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/loomhq/loom/internal/pkg/server"
)

// ServerRunOptions contains the generic serving options.
type ServerRunOptions struct {
	Mode        string   `json:"mode"        mapstructure:"mode"`
	Healthz     bool     `json:"healthz"     mapstructure:"healthz"`
	Profiling   bool     `json:"profiling"   mapstructure:"profiling"`
	Middlewares []string `json:"middlewares" mapstructure:"middlewares"`
}

// NewServerRunOptions creates a ServerRunOptions with defaults.
func NewServerRunOptions() *ServerRunOptions {
	defaults := server.NewConfig()
	return &ServerRunOptions{
		Mode:        defaults.Mode,
		Healthz:     defaults.Healthz,
		Profiling:   defaults.EnableProfiling,
		Middlewares: defaults.Middlewares,
	}
}

// ApplyTo applies the run options to the server config.
func (o *ServerRunOptions) ApplyTo(c *server.Config) error {
	c.Mode = o.Mode
	c.Healthz = o.Healthz
	c.EnableProfiling = o.Profiling
	c.Middlewares = o.Middlewares
	return nil
}

// Validate checks the server run options.
func (o *ServerRunOptions) Validate() []error {
	var errs []error
	switch o.Mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
	default:
		errs = append(errs, fmt.Errorf("invalid server mode %q", o.Mode))
	}
	return errs
}

// AddFlags adds flags for the server run options.
func (o *ServerRunOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Mode, "server.mode", o.Mode, "Server mode: debug, test, release.")
	fs.BoolVar(&o.Healthz, "server.healthz", o.Healthz, "Install the /healthz route.")
	fs.BoolVar(&o.Profiling, "server.profiling", o.Profiling, "Enable pprof profiling routes.")
	fs.StringSliceVar(&o.Middlewares, "server.middlewares", o.Middlewares, "Generic middlewares to install, comma separated.")
}

// InsecureServingOptions holds the plain-HTTP listen address.
type InsecureServingOptions struct {
	BindAddress string `json:"bind-address" mapstructure:"bind-address"`
	BindPort    int    `json:"bind-port"    mapstructure:"bind-port"`
}

// NewInsecureServingOptions creates listen options with the HOST / PORT
// environment variables honoured, defaulting to 0.0.0.0:3000.
func NewInsecureServingOptions() *InsecureServingOptions {
	o := &InsecureServingOptions{
		BindAddress: "0.0.0.0",
		BindPort:    3000,
	}
	if host := os.Getenv("HOST"); host != "" {
		o.BindAddress = host
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			o.BindPort = p
		}
	}
	return o
}

// ApplyTo fills the serving info on the server config.
func (o *InsecureServingOptions) ApplyTo(c *server.Config) error {
	c.InsecureServing = &server.InsecureServingInfo{
		Address: net.JoinHostPort(o.BindAddress, strconv.Itoa(o.BindPort)),
	}
	return nil
}

// Validate checks the listen options.
func (o *InsecureServingOptions) Validate() []error {
	var errs []error
	if o.BindPort < 1 || o.BindPort > 65535 {
		errs = append(errs, fmt.Errorf("bind port %d must be between 1 and 65535", o.BindPort))
	}
	return errs
}

// AddFlags adds flags for the listen options.
func (o *InsecureServingOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.BindAddress, "insecure.bind-address", o.BindAddress, "The IP address on which to serve.")
	fs.IntVar(&o.BindPort, "insecure.bind-port", o.BindPort, "The port on which to serve.")
}
