package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// TraceOptions configures the trace recorder sink.
type TraceOptions struct {
	QueueSize     int           `json:"queue-size"     mapstructure:"queue-size"`
	FlushInterval time.Duration `json:"flush-interval" mapstructure:"flush-interval"`
	MaxBatch      int           `json:"max-batch"      mapstructure:"max-batch"`
}

// NewTraceOptions creates trace options with defaults.
func NewTraceOptions() *TraceOptions {
	return &TraceOptions{
		QueueSize:     1024,
		FlushInterval: time.Second,
		MaxBatch:      100,
	}
}

// Validate checks the trace options.
func (o *TraceOptions) Validate() []error {
	var errs []error
	if o.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("trace queue size must be positive"))
	}
	if o.MaxBatch <= 0 {
		errs = append(errs, fmt.Errorf("trace max batch must be positive"))
	}
	return errs
}

// AddFlags adds flags for the trace options.
func (o *TraceOptions) AddFlags(fs *pflag.FlagSet) {
	fs.IntVar(&o.QueueSize, "trace.queue-size", o.QueueSize, "Bounded trace queue length.")
	fs.DurationVar(&o.FlushInterval, "trace.flush-interval", o.FlushInterval, "Trace flush interval.")
	fs.IntVar(&o.MaxBatch, "trace.max-batch", o.MaxBatch, "Maximum rows per trace flush batch.")
}

// StoreOptions selects the persistence backend.
type StoreOptions struct {
	// Type is "postgres" or "inmemory".
	Type string `json:"type" mapstructure:"type"`
}

// NewStoreOptions creates store options with defaults.
func NewStoreOptions() *StoreOptions {
	return &StoreOptions{Type: "postgres"}
}

// Validate checks the store options.
func (o *StoreOptions) Validate() []error {
	var errs []error
	if o.Type != "postgres" && o.Type != "inmemory" {
		errs = append(errs, fmt.Errorf("invalid store type %q, must be 'postgres' or 'inmemory'", o.Type))
	}
	return errs
}

// AddFlags adds flags for the store options.
func (o *StoreOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Type, "store.type", o.Type, "Persistence backend: 'postgres' or 'inmemory'.")
}
