package options

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

// CryptoOptions configures payload encryption.
type CryptoOptions struct {
	// EncryptionMasterKey is the 64-char hex AES-256-GCM key used for
	// trace and conversation encryption. When absent the trace sink
	// degrades to a no-op and conversation storage is disabled.
	EncryptionMasterKey string `json:"encryption-master-key" mapstructure:"encryption-master-key"`
}

// NewCryptoOptions creates crypto options from the environment.
func NewCryptoOptions() *CryptoOptions {
	return &CryptoOptions{
		EncryptionMasterKey: os.Getenv("ENCRYPTION_MASTER_KEY"),
	}
}

// Complete re-reads the environment so env always wins.
func (o *CryptoOptions) Complete() error {
	if key := os.Getenv("ENCRYPTION_MASTER_KEY"); key != "" {
		o.EncryptionMasterKey = key
	}
	return nil
}

// Validate checks the key shape; an empty key is allowed (degraded mode).
func (o *CryptoOptions) Validate() []error {
	var errs []error
	if o.EncryptionMasterKey != "" {
		if raw, err := hex.DecodeString(o.EncryptionMasterKey); err != nil || len(raw) != 32 {
			errs = append(errs, fmt.Errorf("encryption master key must be 64 hex characters"))
		}
	}
	return errs
}

// AddFlags adds flags for the crypto options.
func (o *CryptoOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.EncryptionMasterKey, "crypto.encryption-master-key", o.EncryptionMasterKey,
		"64-char hex AES-256-GCM master key (env ENCRYPTION_MASTER_KEY).")
}
