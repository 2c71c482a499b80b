package options

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
)

// JWTOptions configures portal bearer-token signing.
type JWTOptions struct {
	PortalSecret string        `json:"portal-secret" mapstructure:"portal-secret"`
	AdminSecret  string        `json:"admin-secret"  mapstructure:"admin-secret"`
	Expiry       time.Duration `json:"expiry"        mapstructure:"expiry"`
}

// NewJWTOptions creates JWT options from the environment.
func NewJWTOptions() *JWTOptions {
	return &JWTOptions{
		PortalSecret: os.Getenv("PORTAL_JWT_SECRET"),
		AdminSecret:  os.Getenv("ADMIN_JWT_SECRET"),
		Expiry:       24 * time.Hour,
	}
}

// Complete re-reads the environment so env always wins.
func (o *JWTOptions) Complete() error {
	if s := os.Getenv("PORTAL_JWT_SECRET"); s != "" {
		o.PortalSecret = s
	}
	if s := os.Getenv("ADMIN_JWT_SECRET"); s != "" {
		o.AdminSecret = s
	}
	if o.Expiry <= 0 {
		o.Expiry = 24 * time.Hour
	}
	return nil
}

// Validate checks the JWT options.
func (o *JWTOptions) Validate() []error {
	var errs []error
	if o.PortalSecret != "" && len(o.PortalSecret) < 16 {
		errs = append(errs, fmt.Errorf("portal JWT secret must be at least 16 characters"))
	}
	return errs
}

// AddFlags adds flags for the JWT options.
func (o *JWTOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.PortalSecret, "jwt.portal-secret", o.PortalSecret, "Portal bearer-token signing secret (env PORTAL_JWT_SECRET).")
	fs.StringVar(&o.AdminSecret, "jwt.admin-secret", o.AdminSecret, "Admin bearer-token signing secret (env ADMIN_JWT_SECRET).")
	fs.DurationVar(&o.Expiry, "jwt.expiry", o.Expiry, "Portal token lifetime.")
}
