// Package login implements the `loomctl login` command.
package login

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/loomhq/loom/internal/loomctl/cmd/util"
)

// LoginOptions carries the flags of the login command.
type LoginOptions struct {
	Email    string
	Password string
	TenantID string

	cfg *util.Config
}

// NewCmdLogin creates the login command.
func NewCmdLogin(cfg *util.Config) *cobra.Command {
	o := &LoginOptions{cfg: cfg}

	cmd := &cobra.Command{
		Use:                   "login",
		DisableFlagsInUseLine: true,
		Short:                 "Log in to the loom portal and print a session token",
		Long: heredoc.Doc(`
			Authenticate against the loom portal with email and password.

			On success the session token is printed; export it as LOOM_TOKEN
			so the other loomctl commands can use it. The password is read
			from the terminal when not passed via --password.`),
		Example: heredoc.Doc(`
			# Log in interactively
			loomctl login --email owner@example.com

			# Log in to a specific tenant of a multi-tenant account
			loomctl login --email owner@example.com --tenant 4f1c...`),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(); err != nil {
				return err
			}

			return o.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&o.Email, "email", o.Email, "Email address of the portal user")
	cmd.Flags().StringVar(&o.Password, "password", o.Password, "Password (prompted when omitted)")
	cmd.Flags().StringVar(&o.TenantID, "tenant", o.TenantID, "Tenant ID to log in to (default: first membership)")

	return cmd
}

// Complete prompts for the missing credentials.
func (o *LoginOptions) Complete() error {
	if o.Email == "" {
		fmt.Print("Email: ")
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			return fmt.Errorf("no email provided")
		}
		o.Email = strings.TrimSpace(scanner.Text())
	}

	if o.Password == "" {
		fmt.Print("Password: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		o.Password = string(raw)
	}

	return nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TenantID string `json:"tenant_id,omitempty"`
}

type loginResponse struct {
	Token  string `json:"token"`
	Role   string `json:"role"`
	Tenant struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"tenant"`
}

// Run executes the login command.
func (o *LoginOptions) Run(ctx context.Context) error {
	o.cfg.Normalize()
	client := util.NewPortalClient(o.cfg)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var resp loginResponse
	err := client.Do(ctx, "POST", "/v1/portal/auth/login", loginRequest{
		Email:    o.Email,
		Password: o.Password,
		TenantID: o.TenantID,
	}, &resp)
	if err != nil {
		return err
	}

	fmt.Printf("%s logged in to %s (%s) as %s\n",
		color.GreenString("✓"), resp.Tenant.Name, resp.Tenant.ID, resp.Role)
	fmt.Println()
	fmt.Printf("export LOOM_TOKEN=%s\n", resp.Token)

	return nil
}
