// Package get implements the `loomctl get` command family: tabular
// read-only views over the portal API.
package get

import (
	"context"
	"fmt"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/loomhq/loom/internal/loomctl/cmd/util"
)

// NewCmdGet creates the get command with its resource subcommands.
func NewCmdGet(cfg *util.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Display resources of the current tenant",
		Long: heredoc.Doc(`
			List resources of the tenant the session token belongs to.

			Requires a portal session token from --token, the LOOM_TOKEN
			environment variable or a previous 'loomctl login'.`),
		Example: heredoc.Doc(`
			# List the agents of the current tenant
			loomctl get agents

			# List child tenants
			loomctl get tenants

			# List the last 20 request traces
			loomctl get traces --limit 20`),
	}

	cmd.AddCommand(newCmdGetTenants(cfg))
	cmd.AddCommand(newCmdGetAgents(cfg))
	cmd.AddCommand(newCmdGetKeys(cfg))
	cmd.AddCommand(newCmdGetTraces(cfg))
	cmd.AddCommand(newCmdGetConversations(cfg))

	return cmd
}

func newTable() *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = uint(util.TermWidth() / 2)
	table.Wrap = true

	return table
}

func fetch(cfg *util.Config, path string, out any) error {
	cfg.Normalize()
	if cfg.Token == "" {
		return fmt.Errorf("no session token: run 'loomctl login' or set LOOM_TOKEN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return util.NewPortalClient(cfg).Do(ctx, "GET", path, nil, out)
}

func newCmdGetTenants(cfg *util.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "tenants",
		Short: "List child tenants of the current tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Tenants []struct {
					ID        string    `json:"id"`
					Name      string    `json:"name"`
					Status    string    `json:"status"`
					CreatedAt time.Time `json:"created_at"`
				} `json:"tenants"`
			}
			if err := fetch(cfg, "/v1/portal/tenant/children", &resp); err != nil {
				return err
			}

			table := newTable()
			table.AddRow("ID", "NAME", "STATUS", "CREATED")
			for _, t := range resp.Tenants {
				table.AddRow(t.ID, t.Name, t.Status, t.CreatedAt.Format(time.RFC3339))
			}
			fmt.Println(table)

			return nil
		},
	}
}

func newCmdGetAgents(cfg *util.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List agents of the current tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Agents []struct {
					ID                   string    `json:"id"`
					Name                 string    `json:"name"`
					ConversationsEnabled bool      `json:"conversations_enabled"`
					CreatedAt            time.Time `json:"created_at"`
				} `json:"agents"`
			}
			if err := fetch(cfg, "/v1/portal/agents", &resp); err != nil {
				return err
			}

			table := newTable()
			table.AddRow("ID", "NAME", "MEMORY", "CREATED")
			for _, a := range resp.Agents {
				memory := "off"
				if a.ConversationsEnabled {
					memory = "on"
				}
				table.AddRow(a.ID, a.Name, memory, a.CreatedAt.Format(time.RFC3339))
			}
			fmt.Println(table)

			return nil
		},
	}
}

func newCmdGetKeys(cfg *util.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List API keys of the current tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Keys []struct {
					ID        string    `json:"id"`
					AgentID   string    `json:"agent_id"`
					Name      string    `json:"name"`
					Prefix    string    `json:"prefix"`
					Status    string    `json:"status"`
					CreatedAt time.Time `json:"created_at"`
				} `json:"keys"`
			}
			if err := fetch(cfg, "/v1/portal/keys", &resp); err != nil {
				return err
			}

			table := newTable()
			table.AddRow("ID", "AGENT", "NAME", "PREFIX", "STATUS", "CREATED")
			for _, k := range resp.Keys {
				table.AddRow(k.ID, k.AgentID, k.Name, k.Prefix, k.Status, k.CreatedAt.Format(time.RFC3339))
			}
			fmt.Println(table)

			return nil
		},
	}
}

func newCmdGetTraces(cfg *util.Config) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "traces",
		Short: "List recent request traces of the current tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Traces []struct {
					ID          string    `json:"id"`
					Model       string    `json:"model"`
					Provider    string    `json:"provider"`
					StatusCode  int       `json:"status_code"`
					LatencyMs   int64     `json:"latency_ms"`
					TotalTokens int       `json:"total_tokens"`
					CreatedAt   time.Time `json:"created_at"`
				} `json:"traces"`
			}
			if err := fetch(cfg, fmt.Sprintf("/v1/portal/traces?limit=%d", limit), &resp); err != nil {
				return err
			}

			table := newTable()
			table.AddRow("TIME", "MODEL", "PROVIDER", "STATUS", "LATENCY", "TOKENS")
			for _, t := range resp.Traces {
				table.AddRow(
					t.CreatedAt.Format(time.RFC3339),
					t.Model,
					t.Provider,
					fmt.Sprintf("%d", t.StatusCode),
					fmt.Sprintf("%dms", t.LatencyMs),
					fmt.Sprintf("%d", t.TotalTokens),
				)
			}
			fmt.Println(table)

			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of traces to list")

	return cmd
}

func newCmdGetConversations(cfg *util.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "conversations",
		Short: "List stored conversations of the current tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Conversations []struct {
					ID           string    `json:"id"`
					ExternalID   string    `json:"external_id"`
					AgentID      *string   `json:"agent_id,omitempty"`
					LastActiveAt time.Time `json:"last_active_at"`
				} `json:"conversations"`
			}
			if err := fetch(cfg, "/v1/portal/conversations", &resp); err != nil {
				return err
			}

			table := newTable()
			table.AddRow("ID", "EXTERNAL", "AGENT", "LAST ACTIVE")
			for _, conv := range resp.Conversations {
				agent := "-"
				if conv.AgentID != nil {
					agent = *conv.AgentID
				}
				table.AddRow(conv.ID, conv.ExternalID, agent, conv.LastActiveAt.Format(time.RFC3339))
			}
			fmt.Println(table)

			return nil
		},
	}
}
