// Package cmd assembles the loomctl command tree.
package cmd

import (
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loomhq/loom/internal/loomctl/cmd/chat"
	"github.com/loomhq/loom/internal/loomctl/cmd/get"
	"github.com/loomhq/loom/internal/loomctl/cmd/login"
	"github.com/loomhq/loom/internal/loomctl/cmd/util"
	"github.com/loomhq/loom/pkg/version"
)

// NewDefaultLoomCtlCommand creates the `loomctl` command with default arguments.
func NewDefaultLoomCtlCommand() *cobra.Command {
	cfg := util.NewConfig()

	cmds := &cobra.Command{
		Use:   "loomctl",
		Short: "loomctl talks to a loom gateway",
		Long: heredoc.Doc(`
			loomctl is the CLI companion of the loom multi-tenant LLM gateway.

			It chats with agents over the OpenAI-compatible data plane and
			manages tenants, agents, API keys and traces over the portal API.

			Connection settings come from flags or the LOOM_SERVER,
			LOOM_API_KEY and LOOM_TOKEN environment variables.`),
		Run:          runHelp,
		SilenceUsage: true,
	}

	flags := cmds.PersistentFlags()
	flags.StringVar(&cfg.Server, "server", cfg.Server, "Base URL of the loom gateway")
	flags.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "Agent API key for the data plane (env LOOM_API_KEY)")
	flags.StringVar(&cfg.Token, "token", cfg.Token, "Portal session token (env LOOM_TOKEN)")

	_ = viper.BindPFlags(flags)

	cmds.AddCommand(chat.NewCmdChat(cfg))
	cmds.AddCommand(login.NewCmdLogin(cfg))
	cmds.AddCommand(get.NewCmdGet(cfg))
	cmds.AddCommand(newCmdVersion())

	return cmds
}

func newCmdVersion() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the loomctl version",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Get()
			fmt.Printf("loomctl %s (%s/%s, %s)\n", info.GitVersion, info.Platform, info.GoVersion, info.GitCommit)
		},
	}
}

func runHelp(cmd *cobra.Command, args []string) {
	_ = cmd.Help()
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := NewDefaultLoomCtlCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
