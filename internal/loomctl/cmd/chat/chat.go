// Package chat implements the `loomctl chat` command: an interactive
// terminal chat against the gateway's /v1/chat/completions endpoint.
package chat

import (
	"fmt"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/loomhq/loom/internal/loomctl/cmd/util"
)

var chatExample = heredoc.Doc(`
		# Interactive chat mode (TUI)
		loomctl chat

		# Single message mode
		loomctl chat "Hello, introduce yourself"

		# Continue an existing conversation
		loomctl chat --conversation=support-42 "What did I ask before?"

		# Connect to a specific loom gateway
		loomctl chat --server=http://localhost:3000 "Hello"`)

// ChatOptions carries the flags of the chat command.
type ChatOptions struct {
	Conversation string
	Partition    string
	Model        string

	cfg *util.Config
}

// NewCmdChat creates the chat command.
func NewCmdChat(cfg *util.Config) *cobra.Command {
	o := &ChatOptions{Model: "gpt-4o-mini", cfg: cfg}

	cmd := &cobra.Command{
		Use:                   "chat [message]",
		DisableFlagsInUseLine: true,
		Short:                 "Chat with a loom agent",
		Long: heredoc.Doc(`
			Start a conversation with an agent through the loom gateway.

			Authentication uses the agent API key from --api-key or the
			LOOM_API_KEY environment variable. Conversation memory lives on
			the gateway: each turn sends only the latest message, and the
			gateway replays the relevant history to the model.

			When invoked without arguments, open an interactive chat
			interface. When invoked with a message argument, send the
			message and print the streamed response.`),
		Example: chatExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Validate(); err != nil {
				return err
			}

			return o.Run(args)
		},
	}

	cmd.Flags().StringVar(&o.Conversation, "conversation", o.Conversation, "Conversation ID to continue (default: a fresh conversation)")
	cmd.Flags().StringVar(&o.Partition, "partition", o.Partition, "Partition ID grouping related conversations")
	cmd.Flags().StringVar(&o.Model, "model", o.Model, "Model to request from the agent's provider")

	return cmd
}

// Validate checks that an API key is available.
func (o *ChatOptions) Validate() error {
	if o.cfg.APIKey == "" {
		return fmt.Errorf("no API key: pass --api-key or set LOOM_API_KEY")
	}

	return nil
}

// Run executes the chat command.
func (o *ChatOptions) Run(args []string) error {
	o.cfg.Normalize()

	client := NewLoomClient(o.cfg.Server, o.cfg.APIKey, o.Model, nil)
	client.ConversationID = o.Conversation
	client.PartitionID = o.Partition

	if len(args) > 0 {
		// Single message mode: send and stream the response to stdout.
		message := strings.Join(args, " ")
		err := RunOnce(client, message, func(delta string) {
			fmt.Print(delta)
		})
		fmt.Println()

		return err
	}

	return RunTUI(client)
}
