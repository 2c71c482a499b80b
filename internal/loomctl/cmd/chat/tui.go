package chat

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/mitchellh/go-wordwrap"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/loomhq/loom/pkg/version"
)

// Raw SGR sequences; output stays deterministic regardless of what the
// terminal reports about itself.
const (
	sgrReset  = "\033[0m"
	sgrBold   = "\033[1m"
	sgrFaint  = "\033[2m"
	sgrTeal   = "\033[38;5;37m"
	sgrGold   = "\033[38;5;178m"
	sgrViolet = "\033[38;5;141m"
	sgrGray   = "\033[38;5;244m"
	sgrRed    = "\033[38;5;160m"
)

// turnTimeout bounds a single request, streaming included.
const turnTimeout = 120 * time.Second

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

func banner(client *LoomClient) {
	w := termWidth()
	rule := sgrTeal + strings.Repeat("=", w) + sgrReset

	fmt.Println(rule)
	fmt.Printf("%s%sloom chat%s %s%s%s\n", sgrBold, sgrTeal, sgrReset, sgrFaint, version.GitVersion, sgrReset)
	fmt.Println()

	intro := "Memory lives on the gateway: the agent recalls earlier turns of this conversation, so each message here is sent on its own."
	fmt.Printf("%s%s%s\n\n", sgrFaint, wordwrap.WrapString(intro, uint(w-2)), sgrReset)

	fmt.Printf("  model    %s\n", client.Model)
	fmt.Printf("  server   %s\n", client.BaseURL)
	if client.ConversationID != "" {
		fmt.Printf("  conversation  %s\n", client.ConversationID)
	}
	if client.PartitionID != "" {
		fmt.Printf("  partition     %s\n", client.PartitionID)
	}
	fmt.Println()
	fmt.Printf("%s/clear starts a new conversation, /quit or Ctrl+C leaves.%s\n", sgrGray, sgrReset)
	fmt.Println(rule)
	fmt.Println()
}

func rule() {
	n := termWidth() - 2
	if n < 20 {
		n = 20
	}
	fmt.Printf("%s%s%s\n", sgrGray, strings.Repeat("-", n), sgrReset)
}

func echoUser(msg string) {
	rule()
	fmt.Printf("%s%syou%s\n%s%s%s\n", sgrBold, sgrGold, sgrReset, sgrGold, msg, sgrReset)
}

func labelAssistant() {
	rule()
	fmt.Printf("%s%sloom%s\n", sgrBold, sgrViolet, sgrReset)
}

func showError(msg string) {
	fmt.Printf("%s%serror: %s%s\n", sgrBold, sgrRed, msg, sgrReset)
}

// renderMarkdown pretty-prints a finished reply. On any renderer
// trouble the raw text goes out unchanged.
func renderMarkdown(content string, width int) string {
	if width <= 0 {
		width = 76
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithColorProfile(termenv.ANSI256),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}

// RunTUI drives the interactive loop on the plain terminal, no
// alt-screen, so replies stay in scrollback and can be copied. The
// gateway holds the history; each turn sends only the newest user
// message, and /clear drops the conversation ID so the next turn
// starts a fresh thread.
func RunTUI(client *LoomClient) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Printf("\n\n%sbye%s\n\n", sgrFaint, sgrReset)
		os.Exit(0)
	}()

	banner(client)

	stdin := bufio.NewScanner(os.Stdin)
	prompt := sgrTeal + sgrBold + "> " + sgrReset

	for {
		fmt.Print(prompt)
		if !stdin.Scan() {
			// Ctrl+D
			fmt.Printf("\n%sbye%s\n\n", sgrFaint, sgrReset)
			return nil
		}

		input := strings.TrimSpace(stdin.Text())
		switch input {
		case "":
			continue
		case "/quit", "/exit":
			fmt.Printf("\n%sbye%s\n\n", sgrFaint, sgrReset)
			return nil
		case "/clear":
			client.ConversationID = ""
			fmt.Printf("%sstarted a new conversation%s\n\n", sgrGray, sgrReset)
			continue
		}

		runTurn(client, input)
	}
}

// runTurn streams one exchange to the terminal, then swaps the raw
// stream for a markdown rendering of the full reply.
func runTurn(client *LoomClient, input string) {
	echoUser(input)
	labelAssistant()

	waiting := true
	fmt.Printf("%s...%s", sgrGray, sgrReset)

	ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
	defer cancel()

	var reply strings.Builder
	_, err := client.ChatStream(ctx, []ChatMessage{{Role: "user", Content: input}}, func(delta string) {
		if waiting {
			fmt.Print("\r\033[K")
			waiting = false
		}
		fmt.Print(delta)
		reply.WriteString(delta)
	})
	if waiting {
		fmt.Print("\r\033[K")
	}

	if err != nil {
		fmt.Println()
		showError(err.Error())
		fmt.Println()
		return
	}

	// Walk the cursor back over the raw stream and print the rendered
	// version in its place.
	content := reply.String()
	fmt.Println()
	for i := 0; i < strings.Count(content, "\n")+1; i++ {
		fmt.Print("\033[A\033[K")
	}
	fmt.Println(renderMarkdown(content, termWidth()-4))
	fmt.Println()
}

// RunOnce sends a single message and streams the reply through out.
func RunOnce(client *LoomClient, message string, out func(string)) error {
	ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
	defer cancel()

	_, err := client.ChatStream(ctx, []ChatMessage{{Role: "user", Content: message}}, func(delta string) {
		if out != nil {
			out(delta)
		}
	})
	return err
}
