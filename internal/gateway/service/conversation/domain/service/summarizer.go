package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/loomhq/loom/internal/gateway/service/provider"
	"github.com/loomhq/loom/pkg/utils/json"
)

// DefaultSummaryModel is the last-resort model for summarisation
// sub-calls.
const DefaultSummaryModel = "gpt-4o-mini"

// summaryPrompt instructs the model on the summarisation sub-call.
const summaryPrompt = "Summarise the following conversation transcript concisely, " +
	"preserving facts, decisions, names and open questions. " +
	"Reply with the summary only."

// PickSummaryModel resolves the summarisation model: the agent's
// configured one, else the caller's, else the default.
func PickSummaryModel(agentModel, callerModel string) string {
	if agentModel != "" {
		return agentModel
	}
	if callerModel != "" {
		return callerModel
	}
	return DefaultSummaryModel
}

// Summarizer condenses a loaded context into a summary via a
// single-turn sub-call through the tenant's own provider.
type Summarizer struct{}

// Summarize renders the context as a transcript and asks model for a
// summary. Failures bubble up; the pipeline logs and falls through with
// the original context.
func (Summarizer) Summarize(ctx context.Context, prov provider.Provider, model string, c *Context) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model": model,
		"messages": []map[string]any{
			{"role": "system", "content": summaryPrompt},
			{"role": "user", "content": renderTranscript(c)},
		},
	})
	if err != nil {
		return "", err
	}

	resp, err := prov.Proxy(ctx, &provider.ProxyRequest{Body: body})
	if err != nil {
		return "", err
	}
	if resp.Kind != provider.KindJSON || resp.Status < 200 || resp.Status >= 300 {
		return "", fmt.Errorf("summarise sub-call returned status %d", resp.Status)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("summarise sub-call returned no content")
	}
	return parsed.Choices[0].Message.Content, nil
}

func renderTranscript(c *Context) string {
	var b strings.Builder
	if c.LatestSnapshotSummary != "" {
		b.WriteString("Previous summary: ")
		b.WriteString(c.LatestSnapshotSummary)
		b.WriteString("\n\n")
	}
	for _, msg := range c.Messages {
		b.WriteString(msg.Role)
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return b.String()
}
