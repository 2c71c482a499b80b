// Package mcp performs the single tool-call round-trip: when a JSON
// chat response carries tool calls naming a configured tool server, the
// gateway invokes the server, folds the results into a follow-up
// request and returns the follow-up's response. Any failure on this
// path yields the original response unchanged.
package mcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	idenentity "github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
	"github.com/loomhq/loom/internal/gateway/service/provider"
	"github.com/loomhq/loom/pkg/logger"
	"github.com/loomhq/loom/pkg/utils/json"
)

// DefaultTimeout bounds one tool-server POST.
const DefaultTimeout = 15 * time.Second

// Client drives tool-server round-trips.
type Client struct {
	http    *http.Client
	timeout time.Duration
}

// NewClient creates a Client with the given per-call timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

type toolCall struct {
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			ToolCalls []toolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

// RoundTrip inspects responseBody for tool calls matching an endpoint,
// invokes each matching tool server once, and resends requestBody with
// the tool results appended through the same provider. It returns the
// final body and whether a round-trip happened; on any error the
// original body comes back.
func (c *Client) RoundTrip(ctx context.Context, prov provider.Provider, endpoints []idenentity.MCPEndpoint, requestBody, responseBody []byte) ([]byte, bool) {
	if len(endpoints) == 0 {
		return responseBody, false
	}

	var parsed chatResponse
	if err := json.Unmarshal(responseBody, &parsed); err != nil || len(parsed.Choices) == 0 {
		return responseBody, false
	}

	byName := make(map[string]idenentity.MCPEndpoint, len(endpoints))
	for _, ep := range endpoints {
		byName[ep.Name] = ep
	}

	var toolMessages []map[string]any
	for _, call := range parsed.Choices[0].Message.ToolCalls {
		ep, ok := byName[call.Function.Name]
		if !ok {
			continue
		}
		result, err := c.invoke(ctx, ep, call)
		if err != nil {
			logger.Warn("[MCP] tool %s via %s failed: %v", call.Function.Name, ep.URL, err)
			return responseBody, false
		}
		toolMessages = append(toolMessages, map[string]any{
			"role":         "tool",
			"tool_call_id": call.ID,
			"content":      result,
		})
	}
	if len(toolMessages) == 0 {
		return responseBody, false
	}

	followUp, err := appendMessages(requestBody, toolMessages)
	if err != nil {
		logger.Warn("[MCP] build follow-up body: %v", err)
		return responseBody, false
	}

	resp, err := prov.Proxy(ctx, &provider.ProxyRequest{Body: followUp})
	if err != nil {
		logger.Warn("[MCP] follow-up call failed: %v", err)
		return responseBody, false
	}
	if resp.Kind == provider.KindStream {
		resp.Stream.Close()
		logger.Warn("[MCP] follow-up call unexpectedly streamed; keeping original response")
		return responseBody, false
	}
	if resp.Status < 200 || resp.Status >= 300 {
		logger.Warn("[MCP] follow-up call returned status %d; keeping original response", resp.Status)
		return responseBody, false
	}
	return resp.Body, true
}

// invoke POSTs {name, arguments} to the tool server and returns the
// raw response body as the tool result.
func (c *Client) invoke(ctx context.Context, ep idenentity.MCPEndpoint, call toolCall) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"name":      call.Function.Name,
		"arguments": call.Function.Arguments,
	})
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if ep.AuthHeader != "" {
		req.Header.Set("Authorization", ep.AuthHeader)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("tool server returned status %d", resp.StatusCode)
	}
	return string(body), nil
}

// appendMessages re-issues the original body with the tool results
// appended to its messages.
func appendMessages(requestBody []byte, extra []map[string]any) ([]byte, error) {
	var body map[string]any
	if err := json.Unmarshal(requestBody, &body); err != nil {
		return nil, err
	}
	messages, _ := body["messages"].([]any)
	for _, m := range extra {
		messages = append(messages, m)
	}
	body["messages"] = messages
	return json.Marshal(body)
}
