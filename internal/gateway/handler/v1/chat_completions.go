// Package v1 holds the data-plane handlers: the OpenAI-compatible chat
// completions endpoint and its pipeline.
package v1

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/loomhq/loom/internal/gateway/handler/middleware"
	"github.com/loomhq/loom/internal/gateway/pkg/errno"
	convmodule "github.com/loomhq/loom/internal/gateway/service/conversation"
	conventity "github.com/loomhq/loom/internal/gateway/service/conversation/domain/entity"
	convservice "github.com/loomhq/loom/internal/gateway/service/conversation/domain/service"
	idenentity "github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
	idenservice "github.com/loomhq/loom/internal/gateway/service/identity/domain/service"
	"github.com/loomhq/loom/internal/gateway/service/mcp"
	"github.com/loomhq/loom/internal/gateway/service/provider"
	"github.com/loomhq/loom/internal/gateway/service/resolver"
	tracesvc "github.com/loomhq/loom/internal/gateway/service/trace/domain/service"
	"github.com/loomhq/loom/internal/pkg/core"
	"github.com/loomhq/loom/pkg/errorx"
	"github.com/loomhq/loom/pkg/logger"
	"github.com/loomhq/loom/pkg/utils/json"
)

// conversationHeader carries the resolved conversation back to callers.
const conversationHeader = "X-Loom-Conversation-ID"

// statusClientClosed is recorded when the client goes away mid-stream.
const statusClientClosed = 499

// ChatCompletionsHandler handles POST /v1/chat/completions: resolve,
// inject memory, merge, proxy, trace.
type ChatCompletionsHandler struct {
	resolver      *resolver.Resolver
	providers     *provider.Cache
	conversations *convmodule.Module
	recorder      *tracesvc.Recorder
	mcp           *mcp.Client
}

// NewChatCompletionsHandler creates a ChatCompletionsHandler.
// conversations may be nil (memory disabled).
func NewChatCompletionsHandler(res *resolver.Resolver, providers *provider.Cache,
	conversations *convmodule.Module, recorder *tracesvc.Recorder, mcpClient *mcp.Client) *ChatCompletionsHandler {
	return &ChatCompletionsHandler{
		resolver:      res,
		providers:     providers,
		conversations: conversations,
		recorder:      recorder,
		mcp:           mcpClient,
	}
}

// Handle is the single data-plane entry point.
func (h *ChatCompletionsHandler) Handle(c *gin.Context) {
	requestStart := time.Now()
	principal := middleware.Principal(c)
	ctx := c.Request.Context()

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrBind, "read request body"), nil)
		return
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrBind, "parse request body"), nil)
		return
	}

	// Gateway-specific fields never reach the upstream.
	convExternal, _ := body["conversation_id"].(string)
	partExternal, _ := body["partition_id"].(string)
	delete(body, "conversation_id")
	delete(body, "partition_id")

	model, _ := body["model"].(string)
	callerUserText := concatUserContents(body["messages"])

	eff, err := h.resolver.ResolveAgent(ctx, principal.Agent)
	if err != nil {
		if errors.Is(err, errno.ErrProviderMisconfigured) {
			core.WriteResponse(c, errorx.WrapC(err, ErrProviderMisconfigured, "resolve config for agent %s", principal.Agent.ID), nil)
			return
		}
		core.WriteResponse(c, errorx.WrapC(err, ErrPipeline, "resolve config for agent %s", principal.Agent.ID), nil)
		return
	}

	prov, err := h.providers.Get(principal.Tenant.ID, eff.Provider)
	if err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrProviderMisconfigured, "build provider for tenant %s", principal.Tenant.ID), nil)
		return
	}

	var conv *conventity.Conversation
	if principal.Agent.ConversationsEnabled && h.conversations.Enabled() {
		conv, err = h.prepareConversation(ctx, c, principal, prov, model, body, convExternal, partExternal)
		if err != nil {
			core.WriteResponse(c, errorx.WrapC(err, ErrPipeline, "prepare conversation"), nil)
			return
		}
	}

	endpoints := resolver.ApplyMergePolicies(body, eff, principal.Agent.Policies)

	upstreamBody, err := json.Marshal(body)
	if err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrPipeline, "encode upstream body"), nil)
		return
	}

	overheadMs := time.Since(requestStart).Milliseconds()
	upstreamStart := time.Now()
	resp, err := prov.Proxy(ctx, &provider.ProxyRequest{Header: c.Request.Header, Body: upstreamBody})
	if err != nil {
		core.WriteResponse(c, errorx.WrapC(err, ErrUpstreamUnavailable, "proxy to %s", eff.Provider.Provider), nil)
		return
	}
	ttfbMs := time.Since(upstreamStart).Milliseconds()

	ev := &tracesvc.Event{
		TenantID:          principal.Tenant.ID,
		AgentID:           &principal.Agent.ID,
		Model:             model,
		Provider:          eff.Provider.Provider,
		RequestBody:       upstreamBody,
		StatusCode:        resp.Status,
		TTFBMs:            ttfbMs,
		GatewayOverheadMs: overheadMs,
	}

	switch resp.Kind {
	case provider.KindStream:
		h.handleStream(c, resp, ev, conv, upstreamStart, callerUserText)
	case provider.KindJSON:
		h.handleJSON(c, resp, ev, conv, partExternal, prov, endpoints, upstreamBody, upstreamStart, callerUserText)
	default:
		ev.ResponseBody = resp.Body
		ev.LatencyMs = time.Since(upstreamStart).Milliseconds()
		h.recorder.Record(ev)
		c.Data(resp.Status, resp.Header.Get("Content-Type"), resp.Body)
	}
}

// prepareConversation materialises the partition and conversation,
// loads memory, snapshots when over budget and injects history into the
// body's messages.
func (h *ChatCompletionsHandler) prepareConversation(ctx context.Context, c *gin.Context,
	principal *idenservice.Principal, prov provider.Provider, model string,
	body map[string]any, convExternal, partExternal string) (*conventity.Conversation, error) {
	mgr := h.conversations.Manager
	agent := principal.Agent
	tenant := principal.Tenant

	var partitionID *string
	if partExternal != "" {
		partition, err := mgr.GetOrCreatePartition(ctx, tenant.ID, partExternal, nil)
		if err != nil {
			return nil, err
		}
		partitionID = &partition.ID
	}

	external := convExternal
	if external == "" {
		external = uuid.NewString()
	}
	conv, err := mgr.GetOrCreateConversation(ctx, tenant.ID, external, partitionID, &agent.ID)
	if err != nil {
		return nil, err
	}

	loaded, err := mgr.LoadContext(ctx, conv)
	if err != nil {
		return nil, err
	}

	if mgr.NeedsSnapshot(loaded.TokenEstimate, agent.EffectiveTokenLimit()) {
		summary, err := h.conversations.Summarizer.Summarize(ctx, prov,
			convservice.PickSummaryModel(agent.SummaryModel, model), loaded)
		if err != nil {
			logger.Warn("[Chat] summarise conversation %s: %v", conv.ID, err)
		} else if err := mgr.CreateSnapshot(ctx, conv, summary, len(loaded.Messages), loaded.LatestSnapshotID); err != nil {
			logger.Warn("[Chat] snapshot conversation %s: %v", conv.ID, err)
		} else if reloaded, err := mgr.LoadContext(ctx, conv); err != nil {
			logger.Warn("[Chat] reload conversation %s: %v", conv.ID, err)
		} else {
			loaded = reloaded
		}
	}

	injection := mgr.BuildInjectionMessages(loaded)
	if len(injection) > 0 {
		callerMessages, _ := body["messages"].([]any)
		merged := make([]any, 0, len(injection)+len(callerMessages))
		for _, m := range injection {
			merged = append(merged, m)
		}
		body["messages"] = append(merged, callerMessages...)
	}

	c.Header(conversationHeader, conv.ExternalID)
	return conv, nil
}

func (h *ChatCompletionsHandler) handleJSON(c *gin.Context, resp *provider.ProxyResponse,
	ev *tracesvc.Event, conv *conventity.Conversation, partExternal string, prov provider.Provider,
	endpoints []idenentity.MCPEndpoint, upstreamBody []byte, upstreamStart time.Time, callerUserText string) {

	finalBody := resp.Body
	if resp.Status >= 200 && resp.Status < 300 && len(endpoints) > 0 {
		finalBody, _ = h.mcp.RoundTrip(c.Request.Context(), prov, endpoints, upstreamBody, finalBody)
	}

	ev.ResponseBody = finalBody
	ev.LatencyMs = time.Since(upstreamStart).Milliseconds()
	ev.PromptTokens, ev.CompletionTokens, ev.TotalTokens = extractUsage(finalBody)
	h.recorder.Record(ev)

	if conv != nil && resp.Status >= 200 && resp.Status < 300 {
		assistant := extractAssistantContent(finalBody)
		h.storeMessagesAsync(conv, callerUserText, assistant)
		finalBody = attachConversationIDs(finalBody, conv, partExternal)
	}

	c.Data(resp.Status, "application/json", finalBody)
}

func (h *ChatCompletionsHandler) handleStream(c *gin.Context, resp *provider.ProxyResponse,
	ev *tracesvc.Event, conv *conventity.Conversation, upstreamStart time.Time, callerUserText string) {
	defer resp.Stream.Close()

	header := c.Writer.Header()
	for k, vs := range resp.Header {
		switch http.CanonicalHeaderKey(k) {
		case "Content-Length", "Connection", "Transfer-Encoding":
			continue
		}
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	c.Status(resp.Status)

	// Tee the stream: bytes reach the client verbatim while the
	// accumulator mines delta content for the trace.
	acc := &sseAccumulator{}
	status := resp.Status
	buf := make([]byte, 4096)
	clientGone := c.Request.Context().Done()

loop:
	for {
		select {
		case <-clientGone:
			status = statusClientClosed
			break loop
		default:
		}

		n, err := resp.Stream.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if _, werr := c.Writer.Write(chunk); werr != nil {
				status = statusClientClosed
				break loop
			}
			c.Writer.Flush()
			acc.Write(chunk)
		}
		if err != nil {
			// A read aborted by the caller hanging up surfaces here as
			// context.Canceled rather than through the select above.
			if errors.Is(err, context.Canceled) || c.Request.Context().Err() != nil {
				status = statusClientClosed
			} else if err != io.EOF {
				logger.Warn("[Chat] upstream stream read: %v", err)
			}
			break loop
		}
	}

	assistant := acc.Content()
	synthetic, err := json.Marshal(map[string]any{
		"object": "chat.completion",
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": assistant}},
		},
	})
	if err != nil {
		synthetic = nil
	}

	ev.StatusCode = status
	ev.ResponseBody = synthetic
	ev.LatencyMs = time.Since(upstreamStart).Milliseconds()
	h.recorder.Record(ev)

	if conv != nil && status != statusClientClosed {
		h.storeMessagesAsync(conv, callerUserText, assistant)
	}
}

// storeMessagesAsync persists the turn off the response path; failures
// are logged and swallowed.
func (h *ChatCompletionsHandler) storeMessagesAsync(conv *conventity.Conversation, userText, assistantText string) {
	mgr := h.conversations.Manager
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mgr.StoreMessages(ctx, conv, userText, assistantText); err != nil {
			logger.Warn("[Chat] store messages for conversation %s: %v", conv.ID, err)
		}
	}()
}

// concatUserContents joins all caller user-role message contents with
// newlines, for persistence.
func concatUserContents(messages any) string {
	list, ok := messages.([]any)
	if !ok {
		return ""
	}
	var out string
	for _, m := range list {
		msg, ok := m.(map[string]any)
		if !ok || msg["role"] != "user" {
			continue
		}
		content, _ := msg["content"].(string)
		if content == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += content
	}
	return out
}

func extractUsage(body []byte) (prompt, completion, total int) {
	var parsed struct {
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, 0, 0
	}
	return parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens, parsed.Usage.TotalTokens
}

func extractAssistantContent(body []byte) string {
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Choices) == 0 {
		return ""
	}
	return parsed.Choices[0].Message.Content
}

// attachConversationIDs adds the caller-facing conversation and
// partition IDs to the outgoing body. When the body cannot be reshaped
// it goes out untouched.
func attachConversationIDs(body []byte, conv *conventity.Conversation, partExternal string) []byte {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return body
	}
	parsed["conversation_id"] = conv.ExternalID
	if partExternal != "" {
		parsed["partition_id"] = partExternal
	}
	out, err := json.Marshal(parsed)
	if err != nil {
		return body
	}
	return out
}
