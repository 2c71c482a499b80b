package v1

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/internal/gateway/handler/middleware"
	convmodule "github.com/loomhq/loom/internal/gateway/service/conversation"
	"github.com/loomhq/loom/internal/gateway/service/identity"
	idenentity "github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
	"github.com/loomhq/loom/internal/gateway/service/mcp"
	"github.com/loomhq/loom/internal/gateway/service/provider"
	"github.com/loomhq/loom/internal/gateway/service/resolver"
	tracesvc "github.com/loomhq/loom/internal/gateway/service/trace/domain/service"
	traceinmem "github.com/loomhq/loom/internal/gateway/service/trace/store/inmemory"
	"github.com/loomhq/loom/pkg/cryptoutil"
	"github.com/loomhq/loom/pkg/utils/json"
)

const pipelineMasterKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type pipelineFixture struct {
	router   *gin.Engine
	identity *identity.Module
	conv     *convmodule.Module
	recorder *tracesvc.Recorder
	traces   *traceinmem.TraceStore

	tenant *idenentity.Tenant
	agent  *idenentity.Agent
	keyID  string
	rawKey string
}

// newPipelineFixture wires the whole data plane against an in-memory
// store set: one tenant pointing its openai config at upstreamURL, one
// agent shaped by mutate, one live API key.
func newPipelineFixture(t *testing.T, upstreamURL string, mutate func(*idenentity.Agent)) *pipelineFixture {
	t.Helper()
	ctx := context.Background()

	cipher, err := cryptoutil.NewCipher(pipelineMasterKey)
	require.NoError(t, err)

	idCfg := &identity.Config{PortalJWTSecret: "test-secret"}
	idmod, err := idCfg.Complete().New(ctx, identity.Dependencies{})
	require.NoError(t, err)

	_, tenant, err := idmod.Users.Signup(ctx, "owner@example.com", "password123", "Acme")
	require.NoError(t, err)
	tenant.ProviderConfig = &idenentity.ProviderConfig{
		Provider: "openai",
		APIKey:   "sk-upstream",
		BaseURL:  upstreamURL,
	}
	require.NoError(t, idmod.TenantRepo.Update(ctx, tenant))

	agent := &idenentity.Agent{TenantID: tenant.ID, Name: "support"}
	if mutate != nil {
		mutate(agent)
	}
	require.NoError(t, idmod.Agents.Create(ctx, agent))

	key, rawKey, err := idmod.APIKeys.Create(ctx, agent, "test")
	require.NoError(t, err)

	convCfg := &convmodule.Config{StoreType: "inmemory"}
	conv, err := convCfg.Complete().New(ctx, convmodule.Dependencies{Cipher: cipher})
	require.NoError(t, err)

	traces := traceinmem.NewTraceStore()
	recorder := tracesvc.NewRecorder(traces, cipher, tracesvc.RecorderOptions{
		QueueSize:     64,
		FlushInterval: 10 * time.Millisecond,
		MaxBatch:      16,
	})
	t.Cleanup(func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		recorder.Close(closeCtx)
	})

	handler := NewChatCompletionsHandler(
		resolver.New(idmod.TenantRepo, idmod.AgentRepo, ""),
		provider.NewCache(5*time.Second),
		conv,
		recorder,
		mcp.NewClient(time.Second),
	)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/v1/chat/completions", middleware.APIKeyAuth(idmod.Auth), handler.Handle)

	return &pipelineFixture{
		router:   router,
		identity: idmod,
		conv:     conv,
		recorder: recorder,
		traces:   traces,
		tenant:   tenant,
		agent:    agent,
		keyID:    key.ID,
		rawKey:   rawKey,
	}
}

func (f *pipelineFixture) post(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+f.rawKey)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func completionResponse(content string) string {
	return fmt.Sprintf(`{
		"object": "chat.completion",
		"choices": [{"message": {"role": "assistant", "content": %q}}],
		"usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
	}`, content)
}

func TestChatCompletionsPassthroughWithTrace(t *testing.T) {
	var upstreamAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionResponse("hello there"))
	}))
	defer upstream.Close()

	f := newPipelineFixture(t, upstream.URL, nil)
	w := f.post(t, `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Bearer sk-upstream", upstreamAuth)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotContains(t, body, "conversation_id")

	require.Eventually(t, func() bool { return f.traces.Len() == 1 }, time.Second, 10*time.Millisecond)
	rows, _, err := f.traces.List(context.Background(), f.tenant.ID, 10, "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, http.StatusOK, rows[0].StatusCode)
	assert.Equal(t, "gpt-4o", rows[0].Model)
	assert.Equal(t, "openai", rows[0].Provider)
	assert.Equal(t, 12, rows[0].PromptTokens)
	assert.Equal(t, 7, rows[0].CompletionTokens)
	assert.Equal(t, 19, rows[0].TotalTokens)
	assert.GreaterOrEqual(t, rows[0].LatencyMs, int64(0))
}

func TestChatCompletionsMergesAgentConfig(t *testing.T) {
	var upstreamBody []byte
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionResponse("ok"))
	}))
	defer upstream.Close()

	f := newPipelineFixture(t, upstream.URL, func(a *idenentity.Agent) {
		prompt := "You are a support bot."
		a.SystemPrompt = &prompt
		a.Skills = []idenentity.Skill{
			{"type": "function", "function": map[string]any{"name": "lookup_order"}},
		}
	})

	w := f.post(t, `{"model":"gpt-4o","conversation_id":"ignored","messages":[
		{"role":"system","content":"Caller prompt."},
		{"role":"user","content":"where is my order?"}]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(upstreamBody, &body))

	// Gateway-only fields never reach the upstream.
	assert.NotContains(t, body, "conversation_id")
	assert.NotContains(t, body, "partition_id")
	assert.NotContains(t, body, "mcp_endpoints")

	messages := body["messages"].([]any)
	require.Len(t, messages, 3)
	first := messages[0].(map[string]any)
	assert.Equal(t, "system", first["role"])
	assert.Equal(t, "You are a support bot.", first["content"])

	tools := body["tools"].([]any)
	require.Len(t, tools, 1)
}

func TestChatCompletionsConversationRoundTrips(t *testing.T) {
	var lastBody []byte
	turn := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastBody, _ = io.ReadAll(r.Body)
		turn++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionResponse(fmt.Sprintf("answer %d", turn)))
	}))
	defer upstream.Close()

	f := newPipelineFixture(t, upstream.URL, func(a *idenentity.Agent) {
		a.ConversationsEnabled = true
	})

	w := f.post(t, `{"model":"gpt-4o","conversation_id":"c1","messages":[{"role":"user","content":"first question"}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "c1", w.Header().Get("X-Loom-Conversation-ID"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "c1", body["conversation_id"])

	// Persistence happens off the response path; wait for both turns.
	ctx := context.Background()
	conv, err := f.conv.Manager.GetOrCreateConversation(ctx, f.tenant.ID, "c1", nil, &f.agent.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		msgs, err := f.conv.Manager.ListMessages(ctx, conv)
		return err == nil && len(msgs) == 2
	}, time.Second, 10*time.Millisecond)

	w = f.post(t, `{"model":"gpt-4o","conversation_id":"c1","messages":[{"role":"user","content":"second question"}]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var upstreamSeen map[string]any
	require.NoError(t, json.Unmarshal(lastBody, &upstreamSeen))
	messages := upstreamSeen["messages"].([]any)
	// History (user + assistant) injected ahead of the new message.
	require.Len(t, messages, 3)
	assert.Equal(t, "first question", messages[0].(map[string]any)["content"])
	assert.Equal(t, "answer 1", messages[1].(map[string]any)["content"])
	assert.Equal(t, "second question", messages[2].(map[string]any)["content"])
}

func TestChatCompletionsSnapshotsOverBudget(t *testing.T) {
	long := strings.Repeat("a detailed sentence about the order history. ", 40)
	calls := make([]string, 0, 4)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		calls = append(calls, string(raw))
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(string(raw), "Summarise") {
			fmt.Fprint(w, completionResponse("short summary of earlier turns"))
			return
		}
		fmt.Fprint(w, completionResponse("noted"))
	}))
	defer upstream.Close()

	f := newPipelineFixture(t, upstream.URL, func(a *idenentity.Agent) {
		a.ConversationsEnabled = true
		a.ConversationTokenLimit = 100
	})

	ctx := context.Background()
	body := fmt.Sprintf(`{"model":"gpt-4o","conversation_id":"c1","messages":[{"role":"user","content":%q}]}`, long)
	require.Equal(t, http.StatusOK, f.post(t, body).Code)

	conv, err := f.conv.Manager.GetOrCreateConversation(ctx, f.tenant.ID, "c1", nil, &f.agent.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		msgs, err := f.conv.Manager.ListMessages(ctx, conv)
		return err == nil && len(msgs) == 2
	}, time.Second, 10*time.Millisecond)

	// Second request finds the context over budget: exactly one
	// summarisation sub-call, then the injected summary replaces the
	// raw history.
	require.Equal(t, http.StatusOK, f.post(t, `{"model":"gpt-4o","conversation_id":"c1","messages":[{"role":"user","content":"and now?"}]}`).Code)

	summaryCalls := 0
	for _, call := range calls {
		if strings.Contains(call, "Summarise") {
			summaryCalls++
		}
	}
	assert.Equal(t, 1, summaryCalls)

	final := calls[len(calls)-1]
	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(final), &parsed))
	messages := parsed["messages"].([]any)
	first := messages[0].(map[string]any)
	assert.Equal(t, "system", first["role"])
	assert.Contains(t, first["content"], "short summary of earlier turns")
	assert.NotContains(t, final, long)
}

func TestChatCompletionsAzureURLShape(t *testing.T) {
	var gotPath, gotQuery, gotKey string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("api-key")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionResponse("from azure"))
	}))
	defer upstream.Close()

	f := newPipelineFixture(t, upstream.URL, nil)
	f.tenant.ProviderConfig = &idenentity.ProviderConfig{
		Provider:   "azure",
		APIKey:     "azure-secret",
		Endpoint:   upstream.URL,
		Deployment: "gpt4-prod",
		APIVersion: "2024-02-01",
	}
	require.NoError(t, f.identity.TenantRepo.Update(context.Background(), f.tenant))

	w := f.post(t, `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/openai/deployments/gpt4-prod/chat/completions", gotPath)
	assert.Equal(t, "api-version=2024-02-01", gotQuery)
	assert.Equal(t, "azure-secret", gotKey)
}

func TestChatCompletionsUpstreamErrorPassthrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited","type":"rate_limit_error"}}`)
	}))
	defer upstream.Close()

	f := newPipelineFixture(t, upstream.URL, nil)
	w := f.post(t, `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":{"message":"rate limited","type":"rate_limit_error"}}`, w.Body.String())

	require.Eventually(t, func() bool { return f.traces.Len() == 1 }, time.Second, 10*time.Millisecond)
	rows, _, err := f.traces.List(context.Background(), f.tenant.ID, 10, "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, rows[0].StatusCode)
}

func TestChatCompletionsStreamTee(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, payload := range []string{
			`{"choices":[{"delta":{"content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo"}}]}`,
			"[DONE]",
		} {
			require.NoError(t, sse.Encode(w, sse.Event{Data: payload}))
		}
	}))
	defer upstream.Close()

	f := newPipelineFixture(t, upstream.URL, nil)
	w := f.post(t, `{"model":"gpt-4o","stream":true,"messages":[{"role":"user","content":"hi"}]}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), `"content":"Hel"`)
	assert.Contains(t, w.Body.String(), "[DONE]")

	// The trace carries a synthetic JSON body with the accumulated text,
	// encrypted under the owning tenant's associated data.
	require.Eventually(t, func() bool { return f.traces.Len() == 1 }, time.Second, 10*time.Millisecond)
	rows, _, err := f.traces.List(context.Background(), f.tenant.ID, 10, "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, http.StatusOK, rows[0].StatusCode)

	cipher, err := cryptoutil.NewCipher(pipelineMasterKey)
	require.NoError(t, err)
	plain, err := cipher.Decrypt(rows[0].ResponseCiphertext, rows[0].ResponseIV, []byte(f.tenant.ID))
	require.NoError(t, err)

	var synthetic struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	require.NoError(t, json.Unmarshal(plain, &synthetic))
	require.Len(t, synthetic.Choices, 1)
	assert.Equal(t, "Hello", synthetic.Choices[0].Message.Content)
}

func TestChatCompletionsStreamClientDisconnect(t *testing.T) {
	sent := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		require.NoError(t, sse.Encode(w, sse.Event{Data: `{"choices":[{"delta":{"content":"Hel"}}]}`}))
		w.(http.Flusher).Flush()
		close(sent)
		// Hold the stream open until the gateway tears down its
		// upstream request.
		<-r.Context().Done()
	}))
	defer upstream.Close()

	f := newPipelineFixture(t, upstream.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"gpt-4o","stream":true,"messages":[{"role":"user","content":"hi"}]}`)).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+f.rawKey)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.router.ServeHTTP(w, req)
	}()

	// Let the tee drain the first chunk and block on the next read
	// before the caller hangs up.
	<-sent
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream handler did not return after client disconnect")
	}

	// The partial trace records the hangup, not the upstream's 200.
	require.Eventually(t, func() bool { return f.traces.Len() == 1 }, time.Second, 10*time.Millisecond)
	rows, _, err := f.traces.List(context.Background(), f.tenant.ID, 10, "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, statusClientClosed, rows[0].StatusCode)
}

func TestChatCompletionsRevokedKeyLeavesNoTrace(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be reached with a revoked key")
	}))
	defer upstream.Close()

	f := newPipelineFixture(t, upstream.URL, nil)
	require.NoError(t, f.identity.APIKeys.Revoke(context.Background(), f.keyID))

	w := f.post(t, `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "invalid_request_error", body.Error.Type)

	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.recorder.Close(closeCtx))
	assert.Zero(t, f.traces.Len())
}

func TestChatCompletionsMisconfiguredProvider(t *testing.T) {
	f := newPipelineFixture(t, "http://unused", nil)
	f.tenant.ProviderConfig = &idenentity.ProviderConfig{Provider: "azure", APIKey: "k"}
	require.NoError(t, f.identity.TenantRepo.Update(context.Background(), f.tenant))

	w := f.post(t, `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
