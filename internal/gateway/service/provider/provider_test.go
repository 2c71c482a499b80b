package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
)

func TestOpenAIURLAndHeaders(t *testing.T) {
	var gotPath, gotAuth, gotContentType string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer upstream.Close()

	p := NewOpenAI(&entity.ProviderConfig{Provider: "openai", APIKey: "sk-test", BaseURL: upstream.URL}, time.Second)
	resp, err := p.Proxy(context.Background(), &ProxyRequest{Body: []byte(`{}`)})
	require.NoError(t, err)

	assert.Equal(t, "/v1/chat/completions", gotPath)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, KindJSON, resp.Kind)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
}

func TestAzureURLAndHeaders(t *testing.T) {
	var gotURL, gotKey string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		gotKey = r.Header.Get("api-key")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{}`)
	}))
	defer upstream.Close()

	p := NewAzure(&entity.ProviderConfig{
		Provider: "azure", APIKey: "az-key", Endpoint: upstream.URL,
		Deployment: "gpt4o", APIVersion: "2024-06-01",
	}, time.Second)
	_, err := p.Proxy(context.Background(), &ProxyRequest{Body: []byte(`{}`)})
	require.NoError(t, err)

	assert.Equal(t, "/openai/deployments/gpt4o/chat/completions?api-version=2024-06-01", gotURL)
	assert.Equal(t, "az-key", gotKey)
}

func TestProxyStripsCallerCredentials(t *testing.T) {
	var gotAuth, gotCustom string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCustom = r.Header.Get("X-Custom")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{}`)
	}))
	defer upstream.Close()

	p := NewOpenAI(&entity.ProviderConfig{APIKey: "upstream-key", BaseURL: upstream.URL}, time.Second)
	header := http.Header{}
	header.Set("Authorization", "Bearer loom_sk_callerkey")
	header.Set("X-Custom", "kept")
	_, err := p.Proxy(context.Background(), &ProxyRequest{Header: header, Body: []byte(`{}`)})
	require.NoError(t, err)

	// The caller's gateway key never reaches the upstream; unrelated
	// headers pass through.
	assert.Equal(t, "Bearer upstream-key", gotAuth)
	assert.Equal(t, "kept", gotCustom)
}

func TestProxyNonTwoHundredPassthrough(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusInternalServerError} {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			body := fmt.Sprintf(`{"error":{"message":"upstream says %d","type":"x"}}`, status)
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				fmt.Fprint(w, body)
			}))
			defer upstream.Close()

			p := NewOpenAI(&entity.ProviderConfig{APIKey: "k", BaseURL: upstream.URL}, time.Second)
			resp, err := p.Proxy(context.Background(), &ProxyRequest{Body: []byte(`{}`)})
			require.NoError(t, err)
			assert.Equal(t, status, resp.Status)
			assert.Equal(t, body, string(resp.Body))
		})
	}
}

func TestProxyStreamHandover(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[]}\n\ndata: [DONE]\n\n")
	}))
	defer upstream.Close()

	p := NewOpenAI(&entity.ProviderConfig{APIKey: "k", BaseURL: upstream.URL}, time.Second)
	resp, err := p.Proxy(context.Background(), &ProxyRequest{Body: []byte(`{"stream":true}`)})
	require.NoError(t, err)
	require.Equal(t, KindStream, resp.Kind)
	require.NotNil(t, resp.Stream)
	defer resp.Stream.Close()

	raw, err := io.ReadAll(resp.Stream)
	require.NoError(t, err)
	assert.Equal(t, "data: {\"choices\":[]}\n\ndata: [DONE]\n\n", string(raw))
}

func TestProxyNetworkFailure(t *testing.T) {
	p := NewOpenAI(&entity.ProviderConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1"}, time.Second)
	_, err := p.Proxy(context.Background(), &ProxyRequest{Body: []byte(`{}`)})
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestCacheRebuildOnConfigChange(t *testing.T) {
	cache := NewCache(time.Second)
	pc := &entity.ProviderConfig{Provider: "openai", APIKey: "k1"}

	p1, err := cache.Get("tenant", pc)
	require.NoError(t, err)
	p2, err := cache.Get("tenant", pc)
	require.NoError(t, err)
	assert.Same(t, p1, p2)

	changed := &entity.ProviderConfig{Provider: "openai", APIKey: "k2"}
	p3, err := cache.Get("tenant", changed)
	require.NoError(t, err)
	assert.NotSame(t, p1, p3)

	cache.Evict("tenant")
	p4, err := cache.Get("tenant", changed)
	require.NoError(t, err)
	assert.NotSame(t, p3, p4)
}
