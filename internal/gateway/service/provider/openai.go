package provider

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
)

// DefaultOpenAIBaseURL is used when a tenant sets no base URL of its own.
const DefaultOpenAIBaseURL = "https://api.openai.com"

// OpenAI proxies to any OpenAI-dialect upstream: api.openai.com itself
// or a compatible server behind a custom base URL.
type OpenAI struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewOpenAI creates an OpenAI provider from a resolved config.
func NewOpenAI(pc *entity.ProviderConfig, timeout time.Duration) *OpenAI {
	base := pc.BaseURL
	if base == "" {
		base = DefaultOpenAIBaseURL
	}
	return &OpenAI{
		apiKey:  pc.APIKey,
		baseURL: strings.TrimRight(base, "/"),
		client:  newHTTPClient(timeout),
	}
}

func (p *OpenAI) Proxy(ctx context.Context, req *ProxyRequest) (*ProxyResponse, error) {
	url := req.URL
	if url == "" {
		url = p.baseURL + "/v1/chat/completions"
	}
	return doProxy(ctx, p.client, url, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+p.apiKey)
	}, req)
}
