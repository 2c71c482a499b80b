package provider

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/loomhq/loom/internal/gateway/service/identity/domain/entity"
)

// Azure proxies to an Azure-OpenAI deployment. The endpoint, deployment
// and api version are all mandatory and validated at resolve time.
type Azure struct {
	apiKey     string
	endpoint   string
	deployment string
	apiVersion string
	client     *http.Client
}

// NewAzure creates an Azure provider from a resolved config.
func NewAzure(pc *entity.ProviderConfig, timeout time.Duration) *Azure {
	return &Azure{
		apiKey:     pc.APIKey,
		endpoint:   strings.TrimRight(pc.Endpoint, "/"),
		deployment: pc.Deployment,
		apiVersion: pc.APIVersion,
		client:     newHTTPClient(timeout),
	}
}

func (p *Azure) Proxy(ctx context.Context, req *ProxyRequest) (*ProxyResponse, error) {
	url := req.URL
	if url == "" {
		url = p.endpoint + "/openai/deployments/" + p.deployment + "/chat/completions?api-version=" + p.apiVersion
	}
	return doProxy(ctx, p.client, url, func(r *http.Request) {
		r.Header.Set("api-key", p.apiKey)
	}, req)
}
