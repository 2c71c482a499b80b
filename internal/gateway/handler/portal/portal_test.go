package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/internal/gateway/handler/middleware"
	"github.com/loomhq/loom/internal/gateway/service/identity"
	"github.com/loomhq/loom/internal/gateway/service/resolver"
	"github.com/loomhq/loom/pkg/utils/json"
)

type portalFixture struct {
	router   *gin.Engine
	identity *identity.Module
}

func newPortalFixture(t *testing.T) *portalFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &identity.Config{PortalJWTSecret: "test-secret"}
	m, err := cfg.Complete().New(context.Background(), identity.Dependencies{})
	require.NoError(t, err)
	res := resolver.New(m.TenantRepo, m.AgentRepo, "")

	authHandler := NewAuthHandler(m)
	tenantHandler := NewTenantHandler(m, res)
	agentHandler := NewAgentHandler(m, res)
	memberHandler := NewMemberHandler(m)
	keyHandler := NewAPIKeyHandler(m)

	r := gin.New()
	r.POST("/v1/portal/auth/signup", authHandler.Signup)
	r.POST("/v1/portal/auth/login", authHandler.Login)
	p := r.Group("/v1/portal", middleware.PortalAuth(m.Tokens))
	{
		p.GET("/auth/me", authHandler.Me)
		p.PUT("/auth/password", authHandler.ChangePassword)
		p.GET("/tenant", tenantHandler.Get)
		p.PUT("/tenant", tenantHandler.Update)
		p.GET("/tenant/children", tenantHandler.ListChildren)
		p.POST("/tenant/children", tenantHandler.CreateChild)
		p.PUT("/tenant/children/:id/status", tenantHandler.SetChildStatus)
		p.POST("/agents", agentHandler.Create)
		p.GET("/agents", agentHandler.List)
		p.GET("/agents/:id", agentHandler.Get)
		p.PUT("/agents/:id", agentHandler.Update)
		p.DELETE("/agents/:id", agentHandler.Delete)
		p.POST("/agents/:id/keys", keyHandler.Create)
		p.GET("/keys", keyHandler.List)
		p.DELETE("/keys/:id", keyHandler.Revoke)
		p.GET("/members", memberHandler.List)
		p.POST("/invites", memberHandler.CreateInvite)
		p.POST("/invites/redeem", memberHandler.RedeemInvite)
	}

	return &portalFixture{router: r, identity: m}
}

func (f *portalFixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

// signup registers a user and returns the session token and tenant ID.
func (f *portalFixture) signup(t *testing.T, email, tenantName string) (token, tenantID string) {
	t.Helper()
	w := f.do(t, http.MethodPost, "/v1/portal/auth/signup", "",
		fmt.Sprintf(`{"email":%q,"password":"password123","tenant_name":%q}`, email, tenantName))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	token = body["token"].(string)
	tenantID = body["tenant"].(map[string]any)["id"].(string)
	return token, tenantID
}

func TestPortalSignupLoginFlow(t *testing.T) {
	f := newPortalFixture(t)
	token, _ := f.signup(t, "owner@example.com", "Acme")

	w := f.do(t, http.MethodGet, "/v1/portal/auth/me", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	me := decode(t, w)
	assert.Equal(t, "owner", me["role"])
	assert.Equal(t, "owner@example.com", me["user"].(map[string]any)["email"])

	w = f.do(t, http.MethodPost, "/v1/portal/auth/login", "",
		`{"email":"owner@example.com","password":"password123"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode(t, w)["token"])

	// Wrong password yields the portal's 401 envelope.
	w = f.do(t, http.MethodPost, "/v1/portal/auth/login", "",
		`{"email":"owner@example.com","password":"wrongpass1"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	errBody := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "authentication_error", errBody["type"])

	// No token at all is rejected before any handler runs.
	w = f.do(t, http.MethodGet, "/v1/portal/auth/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPortalAgentLifecycle(t *testing.T) {
	f := newPortalFixture(t)
	token, _ := f.signup(t, "owner@example.com", "Acme")

	w := f.do(t, http.MethodPost, "/v1/portal/agents", token, `{"name":"support","system_prompt":"be helpful"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	agentID := decode(t, w)["id"].(string)

	// Signup's Default agent plus the new one.
	w = f.do(t, http.MethodGet, "/v1/portal/agents", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["agents"], 2)

	// No provider anywhere in the chain: the agent still loads and the
	// resolve failure is reported alongside.
	w = f.do(t, http.MethodGet, "/v1/portal/agents/"+agentID, token, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Nil(t, body["effective"])
	assert.NotEmpty(t, body["resolve_error"])

	// With a tenant provider the effective view materialises, masked.
	w = f.do(t, http.MethodPut, "/v1/portal/tenant", token,
		`{"provider_config":{"provider":"openai","api_key":"sk-verysecret"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/v1/portal/agents/"+agentID, token, "")
	require.Equal(t, http.StatusOK, w.Code)
	eff := decode(t, w)["effective"].(map[string]any)
	assert.Equal(t, "sk-v****", eff["provider"].(map[string]any)["api_key"])
	assert.Equal(t, "be helpful", eff["system_prompt"])

	w = f.do(t, http.MethodPut, "/v1/portal/agents/"+agentID, token, `{"name":"support-eu"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "support-eu", decode(t, w)["name"])

	w = f.do(t, http.MethodDelete, "/v1/portal/agents/"+agentID, token, "")
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodGet, "/v1/portal/agents/"+agentID, token, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPortalTenantViewMasksCredentials(t *testing.T) {
	f := newPortalFixture(t)
	token, _ := f.signup(t, "owner@example.com", "Acme")

	// Fresh tenant: nothing to resolve yet, but the tenant loads.
	w := f.do(t, http.MethodGet, "/v1/portal/tenant", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Nil(t, body["effective"])
	assert.NotEmpty(t, body["resolve_error"])

	w = f.do(t, http.MethodPut, "/v1/portal/tenant", token,
		`{"provider_config":{"provider":"openai","api_key":"sk-verysecret"}}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/v1/portal/tenant", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	eff := decode(t, w)["effective"].(map[string]any)
	provider := eff["provider"].(map[string]any)
	assert.Equal(t, "sk-v****", provider["api_key"])
	assert.NotContains(t, w.Body.String(), "sk-verysecret")
}

func TestPortalOwnerOnlyMutations(t *testing.T) {
	f := newPortalFixture(t)
	ownerToken, tenantID := f.signup(t, "owner@example.com", "Acme")

	// A second user joins as plain member via invite.
	w := f.do(t, http.MethodPost, "/v1/portal/invites", ownerToken, "{}")
	require.Equal(t, http.StatusCreated, w.Code)
	inviteToken := decode(t, w)["token"].(string)

	guestToken, _ := f.signup(t, "guest@example.com", "Guest")
	w = f.do(t, http.MethodPost, "/v1/portal/invites/redeem", guestToken,
		fmt.Sprintf(`{"token":%q}`, inviteToken))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The member must log in scoped to the joined tenant.
	w = f.do(t, http.MethodPost, "/v1/portal/auth/login", "",
		fmt.Sprintf(`{"email":"guest@example.com","password":"password123","tenant_id":%q}`, tenantID))
	require.Equal(t, http.StatusOK, w.Code)
	memberToken := decode(t, w)["token"].(string)

	// Reads are open to members, mutations are not.
	w = f.do(t, http.MethodGet, "/v1/portal/members", memberToken, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodPost, "/v1/portal/agents", memberToken, `{"name":"rogue"}`)
	require.Equal(t, http.StatusForbidden, w.Code)
	errBody := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "permission_error", errBody["type"])
	w = f.do(t, http.MethodPut, "/v1/portal/tenant", memberToken, `{"name":"hijacked"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPortalAPIKeyRawReturnedOnce(t *testing.T) {
	f := newPortalFixture(t)
	token, _ := f.signup(t, "owner@example.com", "Acme")

	w := f.do(t, http.MethodGet, "/v1/portal/agents", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	agents := decode(t, w)["agents"].([]any)
	agentID := agents[0].(map[string]any)["id"].(string)

	w = f.do(t, http.MethodPost, "/v1/portal/agents/"+agentID+"/keys", token, `{"name":"ci"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	raw := created["key"].(string)
	assert.True(t, strings.HasPrefix(raw, "loom_sk_"))
	keyID := created["id"].(string)

	// Listing never exposes the raw key, only the display prefix.
	w = f.do(t, http.MethodGet, "/v1/portal/keys", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), raw)
	assert.Contains(t, w.Body.String(), raw[:12])

	w = f.do(t, http.MethodDelete, "/v1/portal/keys/"+keyID, token, "")
	require.Equal(t, http.StatusOK, w.Code)

	// Keys of foreign tenants are invisible to revoke.
	otherToken, _ := f.signup(t, "other@example.com", "Other")
	w = f.do(t, http.MethodDelete, "/v1/portal/keys/"+keyID, otherToken, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPortalChildTenantStatus(t *testing.T) {
	f := newPortalFixture(t)
	token, _ := f.signup(t, "owner@example.com", "Acme")

	w := f.do(t, http.MethodPost, "/v1/portal/tenant/children", token, `{"name":"EMEA"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	childID := decode(t, w)["id"].(string)

	w = f.do(t, http.MethodGet, "/v1/portal/tenant/children", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["tenants"], 1)

	w = f.do(t, http.MethodPut, "/v1/portal/tenant/children/"+childID+"/status", token, `{"status":"suspended"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodPut, "/v1/portal/tenant/children/"+childID+"/status", token, `{"status":"frozen"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// A stranger cannot touch someone else's child tenant.
	otherToken, _ := f.signup(t, "other@example.com", "Other")
	w = f.do(t, http.MethodPut, "/v1/portal/tenant/children/"+childID+"/status", otherToken, `{"status":"active"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
