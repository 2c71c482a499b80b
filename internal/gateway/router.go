package gateway

import (
	"github.com/gin-gonic/gin"

	"github.com/loomhq/loom/internal/gateway/handler/middleware"
	"github.com/loomhq/loom/internal/gateway/handler/portal"
	v1 "github.com/loomhq/loom/internal/gateway/handler/v1"
	"github.com/loomhq/loom/internal/gateway/service/conversation"
	"github.com/loomhq/loom/internal/gateway/service/identity"
	"github.com/loomhq/loom/internal/gateway/service/mcp"
	"github.com/loomhq/loom/internal/gateway/service/provider"
	"github.com/loomhq/loom/internal/gateway/service/resolver"
	"github.com/loomhq/loom/internal/gateway/service/trace"
)

// routerDeps holds the dependencies needed for route registration.
type routerDeps struct {
	identity      *identity.Module
	conversations *conversation.Module
	traces        *trace.Module
	resolver      *resolver.Resolver
	providers     *provider.Cache
	mcpClient     *mcp.Client
}

func initRouter(g *gin.Engine, deps *routerDeps) {
	installController(g, deps)
}

func installController(g *gin.Engine, deps *routerDeps) {
	// Handlers.
	chatHandler := v1.NewChatCompletionsHandler(deps.resolver, deps.providers, deps.conversations, deps.traces.Recorder, deps.mcpClient)
	authHandler := portal.NewAuthHandler(deps.identity)
	tenantHandler := portal.NewTenantHandler(deps.identity, deps.resolver)
	agentHandler := portal.NewAgentHandler(deps.identity, deps.resolver)
	memberHandler := portal.NewMemberHandler(deps.identity)
	keyHandler := portal.NewAPIKeyHandler(deps.identity)
	conversationHandler := portal.NewConversationHandler(deps.conversations)
	traceHandler := portal.NewTraceHandler(deps.traces)

	// --- /v1 data plane: OpenAI-compatible, API-key authenticated ---
	apiV1 := g.Group("/v1")
	apiV1.Use(middleware.APIKeyAuth(deps.identity.Auth))
	{
		apiV1.POST("/chat/completions", chatHandler.Handle)
	}

	// --- /v1/portal management plane ---
	public := g.Group("/v1/portal")
	{
		public.POST("/auth/signup", authHandler.Signup)
		public.POST("/auth/login", authHandler.Login)
	}

	p := g.Group("/v1/portal")
	p.Use(middleware.PortalAuth(deps.identity.Tokens))
	{
		p.GET("/auth/me", authHandler.Me)
		p.PUT("/auth/password", authHandler.ChangePassword)

		// Current tenant and its children.
		p.GET("/tenant", tenantHandler.Get)
		p.PUT("/tenant", tenantHandler.Update)
		p.GET("/tenant/children", tenantHandler.ListChildren)
		p.POST("/tenant/children", tenantHandler.CreateChild)
		p.PUT("/tenant/children/:id/status", tenantHandler.SetChildStatus)

		// Agents and their API keys.
		p.POST("/agents", agentHandler.Create)
		p.GET("/agents", agentHandler.List)
		p.GET("/agents/:id", agentHandler.Get)
		p.PUT("/agents/:id", agentHandler.Update)
		p.DELETE("/agents/:id", agentHandler.Delete)
		p.POST("/agents/:id/keys", keyHandler.Create)
		p.GET("/agents/:id/keys", keyHandler.ListByAgent)
		p.GET("/keys", keyHandler.List)
		p.DELETE("/keys/:id", keyHandler.Revoke)

		// Memberships and invites.
		p.GET("/members", memberHandler.List)
		p.PUT("/members/:userID/role", memberHandler.ChangeRole)
		p.DELETE("/members/:userID", memberHandler.Remove)
		p.POST("/invites", memberHandler.CreateInvite)
		p.GET("/invites", memberHandler.ListInvites)
		p.DELETE("/invites/:id", memberHandler.RevokeInvite)
		p.POST("/invites/redeem", memberHandler.RedeemInvite)

		// Conversation memory, read only.
		p.GET("/partitions", conversationHandler.ListPartitions)
		p.GET("/conversations", conversationHandler.List)
		p.GET("/conversations/:id/messages", conversationHandler.ListMessages)

		// Traces.
		p.GET("/traces", traceHandler.List)
		p.GET("/traces/stats", traceHandler.Aggregate)
	}
}
