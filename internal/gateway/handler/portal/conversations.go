package portal

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/loomhq/loom/internal/gateway/pkg/errno"
	convmodule "github.com/loomhq/loom/internal/gateway/service/conversation"
	"github.com/loomhq/loom/internal/pkg/core"
	"github.com/loomhq/loom/pkg/errorx"
)

// ConversationHandler serves read access to a tenant's conversation
// memory.
type ConversationHandler struct {
	conversations *convmodule.Module
}

// NewConversationHandler creates a ConversationHandler. conversations
// may be nil (memory disabled).
func NewConversationHandler(conversations *convmodule.Module) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

func (h *ConversationHandler) enabled(c *gin.Context) bool {
	if h.conversations.Enabled() {
		return true
	}
	core.WriteResponse(c, errorx.WrapC(fmt.Errorf("no encryption master key configured"), ErrMemoryDisabled, "conversation memory"), nil)
	return false
}

// ListPartitions returns the tenant's partitions.
func (h *ConversationHandler) ListPartitions(c *gin.Context) {
	if !h.enabled(c) {
		return
	}
	s := session(c)

	partitions, err := h.conversations.Manager.ListPartitions(c.Request.Context(), s.TenantID)
	if err != nil {
		writeDomainError(c, err, "list partitions of %s", s.TenantID)
		return
	}
	core.WriteResponse(c, nil, gin.H{"partitions": partitions})
}

// List returns the tenant's conversations.
func (h *ConversationHandler) List(c *gin.Context) {
	if !h.enabled(c) {
		return
	}
	s := session(c)

	conversations, err := h.conversations.Manager.ListConversations(c.Request.Context(), s.TenantID)
	if err != nil {
		writeDomainError(c, err, "list conversations of %s", s.TenantID)
		return
	}
	core.WriteResponse(c, nil, gin.H{"conversations": conversations})
}

// ListMessages returns one conversation's decrypted transcript, oldest
// first.
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	if !h.enabled(c) {
		return
	}
	s := session(c)
	ctx := c.Request.Context()

	id := c.Param("id")
	conv, err := h.conversations.Manager.GetConversation(ctx, id)
	if err != nil {
		writeDomainError(c, err, "load conversation %s", id)
		return
	}
	if conv.TenantID != s.TenantID {
		writeDomainError(c, fmt.Errorf("%w: %s", errno.ErrConversationNotFound, id), "load conversation")
		return
	}

	messages, err := h.conversations.Manager.ListMessages(ctx, conv)
	if err != nil {
		writeDomainError(c, err, "list messages of %s", id)
		return
	}
	core.WriteResponse(c, nil, gin.H{"conversation": conv, "messages": messages})
}
