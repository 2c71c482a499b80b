package portal

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	tracemodule "github.com/loomhq/loom/internal/gateway/service/trace"
	"github.com/loomhq/loom/internal/pkg/core"
	"github.com/loomhq/loom/pkg/errorx"
)

const (
	defaultTraceLimit = 50
	maxTraceLimit     = 200
)

// TraceHandler serves read access to a tenant's request traces.
// Payload ciphertexts are never returned; the portal sees metadata and
// aggregates only.
type TraceHandler struct {
	traces *tracemodule.Module
}

// NewTraceHandler creates a TraceHandler.
func NewTraceHandler(traces *tracemodule.Module) *TraceHandler {
	return &TraceHandler{traces: traces}
}

// List returns the tenant's traces newest first, keyset-paginated via
// an opaque cursor.
func (h *TraceHandler) List(c *gin.Context) {
	s := session(c)

	limit := defaultTraceLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			core.WriteResponse(c, errorx.WrapC(err, ErrValidation, "limit %q", raw), nil)
			return
		}
		limit = min(n, maxTraceLimit)
	}

	rows, next, err := h.traces.Store.List(c.Request.Context(), s.TenantID, limit, c.Query("cursor"))
	if err != nil {
		writeDomainError(c, err, "list traces of %s", s.TenantID)
		return
	}
	core.WriteResponse(c, nil, gin.H{"traces": rows, "next_cursor": next})
}

// Aggregate returns usage stats over [from, to). Defaults to the last
// 24 hours.
func (h *TraceHandler) Aggregate(c *gin.Context) {
	s := session(c)

	now := time.Now().UTC()
	from, to := now.Add(-24*time.Hour), now
	var err error
	if raw := c.Query("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			core.WriteResponse(c, errorx.WrapC(err, ErrValidation, "from %q", raw), nil)
			return
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			core.WriteResponse(c, errorx.WrapC(err, ErrValidation, "to %q", raw), nil)
			return
		}
	}

	stats, err := h.traces.Store.Aggregate(c.Request.Context(), s.TenantID, from, to)
	if err != nil {
		writeDomainError(c, err, "aggregate traces of %s", s.TenantID)
		return
	}
	core.WriteResponse(c, nil, stats)
}
