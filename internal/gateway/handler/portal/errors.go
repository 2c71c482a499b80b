package portal

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loomhq/loom/internal/gateway/pkg/errno"
	"github.com/loomhq/loom/internal/pkg/core"
	"github.com/loomhq/loom/pkg/errorx"
)

// Portal error codes.
// Code format: 1XXYYZ
//   - 1:  module prefix (gateway)
//   - XX: resource group (10=portal)
//   - YY: sequential error number
//   - Z:  reserved (0)

const (
	ErrPortalBind     = 110001
	ErrUnauthenticated = 110002
	ErrForbidden      = 110003
	ErrNotFound       = 110004
	ErrConflict       = 110005
	ErrValidation     = 110006
	ErrMemoryDisabled = 110007
	ErrPortalInternal = 110008
)

func init() {
	errorx.MustRegister(newCoder(ErrPortalBind, http.StatusBadRequest, "Request body binding failed"))
	errorx.MustRegister(newCoder(ErrUnauthenticated, http.StatusUnauthorized, "Invalid credentials"))
	errorx.MustRegister(newCoder(ErrForbidden, http.StatusForbidden, "Operation requires the owner role"))
	errorx.MustRegister(newCoder(ErrNotFound, http.StatusNotFound, "Resource not found"))
	errorx.MustRegister(newCoder(ErrConflict, http.StatusConflict, "Resource already exists"))
	errorx.MustRegister(newCoder(ErrValidation, http.StatusBadRequest, "Validation failed"))
	errorx.MustRegister(newCoder(ErrMemoryDisabled, http.StatusBadRequest, "Conversation memory is disabled"))
	errorx.MustRegister(newCoder(ErrPortalInternal, http.StatusInternalServerError, "Internal error"))
}

type coder struct {
	code int
	http int
	msg  string
}

func newCoder(code, httpStatus int, msg string) *coder {
	return &coder{code: code, http: httpStatus, msg: msg}
}

func (c *coder) Code() int         { return c.code }
func (c *coder) HTTPStatus() int   { return c.http }
func (c *coder) String() string    { return c.msg }
func (c *coder) Reference() string { return "" }

// writeDomainError maps domain sentinel errors onto portal codes and
// writes the response envelope.
func writeDomainError(c *gin.Context, err error, format string, args ...any) {
	code := ErrPortalInternal
	switch {
	case errors.Is(err, errno.ErrTenantNotFound),
		errors.Is(err, errno.ErrAgentNotFound),
		errors.Is(err, errno.ErrUserNotFound),
		errors.Is(err, errno.ErrMembershipNotFound),
		errors.Is(err, errno.ErrInviteNotFound),
		errors.Is(err, errno.ErrAPIKeyNotFound),
		errors.Is(err, errno.ErrConversationNotFound),
		errors.Is(err, errno.ErrPartitionNotFound):
		code = ErrNotFound
	case errors.Is(err, errno.ErrDuplicateEmail),
		errors.Is(err, errno.ErrDuplicateName),
		errors.Is(err, errno.ErrAlreadyMember):
		code = ErrConflict
	case errors.Is(err, errno.ErrLastOwner),
		errors.Is(err, errno.ErrTenantCycle),
		errors.Is(err, errno.ErrInviteInvalid),
		errors.Is(err, errno.ErrProviderMisconfigured):
		code = ErrValidation
	case errors.Is(err, errno.ErrUnauthorized):
		code = ErrUnauthenticated
	}
	core.WriteResponse(c, errorx.WrapC(err, code, format, args...), nil)
}
