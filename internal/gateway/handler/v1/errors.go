package v1

import (
	"net/http"

	"github.com/loomhq/loom/pkg/errorx"
)

// Gateway data-plane error codes.
// Code format: 1XXYYZ
//   - 1:  module prefix (data plane)
//   - XX: resource group (00=common, 01=chat)
//   - YY: sequential error number
//   - Z:  reserved (0)

const (
	// Common request errors (100xxx).
	ErrBind = 100001

	// Chat completions errors (1001xx).
	ErrProviderMisconfigured = 100101
	ErrUpstreamUnavailable   = 100102
	ErrPipeline              = 100103
)

func init() {
	errorx.MustRegister(newCoder(ErrBind, http.StatusBadRequest, "Request body binding failed"))
	errorx.MustRegister(newCoder(ErrProviderMisconfigured, http.StatusBadRequest, "Provider configuration incomplete"))
	errorx.MustRegister(newCoder(ErrUpstreamUnavailable, http.StatusBadGateway, "Upstream unavailable"))
	errorx.MustRegister(newCoder(ErrPipeline, http.StatusInternalServerError, "Request pipeline failed"))
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
