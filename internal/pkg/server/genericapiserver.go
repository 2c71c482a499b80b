// Package server wraps gin with the generic HTTP serving concerns:
// health and version routes, optional profiling, and graceful close.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"

	"github.com/loomhq/loom/internal/pkg/middleware"
	"github.com/loomhq/loom/pkg/logger"
	"github.com/loomhq/loom/pkg/version"
)

// GenericAPIServer contains the state for the HTTP server of the gateway.
type GenericAPIServer struct {
	*gin.Engine

	InsecureServingInfo *InsecureServingInfo
	ShutdownTimeout     time.Duration

	healthz         bool
	enableProfiling bool
	middlewares     []string

	insecureServer *http.Server
}

// InsecureServingInfo holds the plain-HTTP listen address.
type InsecureServingInfo struct {
	Address string
}

func initGenericAPIServer(s *GenericAPIServer) {
	s.Setup()
	s.InstallMiddlewares()
	s.InstallAPIs()
}

// Setup configures gin-global settings.
func (s *GenericAPIServer) Setup() {
	gin.DebugPrintRouteFunc = func(httpMethod, absolutePath, handlerName string, _ int) {
		logger.Debug("[Server] %-6s %-25s --> %s", httpMethod, absolutePath, handlerName)
	}
}

// InstallMiddlewares installs the configured generic middlewares.
func (s *GenericAPIServer) InstallMiddlewares() {
	s.Use(middleware.RequestID())
	s.Use(middleware.Logging())

	for _, m := range s.middlewares {
		mw, ok := middleware.Middlewares[m]
		if !ok {
			logger.Warn("[Server] can not find middleware: %s", m)
			continue
		}
		logger.Info("[Server] install middleware: %s", m)
		s.Use(mw)
	}
}

// InstallAPIs installs the generic apis: healthz, version, pprof.
func (s *GenericAPIServer) InstallAPIs() {
	if s.healthz {
		s.GET("/healthz", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}
	s.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, version.Get())
	})
	if s.enableProfiling {
		pprof.Register(s.Engine)
	}
}

// Run spawns the http server and blocks until it exits.
func (s *GenericAPIServer) Run() error {
	s.insecureServer = &http.Server{
		Addr:    s.InsecureServingInfo.Address,
		Handler: s,
	}
	logger.Info("[Server] start to listening on %s", s.InsecureServingInfo.Address)

	if err := s.insecureServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen on %s: %w", s.InsecureServingInfo.Address, err)
	}
	logger.Info("[Server] server on %s stopped", s.InsecureServingInfo.Address)
	return nil
}

// Close gracefully shuts the server down within ShutdownTimeout.
func (s *GenericAPIServer) Close() {
	if s.insecureServer == nil {
		return
	}
	timeout := s.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.insecureServer.Shutdown(ctx); err != nil {
		logger.Warn("[Server] shutdown insecure server failed: %v", err)
	}
}
