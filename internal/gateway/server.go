// Package gateway assembles the loom API gateway: identity,
// configuration resolution, the chat-completions pipeline, conversation
// memory, trace recording and the management portal.
package gateway

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomhq/loom/internal/gateway/config"
	"github.com/loomhq/loom/internal/gateway/service/conversation"
	"github.com/loomhq/loom/internal/gateway/service/identity"
	"github.com/loomhq/loom/internal/gateway/service/mcp"
	"github.com/loomhq/loom/internal/gateway/service/provider"
	"github.com/loomhq/loom/internal/gateway/service/resolver"
	"github.com/loomhq/loom/internal/gateway/service/trace"
	"github.com/loomhq/loom/internal/pkg/database"
	genericapiserver "github.com/loomhq/loom/internal/pkg/server"
	"github.com/loomhq/loom/pkg/cryptoutil"
	"github.com/loomhq/loom/pkg/http/shutdown"
	"github.com/loomhq/loom/pkg/http/shutdown/posixsignal"
	"github.com/loomhq/loom/pkg/logger"
)

type apiServer struct {
	gs               *shutdown.GracefulShutdown
	genericAPIServer *genericapiserver.GenericAPIServer

	pool *pgxpool.Pool

	identityModule     *identity.Module
	conversationModule *conversation.Module
	traceModule        *trace.Module

	resolver  *resolver.Resolver
	providers *provider.Cache
	mcpClient *mcp.Client
}

type preparedAPIServer struct {
	*apiServer
}

func createAPIServer(cfg *config.Config) (*apiServer, error) {
	gs := shutdown.New()
	gs.AddShutdownManager(posixsignal.NewPosixSignalManager())

	genericConfig, err := buildGenericConfig(cfg)
	if err != nil {
		return nil, err
	}
	genericServer, err := genericConfig.Complete().New()
	if err != nil {
		return nil, err
	}

	ctx := context.Background()

	var pool *pgxpool.Pool
	if cfg.StoreOptions.Type == "postgres" {
		pool, err = database.NewPgxPool(ctx, cfg.PostgresOptions)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
	} else {
		logger.Warn("[Gateway] using the in-memory store; all state is lost on restart")
	}

	var cipher *cryptoutil.Cipher
	if cfg.CryptoOptions.EncryptionMasterKey != "" {
		cipher, err = cryptoutil.NewCipher(cfg.CryptoOptions.EncryptionMasterKey)
		if err != nil {
			return nil, fmt.Errorf("build cipher: %w", err)
		}
	}

	// The provider cache doubles as the eviction hook for config changes.
	providers := provider.NewCache(cfg.ProviderOptions.Timeout)

	identityCfg := &identity.Config{
		StoreType:       cfg.StoreOptions.Type,
		PortalJWTSecret: cfg.JWTOptions.PortalSecret,
		TokenExpiry:     cfg.JWTOptions.Expiry,
	}
	identityModule, err := identityCfg.Complete().New(ctx, identity.Dependencies{
		Pool:    pool,
		Evictor: providers,
	})
	if err != nil {
		return nil, fmt.Errorf("create identity module: %w", err)
	}
	logger.Info("[Gateway] identity module initialized successfully")

	conversationCfg := &conversation.Config{StoreType: cfg.StoreOptions.Type}
	conversationModule, err := conversationCfg.Complete().New(ctx, conversation.Dependencies{
		Pool:   pool,
		Cipher: cipher,
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation module: %w", err)
	}

	traceCfg := &trace.Config{
		StoreType:     cfg.StoreOptions.Type,
		QueueSize:     cfg.TraceOptions.QueueSize,
		FlushInterval: cfg.TraceOptions.FlushInterval,
		MaxBatch:      cfg.TraceOptions.MaxBatch,
	}
	traceModule, err := traceCfg.Complete().New(ctx, trace.Dependencies{
		Pool:   pool,
		Cipher: cipher,
	})
	if err != nil {
		return nil, fmt.Errorf("create trace module: %w", err)
	}
	logger.Info("[Gateway] trace module initialized successfully")

	return &apiServer{
		gs:                 gs,
		genericAPIServer:   genericServer,
		pool:               pool,
		identityModule:     identityModule,
		conversationModule: conversationModule,
		traceModule:        traceModule,
		resolver:           resolver.New(identityModule.TenantRepo, identityModule.AgentRepo, cfg.ProviderOptions.OpenAIAPIKey),
		providers:          providers,
		mcpClient:          mcp.NewClient(cfg.MCPOptions.Timeout),
	}, nil
}

func (s *apiServer) PrepareRun() preparedAPIServer {
	initRouter(s.genericAPIServer.Engine, &routerDeps{
		identity:      s.identityModule,
		conversations: s.conversationModule,
		traces:        s.traceModule,
		resolver:      s.resolver,
		providers:     s.providers,
		mcpClient:     s.mcpClient,
	})

	s.gs.AddShutdownCallback(shutdown.Func(func(string) error {
		// Drain pending traces before the pool goes away.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if s.traceModule != nil {
			if err := s.traceModule.Close(ctx); err != nil {
				logger.Warn("[Gateway] close trace module: %v", err)
			}
		}
		s.genericAPIServer.Close()
		if s.pool != nil {
			s.pool.Close()
		}
		return nil
	}))
	return preparedAPIServer{s}
}

func (s preparedAPIServer) Run() error {
	if err := s.gs.Start(); err != nil {
		log.Fatalf("start shutdown manager failed: %s", err.Error())
	}

	return s.genericAPIServer.Run()
}

func buildGenericConfig(cfg *config.Config) (genericConfig *genericapiserver.Config, lastErr error) {
	genericConfig = genericapiserver.NewConfig()
	if lastErr = cfg.GenericServerRunOptions.ApplyTo(genericConfig); lastErr != nil {
		return
	}
	if lastErr = cfg.InsecureServing.ApplyTo(genericConfig); lastErr != nil {
		return
	}

	return
}
