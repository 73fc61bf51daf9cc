// Package main is the entry point for the MyWorkflows chat service.
// @title MyWorkflows Chat Service API
// @version 1.0
// @description Real-time chat bridge between the MyWorkflows dashboard, OpenRouter completions and the user's n8n workflows.

// @contact.name MyWorkflows Support
// @contact.url https://github.com/myworkflows/chat-service

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:3001
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Bearer access token issued by the identity provider
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	_ "github.com/myworkflows/chat-service/docs"
	"github.com/myworkflows/chat-service/internal/api/handlers"
	"github.com/myworkflows/chat-service/internal/api/middleware"
	"github.com/myworkflows/chat-service/internal/api/routes"
	"github.com/myworkflows/chat-service/internal/api/ws"
	"github.com/myworkflows/chat-service/internal/config"
	"github.com/myworkflows/chat-service/internal/core/cache"
	"github.com/myworkflows/chat-service/internal/core/docdb"
	"github.com/myworkflows/chat-service/internal/core/queue"
	"github.com/myworkflows/chat-service/internal/core/vault"
	rediscache "github.com/myworkflows/chat-service/internal/infrastructure/cache/redis"
	"github.com/myworkflows/chat-service/internal/infrastructure/docdb/mongodb"
	"github.com/myworkflows/chat-service/internal/infrastructure/queue/rabbitmq"
	"github.com/myworkflows/chat-service/internal/infrastructure/sqldb"
	dotenvvault "github.com/myworkflows/chat-service/internal/infrastructure/vault/dotenv"
	"github.com/myworkflows/chat-service/internal/pkg/encryption"
	"github.com/myworkflows/chat-service/internal/services/bridge"
	"github.com/myworkflows/chat-service/internal/services/completion"
	"github.com/myworkflows/chat-service/internal/services/conversation"
	"github.com/myworkflows/chat-service/internal/services/identity"
	"github.com/myworkflows/chat-service/internal/services/ratelimit"
	"github.com/myworkflows/chat-service/internal/services/session"
	"github.com/myworkflows/chat-service/internal/services/throttle"
	"github.com/myworkflows/chat-service/internal/services/tools"
	"github.com/myworkflows/chat-service/internal/services/turncache"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	setupLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vaultClient, err := createVault(cfg.Vault)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize vault")
	}
	defer vaultClient.Close()

	secrets, err := resolveSecrets(ctx, cfg, vaultClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve secrets")
	}

	cacheClient, err := createCacheClient(cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize cache client")
	}
	defer cacheClient.Close()

	database, err := sqldb.NewClient(ctx, sqldb.Config{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
	}

	// The usage audit log is optional; chat keeps working without it.
	docDBClient, err := createDocDBClient(ctx, cfg.DocDB)
	if err != nil {
		log.Warn().Err(err).Msg("document db unavailable, usage audit log disabled")
		docDBClient = nil
	} else {
		defer docDBClient.Close(context.Background())
		if err := docDBClient.EnsureIndexes(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to ensure indexes")
		}
	}

	publisher, err := createPublisher(cfg.Queue)
	if err != nil {
		log.Warn().Err(err).Msg("message broker unavailable, usage events disabled")
		publisher = nil
	}
	if publisher != nil {
		defer publisher.Close()
	}

	encryptor, err := encryption.New(secrets.encryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize encryptor")
	}
	if secrets.encryptionKey == "" {
		log.Warn().Msg("SECRETS_ENCRYPTION_KEY not set, using NoOp encryptor")
	}

	router, cleanup, err := setupRouter(cfg, secrets, components{
		cache:     cacheClient,
		docDB:     docDBClient,
		database:  database,
		publisher: publisher,
		encryptor: encryptor,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build router")
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Server.Address()).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		return
	}
	log.Info().Msg("server exited")
}

// setupLogger configures the global zerolog logger.
func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	log.Logger = logger.With().Timestamp().Str("service", "chat-service").Logger()
}

type resolvedSecrets struct {
	openRouterAPIKey string
	encryptionKey    string
	jwtSecret        string
}

// resolveSecrets resolves vault references and falls back to the vault when unset.
func resolveSecrets(ctx context.Context, cfg *config.Config, v vault.Vault) (resolvedSecrets, error) {
	var out resolvedSecrets
	pairs := []struct {
		value  string
		envKey string
		dst    *string
	}{
		{cfg.OpenRouter.APIKey, "OPENROUTER_API_KEY", &out.openRouterAPIKey},
		{cfg.Vault.EncryptionKey, "SECRETS_ENCRYPTION_KEY", &out.encryptionKey},
		{cfg.Auth.JWTSecret, "SUPABASE_JWT_SECRET", &out.jwtSecret},
	}
	for _, p := range pairs {
		value := p.value
		if value == "" {
			if secret, err := v.GetSecret(ctx, string(vault.TypeDotEnv)+"://"+p.envKey); err == nil {
				value = secret
			}
		}
		resolved, err := vault.Resolve(ctx, v, value)
		if err != nil {
			return out, err
		}
		*p.dst = resolved
	}
	return out, nil
}

// createVault creates a vault based on the configuration.
func createVault(cfg config.VaultConfig) (vault.Vault, error) {
	switch vault.Type(cfg.Type) {
	case vault.TypeDotEnv:
		return dotenvvault.NewVault(), nil
	default:
		return nil, errors.New("unsupported vault type: " + cfg.Type)
	}
}

// createCacheClient creates a cache client based on the configuration.
func createCacheClient(cfg config.CacheConfig) (cache.Client, error) {
	switch cache.Type(cfg.Type) {
	case cache.TypeRedis:
		return rediscache.NewClient(rediscache.Config{
			Host:       cfg.Host,
			Port:       cfg.Port,
			Password:   cfg.Password,
			DB:         cfg.DB,
			DefaultTTL: cfg.TTL,
		})
	default:
		return nil, errors.New("unsupported cache type: " + cfg.Type)
	}
}

// createDocDBClient creates a document database client based on the configuration.
func createDocDBClient(ctx context.Context, cfg config.DocDBConfig) (docdb.Client, error) {
	switch docdb.Type(cfg.Type) {
	case docdb.TypeMongoDB, docdb.TypeCosmosDB:
		// CosmosDB speaks the MongoDB protocol.
		return mongodb.NewClient(ctx, &mongodb.ClientConfig{
			URI:          cfg.URI,
			DatabaseName: cfg.Database,
		})
	default:
		return nil, errors.New("unsupported docdb type: " + cfg.Type)
	}
}

// createPublisher returns nil when no broker is configured.
func createPublisher(cfg config.QueueConfig) (queue.Publisher, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	return rabbitmq.NewPublisher(cfg.URL)
}

// usageWorkers is the size of the pool writing usage audit entries and events.
const usageWorkers = 2

type components struct {
	cache     cache.Client
	docDB     docdb.Client
	database  *sqldb.Client
	publisher queue.Publisher
	encryptor encryption.Encryptor
}

// setupRouter builds every service and mounts the routes. The returned
// cleanup flushes background work and must run after the server stops.
func setupRouter(cfg *config.Config, secrets resolvedSecrets, c components) (*gin.Engine, func(), error) {
	gin.SetMode(cfg.Server.GinMode)
	db := c.database.DB()

	verifier, err := identity.NewHMACVerifier(identity.Config{
		Secret:   secrets.jwtSecret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		Leeway:   cfg.Auth.Leeway,
	})
	if err != nil {
		return nil, nil, err
	}

	store, err := conversation.NewGormStore(db)
	if err != nil {
		return nil, nil, err
	}

	ledger, err := ratelimit.NewGormLedger(db)
	if err != nil {
		return nil, nil, err
	}
	limiterCfg := ratelimit.Config{
		Ledger:            ledger,
		Publisher:         c.publisher,
		UsageQueue:        cfg.Queue.UsageQueue,
		SideEffectWorkers: usageWorkers,
	}
	if c.docDB != nil {
		limiterCfg.UsageLogs = c.docDB.UsageLogs()
	}
	limiter, err := ratelimit.NewService(limiterCfg)
	if err != nil {
		return nil, nil, err
	}

	toolLogger := log.With().Str("component", "tools").Logger()
	invoker, err := tools.NewN8NInvoker(tools.N8NConfig{
		DB:        db,
		Encryptor: c.encryptor,
		Enabled:   cfg.N8N.Enabled,
		Timeout:   cfg.N8N.Timeout,
		Logger:    &toolLogger,
	})
	if err != nil {
		return nil, nil, err
	}

	var streamer completion.Streamer
	if secrets.openRouterAPIKey != "" {
		streamer, err = completion.NewOpenRouterClient(completion.Config{
			BaseURL: cfg.OpenRouter.BaseURL,
			APIKey:  secrets.openRouterAPIKey,
			SiteURL: cfg.OpenRouter.SiteURL,
			AppName: cfg.OpenRouter.AppName,
		})
		if err != nil {
			return nil, nil, err
		}
	} else {
		log.Warn().Msg("OPENROUTER_API_KEY not set, replies use the local echo")
	}

	turnCache, err := turncache.NewService(&turncache.Config{
		CacheClient: c.cache,
		Encryptor:   c.encryptor,
		TTL:         cfg.Chat.TurnCacheTTL,
	})
	if err != nil {
		return nil, nil, err
	}

	processor, err := bridge.New(bridge.Config{
		Store:             store,
		Limiter:           limiter,
		Invoker:           invoker,
		Streamer:          streamer,
		TurnCache:         turnCache,
		HistoryWindow:     cfg.Chat.HistoryWindow,
		DefaultModel:      cfg.OpenRouter.DefaultModel,
		UpgradeURL:        cfg.Chat.UpgradeURL,
		GeneralWorkflowID: cfg.Chat.DefaultWorkflow,
	})
	if err != nil {
		return nil, nil, err
	}

	inbound, err := throttle.New(c.cache, cfg.Chat.ThrottleLimit, cfg.Chat.ThrottleWindow)
	if err != nil {
		return nil, nil, err
	}

	wsHandler, err := ws.NewHandler(ws.Config{
		Verifier:          verifier,
		Sessions:          session.NewMemoryStore(),
		Store:             store,
		Bridge:            processor,
		TurnCache:         turnCache,
		Throttle:          inbound,
		PingInterval:      cfg.Chat.PingInterval,
		PongWait:          cfg.Chat.PongWait,
		MaxMessageBytes:   cfg.Chat.MaxMessageBytes,
		HistoryLimit:      cfg.Chat.HistoryPageLimit,
		GeneralWorkflowID: cfg.Chat.DefaultWorkflow,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
	})
	if err != nil {
		return nil, nil, err
	}

	var docDBPinger handlers.Pinger
	var usageHistory handlers.UsageHistory
	if c.docDB != nil {
		docDBPinger = c.docDB
		usageHistory = c.docDB.UsageLogs()
	}

	router := gin.New()
	routes.SetupWithMiddleware(router, &routes.Config{
		HealthHandler:   handlers.NewHealthHandler(c.cache, docDBPinger, c.database),
		MessagesHandler: handlers.NewMessagesHandler(store, processor, turnCache, cfg.Chat.HistoryPageLimit),
		UsageHandler:    handlers.NewUsageHandler(limiter, usageHistory, cfg.Chat.UpgradeURL),
		WSHandler:       wsHandler,
		AuthMiddleware:  middleware.NewAuthMiddleware(verifier),
		EnableDocs:      cfg.Server.GinMode != gin.ReleaseMode,
	}, middleware.NewLoggingMiddlewareWithLogger(log.Logger), middleware.NewErrorMiddleware(), middleware.NewCORSConfig(cfg.Server.AllowedOrigins))

	return router, limiter.Close, nil
}
