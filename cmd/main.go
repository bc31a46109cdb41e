package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/focus-room/internal/avatar"
	"github.com/weiawesome/focus-room/internal/cache"
	"github.com/weiawesome/focus-room/internal/config"
	"github.com/weiawesome/focus-room/internal/domain"
	"github.com/weiawesome/focus-room/internal/events"
	"github.com/weiawesome/focus-room/internal/grpcserver"
	"github.com/weiawesome/focus-room/internal/handler"
	"github.com/weiawesome/focus-room/internal/ice"
	"github.com/weiawesome/focus-room/internal/oidc"
	"github.com/weiawesome/focus-room/internal/presence"
	"github.com/weiawesome/focus-room/internal/repository"
	"github.com/weiawesome/focus-room/internal/service"
	"github.com/weiawesome/focus-room/internal/signal"
	"github.com/weiawesome/focus-room/pkg/database"
	"github.com/weiawesome/focus-room/pkg/idgen"
	"github.com/weiawesome/focus-room/pkg/jwt"
	pkglog "github.com/weiawesome/focus-room/pkg/log"
	"github.com/weiawesome/focus-room/pkg/middleware"
	"github.com/weiawesome/focus-room/pkg/pubsub"
	"github.com/weiawesome/focus-room/pkg/storage"
)

func main() {
	// Load configuration
	cfg, v, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "focus-room",
	})
	logger := pkglog.L()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	instanceID := uuid.New().String()

	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.AutoMigrate(db, domain.Models()...); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database migration completed")

	// Redis backs caches, presence, revocations and the default pubsub.
	// Without it everything falls back to in-process implementations.
	var rdb redis.UniversalClient
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Address).Msg("redis unavailable, using in-process state")
			client.Close()
		} else {
			rdb = client
			defer client.Close()
			logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
		}
	}

	var (
		userCache      cache.UserCache      = cache.Noop{}
		dashboardCache cache.DashboardCache = cache.NoopDashboard{}
		messageCache   cache.MessageCache   = cache.NoopMessages{}
		presenceStore  presence.Store       = presence.NewMemoryStore()
		revocations    jwt.RevocationStore
	)
	if rdb != nil {
		userCache = cache.NewRedisUserCache(rdb, cfg.Cache.Prefix)
		dashboardCache = cache.NewRedisDashboardCache(rdb, cfg.Cache.Prefix)
		messageCache = cache.NewRedisMessageCache(rdb, cfg.Cache.Prefix)
		presenceStore = presence.NewRedisStore(rdb)
		revocations = jwt.NewRedisRevocationStore(rdb, cfg.Cache.Prefix)
	} else {
		memRevocations := jwt.NewMemoryRevocationStore()
		go cleanupRevocations(ctx, memRevocations)
		revocations = memRevocations
	}

	// PubSub
	psCfg := cfg.PubSub
	if psCfg.Driver == "redis" && rdb == nil {
		psCfg.Driver = "memory"
	}
	ps, err := pubsub.NewPubSub(psCfg, rdb)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize pubsub")
	}
	defer ps.Close()
	logger.Info().Str("driver", psCfg.Driver).Msg("pubsub ready")

	// Tokens
	tokens, err := jwt.NewManager(jwt.Config{
		Secret:          cfg.JWT.Secret,
		AccessDuration:  cfg.JWT.AccessDuration,
		RefreshDuration: cfg.JWT.RefreshDuration,
		Issuer:          cfg.JWT.Issuer,
	}, revocations)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create token manager")
	}
	if cfg.JWT.Secret == "" {
		logger.Warn().Msg("jwt secret not set, tokens are signed with an ephemeral RSA key")
	}

	// Repositories
	ids, err := idgen.New(cfg.IDs.Entity)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid id generator")
	}
	userRepo := repository.NewGormUserRepository(db, ids)
	friendRepo := repository.NewGormFriendRepository(db, ids)
	roomRepo := repository.NewGormRoomRepository(db, ids)
	sessionRepo := repository.NewGormSessionRepository(db, ids)
	todoRepo := repository.NewGormTodoRepository(db, ids)

	var messageRepo repository.MessageRepository = repository.NewGormMessageRepository(db)
	if cfg.Messages.Store == "cassandra" {
		cassandraRepo, err := repository.NewCassandraMessageRepository(cfg.Cassandra)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to cassandra")
		}
		defer cassandraRepo.Close()
		if err := cassandraRepo.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare cassandra schema")
		}
		messageRepo = cassandraRepo
		logger.Info().Strs("hosts", cfg.Cassandra.Hosts).Msg("cassandra message store ready")
	}

	var userSearch repository.UserSearch = userRepo
	if cfg.Search.Driver == "elasticsearch" {
		esSearch, err := repository.NewESUserSearch(cfg.Search)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create elasticsearch client")
		}
		if err := esSearch.EnsureIndex(ctx); err != nil {
			logger.Warn().Err(err).Msg("failed to ensure search index, falling back to sql search")
		} else {
			userSearch = esSearch
			logger.Info().Str("index", cfg.Search.Index).Msg("elasticsearch user search ready")
		}
	}

	// Object storage
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	logger.Info().Str("driver", cfg.Storage.Driver).Msg("storage ready")

	var oidcAuth service.OIDCAuthenticator
	if cfg.OIDC.Enabled() {
		provider, err := oidc.NewProvider(ctx, cfg.OIDC)
		if err != nil {
			logger.Warn().Err(err).Str("issuer", cfg.OIDC.IssuerURL).Msg("oidc discovery failed, single sign-on disabled")
		} else {
			oidcAuth = provider
		}
	}

	limits := config.NewLimits(cfg.Tiers)
	if config.Watch(v, limits) {
		logger.Info().Str("file", v.ConfigFileUsed()).Msg("watching config for changes")
	}

	iceProvider := ice.NewProvider(cfg.WebRTC)
	emitter := events.NewBusEmitter(ps, instanceID)
	present := service.NewPresenter(store, cfg.Messages.URLExpiry)

	// Services
	messageSvc := service.NewMessageService(messageRepo, roomRepo, friendRepo, presenceStore, messageCache,
		cfg.Cache.MessageTTL, store, ps, cfg.Messages)
	services := handler.Services{
		Auth:     service.NewAuthService(userRepo, userSearch, tokens, oidcAuth, present),
		Users:    service.NewUserService(userRepo, userSearch, userCache, cfg.Cache.UserTTL, tokens, avatar.NewProcessor(store), emitter, present),
		Friends:  service.NewFriendService(friendRepo, userRepo, userSearch, presenceStore, emitter, present, cfg.Search.DefaultLimit, cfg.Search.MaxLimit),
		Rooms:    service.NewRoomService(roomRepo, userRepo, friendRepo, presenceStore, limits, iceProvider, ps, cfg.Rooms),
		Stats:    service.NewStatsService(sessionRepo, todoRepo, friendRepo, dashboardCache, cfg.Cache.DashboardTTL, emitter),
		Todos:    service.NewTodoService(todoRepo, userRepo, limits, dashboardCache, emitter),
		Messages: messageSvc,
		ICE:      iceProvider,
	}

	// Signaling
	hub := signal.NewHub(cfg.WebSocket)
	go hub.Run()

	signalSvc := signal.NewService(hub, tokens, services.Rooms, presenceStore, ps, instanceID, cfg.WebSocket)
	if err := signalSvc.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start signal relay")
	}

	consumer := events.NewConsumer(ps, dashboardCache, userCache, signalSvc)
	if err := consumer.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start event consumer")
	}

	// HTTP
	api := handler.NewHandler(services, middleware.NewAuthMiddleware(tokens), cfg.Messages.MaxMediaSize)
	ws := handler.NewWSHandler(hub, signalSvc, cfg.Server.AllowedOrigins)
	router := handler.NewRouter(logger, api, ws, cfg.Storage)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Str("instance_id", instanceID).Msg("focus-room listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// gRPC health
	var grpcSrv *grpcserver.Server
	if cfg.GRPC.Enabled {
		checks := map[string]grpcserver.Check{
			"database": func(ctx context.Context) error { return database.Ping(ctx, db) },
		}
		if rdb != nil {
			checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		}
		grpcSrv = grpcserver.New(checks, 0, logger)
		if err := grpcSrv.Start(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.GRPC.Port)); err != nil {
			logger.Fatal().Err(err).Msg("failed to start grpc server")
		}
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	ossignal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down focus-room")

	if grpcSrv != nil {
		grpcSrv.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	hub.Close()
	signalSvc.Stop()
	cancel()
	consumer.Wait()

	if err := database.Close(db); err != nil {
		logger.Warn().Err(err).Msg("failed to close database")
	}

	logger.Info().Msg("focus-room stopped")
}

// cleanupRevocations drops expired entries from the in-memory revocation
// list until ctx is done.
func cleanupRevocations(ctx context.Context, store *jwt.MemoryRevocationStore) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.CleanupExpired()
		}
	}
}
