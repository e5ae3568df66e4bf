package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/raven-oracle/portal/internal/api"
	"github.com/raven-oracle/portal/internal/core/domain"
	"github.com/raven-oracle/portal/internal/core/ports"
	"github.com/raven-oracle/portal/internal/core/service"
	"github.com/raven-oracle/portal/internal/infrastructure/blob"
	"github.com/raven-oracle/portal/internal/infrastructure/db/memory"
	mongodb "github.com/raven-oracle/portal/internal/infrastructure/db/mongo"
	redisdb "github.com/raven-oracle/portal/internal/infrastructure/db/redis"
	"github.com/raven-oracle/portal/internal/infrastructure/http/handlers"
	"github.com/raven-oracle/portal/internal/infrastructure/queue"
	"github.com/raven-oracle/portal/internal/pkg/config"
	"github.com/raven-oracle/portal/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// @title        Raven Portal API
// @version      1.0
// @description  Gated ephemeral messaging portal.
// @BasePath     /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	cfg := config.Load()
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "portal",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("portal stopped")
	}
	log.Info().Msg("portal stopped")
}

// stores bundles one backend's implementations of every port.
type stores struct {
	users     ports.UserRepository
	roles     ports.AdminRoleRepository
	gateway   ports.GatewayRepository
	invites   ports.InviteKeyRepository
	requests  ports.SessionRequestRepository
	changes   ports.IdentityChangeRepository
	messages  ports.MessageRepository
	admission ports.AdmissionStore
	sessions  ports.SessionRegistry
	notifier  ports.Notifier
	blobs     ports.BlobStore
	checks    map[string]handlers.Check
	close     func(context.Context)
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		st.close(closeCtx)
	}()

	// --- Services ---
	dispatcher := queue.NewDispatcher(cfg.Dispatch.Workers, st.notifier, logger.Component("dispatcher"))
	access := service.NewAccessService(st.gateway, st.invites, st.roles, cfg.BcryptCost, logger.Component("access"))
	tokens := service.NewTokenService(cfg.JWTSecret, cfg.SessionTTL, st.sessions)
	approvals := service.NewApprovalService(st.requests, st.changes, st.users, st.roles, dispatcher, cfg.Admission.ApprovalTimeout, logger.Component("approval"))
	admission := service.NewAdmissionService(service.AdmissionDeps{
		Store:     st.admission,
		Access:    access,
		Approvals: approvals,
		Users:     st.users,
		Roles:     st.roles,
		Blobs:     st.blobs,
		Tokens:    tokens,
		Notifier:  st.notifier,
		Events:    dispatcher,
	}, logger.Component("admission"))
	messaging := service.NewMessagingService(st.messages, st.users, st.roles, st.blobs, st.notifier, dispatcher, logger.Component("messaging"))
	moderation := service.NewModerationService(service.ModerationDeps{
		Users:     st.users,
		Roles:     st.roles,
		Requests:  st.requests,
		Changes:   st.changes,
		Blobs:     st.blobs,
		Admission: admission,
		Messaging: messaging,
		Events:    dispatcher,
	}, logger.Component("moderation"))

	if _, err := access.EnsureGateway(ctx, cfg.Admission.OperativePhrase, cfg.Admission.AdminPhrase, domain.AdmissionPolicy{
		InvitedSkipApproval: cfg.Admission.InvitedSkipApproval,
		AllowUninvitedQueue: cfg.Admission.AllowUninvitedQueue,
	}); err != nil {
		return err
	}

	e := api.NewRouter(api.Deps{
		Tokens:     tokens,
		Access:     access,
		Admission:  admission,
		Approvals:  approvals,
		Messaging:  messaging,
		Moderation: moderation,
		Notifier:   st.notifier,
		Checks:     st.checks,
		Origins:    cfg.AllowedOrigins,
		Log:        logger.Component("http"),
	})

	g, gctx := errgroup.WithContext(ctx)
	dispatcher.Start(gctx)
	g.Go(func() error {
		service.RunExpirySweeper(gctx, approvals, cfg.Admission.SweepInterval, logger.Component("expiry"))
		return nil
	})
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Str("store", cfg.Store).Msg("portal listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, error) {
	if cfg.Store == config.StoreMemory {
		log.Warn().Msg("using in-memory store, state is lost on restart")
		return &stores{
			users:     memory.NewUserRepository(),
			roles:     memory.NewAdminRoleRepository(),
			gateway:   memory.NewGatewayRepository(),
			invites:   memory.NewInviteKeyRepository(),
			requests:  memory.NewSessionRequestRepository(),
			changes:   memory.NewIdentityChangeRepository(),
			messages:  memory.NewMessageRepository(),
			admission: memory.NewAdmissionStore(),
			sessions:  memory.NewSessionRegistry(),
			notifier:  memory.NewNotifier(),
			blobs:     blob.NewMemoryStore(),
			close:     func(context.Context) {},
		}, nil
	}

	client, db, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		return nil, err
	}
	if err := mongodb.EnsureIndexes(ctx, db); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	rdb, err := redisdb.Connect(ctx, redisdb.Config{
		Addr:         cfg.Redis.Addr,
		DB:           cfg.Redis.DB,
		ClientName:   cfg.Redis.ClientName,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	s3, err := blob.NewS3Store(ctx, blob.S3Config{
		Bucket:    cfg.S3.Bucket,
		Region:    cfg.S3.Region,
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
	})
	if err != nil {
		_ = rdb.Close()
		_ = client.Disconnect(ctx)
		return nil, err
	}
	notifier := redisdb.NewNotifier(rdb)

	log.Info().Str("database", cfg.Mongo.Database).Str("redis", cfg.Redis.Addr).Str("bucket", cfg.S3.Bucket).Msg("stores connected")
	return &stores{
		users:     mongodb.NewUserRepository(db),
		roles:     mongodb.NewAdminRoleRepository(db),
		gateway:   mongodb.NewGatewayRepository(db),
		invites:   mongodb.NewInviteKeyRepository(db),
		requests:  mongodb.NewSessionRequestRepository(db),
		changes:   mongodb.NewIdentityChangeRepository(db),
		messages:  mongodb.NewMessageRepository(db),
		admission: redisdb.NewAdmissionStore(rdb, cfg.Admission.TTL),
		sessions:  redisdb.NewSessionRegistry(rdb),
		notifier:  notifier,
		blobs:     s3,
		checks: map[string]handlers.Check{
			"mongodb": handlers.MongoCheck(db),
			"redis":   handlers.RedisCheck(rdb),
			"s3":      s3.Ping,
		},
		close: func(ctx context.Context) {
			if err := rdb.Close(); err != nil {
				log.Warn().Err(err).Msg("redis close")
			}
			if err := client.Disconnect(ctx); err != nil {
				log.Warn().Err(err).Msg("mongo disconnect")
			}
		},
	}, nil
}
