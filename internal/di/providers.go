package di

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sandeepkv93/credential-manager-go/internal/app"
	"github.com/sandeepkv93/credential-manager-go/internal/config"
	"github.com/sandeepkv93/credential-manager-go/internal/database"
	"github.com/sandeepkv93/credential-manager-go/internal/health"
	"github.com/sandeepkv93/credential-manager-go/internal/http/handler"
	"github.com/sandeepkv93/credential-manager-go/internal/http/middleware"
	"github.com/sandeepkv93/credential-manager-go/internal/http/router"
	"github.com/sandeepkv93/credential-manager-go/internal/observability"
	"github.com/sandeepkv93/credential-manager-go/internal/repository"
	"github.com/sandeepkv93/credential-manager-go/internal/security"
	"github.com/sandeepkv93/credential-manager-go/internal/service"
)

var ConfigSet = wire.NewSet(config.Load)

var ObservabilitySet = wire.NewSet(
	provideObservabilityRuntime,
	provideAppLogger,
)

var RuntimeInfraSet = wire.NewSet(
	provideRuntimeDB,
	provideRedisClient,
	provideReadinessProbeRunner,
)

var RepositorySet = wire.NewSet(
	repository.NewAccountRepository,
	repository.NewOutboxRepository,
)

var SecuritySet = wire.NewSet(
	provideSessionSigner,
	wire.Bind(new(service.SessionIssuer), new(*security.SessionSigner)),
	wire.Bind(new(middleware.SessionParser), new(*security.SessionSigner)),
)

var OutboxSet = wire.NewSet(
	provideOutboxSignal,
	provideMailer,
	provideOutboxDispatcher,
)

var ServiceSet = wire.NewSet(
	provideNotificationComposer,
	service.NewCredentialService,
	wire.Bind(new(service.CredentialServiceInterface), new(*service.CredentialService)),
)

var HTTPSet = wire.NewSet(
	handler.NewCredentialHandler,
	provideRouterDependencies,
	router.NewRouter,
	provideHTTPServer,
)

var AppSet = wire.NewSet(provideApp)

// MigrationRunner backs the migrate tool.
type MigrationRunner struct {
	cfg *config.Config
	db  *gorm.DB
}

func NewMigrationRunner(cfg *config.Config, db *gorm.DB) *MigrationRunner {
	return &MigrationRunner{cfg: cfg, db: db}
}

func (m *MigrationRunner) Config() *config.Config { return m.cfg }

func (m *MigrationRunner) Up() error { return database.Migrate(m.db) }

func (m *MigrationRunner) Plan() ([]database.TablePlan, error) { return database.Plan(m.db) }

func (m *MigrationRunner) Ping(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (m *MigrationRunner) Close() error { return database.Close(m.db) }

// OutboxRunner backs the outbox tool. It shares the dispatcher the API runs,
// so a manual drain follows the same retry and dead-letter rules.
type OutboxRunner struct {
	Config     *config.Config
	Dispatcher *service.OutboxDispatcher
	db         *gorm.DB
	redis      redis.UniversalClient
}

func NewOutboxRunner(cfg *config.Config, dispatcher *service.OutboxDispatcher, db *gorm.DB, redisClient redis.UniversalClient) *OutboxRunner {
	return &OutboxRunner{Config: cfg, Dispatcher: dispatcher, db: db, redis: redisClient}
}

func (o *OutboxRunner) Close() error {
	if o.redis != nil {
		_ = o.redis.Close()
	}
	return database.Close(o.db)
}

func provideObservabilityRuntime(cfg *config.Config) (*observability.Runtime, error) {
	bootstrapLogger := observability.NewBootstrapLogger(cfg)
	return observability.InitRuntime(context.Background(), cfg, bootstrapLogger)
}

func provideAppLogger(cfg *config.Config, runtime *observability.Runtime) *slog.Logger {
	return observability.InitLogger(cfg, runtime.LoggerProvider)
}

func provideToolLogger(cfg *config.Config) *slog.Logger {
	return observability.NewBootstrapLogger(cfg)
}

func provideOpenDB(cfg *config.Config) (*gorm.DB, error) {
	return database.Open(cfg)
}

func provideRuntimeDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, err
	}
	return db, nil
}

func provideRedisClient(cfg *config.Config, logger *slog.Logger) redis.UniversalClient {
	if !cfg.RedisEnabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	observability.InstrumentRedisClient(client, logger)
	return client
}

func provideSessionSigner(cfg *config.Config) *security.SessionSigner {
	return security.NewSessionSigner(cfg.SessionJWTIssuer, cfg.SessionJWTAudience, cfg.SessionJWTSecret)
}

func provideNotificationComposer(cfg *config.Config) *service.NotificationComposer {
	return service.NewNotificationComposer(cfg.AppPublicBaseURL)
}

func provideOutboxSignal(cfg *config.Config, client redis.UniversalClient) service.OutboxSignal {
	if client == nil {
		return service.NoopOutboxSignal{}
	}
	return service.NewRedisOutboxSignal(client, cfg.OutboxRedisChannel)
}

func provideMailer(cfg *config.Config, logger *slog.Logger) service.Mailer {
	if cfg.MailDriver == "smtp" {
		return service.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom)
	}
	return service.NewLogMailer(logger)
}

func provideOutboxDispatcher(
	cfg *config.Config,
	repo repository.OutboxRepository,
	mailer service.Mailer,
	signal service.OutboxSignal,
	logger *slog.Logger,
) *service.OutboxDispatcher {
	return service.NewOutboxDispatcher(repo, mailer, signal, service.OutboxDispatcherOptionsFromConfig(cfg), logger)
}

func provideRouterDependencies(
	credentialHandler *handler.CredentialHandler,
	signer *security.SessionSigner,
	readiness *health.ProbeRunner,
	cfg *config.Config,
) router.Dependencies {
	return router.Dependencies{
		CredentialHandler: credentialHandler,
		SessionParser:     signer,
		CORSOrigins:       cfg.CORSAllowedOrigins,
		Readiness:         readiness,
		EnableOTelHTTP:    cfg.OTELMetricsEnabled || cfg.OTELTracingEnabled,
	}
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func provideReadinessProbeRunner(cfg *config.Config, db *gorm.DB, redisClient redis.UniversalClient, outbox repository.OutboxRepository) *health.ProbeRunner {
	return health.NewProbeRunner(cfg.ReadinessProbeTimeout, cfg.ServerStartGracePeriod,
		health.NewDBChecker(db),
		health.NewRedisChecker(redisClient),
		health.NewOutboxChecker(outbox, cfg.OutboxReadyMaxPending),
	)
}

func provideApp(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	db *gorm.DB,
	redisClient redis.UniversalClient,
	dispatcher *service.OutboxDispatcher,
) *app.App {
	var worker app.BackgroundWorker
	if dispatcher != nil {
		worker = dispatcher
	}
	return app.New(cfg, logger, server, runtime, db, redisClient, worker)
}
