package di

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"gorm.io/gorm"

	"github.com/sandeepkv93/credential-manager-go/internal/config"
	"github.com/sandeepkv93/credential-manager-go/internal/database"
	"github.com/sandeepkv93/credential-manager-go/internal/observability"
	"github.com/sandeepkv93/credential-manager-go/internal/repository"
	"github.com/sandeepkv93/credential-manager-go/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProvideHTTPServer(t *testing.T) {
	cfg := &config.Config{HTTPPort: "9999"}
	srv := provideHTTPServer(cfg, nil)
	if srv.Addr != ":9999" {
		t.Fatalf("unexpected addr: %s", srv.Addr)
	}
	if srv.ReadTimeout.Seconds() != 10 {
		t.Fatalf("unexpected read timeout: %v", srv.ReadTimeout)
	}
}

func TestProvideRouterDependencies(t *testing.T) {
	cfg := &config.Config{CORSAllowedOrigins: []string{"http://localhost:3000"}, OTELTracingEnabled: true}
	signer := provideSessionSigner(&config.Config{SessionJWTSecret: "abcdefghijklmnopqrstuvwxyz123456"})
	dep := provideRouterDependencies(nil, signer, nil, cfg)
	if !dep.EnableOTelHTTP {
		t.Fatal("expected otel http enabled")
	}
	if dep.SessionParser == nil {
		t.Fatal("expected session parser wired from signer")
	}
	if len(dep.CORSOrigins) != 1 || dep.CORSOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected cors origins: %+v", dep.CORSOrigins)
	}
}

func TestProvideRedisClientOnlyWhenEnabled(t *testing.T) {
	cfg := &config.Config{RedisEnabled: false}
	if client := provideRedisClient(cfg, discardLogger()); client != nil {
		t.Fatal("expected nil redis client when disabled")
	}
	mr := miniredis.RunT(t)
	cfg = &config.Config{RedisEnabled: true, RedisAddr: mr.Addr()}
	client := provideRedisClient(cfg, discardLogger())
	if client == nil {
		t.Fatal("expected redis client when enabled")
	}
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestProvideOutboxSignal(t *testing.T) {
	cfg := &config.Config{OutboxRedisChannel: "outbox"}
	if _, ok := provideOutboxSignal(cfg, nil).(service.NoopOutboxSignal); !ok {
		t.Fatal("expected noop signal without redis")
	}
	mr := miniredis.RunT(t)
	client := provideRedisClient(&config.Config{RedisEnabled: true, RedisAddr: mr.Addr()}, discardLogger())
	t.Cleanup(func() { _ = client.Close() })
	if _, ok := provideOutboxSignal(cfg, client).(*service.RedisOutboxSignal); !ok {
		t.Fatal("expected redis signal when client present")
	}
}

func TestProvideMailerByDriver(t *testing.T) {
	if _, ok := provideMailer(&config.Config{MailDriver: "smtp", SMTPHost: "smtp.example.com", SMTPPort: 587}, discardLogger()).(*service.SMTPMailer); !ok {
		t.Fatal("expected smtp mailer")
	}
	if _, ok := provideMailer(&config.Config{MailDriver: "log"}, discardLogger()).(*service.LogMailer); !ok {
		t.Fatal("expected log mailer")
	}
}

func TestProvideReadinessSkipsDisabledCheckers(t *testing.T) {
	db := newDIUnitTestDB(t)
	cfg := &config.Config{ReadinessProbeTimeout: time.Second, OutboxReadyMaxPending: 0}
	runner := provideReadinessProbeRunner(cfg, db, nil, repository.NewOutboxRepository(db))
	ready, results := runner.Ready(context.Background())
	if !ready || len(results) != 1 || results[0].Name != "db" {
		t.Fatalf("expected only db check, got ready=%v %+v", ready, results)
	}

	cfg.OutboxReadyMaxPending = 10
	runner = provideReadinessProbeRunner(cfg, db, nil, repository.NewOutboxRepository(db))
	if _, results := runner.Ready(context.Background()); len(results) != 2 {
		t.Fatalf("expected db and outbox checks, got %+v", results)
	}
}

func TestProvideApp(t *testing.T) {
	cfg := &config.Config{HTTPPort: "8080"}
	logger := discardLogger()
	srv := &http.Server{Addr: ":8080", ReadHeaderTimeout: time.Second}
	runtime := &observability.Runtime{}
	dispatcher := service.NewOutboxDispatcher(nil, nil, nil, service.OutboxDispatcherOptions{}, logger)

	a := provideApp(cfg, logger, srv, runtime, nil, nil, dispatcher)
	if a == nil {
		t.Fatal("expected app")
	}
	if a.Config != cfg || a.Logger != logger || a.Server != srv || a.Observability != runtime || a.Dispatcher == nil {
		t.Fatal("app dependencies not wired as expected")
	}
	if provideApp(cfg, logger, srv, runtime, nil, nil, nil).Dispatcher != nil {
		t.Fatal("expected nil dispatcher to stay a nil interface")
	}
}

func TestMigrationRunnerUpAndPlan(t *testing.T) {
	db := newDIUnitTestDB(t)
	runner := NewMigrationRunner(&config.Config{}, db)
	if err := runner.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := runner.Up(); err != nil {
		t.Fatalf("up: %v", err)
	}
	plans, err := runner.Plan()
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	for _, p := range plans {
		if p.Pending() {
			t.Fatalf("expected clean plan after up, got %+v", p)
		}
	}
}

func newDIUnitTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.Open(&config.Config{DatabaseDriver: "sqlite", DatabaseURL: dsn})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
