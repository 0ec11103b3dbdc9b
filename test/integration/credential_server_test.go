package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/sandeepkv93/credential-manager-go/internal/config"
	"github.com/sandeepkv93/credential-manager-go/internal/database"
	"github.com/sandeepkv93/credential-manager-go/internal/http/handler"
	"github.com/sandeepkv93/credential-manager-go/internal/http/router"
	"github.com/sandeepkv93/credential-manager-go/internal/repository"
	"github.com/sandeepkv93/credential-manager-go/internal/security"
	"github.com/sandeepkv93/credential-manager-go/internal/service"
)

const integrationJWTSecret = "abcdefghijklmnopqrstuvwxyz123456"

var mailLinkRe = regexp.MustCompile(`/(verify|reset-password)/([A-Za-z0-9_-]+)`)

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type capturedMail struct {
	To      string
	Subject string
	Body    string
}

// captureMailer records every delivery the dispatcher hands it.
type captureMailer struct {
	mu   sync.Mutex
	sent []capturedMail
}

func (m *captureMailer) Send(_ context.Context, to, subject, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, capturedMail{To: to, Subject: subject, Body: htmlBody})
	return nil
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// lastToken returns the raw token from the newest link of the given route
// ("verify" or "reset-password") mailed to the recipient.
func (m *captureMailer) lastToken(t *testing.T, to, route string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To != to {
			continue
		}
		match := mailLinkRe.FindStringSubmatch(m.sent[i].Body)
		if match != nil && match[1] == route {
			return match[2]
		}
	}
	t.Fatalf("no %s link mailed to %s (%d messages captured)", route, to, len(m.sent))
	return ""
}

type credentialTestServerOptions struct {
	cfgOverride func(cfg *config.Config)
	db          *gorm.DB
}

type credentialTestEnv struct {
	baseURL    string
	client     *http.Client
	cfg        *config.Config
	db         *gorm.DB
	mailer     *captureMailer
	dispatcher *service.OutboxDispatcher
}

func integrationConfig(dsn string) *config.Config {
	return &config.Config{
		Env:                       "test",
		DatabaseDriver:            "sqlite",
		DatabaseURL:               dsn,
		SessionJWTSecret:          integrationJWTSecret,
		SessionJWTIssuer:          "credential-manager-go",
		SessionJWTAudience:        "credential-manager-go-api",
		SessionTTL:                24 * time.Hour,
		VerificationSessionTTL:    15 * time.Minute,
		AuthEmailVerifyTokenTTL:   15 * time.Minute,
		AuthPasswordResetTokenTTL: time.Hour,
		AuthTokenBytes:            32,
		AuthPasswordMinLength:     8,
		AppPublicBaseURL:          "http://localhost:3000",
		MailDriver:                "log",
		OutboxBatchSize:           50,
		OutboxConcurrency:         2,
		OutboxMaxAttempts:         3,
		OutboxRetryBaseDelay:      time.Second,
		OutboxRetryMaxDelay:       time.Minute,
		OutboxLease:               time.Minute,
		ReadinessProbeTimeout:     time.Second,
	}
}

func newCredentialTestServer(t *testing.T) *credentialTestEnv {
	return newCredentialTestServerWithOptions(t, credentialTestServerOptions{})
}

func newCredentialTestServerWithOptions(t *testing.T, opts credentialTestServerOptions) *credentialTestEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	cfg := integrationConfig(dsn)
	if opts.cfgOverride != nil {
		opts.cfgOverride(cfg)
	}

	db := opts.db
	if db == nil {
		var err error
		db, err = database.Open(cfg)
		if err != nil {
			t.Fatalf("open db: %v", err)
		}
		t.Cleanup(func() { _ = database.Close(db) })
		if err := database.Migrate(db); err != nil {
			t.Fatalf("migrate: %v", err)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	signer := security.NewSessionSigner(cfg.SessionJWTIssuer, cfg.SessionJWTAudience, cfg.SessionJWTSecret)
	svc := service.NewCredentialService(cfg, repository.NewAccountRepository(db), signer, service.NewNotificationComposer(cfg.AppPublicBaseURL), nil)
	mailer := &captureMailer{}
	dispatcher := service.NewOutboxDispatcher(repository.NewOutboxRepository(db), mailer, nil, service.OutboxDispatcherOptionsFromConfig(cfg), logger)

	r := router.NewRouter(router.Dependencies{
		CredentialHandler: handler.NewCredentialHandler(svc, logger),
		SessionParser:     signer,
		CORSOrigins:       []string{cfg.AppPublicBaseURL},
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &credentialTestEnv{
		baseURL:    srv.URL,
		client:     srv.Client(),
		cfg:        cfg,
		db:         db,
		mailer:     mailer,
		dispatcher: dispatcher,
	}
}

// deliver drains the outbox once so the capture mailer sees queued mail.
func (e *credentialTestEnv) deliver(t *testing.T) service.DispatchReport {
	t.Helper()
	report, err := e.dispatcher.DispatchOnce(context.Background())
	if err != nil {
		t.Fatalf("dispatch outbox: %v", err)
	}
	return report
}

func (e *credentialTestEnv) url(path string) string {
	return e.baseURL + "/api/v1/auth" + path
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, apiEnvelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var env apiEnvelope
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode envelope (status=%d): %v body=%s", resp.StatusCode, err, raw)
		}
	}
	return resp, env
}

// postStatus is safe to call from worker goroutines: it reports errors
// instead of failing the test.
func postStatus(client *http.Client, url string, body any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

type sessionPayload struct {
	Message   string    `json:"message"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      struct {
		ID                  string `json:"id"`
		Name                string `json:"name"`
		Email               string `json:"email"`
		HasCompletedProfile bool   `json:"has_completed_profile"`
	} `json:"user"`
}

func decodeSession(t *testing.T, env apiEnvelope) sessionPayload {
	t.Helper()
	var out sessionPayload
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode session payload: %v", err)
	}
	if out.Token == "" {
		t.Fatal("expected session token in payload")
	}
	return out
}

func register(t *testing.T, e *credentialTestEnv, name, email, password string) {
	t.Helper()
	resp, env := doJSON(t, e.client, http.MethodPost, e.url("/register"), map[string]string{
		"full_name": name,
		"email":     email,
		"password":  password,
	}, nil)
	if resp.StatusCode != http.StatusCreated || !env.Success {
		t.Fatalf("register %s: status=%d env=%+v", email, resp.StatusCode, env.Error)
	}
}

// registerAndVerify registers the account, delivers the mail and follows the
// emailed link. It returns the verification session.
func registerAndVerify(t *testing.T, e *credentialTestEnv, name, email, password string) sessionPayload {
	t.Helper()
	register(t, e, name, email, password)
	e.deliver(t)
	token := e.mailer.lastToken(t, strings.ToLower(email), "verify")
	resp, env := doJSON(t, e.client, http.MethodGet, e.url("/verify/"+token), nil, nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("verify %s: status=%d env=%+v", email, resp.StatusCode, env.Error)
	}
	return decodeSession(t, env)
}

func login(t *testing.T, e *credentialTestEnv, email, password string) (*http.Response, apiEnvelope) {
	t.Helper()
	return doJSON(t, e.client, http.MethodPost, e.url("/login"), map[string]string{
		"email":    email,
		"password": password,
	}, nil)
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
