package service

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sandeepkv93/credential-manager-go/internal/config"
	"github.com/sandeepkv93/credential-manager-go/internal/domain"
	"github.com/sandeepkv93/credential-manager-go/internal/repository"
	repogomock "github.com/sandeepkv93/credential-manager-go/internal/repository/gomock"
	"github.com/sandeepkv93/credential-manager-go/internal/security"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"
)

const testJWTSecret = "abcdefghijklmnopqrstuvwxyz123456"

var linkTokenRe = regexp.MustCompile(`/(verify|reset-password)/([A-Za-z0-9_-]+)`)

type credentialFixture struct {
	cfg       *config.Config
	svc       *CredentialService
	accounts  *accountRepoState
	signer    *security.SessionSigner
	published *publishCounter
	clock     *testClock
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type publishCounter struct {
	mu    sync.Mutex
	count int
}

func (p *publishCounter) Publish(context.Context) error {
	p.mu.Lock()
	p.count++
	p.mu.Unlock()
	return nil
}

func (p *publishCounter) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

func newTestCredentialConfig() *config.Config {
	return &config.Config{
		SessionTTL:                24 * time.Hour,
		VerificationSessionTTL:    15 * time.Minute,
		AuthEmailVerifyTokenTTL:   15 * time.Minute,
		AuthPasswordResetTokenTTL: time.Hour,
		AuthTokenBytes:            32,
		AuthPasswordMinLength:     8,
		AppPublicBaseURL:          "https://app.example.com",
	}
}

func newCredentialFixture() *credentialFixture {
	cfg := newTestCredentialConfig()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	accounts := newAccountRepoState()
	signer := security.NewSessionSigner("credential-manager-go", "credential-manager-go-api", testJWTSecret)
	published := &publishCounter{}

	ctrl := gomock.NewController(tNop{})
	accountRepoMock := repogomock.NewMockAccountRepository(ctrl)
	sessionMock := NewMockSessionIssuer(ctrl)
	signalMock := NewMockOutboxSignal(ctrl)

	accountRepoMock.EXPECT().FindByEmail(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(accounts.FindByEmail)
	accountRepoMock.EXPECT().FindByID(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(accounts.FindByID)
	accountRepoMock.EXPECT().FindByVerificationTokenHash(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(accounts.FindByVerificationTokenHash)
	accountRepoMock.EXPECT().FindByVerifiedTokenHash(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(accounts.FindByVerifiedTokenHash)
	accountRepoMock.EXPECT().FindByResetTokenHash(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(accounts.FindByResetTokenHash)
	accountRepoMock.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(accounts.Create)
	accountRepoMock.EXPECT().Save(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(accounts.Save)
	accountRepoMock.EXPECT().MarkVerified(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(accounts.MarkVerified)
	accountRepoMock.EXPECT().IssueVerificationToken(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(accounts.IssueVerificationToken)
	accountRepoMock.EXPECT().IssueResetToken(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(accounts.IssueResetToken)
	accountRepoMock.EXPECT().CompleteReset(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(accounts.CompleteReset)

	sessionMock.EXPECT().Issue(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(signer.Issue)
	signalMock.EXPECT().Publish(gomock.Any()).AnyTimes().DoAndReturn(published.Publish)
	signalMock.EXPECT().Subscribe(gomock.Any()).AnyTimes().Return(nil)

	svc := NewCredentialService(cfg, accountRepoMock, sessionMock, NewNotificationComposer(cfg.AppPublicBaseURL), signalMock)
	svc.now = clock.Now

	return &credentialFixture{
		cfg:       cfg,
		svc:       svc,
		accounts:  accounts,
		signer:    signer,
		published: published,
		clock:     clock,
	}
}

type tNop struct{}

func (tNop) Errorf(string, ...any) {}
func (tNop) Fatalf(string, ...any) {}
func (tNop) Helper()               {}

// seedAccount stores an account directly and returns its id.
func (fx *credentialFixture) seedAccount(email, name, password string, verified bool) string {
	hash, err := security.HashPassword(password)
	if err != nil {
		panic(err)
	}
	a := &domain.Account{Email: email, FullName: name, PasswordHash: hash, IsVerified: verified}
	if verified {
		now := fx.clock.Now()
		a.VerifiedAt = &now
	}
	if err := fx.accounts.Create(context.Background(), a, nil); err != nil {
		panic(err)
	}
	return a.ID
}

// lastLinkToken extracts the raw token from the newest outbox message of kind.
func (fx *credentialFixture) lastLinkToken(kind string) string {
	msgs := fx.accounts.outboxOfKind(kind)
	if len(msgs) == 0 {
		return ""
	}
	m := linkTokenRe.FindStringSubmatch(msgs[len(msgs)-1].HTMLBody)
	if len(m) != 3 {
		return ""
	}
	return m[2]
}

type accountRepoState struct {
	mu     sync.Mutex
	byID   map[string]*domain.Account
	outbox []*domain.OutboxMessage

	findByEmailErr error
	createErr      error
	completeErr    error
}

func newAccountRepoState() *accountRepoState {
	return &accountRepoState{byID: map[string]*domain.Account{}}
}

func (r *accountRepoState) find(match func(*domain.Account) bool) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byID {
		if match(a) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrAccountNotFound
}

func eqPtr(p *string, v string) bool { return p != nil && *p == v }

func (r *accountRepoState) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	if r.findByEmailErr != nil {
		return nil, r.findByEmailErr
	}
	normalized := domain.NormalizeEmail(email)
	return r.find(func(a *domain.Account) bool { return a.Email == normalized })
}

func (r *accountRepoState) FindByID(_ context.Context, id string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.ID == id })
}

func (r *accountRepoState) FindByVerificationTokenHash(_ context.Context, hash string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return eqPtr(a.VerificationTokenHash, hash) })
}

func (r *accountRepoState) FindByVerifiedTokenHash(_ context.Context, hash string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return eqPtr(a.VerifiedTokenHash, hash) })
}

func (r *accountRepoState) FindByResetTokenHash(_ context.Context, hash string, now time.Time) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool {
		return eqPtr(a.ResetTokenHash, hash) && a.ResetTokenExpiresAt != nil && a.ResetTokenExpiresAt.After(now)
	})
}

func (r *accountRepoState) Create(_ context.Context, account *domain.Account, notification *domain.OutboxMessage) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	account.Email = domain.NormalizeEmail(account.Email)
	for _, existing := range r.byID {
		if existing.Email == account.Email {
			return repository.ErrEmailTaken
		}
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	cp := *account
	r.byID[account.ID] = &cp
	if notification != nil {
		notification.AccountID = account.ID
		r.outbox = append(r.outbox, notification)
	}
	return nil
}

func (r *accountRepoState) Save(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *account
	r.byID[account.ID] = &cp
	return nil
}

func (r *accountRepoState) MarkVerified(_ context.Context, id, tokenHash string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok || a.IsVerified || !eqPtr(a.VerificationTokenHash, tokenHash) ||
		a.VerificationTokenExpiresAt == nil || !a.VerificationTokenExpiresAt.After(now) {
		return repository.ErrConditionFailed
	}
	a.IsVerified = true
	a.VerificationTokenHash = nil
	a.VerificationTokenExpiresAt = nil
	digest := tokenHash
	a.VerifiedTokenHash = &digest
	a.VerifiedAt = &now
	return nil
}

func (r *accountRepoState) IssueVerificationToken(_ context.Context, id, tokenHash string, expiresAt time.Time, notification *domain.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok || a.IsVerified {
		return repository.ErrConditionFailed
	}
	a.VerificationTokenHash = &tokenHash
	a.VerificationTokenExpiresAt = &expiresAt
	if notification != nil {
		notification.AccountID = id
		r.outbox = append(r.outbox, notification)
	}
	return nil
}

func (r *accountRepoState) IssueResetToken(_ context.Context, id, tokenHash string, expiresAt time.Time, notification *domain.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return repository.ErrAccountNotFound
	}
	a.ResetTokenHash = &tokenHash
	a.ResetTokenExpiresAt = &expiresAt
	if notification != nil {
		notification.AccountID = id
		r.outbox = append(r.outbox, notification)
	}
	return nil
}

func (r *accountRepoState) CompleteReset(_ context.Context, id, tokenHash, newPasswordHash string, now time.Time) error {
	if r.completeErr != nil {
		return r.completeErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok || !eqPtr(a.ResetTokenHash, tokenHash) || a.ResetTokenExpiresAt == nil || !a.ResetTokenExpiresAt.After(now) {
		return repository.ErrConditionFailed
	}
	a.PasswordHash = newPasswordHash
	a.ResetTokenHash = nil
	a.ResetTokenExpiresAt = nil
	a.PasswordChangedAt = &now
	return nil
}

func (r *accountRepoState) get(id string) domain.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.byID[id]
}

func (r *accountRepoState) outboxOfKind(kind string) []*domain.OutboxMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.OutboxMessage
	for _, m := range r.outbox {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

func legacyBcryptHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}
