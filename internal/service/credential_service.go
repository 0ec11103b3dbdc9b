package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sandeepkv93/credential-manager-go/internal/config"
	"github.com/sandeepkv93/credential-manager-go/internal/domain"
	"github.com/sandeepkv93/credential-manager-go/internal/repository"
	"github.com/sandeepkv93/credential-manager-go/internal/security"
)

const maxPasswordLength = 128

type CredentialService struct {
	cfg      *config.Config
	accounts repository.AccountRepository
	sessions SessionIssuer
	composer *NotificationComposer
	signal   OutboxSignal
	now      func() time.Time
}

type RegisterInput struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterResult struct {
	AccountID string `json:"-"`
	Email     string `json:"email"`
}

type SessionUser struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Email               string `json:"email"`
	HasCompletedProfile bool   `json:"has_completed_profile"`
}

type SessionResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      SessionUser `json:"user"`
}

func NewCredentialService(
	cfg *config.Config,
	accounts repository.AccountRepository,
	sessions SessionIssuer,
	composer *NotificationComposer,
	signal OutboxSignal,
) *CredentialService {
	if signal == nil {
		signal = NoopOutboxSignal{}
	}
	return &CredentialService{
		cfg:      cfg,
		accounts: accounts,
		sessions: sessions,
		composer: composer,
		signal:   signal,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *CredentialService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = domain.NormalizeEmail(in.Email)
	err := validation.ValidateStruct(&in,
		validation.Field(&in.FullName, validation.Required, validation.RuneLength(1, 200)),
		validation.Field(&in.Email, validation.Required, is.EmailFormat),
		validation.Field(&in.Password, validation.Required, validation.Length(s.cfg.AuthPasswordMinLength, maxPasswordLength)),
	)
	if err != nil {
		return nil, asInputError(err)
	}

	existing, err := s.accounts.FindByEmail(ctx, in.Email)
	switch {
	case err == nil:
		if existing.IsVerified {
			return nil, ErrEmailVerifiedConflict
		}
		return nil, ErrEmailPendingConflict
	case !errors.Is(err, repository.ErrAccountNotFound):
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	hash, err := security.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	raw, digest, err := s.mintToken()
	if err != nil {
		return nil, err
	}
	expiresAt := s.now().Add(s.cfg.AuthEmailVerifyTokenTTL)
	account := &domain.Account{
		ID:                         uuid.NewString(),
		Email:                      in.Email,
		FullName:                   in.FullName,
		PasswordHash:               hash,
		VerificationTokenHash:      &digest,
		VerificationTokenExpiresAt: &expiresAt,
	}
	msg, err := s.composer.Verification(account, raw, s.cfg.AuthEmailVerifyTokenTTL)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.Create(ctx, account, msg); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, ErrEmailPendingConflict
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	s.wakeDispatcher(ctx)
	return &RegisterResult{AccountID: account.ID, Email: account.Email}, nil
}

// VerifyEmail consumes a verification token. A replay of the token that
// already verified the account reports ErrAlreadyVerified; anything else that
// does not match a live token is ErrInvalidOrExpiredToken.
func (s *CredentialService) VerifyEmail(ctx context.Context, token string) (*SessionResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidOrExpiredToken
	}
	digest := security.HashOpaqueToken(token)
	now := s.now()

	account, err := s.accounts.FindByVerificationTokenHash(ctx, digest)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil, s.classifySpentVerification(ctx, digest)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup verification token: %w", err)
	}
	if account.IsVerified {
		return nil, ErrAlreadyVerified
	}
	if !account.VerificationPending(now) {
		return nil, ErrInvalidOrExpiredToken
	}

	if err := s.accounts.MarkVerified(ctx, account.ID, digest, now); err != nil {
		if errors.Is(err, repository.ErrConditionFailed) {
			return nil, s.classifySpentVerification(ctx, digest)
		}
		return nil, fmt.Errorf("mark verified: %w", err)
	}
	account.IsVerified = true
	return s.issueSession(account, security.SessionTypeVerification, s.cfg.VerificationSessionTTL)
}

func (s *CredentialService) classifySpentVerification(ctx context.Context, digest string) error {
	_, err := s.accounts.FindByVerifiedTokenHash(ctx, digest)
	switch {
	case err == nil:
		return ErrAlreadyVerified
	case errors.Is(err, repository.ErrAccountNotFound):
		return ErrInvalidOrExpiredToken
	default:
		return fmt.Errorf("lookup verified token: %w", err)
	}
}

// ResendVerification issues a fresh verification token for an unverified
// account. Unknown and verified emails succeed silently.
func (s *CredentialService) ResendVerification(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if err := validation.Validate(email, validation.Required, is.EmailFormat); err != nil {
		return asInputError(validation.Errors{"email": err})
	}
	account, err := s.accounts.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup account: %w", err)
	}
	if account.IsVerified {
		return nil
	}

	raw, digest, err := s.mintToken()
	if err != nil {
		return err
	}
	msg, err := s.composer.Verification(account, raw, s.cfg.AuthEmailVerifyTokenTTL)
	if err != nil {
		return err
	}
	expiresAt := s.now().Add(s.cfg.AuthEmailVerifyTokenTTL)
	if err := s.accounts.IssueVerificationToken(ctx, account.ID, digest, expiresAt, msg); err != nil {
		if errors.Is(err, repository.ErrConditionFailed) {
			return nil
		}
		return fmt.Errorf("issue verification token: %w", err)
	}
	s.wakeDispatcher(ctx)
	return nil
}

func (s *CredentialService) Login(ctx context.Context, in LoginInput) (*SessionResult, error) {
	account, err := s.accounts.FindByEmail(ctx, in.Email)
	if err != nil {
		if !errors.Is(err, repository.ErrAccountNotFound) {
			return nil, fmt.Errorf("lookup account: %w", err)
		}
		_, _ = security.VerifyPassword(security.DummyPasswordHash(), in.Password)
		return nil, ErrInvalidCredentials
	}
	ok, err := security.VerifyPassword(account.PasswordHash, in.Password)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if !account.IsVerified {
		return nil, ErrEmailUnverified
	}
	return s.issueSession(account, security.SessionTypeSession, s.cfg.SessionTTL)
}

func (s *CredentialService) RequestPasswordReset(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if err := validation.Validate(email, validation.Required, is.EmailFormat); err != nil {
		return asInputError(validation.Errors{"email": err})
	}
	account, err := s.accounts.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrAccountNotFound) {
		if s.cfg.AuthResetConcealUnknownEmail {
			return nil
		}
		return ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup account: %w", err)
	}

	raw, digest, err := s.mintToken()
	if err != nil {
		return err
	}
	msg, err := s.composer.PasswordReset(account, raw, s.cfg.AuthPasswordResetTokenTTL)
	if err != nil {
		return err
	}
	expiresAt := s.now().Add(s.cfg.AuthPasswordResetTokenTTL)
	if err := s.accounts.IssueResetToken(ctx, account.ID, digest, expiresAt, msg); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("issue reset token: %w", err)
	}
	s.wakeDispatcher(ctx)
	return nil
}

// CompletePasswordReset sets a new password if token is the account's live
// reset token. The write is conditional on the token so concurrent
// completions cannot both succeed.
func (s *CredentialService) CompletePasswordReset(ctx context.Context, token, newPassword string) error {
	err := validation.Validate(newPassword, validation.Required, validation.Length(s.cfg.AuthPasswordMinLength, maxPasswordLength))
	if err != nil {
		return asInputError(validation.Errors{"password": err})
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidOrExpiredToken
	}
	digest := security.HashOpaqueToken(token)
	now := s.now()

	account, err := s.accounts.FindByResetTokenHash(ctx, digest, now)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return ErrInvalidOrExpiredToken
	}
	if err != nil {
		return fmt.Errorf("lookup reset token: %w", err)
	}

	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.accounts.CompleteReset(ctx, account.ID, digest, hash, now); err != nil {
		if errors.Is(err, repository.ErrConditionFailed) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("complete reset: %w", err)
	}
	return nil
}

func (s *CredentialService) issueSession(account *domain.Account, typ string, ttl time.Duration) (*SessionResult, error) {
	claims := security.SessionClaims{
		Name:                account.FullName,
		HasCompletedProfile: account.HasCompletedProfile,
		TokenType:           typ,
		RegisteredClaims:    jwt.RegisteredClaims{Subject: account.ID},
	}
	if typ == security.SessionTypeVerification {
		claims.Email = account.Email
	}
	token, expiresAt, err := s.sessions.Issue(claims, ttl)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	return &SessionResult{
		Token:     token,
		ExpiresAt: expiresAt,
		User: SessionUser{
			ID:                  account.ID,
			Name:                account.FullName,
			Email:               account.Email,
			HasCompletedProfile: account.HasCompletedProfile,
		},
	}, nil
}

func (s *CredentialService) mintToken() (raw, digest string, err error) {
	raw, err = security.NewOpaqueToken(s.cfg.AuthTokenBytes)
	if err != nil {
		return "", "", fmt.Errorf("mint token: %w", err)
	}
	return raw, security.HashOpaqueToken(raw), nil
}

// wakeDispatcher is best effort; the dispatcher polls regardless.
func (s *CredentialService) wakeDispatcher(ctx context.Context) {
	_ = s.signal.Publish(ctx)
}
