package service

import (
	"context"
	"time"

	"github.com/sandeepkv93/credential-manager-go/internal/domain"
	"github.com/sandeepkv93/credential-manager-go/internal/repository"
	"github.com/sandeepkv93/credential-manager-go/internal/security"
)

type CredentialServiceInterface interface {
	Register(ctx context.Context, in RegisterInput) (*RegisterResult, error)
	VerifyEmail(ctx context.Context, token string) (*SessionResult, error)
	ResendVerification(ctx context.Context, email string) error
	Login(ctx context.Context, in LoginInput) (*SessionResult, error)
	RequestPasswordReset(ctx context.Context, email string) error
	CompletePasswordReset(ctx context.Context, token, newPassword string) error
}

type OutboxDispatcherInterface interface {
	Run(ctx context.Context) error
	DispatchOnce(ctx context.Context) (DispatchReport, error)
	Stats(ctx context.Context) (domain.OutboxStats, error)
	Requeue(ctx context.Context, id string) error
	DeadLetters(ctx context.Context, page, pageSize int) (repository.PageResult[domain.OutboxMessage], error)
}

// Mailer delivers one message, one attempt. Retries belong to the dispatcher.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// OutboxSignal wakes dispatchers once new outbox rows have committed.
type OutboxSignal interface {
	Publish(ctx context.Context) error
	Subscribe(ctx context.Context) <-chan struct{}
}

type SessionIssuer interface {
	Issue(claims security.SessionClaims, ttl time.Duration) (string, time.Time, error)
}
