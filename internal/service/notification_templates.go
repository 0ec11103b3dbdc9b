package service

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/sandeepkv93/credential-manager-go/internal/domain"
)

const (
	verificationSubject  = "Verify your email"
	passwordResetSubject = "Reset your password"
)

var (
	verificationTemplate = template.Must(template.New("verification").Parse(
		`<h2>Welcome, {{.Name}}!</h2>` +
			`<p>Thank you for signing up on SkillBridge.</p>` +
			`<a href="{{.Link}}">Verify Email</a>` +
			`<p>{{.ExpiryHint}}</p>`))

	passwordResetTemplate = template.Must(template.New("password_reset").Parse(
		`<p>Click <a href="{{.Link}}">here</a> to reset your password.</p>` +
			`<p>{{.ExpiryHint}}</p>`))
)

type notificationView struct {
	Name       string
	Link       string
	ExpiryHint string
}

// NotificationComposer renders outbox messages. Links are built from the
// public base URL and carry the raw token as the last path segment.
type NotificationComposer struct {
	baseURL string
}

func NewNotificationComposer(baseURL string) *NotificationComposer {
	return &NotificationComposer{baseURL: strings.TrimRight(baseURL, "/")}
}

func (c *NotificationComposer) Verification(account *domain.Account, rawToken string, ttl time.Duration) (*domain.OutboxMessage, error) {
	return c.render(verificationTemplate, domain.OutboxKindEmailVerification, verificationSubject, account, "verify", rawToken, ttl)
}

func (c *NotificationComposer) PasswordReset(account *domain.Account, rawToken string, ttl time.Duration) (*domain.OutboxMessage, error) {
	return c.render(passwordResetTemplate, domain.OutboxKindPasswordReset, passwordResetSubject, account, "reset-password", rawToken, ttl)
}

func (c *NotificationComposer) render(tpl *template.Template, kind, subject string, account *domain.Account, route, rawToken string, ttl time.Duration) (*domain.OutboxMessage, error) {
	var body bytes.Buffer
	err := tpl.Execute(&body, notificationView{
		Name:       account.FullName,
		Link:       c.baseURL + "/" + route + "/" + url.PathEscape(rawToken),
		ExpiryHint: ExpiryHint(ttl),
	})
	if err != nil {
		return nil, fmt.Errorf("render %s notification: %w", kind, err)
	}
	return &domain.OutboxMessage{
		AccountID: account.ID,
		Kind:      kind,
		Recipient: account.Email,
		Subject:   subject,
		HTMLBody:  body.String(),
		Status:    domain.OutboxStatusPending,
	}, nil
}

// ExpiryHint renders a TTL as "This link will expire in 15 minutes."
func ExpiryHint(ttl time.Duration) string {
	var amount int
	var unit string
	switch {
	case ttl >= time.Hour && ttl%time.Hour == 0:
		amount, unit = int(ttl/time.Hour), "hour"
	case ttl >= time.Minute:
		amount, unit = int(ttl/time.Minute), "minute"
	default:
		amount, unit = int(ttl/time.Second), "second"
	}
	if amount != 1 {
		unit += "s"
	}
	return fmt.Sprintf("This link will expire in %d %s.", amount, unit)
}
