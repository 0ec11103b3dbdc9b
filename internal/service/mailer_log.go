package service

import (
	"context"
	"log/slog"
)

// LogMailer writes messages to the log instead of sending them. Development only.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	m.logger.InfoContext(ctx, "outbound email",
		"to", to,
		"subject", subject,
		"html_body", htmlBody,
	)
	return nil
}
