package identity

import (
	"context"

	"github.com/rs/zerolog"
)

// LogMailer writes account links to the log instead of sending mail.
type LogMailer struct {
	logger zerolog.Logger
}

func NewLogMailer(logger zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendVerification(_ context.Context, email, link string) error {
	m.logger.Info().Str("email", email).Str("link", link).Msg("identity: verification link")
	return nil
}

func (m *LogMailer) SendPasswordReset(_ context.Context, email, link string) error {
	m.logger.Info().Str("email", email).Str("link", link).Msg("identity: password reset link")
	return nil
}
