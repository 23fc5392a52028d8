// Package identity is the local email and password account provider.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"careercatalyst/internal/domain"
	"careercatalyst/internal/middleware"
)

const (
	MinPasswordLength = 8
	// bcrypt ignores input beyond 72 bytes.
	maxPasswordBytes = 72
	ResetTokenTTL    = time.Hour
	DefaultTokenTTL  = 24 * time.Hour
)

var ErrWeakPassword = fmt.Errorf("password must be %d to %d bytes", MinPasswordLength, maxPasswordBytes)

var ErrInvalidEmail = errors.New("invalid email address")

// Ledger opens the free-tier record for new accounts.
type Ledger interface {
	Open(ctx context.Context, userID, email string) (domain.LedgerRecord, error)
	Record(ctx context.Context, userID string) (domain.LedgerRecord, error)
}

// Mailer delivers account links.
type Mailer interface {
	SendVerification(ctx context.Context, email, link string) error
	SendPasswordReset(ctx context.Context, email, link string) error
}

// Publisher receives the signup event.
type Publisher interface {
	Publish(ctx context.Context, evt domain.Event) error
}

type Options struct {
	Users     domain.UserRepository
	Ledger    Ledger
	Mailer    Mailer
	Events    Publisher
	JWTSecret string
	TokenTTL  time.Duration
	// BaseURL prefixes the verification and reset links.
	BaseURL string
	// AutoVerify marks new accounts verified, for local runs without mail.
	AutoVerify bool
	BcryptCost int
	Now        func() time.Time
	Logger     *zerolog.Logger
}

type Service struct {
	users      domain.UserRepository
	ledger     Ledger
	mailer     Mailer
	events     Publisher
	secret     string
	ttl        time.Duration
	baseURL    string
	autoVerify bool
	cost       int
	now        func() time.Time
	logger     zerolog.Logger
}

func New(opts Options) (*Service, error) {
	if opts.Users == nil || opts.Ledger == nil {
		return nil, errors.New("identity: users and ledger are required")
	}
	if opts.JWTSecret == "" {
		return nil, errors.New("identity: jwt secret is required")
	}
	s := &Service{
		users:      opts.Users,
		ledger:     opts.Ledger,
		mailer:     opts.Mailer,
		events:     opts.Events,
		secret:     opts.JWTSecret,
		ttl:        opts.TokenTTL,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		autoVerify: opts.AutoVerify,
		cost:       opts.BcryptCost,
		now:        opts.Now,
		logger:     zerolog.Nop(),
	}
	if opts.Logger != nil {
		s.logger = *opts.Logger
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTokenTTL
	}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.mailer == nil {
		s.mailer = NewLogMailer(s.logger)
	}
	return s, nil
}

// Session is a signed-in user.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *domain.User `json:"-"`
}

// SignUp creates an account and its free-tier ledger record.
func (s *Service) SignUp(ctx context.Context, email, password string) (*domain.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := checkPassword(password); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("identity: hash password: %w", err)
	}
	now := s.now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Verified:     s.autoVerify,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if !s.autoVerify {
		user.VerifyToken = uuid.NewString()
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	if _, err := s.ledger.Open(ctx, user.ID, email); err != nil {
		return nil, err
	}
	if user.VerifyToken != "" {
		if err := s.mailer.SendVerification(ctx, email, s.link("/verify", user.VerifyToken)); err != nil {
			s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("identity: verification mail failed")
		}
	}
	s.publish(ctx, domain.Event{Type: domain.EventUserSignedUp, UserID: user.ID, Timestamp: now})
	return user, nil
}

// LogIn checks the password and returns a signed session token.
func (s *Service) LogIn(ctx context.Context, email, password, locale string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if !user.Verified {
		return nil, domain.ErrUnverifiedAccount
	}
	if err := s.ensureLedger(ctx, user); err != nil {
		return nil, err
	}
	return s.issue(user, locale)
}

// ensureLedger reopens a ledger record lost between user creation and
// ledger creation.
func (s *Service) ensureLedger(ctx context.Context, user *domain.User) error {
	_, err := s.ledger.Record(ctx, user.ID)
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	s.logger.Warn().Str("user_id", user.ID).Msg("identity: reopening missing ledger record")
	_, err = s.ledger.Open(ctx, user.ID, user.Email)
	return err
}

// Verify confirms an email address and signs the user in.
func (s *Service) Verify(ctx context.Context, token, locale string) (*Session, error) {
	if strings.TrimSpace(token) == "" {
		return nil, domain.ErrInvalidToken
	}
	user, err := s.users.MarkVerified(ctx, strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}
	return s.issue(user, locale)
}

// RequestPasswordReset mails a reset link valid for one hour. Unknown
// addresses succeed silently.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil
	}
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	token := uuid.NewString()
	if err := s.users.SetResetToken(ctx, user.ID, token, s.now().UTC().Add(ResetTokenTTL)); err != nil {
		return err
	}
	return s.mailer.SendPasswordReset(ctx, user.Email, s.link("/reset-password", token))
}

// ResetPassword sets a new password from a reset token.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if err := checkPassword(password); err != nil {
		return err
	}
	if strings.TrimSpace(token) == "" {
		return domain.ErrInvalidToken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("identity: hash password: %w", err)
	}
	_, err = s.users.ResetPassword(ctx, strings.TrimSpace(token), string(hash), s.now().UTC())
	return err
}

func (s *Service) issue(user *domain.User, locale string) (*Session, error) {
	now := s.now()
	token, err := middleware.SignJWT(s.secret, middleware.NewTokenClaims(user.ID, user.Email, locale, now, s.ttl))
	if err != nil {
		return nil, fmt.Errorf("identity: sign token: %w", err)
	}
	return &Session{Token: token, ExpiresAt: now.Add(s.ttl).UTC(), User: user}, nil
}

func (s *Service) publish(ctx context.Context, evt domain.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Warn().Err(err).Str("type", evt.Type).Msg("identity: publish event failed")
	}
}

func (s *Service) link(path, token string) string {
	return s.baseURL + path + "?token=" + url.QueryEscape(token)
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}

func checkPassword(pw string) error {
	if len(pw) < MinPasswordLength || len(pw) > maxPasswordBytes {
		return ErrWeakPassword
	}
	return nil
}
