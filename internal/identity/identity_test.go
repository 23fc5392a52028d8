package identity

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"careercatalyst/internal/adapter/repo"
	"careercatalyst/internal/domain"
	"careercatalyst/internal/ledger"
	"careercatalyst/internal/middleware"
)

type captureMailer struct {
	verify, reset []string
}

func (m *captureMailer) SendVerification(_ context.Context, _ string, link string) error {
	m.verify = append(m.verify, link)
	return nil
}

func (m *captureMailer) SendPasswordReset(_ context.Context, _ string, link string) error {
	m.reset = append(m.reset, link)
	return nil
}

type capturePublisher struct{ events []domain.Event }

func (p *capturePublisher) Publish(_ context.Context, evt domain.Event) error {
	p.events = append(p.events, evt)
	return nil
}

type fixture struct {
	svc    *Service
	users  *repo.MemoryUserRepository
	store  *repo.MemoryLedgerRepository
	mailer *captureMailer
	events *capturePublisher
	now    time.Time
}

func newFixture(t *testing.T, autoVerify bool) *fixture {
	t.Helper()
	f := &fixture{
		users:  repo.NewMemoryUserRepository(),
		store:  repo.NewMemoryLedgerRepository(),
		mailer: &captureMailer{},
		events: &capturePublisher{},
		now:    time.Now().UTC().Truncate(time.Second),
	}
	clock := func() time.Time { return f.now }
	l, err := ledger.New(ledger.Options{Store: f.store, Now: clock})
	require.NoError(t, err)
	f.svc, err = New(Options{
		Users:      f.users,
		Ledger:     l,
		Mailer:     f.mailer,
		Events:     f.events,
		JWTSecret:  "secret",
		BaseURL:    "https://app.example/",
		AutoVerify: autoVerify,
		BcryptCost: bcrypt.MinCost,
		Now:        clock,
	})
	require.NoError(t, err)
	return f
}

func tokenFrom(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get("token")
}

func TestSignUpVerifyLogIn(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	user, err := f.svc.SignUp(ctx, " Jane@Example.com ", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", user.Email)
	assert.False(t, user.Verified)
	assert.NotEqual(t, "correct-horse", user.PasswordHash)

	rec, err := f.store.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PackageFree, rec.Subscription.Package)
	assert.Equal(t, domain.ZeroUsage(), rec.Usage)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, domain.EventUserSignedUp, f.events.events[0].Type)

	_, err = f.svc.LogIn(ctx, "jane@example.com", "correct-horse", "en")
	assert.ErrorIs(t, err, domain.ErrUnverifiedAccount)

	require.Len(t, f.mailer.verify, 1)
	assert.True(t, strings.HasPrefix(f.mailer.verify[0], "https://app.example/verify?token="))
	sess, err := f.svc.Verify(ctx, tokenFrom(t, f.mailer.verify[0]), "de")
	require.NoError(t, err)
	claims, err := middleware.VerifyJWT("secret", sess.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.Sub)
	assert.Equal(t, "de", claims.Locale)

	sess, err = f.svc.LogIn(ctx, "JANE@example.com", "correct-horse", "en")
	require.NoError(t, err)
	assert.Equal(t, f.now.Add(DefaultTokenTTL), sess.ExpiresAt)
}

func TestSignUpValidation(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, "not-an-email", "correct-horse")
	assert.ErrorIs(t, err, ErrInvalidEmail)
	_, err = f.svc.SignUp(ctx, "a@b.com", "short")
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = f.svc.SignUp(ctx, "a@b.com", "long-enough")
	require.NoError(t, err)
	_, err = f.svc.SignUp(ctx, "A@B.com", "long-enough")
	assert.ErrorIs(t, err, domain.ErrDuplicateAccount)
	assert.Equal(t, 1, f.users.Count())
}

func TestLogInWrongPassword(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	_, err := f.svc.SignUp(ctx, "a@b.com", "long-enough")
	require.NoError(t, err)

	_, err = f.svc.LogIn(ctx, "a@b.com", "wrong-password", "en")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = f.svc.LogIn(ctx, "nobody@b.com", "long-enough", "en")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLogInReopensMissingLedger(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	user := &domain.User{ID: "u-orphan", Email: "o@b.com", Verified: true}
	hash, _ := bcrypt.GenerateFromPassword([]byte("long-enough"), bcrypt.MinCost)
	user.PasswordHash = string(hash)
	require.NoError(t, f.users.Create(ctx, user))

	_, err := f.svc.LogIn(ctx, "o@b.com", "long-enough", "en")
	require.NoError(t, err)
	rec, err := f.store.Get(ctx, "u-orphan")
	require.NoError(t, err)
	assert.Equal(t, domain.PackageFree, rec.Subscription.Package)
}

func TestPasswordReset(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	_, err := f.svc.SignUp(ctx, "a@b.com", "long-enough")
	require.NoError(t, err)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "nobody@b.com"))
	assert.Empty(t, f.mailer.reset)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "A@b.com"))
	require.Len(t, f.mailer.reset, 1)
	token := tokenFrom(t, f.mailer.reset[0])

	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, "short"), ErrWeakPassword)
	require.NoError(t, f.svc.ResetPassword(ctx, token, "brand-new-pass"))
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, "brand-new-pass"), domain.ErrInvalidToken)

	_, err = f.svc.LogIn(ctx, "a@b.com", "brand-new-pass", "en")
	require.NoError(t, err)
}

func TestPasswordResetExpires(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	_, err := f.svc.SignUp(ctx, "a@b.com", "long-enough")
	require.NoError(t, err)
	require.NoError(t, f.svc.RequestPasswordReset(ctx, "a@b.com"))
	token := tokenFrom(t, f.mailer.reset[0])

	f.now = f.now.Add(ResetTokenTTL)
	err = f.svc.ResetPassword(ctx, token, "brand-new-pass")
	assert.True(t, errors.Is(err, domain.ErrInvalidToken))
}

func TestVerifyUnknownToken(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.Verify(context.Background(), "nope", "en")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
	_, err = f.svc.Verify(context.Background(), " ", "en")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}
