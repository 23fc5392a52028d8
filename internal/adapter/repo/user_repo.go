package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"careercatalyst/internal/domain"
	"careercatalyst/internal/infra"
	"careercatalyst/internal/sqlinline"
)

// UserRepositoryPG implements domain.UserRepository backed by PostgreSQL.
type UserRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewUserRepository creates a new UserRepositoryPG.
func NewUserRepository(sql infra.SQLExecutor) *UserRepositoryPG {
	return &UserRepositoryPG{sql: sql}
}

// Create inserts a new account. A second account with the same email
// (case-insensitive) yields domain.ErrDuplicateAccount.
func (r *UserRepositoryPG) Create(ctx context.Context, user *domain.User) error {
	now := user.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	_, err := r.sql.Exec(ctx, sqlinline.QInsertUser,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Verified,
		user.VerifyToken,
		now,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateAccount
	}
	return err
}

// GetByID fetches a user by UUID.
func (r *UserRepositoryPG) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return scanUser(r.sql.QueryRow(ctx, sqlinline.QSelectUserByID, id))
}

// GetByEmail fetches a user by email, ignoring case.
func (r *UserRepositoryPG) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(r.sql.QueryRow(ctx, sqlinline.QSelectUserByEmail, strings.TrimSpace(email)))
}

// MarkVerified consumes a verification token.
func (r *UserRepositoryPG) MarkVerified(ctx context.Context, token string) (*domain.User, error) {
	u, err := scanUser(r.sql.QueryRow(ctx, sqlinline.QVerifyUser, token))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidToken
	}
	return u, err
}

func (r *UserRepositoryPG) SetResetToken(ctx context.Context, userID, token string, expires time.Time) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QSetResetToken, userID, token, expires)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ResetPassword swaps the password hash for the account holding an unexpired
// reset token and clears the token.
func (r *UserRepositoryPG) ResetPassword(ctx context.Context, token, passwordHash string, now time.Time) (*domain.User, error) {
	u, err := scanUser(r.sql.QueryRow(ctx, sqlinline.QResetPassword, token, passwordHash, now))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidToken
	}
	return u, err
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Verified, &u.VerifyToken, &u.ResetToken, &u.ResetExpires, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.UserRepository = (*UserRepositoryPG)(nil)
