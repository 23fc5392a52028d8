package domain

import "time"

// User represents an email/password account within the platform.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Verified     bool
	VerifyToken  string
	ResetToken   string
	ResetExpires *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
