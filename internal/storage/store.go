// Package storage keeps uploaded CVs and generated reports.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a key has no object.
var ErrNotFound = errors.New("storage: object not found")

// Store is implemented by FileStore and S3Store.
type Store interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	Read(ctx context.Context, key string) ([]byte, error)
}

// ReportKey returns a fresh key for a user's interview report.
func ReportKey(userID string) string {
	return fmt.Sprintf("reports/%s/%s.pdf", strings.TrimSpace(userID), uuid.NewString())
}

// OwnedBy reports whether key lives under the user's report prefix.
func OwnedBy(key, userID string) bool {
	clean, err := sanitizeKey(key)
	if err != nil || userID == "" {
		return false
	}
	return strings.HasPrefix(clean, "reports/"+userID+"/")
}

// CVKey returns a fresh key for an uploaded CV, keeping its extension.
func CVKey(userID, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" || len(ext) > 6 {
		ext = ".bin"
	}
	return fmt.Sprintf("cvs/%s/%s%s", strings.TrimSpace(userID), uuid.NewString(), ext)
}
