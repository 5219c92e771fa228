// Package blob stores uploaded case documents. Only metadata about an object
// reaches the docket; the bytes live here.
package blob

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("blob: object not found")

// Object describes a stored file.
type Object struct {
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType"`
	StoredAt    time.Time `json:"storedAt"`
}

// Store keeps opaque objects addressed by key.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, Object, error)
}

// DocumentKey builds a unique object key for a file uploaded to a case.
func DocumentKey(caseID, filename string) string {
	return path.Join("cases", cleanSegment(caseID), uuid.NewString()+"-"+cleanSegment(filename))
}

// cleanSegment keeps a key segment printable and free of separators.
func cleanSegment(s string) string {
	s = path.Base(strings.ReplaceAll(s, "\\", "/"))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '/' || r == '\\':
			b.WriteRune('_')
		case unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("._-", r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "file"
	}
	return out
}
