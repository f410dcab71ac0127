// Package blob stores raw uploaded files by key.
package blob

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"path"
	"regexp"
	"strings"
	"time"

	"docrag/internal/models"
)

var ErrNotFound = errors.New("blob not found")

// Object describes one stored blob.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store is put/get/delete-by-key binary storage.
type Store interface {
	// Put stores data under keyHint and returns the key it was stored at.
	Put(ctx context.Context, keyHint string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Object, error)
}

// Prefix is the key namespace all uploaded documents live under.
const Prefix = "documents/"

var (
	unsafeChars   = regexp.MustCompile(`[^\w\s\-.]`)
	nonWordChars  = regexp.MustCompile(`[^\w\-.]`)
	leadingDots   = regexp.MustCompile(`^\.+`)
	maxNameLength = 200
	maxExtLength  = 16
)

// SanitizeFilename strips characters that are unsafe in storage keys. A name that
// needed changes has every remaining non-word character replaced by '_'.
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	safe := unsafeChars.ReplaceAllString(name, "")
	if safe == "" || safe != name {
		safe = nonWordChars.ReplaceAllString(name, "_")
	}
	safe = leadingDots.ReplaceAllString(safe, "")
	if len(safe) > maxNameLength {
		ext := path.Ext(safe)
		if len(ext) > maxExtLength {
			ext = ""
		}
		safe = safe[:maxNameLength-len(ext)] + ext
	}
	if safe == "" {
		safe = "document"
	}
	return safe
}

// Key builds documents/<scopeType>s/<scopeID>/<stem>_<8 hex><ext> for a sanitized filename.
func Key(scope models.Scope, filename string) string {
	ext := path.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	var b [4]byte
	_, _ = rand.Read(b[:])
	return Prefix + string(scope.Type) + "s/" + scope.ID + "/" + stem + "_" + hex.EncodeToString(b[:]) + ext
}
