package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("object not found")

// ObjectStore is the remote storage collaborator accepted uploads are
// handed to.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (Object, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Object is the reference kept after a successful Put.
type Object struct {
	Key         string
	URL         string
	ContentType string
	Size        int64
}

// PortfolioKey returns a fresh key for a user's portfolio upload,
// preserving the lowercase extension of filename.
func PortfolioKey(userID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return path.Join("portfolio", sanitize(userID), uuid.NewString()+ext)
}

// ThumbnailKey returns the key for one rendition of an item.
func ThumbnailKey(itemID, size string) string {
	return path.Join("thumbnails", sanitize(itemID)+"-"+size+".jpg")
}

func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
	if s == "" {
		return "_"
	}
	return s
}

func joinURL(base, key string) string {
	if base == "" {
		return key
	}
	return strings.TrimRight(base, "/") + "/" + key
}
