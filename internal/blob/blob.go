package blob

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

var ErrInvalidKey = errors.New("invalid object key")

// Store resolves object keys to public URLs. Uploads are handled by the
// external storage provider directly; the API only ever records URLs.
type Store interface {
	URL(ctx context.Context, key string) (string, error)
}

// StaticStore builds URLs under a fixed base, matching a bucket fronted by a
// CDN or the provider's public endpoint.
type StaticStore struct {
	baseURL string
}

func NewStaticStore(baseURL string) *StaticStore {
	return &StaticStore{baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *StaticStore) URL(_ context.Context, key string) (string, error) {
	key = strings.Trim(key, "/")
	if key == "" || strings.Contains(key, "..") {
		return "", ErrInvalidKey
	}

	parts := strings.Split(key, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return s.baseURL + "/" + strings.Join(parts, "/"), nil
}
