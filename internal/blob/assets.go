package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"rentalcore/internal/blob/core"
)

// DefaultPrefix is the key prefix for uploaded property images.
const DefaultPrefix = "property_images"

// DefaultURLExpiry is the lifetime of presigned image URLs. SigV4 caps
// presigned URLs at seven days.
const DefaultURLExpiry = 7 * 24 * time.Hour

// ErrNoPublicURL is returned when the store cannot presign and no base URL is configured.
var ErrNoPublicURL = errors.New("blob: no base url configured and store cannot presign")

// Assets uploads property images to a Store and returns the URL recorded on
// the property.
type Assets struct {
	store   core.Store
	prefix  string
	baseURL string
	expiry  time.Duration
	now     func() time.Time
}

// AssetOption configures Assets.
type AssetOption func(*Assets)

// WithBaseURL serves objects as baseURL + "/" + key instead of presigning.
func WithBaseURL(base string) AssetOption {
	return func(a *Assets) { a.baseURL = strings.TrimRight(base, "/") }
}

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) AssetOption {
	return func(a *Assets) {
		if p := strings.Trim(prefix, "/"); p != "" {
			a.prefix = p
		}
	}
}

// WithURLExpiry overrides DefaultURLExpiry for presigned URLs.
func WithURLExpiry(d time.Duration) AssetOption {
	return func(a *Assets) {
		if d > 0 {
			a.expiry = d
		}
	}
}

// WithAssetClock sets the clock used to stamp object keys.
func WithAssetClock(now func() time.Time) AssetOption {
	return func(a *Assets) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAssets wraps store as an image uploader.
func NewAssets(store core.Store, opts ...AssetOption) *Assets {
	a := &Assets{store: store, prefix: DefaultPrefix, expiry: DefaultURLExpiry, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Store returns the underlying object store.
func (a *Assets) Store() core.Store { return a.store }

// Upload stores data under a fresh key of the form
// <prefix>/<unix-nanos>_<random> and returns its URL.
func (a *Assets) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	key := a.newKey()
	if _, err := a.store.Put(ctx, key, bytes.NewReader(data), contentType); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	u, err := a.URL(ctx, key)
	if err != nil {
		_, _ = a.store.Delete(ctx, key)
		return "", err
	}
	return u, nil
}

// URL resolves the public URL of key.
func (a *Assets) URL(ctx context.Context, key string) (string, error) {
	if a.baseURL != "" {
		return a.baseURL + "/" + key, nil
	}
	u, err := a.store.PresignURL(ctx, key, a.expiry)
	if errors.Is(err, core.ErrUnsupported) {
		return "", ErrNoPublicURL
	}
	return u, err
}

// Remove deletes the object behind a URL previously returned by Upload.
// URLs that do not point at an uploaded asset are ignored.
func (a *Assets) Remove(ctx context.Context, rawURL string) error {
	key, ok := a.KeyOf(rawURL)
	if !ok {
		return nil
	}
	_, err := a.store.Delete(ctx, key)
	return err
}

// KeyOf recovers the object key from an asset URL.
func (a *Assets) KeyOf(rawURL string) (string, bool) {
	if a.baseURL != "" {
		if key, ok := strings.CutPrefix(rawURL, a.baseURL+"/"); ok {
			return key, key != ""
		}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	i := strings.Index(u.Path, "/"+a.prefix+"/")
	if i < 0 {
		return "", false
	}
	return u.Path[i+1:], true
}

func (a *Assets) newKey() string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s/%d_%s", a.prefix, a.now().UnixNano(), random)
}
