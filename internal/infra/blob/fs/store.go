// Package fs implements a blob store on the local filesystem.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"time"

	"rentalcore/internal/blob/core"
)

// DefaultRoot is used when New is given an empty root.
const DefaultRoot = "./blobdata"

// Store implements core.Store below a root directory. Each object is a file
// named after its key with a JSON sidecar (key + ".meta") holding the
// content type and digest.
type Store struct {
	root string
}

// New returns a filesystem-backed blob store rooted at root, creating it if needed.
func New(root string) (*Store, error) {
	if root == "" {
		root = DefaultRoot
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the directory objects are stored under.
func (s *Store) Root() string { return s.root }

// Driver returns the blob driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

type sidecar struct {
	ContentType string    `json:"contentType,omitempty"`
	ETag        string    `json:"etag"`
	Size        int64     `json:"size"`
	StoredAt    time.Time `json:"storedAt"`
}

func (s *Store) paths(key string) (clean, data, meta string, err error) {
	clean, err = core.CleanKey(key)
	if err != nil {
		return "", "", "", err
	}
	data = filepath.Join(s.root, filepath.FromSlash(clean))
	return clean, data, data + ".meta", nil
}

// Put streams r into a temp file and renames it into place once the digest
// and size are known.
func (s *Store) Put(_ context.Context, key string, r io.Reader, contentType string) (core.Object, error) {
	clean, dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return core.Object{}, err
	}
	if _, err := os.Stat(dataPath); err == nil {
		return core.Object{}, fmt.Errorf("%w: %s", core.ErrExists, clean)
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return core.Object{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".tmp-*")
	if err != nil {
		return core.Object{}, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return core.Object{}, err
	}
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		return core.Object{}, err
	}
	sc := sidecar{ContentType: contentType, ETag: hex.EncodeToString(h.Sum(nil)), Size: size, StoredAt: time.Now().UTC()}
	b, err := json.Marshal(sc)
	if err != nil {
		return core.Object{}, err
	}
	if err := os.WriteFile(metaPath, b, 0o644); err != nil {
		return core.Object{}, err
	}
	return sc.object(clean), nil
}

// Get opens the object for reading; callers must close the returned reader.
func (s *Store) Get(_ context.Context, key string) (core.Object, io.ReadCloser, error) {
	clean, dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return core.Object{}, nil, err
	}
	file, err := os.Open(dataPath)
	if errors.Is(err, iofs.ErrNotExist) {
		return core.Object{}, nil, fmt.Errorf("%w: %s", core.ErrNotFound, clean)
	}
	if err != nil {
		return core.Object{}, nil, err
	}
	b, err := os.ReadFile(metaPath)
	if err != nil {
		_ = file.Close()
		return core.Object{}, nil, err
	}
	var sc sidecar
	if err := json.Unmarshal(b, &sc); err != nil {
		_ = file.Close()
		return core.Object{}, nil, fmt.Errorf("decode sidecar for %s: %w", clean, err)
	}
	return sc.object(clean), file, nil
}

// Delete removes the object and its sidecar.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	_, dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(dataPath); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	_ = os.Remove(metaPath)
	return true, nil
}

// PresignURL is not supported; files are served through a base URL instead.
func (s *Store) PresignURL(context.Context, string, time.Duration) (string, error) {
	return "", core.ErrUnsupported
}

func (sc sidecar) object(key string) core.Object {
	return core.Object{Key: key, Size: sc.Size, ContentType: sc.ContentType, ETag: sc.ETag, StoredAt: sc.StoredAt}
}
