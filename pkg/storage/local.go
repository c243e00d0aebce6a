package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Local stores objects as files under a root directory.
type Local struct {
	root    string
	baseURL string
	logger  *zap.Logger
}

// NewLocal creates a filesystem backend rooted at root. baseURL is the public
// URL prefix the HTTP layer serves objects under (e.g. http://host/media).
func NewLocal(root, baseURL string, logger *zap.Logger) (*Local, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if root == "" {
		return nil, errors.New("local storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Local{root: abs, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}, nil
}

// Path returns the filesystem path of key, rejecting keys that escape the root.
func (l *Local) Path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(l.root, filepath.FromSlash(clean)), nil
}

// Put writes r to a temp file next to the destination and renames it into place.
func (l *Local) Put(ctx context.Context, key string, r io.Reader, _ string) (string, error) {
	dst, err := l.Path(key)
	if err != nil {
		return "", wrap("put", key, err)
	}
	if err := ctx.Err(); err != nil {
		return "", wrap("put", key, err)
	}
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", wrap("put", key, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(dst)+"-*")
	if err != nil {
		return "", wrap("put", key, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := io.Copy(tmp, r); err != nil {
		cleanup()
		return "", wrap("put", key, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", wrap("put", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", wrap("put", key, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return "", wrap("put", key, err)
	}
	l.logger.Debug("stored object", zap.String("key", key))
	return l.publicURL(key), nil
}

// Get opens the file stored under key.
func (l *Local) Get(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := l.Path(key)
	if err != nil {
		return nil, wrap("get", key, err)
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, wrap("get", key, err)
	}
	return f, nil
}

// Delete removes the file stored under key.
func (l *Local) Delete(_ context.Context, key string) error {
	p, err := l.Path(key)
	if err != nil {
		return wrap("delete", key, err)
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return wrap("delete", key, err)
	}
	return nil
}

// DeletePrefix removes every file or directory whose key starts with prefix.
func (l *Local) DeletePrefix(_ context.Context, prefix string) error {
	if strings.HasSuffix(prefix, "/") {
		p, err := l.Path(prefix)
		if err != nil {
			return wrap("delete_prefix", prefix, err)
		}
		if err := os.RemoveAll(p); err != nil {
			return wrap("delete_prefix", prefix, err)
		}
		return nil
	}

	p, err := l.Path(prefix)
	if err != nil {
		return wrap("delete_prefix", prefix, err)
	}
	dir, base := filepath.Dir(p), filepath.Base(p)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return wrap("delete_prefix", prefix, err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), base) {
			if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
				return wrap("delete_prefix", prefix, err)
			}
		}
	}
	return nil
}

// URLFor returns the public URL of key. Local objects are served unsigned.
func (l *Local) URLFor(_ context.Context, key string, _ time.Duration) (string, error) {
	if _, err := l.Path(key); err != nil {
		return "", wrap("url", key, err)
	}
	return l.publicURL(key), nil
}

// Ping checks that the root directory exists.
func (l *Local) Ping(_ context.Context) error {
	info, err := os.Stat(l.root)
	if err != nil {
		return wrap("ping", l.root, err)
	}
	if !info.IsDir() {
		return wrap("ping", l.root, errors.New("not a directory"))
	}
	return nil
}

func (l *Local) publicURL(key string) string {
	parts := strings.Split(strings.TrimPrefix(path.Clean("/"+key), "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return l.baseURL + "/" + strings.Join(parts, "/")
}
