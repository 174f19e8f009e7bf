package localfs

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
)

// Storage keeps blobs on the local filesystem and signs download links
// served by the API under /files/.
type Storage struct {
	basePath   string
	publicURL  string
	signingKey []byte
	now        func() time.Time
}

func New(basePath, publicURL, signingKey string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{
		basePath:   basePath,
		publicURL:  strings.TrimRight(publicURL, "/"),
		signingKey: []byte(signingKey),
		now:        time.Now,
	}, nil
}

// Put writes a new blob. Existing keys are never overwritten.
func (s *Storage) Put(ctx context.Context, key string, data io.Reader, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", domain.WrapError(domain.ErrConflict, "put blob", fmt.Errorf("key %s already exists", key))
		}
		return "", fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close file: %w", err)
	}
	return key, nil
}

func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get blob", fmt.Errorf("key %s", key))
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

// PresignedURL returns a link valid for ttl, checked by Verify.
func (s *Storage) PresignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if len(s.signingKey) == 0 {
		return "", fmt.Errorf("storage signing key is not configured")
	}
	if _, err := s.resolve(key); err != nil {
		return "", err
	}
	expires := s.now().Add(ttl).Unix()
	query := url.Values{}
	query.Set("expires", strconv.FormatInt(expires, 10))
	query.Set("signature", s.sign(key, expires))
	return s.publicURL + "/files/" + url.PathEscape(key) + "?" + query.Encode(), nil
}

// Verify checks a signature produced by PresignedURL.
func (s *Storage) Verify(key, expires, signature string) bool {
	if len(s.signingKey) == 0 {
		return false
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || s.now().Unix() > exp {
		return false
	}
	expected := s.sign(key, exp)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (s *Storage) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.signingKey)
	_, _ = fmt.Fprintf(mac, "%s\n%d", key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Storage) resolve(key string) (string, error) {
	clean := filepath.Clean(key)
	if key == "" || clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve blob key", fmt.Errorf("invalid storage key %q", key))
	}
	return filepath.Join(s.basePath, clean), nil
}
