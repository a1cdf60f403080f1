package blobstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"kycgate/internal/signing"
)

// ErrObjectNotFound is returned when a location does not map to a stored file.
var ErrObjectNotFound = errors.New("object not found")

// Local keeps document images on the filesystem and resolves locations to
// HMAC-signed download URLs served by the API's /download handler. It backs
// development setups and API tests that have no S3 endpoint.
type Local struct {
	dir       string
	baseURL   string
	signer    *signing.Signer
	urlExpiry time.Duration
}

// NewLocal creates a filesystem-backed store rooted at dir.
func NewLocal(dir, baseURL string, signer *signing.Signer, urlExpiry time.Duration) (*Local, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &Local{
		dir:       dir,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		signer:    signer,
		urlExpiry: urlExpiry,
	}, nil
}

// Put writes the object under the store directory. The path is flattened so a
// crafted path can never escape the root.
func (s *Local) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	full := filepath.Join(s.dir, diskName(path))
	if err := os.WriteFile(full, data, 0o640); err != nil {
		return "", fmt.Errorf("write object %s: %w", path, err)
	}
	return path, nil
}

// Resolve mints a signed, expiring download URL for a stored object.
func (s *Local) Resolve(ctx context.Context, location string) (string, error) {
	if _, err := os.Stat(filepath.Join(s.dir, diskName(location))); err != nil {
		return "", fmt.Errorf("resolve %s: %w", location, ErrObjectNotFound)
	}
	expiry := time.Now().Add(s.urlExpiry).Unix()
	q := url.Values{}
	q.Set("file", location)
	q.Set("expires", strconv.FormatInt(expiry, 10))
	q.Set("signature", s.signer.Sign(location, expiry))
	return s.baseURL + "/download?" + q.Encode(), nil
}

// Open returns the stored bytes for a location, used by the download handler
// after it has validated the URL signature.
func (s *Local) Open(location string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, diskName(location)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("read object %s: %w", location, err)
	}
	return data, nil
}

// Signer exposes the signer so the download handler can validate signatures.
func (s *Local) Signer() *signing.Signer {
	return s.signer
}

func diskName(path string) string {
	return strings.ReplaceAll(path, "/", "__")
}
