// Package storage manages uploaded image artifacts on the local filesystem.
package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/carvision/defect-api/internal/domain"

	"go.uber.org/zap"
)

// LocalStore writes artifacts under a base directory. Filenames are random
// hex, so user-controlled names can neither collide nor traverse paths.
type LocalStore struct {
	dir    string
	logger *zap.Logger
}

// NewLocalStore creates the base directory if needed and returns the store.
func NewLocalStore(dir string, logger *zap.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &domain.ErrStorage{Op: "create upload dir", Err: err}
	}
	return &LocalStore{dir: dir, logger: logger}, nil
}

// Store writes the full stream under a <random-hex-16>.<ext> name.
// The data lands in a temp file first and is renamed into place, so a
// partial write is never visible under the final name.
func (s *LocalStore) Store(ctx context.Context, r io.Reader, originalName string) (string, error) {
	name := randomHex(8) + sanitizeExt(originalName)
	return s.write(ctx, r, name)
}

// StoreTemp writes a short-lived artifact for the live-predict flow.
// The temp_ prefix makes strays easy to spot and sweep.
func (s *LocalStore) StoreTemp(ctx context.Context, r io.Reader, originalName string) (string, error) {
	name := "temp_" + randomHex(4) + sanitizeExt(originalName)
	return s.write(ctx, r, name)
}

func (s *LocalStore) write(ctx context.Context, r io.Reader, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	finalPath := filepath.Join(s.dir, name)
	partPath := finalPath + ".part"

	f, err := os.OpenFile(partPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", &domain.ErrStorage{Op: "create artifact", Err: err}
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(partPath)
		return "", &domain.ErrStorage{Op: "write artifact", Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(partPath)
		return "", &domain.ErrStorage{Op: "flush artifact", Err: err}
	}

	if err := os.Rename(partPath, finalPath); err != nil {
		os.Remove(partPath)
		return "", &domain.ErrStorage{Op: "publish artifact", Err: err}
	}

	s.logger.Debug("artifact stored", zap.String("path", finalPath))
	return finalPath, nil
}

// Reclaim deletes the artifact. A missing file is not an error; other
// failures are returned so the caller can log and move on.
func (s *LocalStore) Reclaim(path string) error {
	err := os.Remove(path)
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return &domain.ErrStorage{Op: "reclaim artifact", Err: err}
}

// randomHex returns n random bytes hex-encoded (2n characters).
func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the OS entropy source is broken.
		panic(fmt.Sprintf("storage: rand.Read: %v", err))
	}
	return hex.EncodeToString(buf)
}

// sanitizeExt extracts a safe lowercase extension from a client-supplied
// filename. Anything suspicious is dropped.
func sanitizeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if ext == "" || ext == "." || len(ext) > 8 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
