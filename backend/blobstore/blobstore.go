// Package blobstore implements the binary half of the backing store on
// the local filesystem. Uploads stream through a context-aware copier
// with progress callbacks; a canceled upload removes its partial file so
// no orphaned blob survives a closed dialog.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/blake2b"

	"chat-sync/contract"
	cserrors "chat-sync/errors"
)

// Scheme prefixes every URL returned by Upload.
const Scheme = "blob://"

const copyChunk = 64 * 1024

// Store writes blobs under a single directory, keyed by their generated
// storage name. Names are collision-resistant by construction (the
// composer appends a random suffix), so there is no overwrite handling.
type Store struct {
	dir string
	log *slog.Logger

	mu        sync.Mutex
	checksums map[string]string
}

func New(dir string, log *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob directory: %w", err)
	}
	return &Store{dir: dir, log: log, checksums: make(map[string]string)}, nil
}

// Upload streams r into a blob called name. The content is checksummed
// with BLAKE2b-256 while it flows; the digest is kept for integrity
// checks by the inspector tooling.
func (s *Store) Upload(ctx context.Context, name string, r io.Reader, size int64, progress contract.UploadProgress) (string, error) {
	path := filepath.Join(s.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("blob create %q: %w", name, err)
	}

	hasher, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}

	var done int64
	buf := make([]byte, copyChunk)
	for {
		if err := ctx.Err(); err != nil {
			s.abort(f, path, name)
			return "", fmt.Errorf("%w: %v", cserrors.ErrUploadCanceled, err)
		}
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				s.abort(f, path, name)
				return "", fmt.Errorf("blob write %q: %w", name, err)
			}
			hasher.Write(buf[:n])
			done += int64(n)
			if progress != nil {
				progress(done, size)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			s.abort(f, path, name)
			return "", fmt.Errorf("blob read: %w", readErr)
		}
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("blob close %q: %w", name, err)
	}

	sum := fmt.Sprintf("%x", hasher.Sum(nil))
	s.mu.Lock()
	s.checksums[name] = sum
	s.mu.Unlock()
	s.log.Debug("blob stored", "name", name, "bytes", done, "blake2b", sum)

	return Scheme + name, nil
}

func (s *Store) abort(f *os.File, path, name string) {
	_ = f.Close()
	_ = os.Remove(path)
	s.log.Debug("partial blob removed", "name", name)
}

// Delete removes a blob by name. A missing blob is a success so that
// cascading deletes stay idempotent.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blob delete %q: %w", name, err)
	}
	s.mu.Lock()
	delete(s.checksums, name)
	s.mu.Unlock()
	return nil
}

// Checksum returns the recorded BLAKE2b digest of an uploaded blob, or
// false if the blob is unknown to this process.
func (s *Store) Checksum(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.checksums[name]
	return sum, ok
}

// Open returns a reader over a stored blob, used by copy-content flows.
func (s *Store) Open(name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.dir, name))
	if os.IsNotExist(err) {
		return nil, cserrors.ErrNotFound
	}
	return f, err
}
