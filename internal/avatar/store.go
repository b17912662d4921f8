// Package avatar stores uploaded avatar blobs on disk, one file per player.
package avatar

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store is a flat directory of <uuid>.moon files.
type Store struct {
	dir string
}

// NewStore opens (creating if needed) the avatar directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create avatar dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(id uuid.UUID) string {
	return filepath.Join(s.dir, id.String()+".moon")
}

// Exists reports whether an avatar file is present for id.
func (s *Store) Exists(id uuid.UUID) bool {
	_, err := os.Stat(s.path(id))
	return err == nil
}

// Read returns the raw avatar bytes. A missing avatar yields fs.ErrNotExist.
func (s *Store) Read(id uuid.UUID) ([]byte, error) {
	return os.ReadFile(s.path(id))
}

// Write replaces the avatar for id.
func (s *Store) Write(id uuid.UUID, data []byte) error {
	return os.WriteFile(s.path(id), data, 0o644)
}

// Delete removes the avatar for id. Deleting a missing avatar is not an
// error.
func (s *Store) Delete(id uuid.UUID) error {
	err := os.Remove(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Hash returns the equipped-avatar digest clients compare against: the hex
// SHA-256 of the standard-base64 encoding of the file content.
func (s *Store) Hash(id uuid.UUID) (string, error) {
	data, err := s.Read(id)
	if err != nil {
		return "", err
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	sum := sha256.Sum256([]byte(encoded))
	return hex.EncodeToString(sum[:]), nil
}
