// Package filestore keeps credentials in a single JSON file, optionally sealed
// with NaCl secretbox under an argon2id key. A sealed file is
// salt || nonce || box.
package filestore

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrsteele09/go-session-client/credentials"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	saltSize  = 16
	nonceSize = 24

	// argon2id parameters, RFC 9106 second recommended option
	argonTime    = 3
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
)

var _ credentials.KV = (*FileStore)(nil)

// ErrCorrupt is returned by Get when the file cannot be opened or decoded.
var ErrCorrupt = errors.New("credential file is corrupt")

type FileStore struct {
	path   string
	sealer *sealer
	lock   sync.Mutex
}

type Option func(*FileStore)

// WithEncryptionKey seals the file with a key derived from passphrase.
func WithEncryptionKey(passphrase string) Option {
	return func(fs *FileStore) {
		if passphrase == "" {
			return
		}
		fs.sealer = &sealer{passphrase: []byte(passphrase)}
	}
}

// sealer remembers the last derived key so a file's salt is only stretched once.
type sealer struct {
	passphrase []byte
	salt       []byte
	key        *[32]byte
}

func (s *sealer) keyFor(salt []byte) *[32]byte {
	if s.key != nil && bytes.Equal(s.salt, salt) {
		return s.key
	}
	var key [32]byte
	copy(key[:], argon2.IDKey(s.passphrase, salt, argonTime, argonMemory, argonThreads, uint32(len(key))))
	s.salt = append([]byte(nil), salt...)
	s.key = &key
	return s.key
}

func (s *sealer) open(data []byte) ([]byte, error) {
	if len(data) < saltSize+nonceSize {
		return nil, ErrCorrupt
	}
	salt := data[:saltSize]
	var nonce [nonceSize]byte
	copy(nonce[:], data[saltSize:saltSize+nonceSize])
	opened, ok := secretbox.Open(nil, data[saltSize+nonceSize:], &nonce, s.keyFor(salt))
	if !ok {
		s.salt, s.key = nil, nil
		return nil, ErrCorrupt
	}
	return opened, nil
}

// seal keeps the salt of the file last read or written, or picks a new one.
func (s *sealer) seal(plain []byte) ([]byte, error) {
	salt := s.salt
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, fmt.Errorf("generate salt: %w", err)
		}
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	key := s.keyFor(salt)

	out := make([]byte, 0, saltSize+nonceSize+len(plain)+secretbox.Overhead)
	out = append(out, salt...)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, plain, &nonce, key), nil
}

func New(path string, options ...Option) *FileStore {
	store := &FileStore{path: path}
	for _, opt := range options {
		opt(store)
	}
	return store
}

func (f *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	values, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (f *FileStore) SetAll(_ context.Context, values map[string]string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	current := f.loadOrEmpty()
	for k, v := range values {
		current[k] = v
	}
	return f.save(current)
}

func (f *FileStore) Delete(_ context.Context, keys ...string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	current := f.loadOrEmpty()
	for _, k := range keys {
		delete(current, k)
	}
	if len(current) == 0 {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove credential file: %w", err)
		}
		return nil
	}
	return f.save(current)
}

func (f *FileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credential file: %w", err)
	}

	if f.sealer != nil {
		if data, err = f.sealer.open(data); err != nil {
			return nil, err
		}
	}

	values := map[string]string{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return values, nil
}

// loadOrEmpty lets a write recover from a corrupt file by replacing it.
func (f *FileStore) loadOrEmpty() map[string]string {
	values, err := f.load()
	if err != nil {
		log.Warn().Err(err).Str("path", f.path).Msg("discarding unreadable credential file")
		return map[string]string{}
	}
	return values
}

func (f *FileStore) save(values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	if f.sealer != nil {
		if data, err = f.sealer.seal(data); err != nil {
			return err
		}
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace credential file: %w", err)
	}
	return nil
}
