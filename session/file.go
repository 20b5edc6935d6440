package session

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	apperrors "github.com/jrsteele09/go-opportuci/internal/errors"
	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	fileMode      = 0o600
	saltLength    = 16
	keyLength     = chacha20poly1305.KeySize
	argonTime     = 1
	argonMemory   = 64 * 1024
	argonThreads  = 4
	envelopeV1    = 1
	additionalCtx = "opportuci-session"
)

var _ Store = (*FileStore)(nil)

// sealedFile is the on-disk form when a passphrase is configured.
type sealedFile struct {
	Version int    `json:"version"`
	Salt    []byte `json:"salt"`
	Nonce   []byte `json:"nonce"`
	Data    []byte `json:"data"`
}

// FileStore persists the session as JSON in a single file. With a passphrase
// the JSON is sealed with XChaCha20-Poly1305 under an Argon2id-derived key.
// The key is derived once per salt and kept for the life of the store; writes
// reuse the salt already on disk and draw a fresh nonce each time.
type FileStore struct {
	path       string
	passphrase []byte
	mu         sync.Mutex

	// guarded by mu
	salt        []byte
	key         []byte
	derivations int
}

// FileStoreOption configures a FileStore
type FileStoreOption func(*FileStore)

// WithPassphrase enables encryption at rest
func WithPassphrase(passphrase string) FileStoreOption {
	return func(f *FileStore) {
		if passphrase != "" {
			f.passphrase = []byte(passphrase)
		}
	}
}

// NewFileStore creates a file-backed store at path. The file is created on
// first Save.
func NewFileStore(path string, options ...FileStoreOption) *FileStore {
	f := &FileStore{path: path}
	for _, opt := range options {
		opt(f)
	}
	return f
}

// Path returns the backing file path
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Load(_ context.Context) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

func (f *FileStore) Save(_ context.Context, s Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.write(s)
}

func (f *FileStore) SetAccessToken(_ context.Context, accessToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, err := f.read()
	if err != nil {
		return err
	}
	s.AccessToken = accessToken
	return f.write(s)
}

func (f *FileStore) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "FileStore.Clear os.Remove")
	}
	return nil
}

func (f *FileStore) read() (Session, error) {
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, errors.Wrap(err, "FileStore.Load os.ReadFile")
	}

	if f.passphrase != nil {
		raw, err = f.open(raw)
		if err != nil {
			return Session{}, err
		}
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, errors.Wrap(apperrors.ErrSessionCorrupt, err.Error())
	}
	return s, nil
}

func (f *FileStore) write(s Session) error {
	if s.IsEmpty() && s.RefreshToken == "" {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "FileStore.Save os.Remove")
		}
		return nil
	}

	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "FileStore.Save json.Marshal")
	}

	if f.passphrase != nil {
		data, err = f.seal(data)
		if err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return errors.Wrap(err, "FileStore.Save os.MkdirAll")
	}

	// Write to a sibling temp file and rename so a crash never leaves half a session.
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*")
	if err != nil {
		return errors.Wrap(err, "FileStore.Save os.CreateTemp")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "FileStore.Save Write")
	}
	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return errors.Wrap(err, "FileStore.Save Chmod")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "FileStore.Save Close")
	}
	return errors.Wrap(os.Rename(tmp.Name(), f.path), "FileStore.Save os.Rename")
}

func (f *FileStore) seal(plain []byte) ([]byte, error) {
	salt := f.salt
	if salt == nil {
		salt = make([]byte, saltLength)
		if _, err := rand.Read(salt); err != nil {
			return nil, errors.Wrap(err, "FileStore.seal rand.Read")
		}
	}

	aead, err := chacha20poly1305.NewX(f.deriveKey(salt))
	if err != nil {
		return nil, errors.Wrap(err, "FileStore.seal chacha20poly1305.NewX")
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "FileStore.seal rand.Read")
	}

	return json.Marshal(sealedFile{
		Version: envelopeV1,
		Salt:    salt,
		Nonce:   nonce,
		Data:    aead.Seal(nil, nonce, plain, []byte(additionalCtx)),
	})
}

func (f *FileStore) open(raw []byte) ([]byte, error) {
	var env sealedFile
	if err := json.Unmarshal(raw, &env); err != nil || env.Version != envelopeV1 {
		return nil, apperrors.ErrSessionCorrupt
	}

	aead, err := chacha20poly1305.NewX(f.deriveKey(env.Salt))
	if err != nil {
		return nil, errors.Wrap(err, "FileStore.open chacha20poly1305.NewX")
	}
	if len(env.Nonce) != aead.NonceSize() {
		return nil, apperrors.ErrSessionCorrupt
	}

	plain, err := aead.Open(nil, env.Nonce, env.Data, []byte(additionalCtx))
	if err != nil {
		return nil, apperrors.ErrWrongPassphrase
	}
	return plain, nil
}

// deriveKey returns the key for salt, running Argon2id only when salt differs
// from the last one seen. Called with mu held.
func (f *FileStore) deriveKey(salt []byte) []byte {
	if f.key != nil && bytes.Equal(salt, f.salt) {
		return f.key
	}
	f.key = argon2.IDKey(f.passphrase, salt, argonTime, argonMemory, argonThreads, keyLength)
	f.salt = bytes.Clone(salt)
	f.derivations++
	return f.key
}
