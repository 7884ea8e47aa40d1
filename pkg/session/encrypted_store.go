package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000
)

// EncryptedFileStore persists the session in an AES-GCM encrypted file,
// with the key derived from a passphrase via PBKDF2.
type EncryptedFileStore struct {
	path       string
	passphrase string
	mu         sync.Mutex
}

// encryptedEnvelope is the on-disk structure wrapping the ciphertext.
type encryptedEnvelope struct {
	Salt      string `json:"salt"`
	Encrypted string `json:"encrypted"`
}

// NewEncryptedFileStore creates an encrypted file-backed session store.
// The passphrase comes from WXRSS_SESSION_PASSPHRASE; when unset, a
// machine-local default is derived so the file is at least not plaintext.
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	passphrase := os.Getenv("WXRSS_SESSION_PASSPHRASE")
	if passphrase == "" {
		hostname, _ := os.Hostname()
		passphrase = "wxrss-" + hostname + "-" + os.Getenv("USER")
	}

	return &EncryptedFileStore{
		path:       path,
		passphrase: passphrase,
	}, nil
}

// Load reads and decrypts the session. Absence or a record that cannot be
// decrypted yields (nil, nil).
func (e *EncryptedFileStore) Load() (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, err := os.ReadFile(e.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read encrypted session: %w", err)
	}

	var envelope encryptedEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, nil
	}

	plaintext, err := e.decrypt(&envelope)
	if err != nil {
		return nil, nil
	}

	var s Session
	if err := json.Unmarshal(plaintext, &s); err != nil {
		return nil, nil
	}

	if s.Token == "" || len(s.Cookies) == 0 || !s.IsLoggedIn {
		return nil, nil
	}

	return &s, nil
}

// Save encrypts and writes the session.
func (e *EncryptedFileStore) Save(s *Session) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s == nil {
		return fmt.Errorf("cannot save nil session")
	}

	plaintext, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	envelope, err := e.encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("failed to encrypt session: %w", err)
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := os.WriteFile(e.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write encrypted session: %w", err)
	}

	return nil
}

// Clear removes the encrypted session file.
func (e *EncryptedFileStore) Clear() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove encrypted session: %w", err)
	}
	return nil
}

func (e *EncryptedFileStore) encrypt(plaintext []byte) (*encryptedEnvelope, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	key := pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)

	return &encryptedEnvelope{
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Encrypted: base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

func (e *EncryptedFileStore) decrypt(envelope *encryptedEnvelope) ([]byte, error) {
	salt, err := base64.StdEncoding.DecodeString(envelope.Salt)
	if err != nil {
		return nil, err
	}

	ciphertext, err := base64.StdEncoding.DecodeString(envelope.Encrypted)
	if err != nil {
		return nil, err
	}

	key := pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// OpenStore builds a Store from the configured backend name.
func OpenStore(backend, path string) (Store, error) {
	switch backend {
	case "", "file":
		return NewFileStore(path), nil
	case "keyring":
		return NewKeyringStore()
	case "encrypted":
		return NewEncryptedFileStore(path)
	default:
		return nil, fmt.Errorf("unknown session backend: %s", backend)
	}
}
