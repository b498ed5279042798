package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/theus-run/theus/pkg/types"
)

// Vault seals and opens byte payloads with AES-256-GCM under a single key.
type Vault struct {
	key []byte // 32 bytes
}

// New builds a Vault from a raw 32-byte AES-256 key.
func New(key []byte) (*Vault, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("vault: encryption key must be 32 bytes, got %d", len(key))
	}
	return &Vault{key: key}, nil
}

// NewFromPassword derives a key from password via SHA-256.
func NewFromPassword(password string) (*Vault, error) {
	if password == "" {
		return nil, fmt.Errorf("vault: password cannot be empty")
	}
	hash := sha256.Sum256([]byte(password))
	return New(hash[:])
}

// Seal encrypts plaintext, returning the nonce-prepended ciphertext.
func (v *Vault) Seal(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("vault: cannot seal empty data")
	}

	gcm, err := v.gcm()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("vault: failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal.
func (v *Vault) Open(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("vault: cannot open empty data")
	}

	gcm, err := v.gcm()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("vault: ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to open: %w", err)
	}
	return plaintext, nil
}

func (v *Vault) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to create GCM: %w", err)
	}
	return gcm, nil
}

// SealHandle encrypts h's payload (which must be a []byte) and returns a new
// handle with the ciphertext as its Data, ID suffixed "-sealed". The
// original handle's refcount is untouched; the caller still owns its
// release.
func (v *Vault) SealHandle(h *types.HeavyHandle) (*types.HeavyHandle, error) {
	if h == nil {
		return nil, fmt.Errorf("vault: cannot seal nil handle")
	}
	plaintext, ok := h.Data.([]byte)
	if !ok {
		return nil, fmt.Errorf("vault: handle %q data is not []byte", h.ID)
	}
	ciphertext, err := v.Seal(plaintext)
	if err != nil {
		return nil, err
	}
	return types.NewHeavyHandle(h.ID+"-sealed", ciphertext), nil
}

// OpenHandle reverses SealHandle.
func (v *Vault) OpenHandle(h *types.HeavyHandle) (*types.HeavyHandle, error) {
	if h == nil {
		return nil, fmt.Errorf("vault: cannot open nil handle")
	}
	ciphertext, ok := h.Data.([]byte)
	if !ok {
		return nil, fmt.Errorf("vault: handle %q data is not []byte", h.ID)
	}
	plaintext, err := v.Open(ciphertext)
	if err != nil {
		return nil, err
	}
	id := h.ID
	if len(id) > len("-sealed") && id[len(id)-len("-sealed"):] == "-sealed" {
		id = id[:len(id)-len("-sealed")]
	}
	return types.NewHeavyHandle(id, plaintext), nil
}
