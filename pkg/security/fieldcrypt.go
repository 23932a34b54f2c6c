package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/angelmondragon/comanda-backend/pkg/config"
)

const encryptedPrefix = "enc:v1:"

// ErrDecode is returned when a stored value cannot be decrypted with the configured key.
var ErrDecode = errors.New("field decode failed")

// FieldCodec encrypts and decrypts individual column values.
type FieldCodec interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// ChaChaCodec implements FieldCodec with XChaCha20-Poly1305.
type ChaChaCodec struct {
	key []byte
}

// NewFieldCodec builds a codec from config. A FieldKey that decodes to 32 bytes of base64
// is used directly; anything else is treated as a passphrase and stretched with Argon2id.
func NewFieldCodec(cfg config.CryptoConfig) (*ChaChaCodec, error) {
	raw := strings.TrimSpace(cfg.FieldKey)
	if raw == "" {
		return nil, fmt.Errorf("field encryption key is required")
	}
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil && len(decoded) == chacha20poly1305.KeySize {
		return &ChaChaCodec{key: decoded}, nil
	}
	if cfg.FieldKeySalt == "" {
		return nil, fmt.Errorf("field encryption salt is required for passphrase keys")
	}
	key := argon2.IDKey([]byte(raw), []byte(cfg.FieldKeySalt), 1, 64*1024, 4, chacha20poly1305.KeySize)
	return &ChaChaCodec{key: key}, nil
}

// Encrypt seals plaintext. Empty input stays empty so optional columns remain blank.
func (c *ChaChaCodec) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return encryptedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Any other input yields ErrDecode.
func (c *ChaChaCodec) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	if !strings.HasPrefix(ciphertext, encryptedPrefix) {
		return "", ErrDecode
	}
	sealed, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(ciphertext, encryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	if len(sealed) < aead.NonceSize() {
		return "", ErrDecode
	}
	nonce, body := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return string(plain), nil
}
