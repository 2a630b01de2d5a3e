// Package fieldcipher encrypts single field values before they are handed
// to the relational store. The key lives for the process lifetime only;
// nothing written by an earlier process can be recovered after a restart
// unless the same fallback key was in use.
package fieldcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"

	"github.com/awnumar/memguard"

	"medguard.org/internal/obs"
)

// fallbackKey is used when random key generation fails at startup. Every
// process that hits that path shares this key, so Degraded results and the
// InsecureFallback flag must be checked by callers that care.
var fallbackKey = []byte("0f1e2d3c4b5a69788796a5b4c3d2e1f0")

var errShortCiphertext = errors.New("fieldcipher: ciphertext shorter than nonce")

// Result carries the outcome of a field operation. When Degraded is true the
// Value is the caller's input, unmodified: the cipher failed internally and
// degraded to a pass-through rather than failing the caller's request.
type Result struct {
	Value    string
	Degraded bool
}

// Cipher performs AES-256-GCM over individual string values. The key is
// sealed in a memguard enclave between operations.
type Cipher struct {
	key      *memguard.Enclave
	insecure bool
	metrics  *obs.Registry
}

// New generates a 256-bit key and seals it. If key generation fails the
// cipher falls back to the fixed key and reports it via InsecureFallback.
func New(metrics *obs.Registry) *Cipher {
	c := &Cipher{metrics: metrics}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		obs.LogEvent("error", "field cipher key generation failed, using fallback key", map[string]any{
			"error": err.Error(),
		})
		copy(key, fallbackKey)
		c.insecure = true
	}
	// NewEnclave wipes the source slice.
	c.key = memguard.NewEnclave(key)
	return c
}

// InsecureFallback reports whether the cipher is running on the shared
// fixed key instead of a per-process random one.
func (c *Cipher) InsecureFallback() bool { return c.insecure }

// Encrypt seals plaintext and returns base64 raw-URL text of nonce||sealed.
// On any internal failure it returns the plaintext unmodified with
// Degraded set and records an encryption error metric.
func (c *Cipher) Encrypt(plaintext string) Result {
	aead, err := c.open()
	if err != nil {
		return c.degrade("encryption", plaintext, err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return c.degrade("encryption", plaintext, err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return Result{Value: base64.RawURLEncoding.EncodeToString(sealed)}
}

// Decrypt is the inverse of Encrypt. On any failure (bad encoding, wrong
// key, truncated input) it returns the input unmodified with Degraded set
// and records a decryption error metric. An empty string was never
// encrypted and passes through without touching the error counter.
func (c *Cipher) Decrypt(ciphertext string) Result {
	if ciphertext == "" {
		return Result{}
	}
	aead, err := c.open()
	if err != nil {
		return c.degrade("decryption", ciphertext, err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return c.degrade("decryption", ciphertext, err)
	}
	if len(raw) < aead.NonceSize() {
		return c.degrade("decryption", ciphertext, errShortCiphertext)
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return c.degrade("decryption", ciphertext, err)
	}
	return Result{Value: string(plain)}
}

func (c *Cipher) open() (cipher.AEAD, error) {
	view, err := c.key.Open()
	if err != nil {
		return nil, err
	}
	defer view.Destroy()
	block, err := aes.NewCipher(view.Bytes())
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (c *Cipher) degrade(component, value string, err error) Result {
	if c.metrics != nil {
		c.metrics.Increment("errors", obs.T("component", component))
	}
	obs.LogEvent("warn", "field cipher degraded to pass-through", map[string]any{
		"component": component,
		"error":     err.Error(),
	})
	return Result{Value: value, Degraded: true}
}
