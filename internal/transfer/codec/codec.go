// Package codec turns health-data bundles into opaque blobs for storage and
// back again for delivery.
//
// Blob layout: version byte | 24-byte nonce | XChaCha20-Poly1305 ciphertext.
// The version byte is also bound as additional data so it cannot be swapped.
package codec

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	blobVersion byte = 1
	keyInfo          = "hie-gateway/payload/v1"

	// MinSecretLength is the shortest secret New accepts.
	MinSecretLength = 16
)

// Codec is stateless apart from its key and safe for concurrent use.
type Codec struct {
	aead cipher.AEAD
}

// New derives the payload key from secret with HKDF-SHA256.
func New(secret []byte) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("payload secret must be at least %d bytes", MinSecretLength)
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive payload key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// Encrypt serializes and seals b. Each call uses a fresh nonce, so two
// encryptions of the same bundle differ.
func (c *Codec) Encrypt(b Bundle) ([]byte, error) {
	if len(b.Records) == 0 {
		return nil, &DecodeError{Reason: "bundle has no records"}
	}
	plaintext, err := json.Marshal(b)
	if err != nil {
		return nil, &DecodeError{Reason: "bundle is not serializable", Err: err}
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	blob := make([]byte, 0, 1+len(nonce)+len(plaintext)+c.aead.Overhead())
	blob = append(blob, blobVersion)
	blob = append(blob, nonce...)
	return c.aead.Seal(blob, nonce, plaintext, []byte{blobVersion}), nil
}

// Decrypt opens a blob produced by Encrypt. Truncated, tampered, foreign-key
// and unknown-version blobs all fail with *DecodeError.
func (c *Codec) Decrypt(blob []byte) (Bundle, error) {
	nonceSize := c.aead.NonceSize()
	if len(blob) < 1+nonceSize+c.aead.Overhead() {
		return Bundle{}, &DecodeError{Reason: "blob too short"}
	}
	if blob[0] != blobVersion {
		return Bundle{}, &DecodeError{Reason: fmt.Sprintf("unsupported blob version %d", blob[0])}
	}
	plaintext, err := c.aead.Open(nil, blob[1:1+nonceSize], blob[1+nonceSize:], []byte{blobVersion})
	if err != nil {
		return Bundle{}, &DecodeError{Reason: "blob authentication failed", Err: err}
	}
	return DecodeBundle(plaintext)
}

// DecodeBundle parses the JSON wire form of a bundle.
func DecodeBundle(data []byte) (Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return Bundle{}, &DecodeError{Reason: "malformed bundle", Err: err}
	}
	if len(b.Records) == 0 {
		return Bundle{}, &DecodeError{Reason: "bundle has no records"}
	}
	return b, nil
}

// DecodeError reports input the codec cannot turn into a bundle.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return "decode: " + e.Reason + ": " + e.Err.Error()
	}
	return "decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err carries a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
