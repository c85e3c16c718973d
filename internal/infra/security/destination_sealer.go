// Package security seals creator payout destinations at rest.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"creator-paywall/internal/domain/ports/adapter"
)

var _ adapter.Sealer = (*DestinationSealer)(nil)

const (
	sealVersion = "v1"
	// Bound into every seal so a ciphertext lifted from another column or
	// service does not open here.
	sealLabel = "creator-paywall/payout-destination/" + sealVersion
)

var ErrUnsealable = errors.New("sealed destination cannot be opened")

// DestinationSealer encrypts payout destinations with AES-GCM. A sealed value
// reads "v1.<base64(nonce || ciphertext)>".
type DestinationSealer struct {
	gcm cipher.AEAD
}

// NewDestinationSealer takes a 16, 24 or 32 byte key (AES-128/192/256).
func NewDestinationSealer(key string) (*DestinationSealer, error) {
	k := []byte(key)
	if n := len(k); n != 16 && n != 24 && n != 32 {
		return nil, fmt.Errorf("encryption key must be 16, 24, or 32 bytes; got %d", n)
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &DestinationSealer{gcm: gcm}, nil
}

// RandomKey returns a fresh 32 byte key for dev runs without one configured.
// Destinations sealed with it are unreadable after a restart.
func RandomKey() (string, error) {
	b := make([]byte, 24)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(b), nil
}

func (s *DestinationSealer) Seal(destination string) (string, error) {
	if destination == "" {
		return "", fmt.Errorf("%w: empty destination", ErrUnsealable)
	}
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}
	ct := s.gcm.Seal(nonce, nonce, []byte(destination), []byte(sealLabel))
	return sealVersion + "." + base64.RawURLEncoding.EncodeToString(ct), nil
}

func (s *DestinationSealer) Open(sealed string) (string, error) {
	version, body, ok := strings.Cut(sealed, ".")
	if !ok || version != sealVersion {
		return "", fmt.Errorf("%w: unknown format", ErrUnsealable)
	}
	data, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsealable, err)
	}
	ns := s.gcm.NonceSize()
	if len(data) < ns+s.gcm.Overhead() {
		return "", fmt.Errorf("%w: too short", ErrUnsealable)
	}
	pt, err := s.gcm.Open(nil, data[:ns], data[ns:], []byte(sealLabel))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsealable, err)
	}
	return string(pt), nil
}
