// Package secret keeps sensitive strings sealed in memory until they are needed.
package secret

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecode is returned when a protected secret cannot be decoded.
var ErrDecode = errors.New("failed to decode protected secret")

var (
	processKeyOnce sync.Once
	processAEAD    cipher.AEAD
	processKeyErr  error
)

// sealer returns the AEAD bound to a per-process random key.
func sealer() (cipher.AEAD, error) {
	processKeyOnce.Do(func() {
		key := make([]byte, chacha20poly1305.KeySize)
		if _, err := rand.Read(key); err != nil {
			processKeyErr = fmt.Errorf("failed to generate secret key: %w", err)
			return
		}
		processAEAD, processKeyErr = chacha20poly1305.NewX(key)
		clear(key)
	})
	return processAEAD, processKeyErr
}

// Protected holds a secret sealed with a process-local key. Only Reveal
// produces plaintext. The zero value is an empty secret.
type Protected struct {
	mu         sync.Mutex
	nonce      []byte
	ciphertext []byte
	length     int
	destroyed  bool
}

// New seals plaintext and clears the given slice.
func New(plaintext []byte) (*Protected, error) {
	defer clear(plaintext)

	aead, err := sealer()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return &Protected{
		nonce:      nonce,
		ciphertext: aead.Seal(nil, nonce, plaintext, nil),
		length:     len(plaintext),
	}, nil
}

// FromString seals s.
func FromString(s string) (*Protected, error) {
	return New([]byte(s))
}

// Len returns the plaintext length.
func (p *Protected) Len() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return 0
	}
	return p.length
}

// Reveal decodes the secret. It fails with ErrDecode when the container was
// destroyed, never sealed, or tampered with.
func (p *Protected) Reveal() (string, error) {
	if p == nil {
		return "", fmt.Errorf("%w: nil container", ErrDecode)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return "", fmt.Errorf("%w: container destroyed", ErrDecode)
	}
	if p.ciphertext == nil {
		return "", fmt.Errorf("%w: container is empty", ErrDecode)
	}

	aead, err := sealer()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecode, err)
	}

	plaintext, err := aead.Open(nil, p.nonce, p.ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	defer clear(plaintext)

	return string(plaintext), nil
}

// Destroy discards the sealed bytes. Reveal fails afterwards.
func (p *Protected) Destroy() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.ciphertext)
	p.ciphertext = nil
	p.nonce = nil
	p.length = 0
	p.destroyed = true
}

// String implements fmt.Stringer without revealing the secret.
func (p *Protected) String() string {
	return "[PROTECTED]"
}
