package encryption

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	nonceSize = 24
	// KeySize is the length of the API key shared between the GUI helper and the service
	KeySize = 32
)

var ErrInvalidKey = fmt.Errorf("encryption key must be %d bytes", KeySize)

// Crypto seals requests sent to the privileged service with the shared API key.
// Messages are JSON encoded and sealed with XSalsa20 and Poly1305; the random nonce
// is prepended to the ciphertext.
type Crypto struct {
	key [KeySize]byte
}

// New creates a Crypto from the raw API key
func New(key []byte) (*Crypto, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	c := &Crypto{}
	copy(c.key[:], key)
	return c, nil
}

// Encrypt JSON encodes v and seals it
func (c *Crypto) Encrypt(v any) ([]byte, error) {
	msg, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	return c.EncryptRaw(msg)
}

// EncryptRaw seals msg with a fresh nonce
func (c *Crypto) EncryptRaw(msg []byte) ([]byte, error) {
	nonce, err := genNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return secretbox.Seal(nonce[:], msg, nonce, &c.key), nil
}

// Decrypt opens data and JSON decodes it into v
func (c *Crypto) Decrypt(data []byte, v any) error {
	msg, err := c.DecryptRaw(data)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(msg, v); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	return nil
}

// DecryptRaw opens data produced by EncryptRaw
func (c *Crypto) DecryptRaw(data []byte) ([]byte, error) {
	if len(data) < nonceSize+secretbox.Overhead {
		return nil, errors.New("invalid encrypted message length: message too short")
	}

	var nonce [nonceSize]byte
	copy(nonce[:], data[:nonceSize])

	opened, ok := secretbox.Open(nil, data[nonceSize:], &nonce, &c.key)
	if !ok {
		return nil, errors.New("failed to decrypt message")
	}

	return opened, nil
}

// Generates nonce of size 24
func genNonce() (*[nonceSize]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	return &nonce, nil
}
