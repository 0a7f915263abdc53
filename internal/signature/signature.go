package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"
)

// KeySize is the length in bytes of a signing key. HMAC-SHA256 keys longer
// than the hash block size gain nothing, and 32 bytes matches the digest.
const KeySize = 32

// Service signs pattern payloads with HMAC-SHA256 and verifies candidate
// signatures. Signing and verification are safe for concurrent use; Rotate
// takes the write side of the lock so in-flight operations always see a
// complete key.
type Service struct {
	mu  sync.RWMutex
	key []byte
}

// NewService creates a Service with a freshly generated random key.
func NewService() (*Service, error) {
	key, err := GenerateSecretKey()
	if err != nil {
		return nil, err
	}
	return &Service{key: key}, nil
}

// NewServiceWithKey creates a Service bound to an existing key, for example
// one loaded from a key file.
func NewServiceWithKey(key []byte) (*Service, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("signing key must be %d bytes, got %d", KeySize, len(key))
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &Service{key: k}, nil
}

// FromBase64 creates a Service from a standard-base64 encoded key, the
// format produced by ExportSecretKeyBase64.
func FromBase64(encoded string) (*Service, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding signing key: %w", err)
	}
	return NewServiceWithKey(key)
}

// GenerateSecretKey returns a new random signing key.
func GenerateSecretKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating signing key: %w", err)
	}
	return key, nil
}

// Sign computes the HMAC-SHA256 tag of data, returned as standard base64.
func (s *Service) Sign(data []byte) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mac := hmac.New(sha256.New, s.key)
	mac.Write(data)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignString signs the UTF-8 bytes of data.
func (s *Service) SignString(data string) string {
	return s.Sign([]byte(data))
}

// Verify reports whether signature is a valid base64-encoded HMAC-SHA256 tag
// for data under the current key. Malformed base64, wrong-length tags, and
// empty signatures all verify as false; Verify never returns an error.
func (s *Service) Verify(data []byte, signature string) bool {
	candidate, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	mac := hmac.New(sha256.New, s.key)
	mac.Write(data)
	return hmac.Equal(mac.Sum(nil), candidate)
}

// VerifyString verifies a signature over the UTF-8 bytes of data.
func (s *Service) VerifyString(data, signature string) bool {
	return s.Verify([]byte(data), signature)
}

// ExportSecretKeyBase64 returns the current key as standard base64, intended
// for backup and for provisioning verifier instances.
func (s *Service) ExportSecretKeyBase64() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return base64.StdEncoding.EncodeToString(s.key)
}

// Rotate replaces the signing key. Signatures issued under the previous key
// will no longer verify; callers own re-signing any artifacts that must stay
// valid.
func (s *Service) Rotate(key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("signing key must be %d bytes, got %d", KeySize, len(key))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = make([]byte, KeySize)
	copy(s.key, key)
	return nil
}
