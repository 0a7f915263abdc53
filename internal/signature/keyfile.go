package signature

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
)

// LoadKeyFile reads a base64-encoded signing key from path. Surrounding
// whitespace and a trailing newline are tolerated so keys written by shell
// tooling load cleanly.
func LoadKeyFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decoding key file %s: %w", path, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("key file %s holds %d bytes, want %d", path, len(key), KeySize)
	}
	return key, nil
}

// SaveKeyFile writes a signing key to path as base64 with owner-only
// permissions.
func SaveKeyFile(path string, key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("signing key must be %d bytes, got %d", KeySize, len(key))
	}

	encoded := base64.StdEncoding.EncodeToString(key) + "\n"
	if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
		return fmt.Errorf("writing key file: %w", err)
	}
	return nil
}

// LoadOrCreateKeyFile loads the key at path, generating and persisting a new
// one if the file does not exist yet.
func LoadOrCreateKeyFile(path string) ([]byte, error) {
	key, err := LoadKeyFile(path)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	key, err = GenerateSecretKey()
	if err != nil {
		return nil, err
	}
	if err := SaveKeyFile(path, key); err != nil {
		return nil, err
	}
	return key, nil
}
