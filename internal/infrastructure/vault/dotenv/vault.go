// Package dotenv provides a dotenv-based vault implementation for development.
package dotenv

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Vault implements the vault.Vault interface using environment variables.
// Secrets registered with Set take part in lookups after the environment.
type Vault struct {
	secrets map[string]string
	mu      sync.RWMutex
}

// NewVault creates a new DotEnv vault instance.
func NewVault() *Vault {
	return &Vault{
		secrets: make(map[string]string),
	}
}

// Set registers an in-memory secret and returns its URI.
func (v *Vault) Set(key, value string) string {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.secrets[key] = value
	return fmt.Sprintf("dotenv://%s", key)
}

// GetSecret retrieves a secret from environment variables or in-memory store.
func (v *Vault) GetSecret(ctx context.Context, uri string) (string, error) {
	key := strings.TrimPrefix(uri, "dotenv://")

	if value := os.Getenv(key); value != "" {
		return value, nil
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	if value, ok := v.secrets[key]; ok {
		return value, nil
	}

	return "", fmt.Errorf("secret not found: %s", key)
}

// Ping checks if the vault is available (always returns nil for dotenv).
func (v *Vault) Ping(ctx context.Context) error {
	return nil
}

// Close closes the vault (no-op for dotenv).
func (v *Vault) Close() error {
	return nil
}
