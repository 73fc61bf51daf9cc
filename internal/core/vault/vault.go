// Package vault defines the vault interface for secrets management.
package vault

import (
	"context"
	"fmt"
	"strings"
)

// Vault defines the interface for read access to secrets.
type Vault interface {
	// GetSecret retrieves a secret from the vault by URI.
	// Returns the secret value or an error if not found.
	GetSecret(ctx context.Context, uri string) (string, error)

	// Ping checks if the vault connection is alive.
	Ping(ctx context.Context) error

	// Close closes the vault connection.
	Close() error
}

// IsReference reports whether value is a vault URI such as "dotenv://KEY".
func IsReference(value string) bool {
	for _, t := range []Type{TypeDotEnv, TypeAzure, TypeHashiCorp} {
		if strings.HasPrefix(value, string(t)+"://") {
			return true
		}
	}
	return false
}

// Resolve returns value unchanged unless it is a vault reference, in which
// case the referenced secret is fetched from v.
func Resolve(ctx context.Context, v Vault, value string) (string, error) {
	if !IsReference(value) {
		return value, nil
	}
	if v == nil {
		return "", fmt.Errorf("no vault configured for %s", value)
	}
	secret, err := v.GetSecret(ctx, value)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", value, err)
	}
	return secret, nil
}
