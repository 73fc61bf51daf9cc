package dotenv_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myworkflows/chat-service/internal/core/vault"
	"github.com/myworkflows/chat-service/internal/infrastructure/vault/dotenv"
)

func TestVault_GetSecretFromEnv(t *testing.T) {
	// Arrange
	t.Setenv("TEST_OPENROUTER_KEY", "sk-or-test")
	v := dotenv.NewVault()

	// Act
	value, err := v.GetSecret(context.Background(), "dotenv://TEST_OPENROUTER_KEY")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "sk-or-test", value)
}

func TestVault_GetSecretFromMemory(t *testing.T) {
	// Arrange
	v := dotenv.NewVault()
	uri := v.Set("jwt-secret", "s3cret")

	// Act
	value, err := v.GetSecret(context.Background(), uri)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "dotenv://jwt-secret", uri)
	assert.Equal(t, "s3cret", value)
}

func TestVault_GetSecretNotFound(t *testing.T) {
	// Arrange
	v := dotenv.NewVault()

	// Act
	value, err := v.GetSecret(context.Background(), "dotenv://missing")

	// Assert
	require.Error(t, err)
	assert.Empty(t, value)
	assert.Contains(t, err.Error(), "secret not found")
}

func TestResolve(t *testing.T) {
	t.Setenv("TEST_RESOLVE_KEY", "resolved")
	v := dotenv.NewVault()

	tests := []struct {
		name    string
		value   string
		want    string
		wantErr bool
	}{
		{name: "plain value passes through", value: "literal", want: "literal"},
		{name: "empty passes through", value: "", want: ""},
		{name: "reference is looked up", value: "dotenv://TEST_RESOLVE_KEY", want: "resolved"},
		{name: "missing reference fails", value: "dotenv://NOPE_NOT_SET", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			got, err := vault.Resolve(context.Background(), v, tt.value)

			// Assert
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_NilVault(t *testing.T) {
	// Act
	_, err := vault.Resolve(context.Background(), nil, "dotenv://X")

	// Assert
	assert.Error(t, err)
}
