package vault_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myworkflows/chat-service/internal/core/vault"
	"github.com/myworkflows/chat-service/internal/mocks"
)

func TestIsReference(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"dotenv://OPENROUTER_API_KEY", true},
		{"azure://kv/secret", true},
		{"hashicorp://secret/data/jwt", true},
		{"sk-or-v1-abc", false},
		{"", false},
		{"https://example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, vault.IsReference(tt.value))
		})
	}
}

func TestResolve_PlainValue(t *testing.T) {
	// Arrange
	v := &mocks.MockVault{}

	// Act
	got, err := vault.Resolve(context.Background(), v, "plain-secret")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "plain-secret", got)
	v.AssertNotCalled(t, "GetSecret")
}

func TestResolve_Reference(t *testing.T) {
	// Arrange
	ctx := context.Background()
	v := &mocks.MockVault{}
	v.On("GetSecret", ctx, "dotenv://SUPABASE_JWT_SECRET").Return("jwt-secret", nil)

	// Act
	got, err := vault.Resolve(ctx, v, "dotenv://SUPABASE_JWT_SECRET")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "jwt-secret", got)
	v.AssertExpectations(t)
}

func TestResolve_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("vault failure", func(t *testing.T) {
		v := &mocks.MockVault{}
		v.On("GetSecret", ctx, "dotenv://MISSING").Return("", errors.New("secret not found"))

		_, err := vault.Resolve(ctx, v, "dotenv://MISSING")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "dotenv://MISSING")
	})

	t.Run("no vault", func(t *testing.T) {
		_, err := vault.Resolve(ctx, nil, "dotenv://KEY")

		require.Error(t, err)
	})
}
