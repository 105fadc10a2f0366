package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/filter"
	"github.com/aretw0/strata/pkg/persistence/middleware"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, middleware.KeySize)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func secretStack() filter.Stack {
	return filter.Stack{Past: []filter.Definition{
		filter.TermsFilter{ItemType: filter.Nodes, Field: "email", Terms: []string{"ada@example.com"}},
	}}
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	mw := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ports.RunStackStoreContract(t, mw(NewMockStore()))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := NewMockStore()
	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	ctx := context.Background()

	snap := domain.NewSnapshot("s", secretStack())
	snap.Dataset = "people.json"
	require.NoError(t, secure.Save(ctx, "s", snap))

	stored, err := underlying.Load(ctx, "s")
	require.NoError(t, err)
	assert.NotEmpty(t, stored.Sealed)
	assert.True(t, stored.Stack.IsEmpty())
	assert.Empty(t, stored.Dataset)
	assert.Equal(t, "s", stored.SessionID)

	loaded, err := secure.Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, secretStack(), loaded.Stack)
	assert.Equal(t, "people.json", loaded.Dataset)
	assert.Empty(t, loaded.Sealed)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := NewMockStore()
	oldKey, newKey := generateKey(t), generateKey(t)
	oldStore := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})(underlying)
	newStore := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(underlying)
	ctx := context.Background()

	require.NoError(t, oldStore.Save(ctx, "s", domain.NewSnapshot("s", secretStack())))

	loaded, err := newStore.Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, secretStack(), loaded.Stack)

	require.NoError(t, newStore.Save(ctx, "s", loaded))
	_, err = oldStore.Load(ctx, "s")
	assert.ErrorIs(t, err, domain.ErrSealed)
}

func TestEncryptionMiddleware_RefusesPlainSnapshot(t *testing.T) {
	underlying := NewMockStore()
	ctx := context.Background()
	require.NoError(t, underlying.Save(ctx, "plain", domain.NewSnapshot("plain", secretStack())))

	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	_, err := secure.Load(ctx, "plain")
	assert.Error(t, err)
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	assert.Panics(t, func() {
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	})
}
