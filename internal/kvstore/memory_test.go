package kvstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridealert/ridealert/internal/kvstore"
)

func TestMemory_PutGet(t *testing.T) {
	store := kvstore.NewMemory()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, kvstore.KeyActiveWaitingAlerts, []byte(`[]`)))

	v, err := store.Get(ctx, kvstore.KeyActiveWaitingAlerts)
	require.NoError(t, err)
	assert.Equal(t, []byte(`[]`), v)
}

func TestMemory_GetMissing(t *testing.T) {
	store := kvstore.NewMemory()

	_, err := store.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, kvstore.ErrKeyNotFound)
}

func TestMemory_Overwrite(t *testing.T) {
	store := kvstore.NewMemory()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", []byte(`1`)))
	require.NoError(t, store.Put(ctx, "k", []byte(`2`)))

	v, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte(`2`), v)
}

func TestMemory_Delete(t *testing.T) {
	store := kvstore.NewMemory()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", []byte(`1`)))
	require.NoError(t, store.Delete(ctx, "k"))
	require.NoError(t, store.Delete(ctx, "k"), "double delete is a no-op")

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, kvstore.ErrKeyNotFound)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	store := kvstore.NewMemory()
	ctx := context.Background()

	original := []byte(`{"a":1}`)
	require.NoError(t, store.Put(ctx, "k", original))
	original[0] = 'X'

	v, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), v)

	v[0] = 'Y'
	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), again)
}
