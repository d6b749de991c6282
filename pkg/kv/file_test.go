package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/tillpoint-terminal/pkg/errors"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := OpenFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "profile", `{"id":"pos-1"}`))
	value, err := store.Get(ctx, "profile")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"pos-1"}`, value)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := OpenFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "sequence", "42"))

	reopened, err := OpenFileStore(dir)
	require.NoError(t, err)
	value, err := reopened.Get(ctx, "sequence")
	require.NoError(t, err)
	require.Equal(t, "42", value)
}

func TestFileStoreMissingKeyIsNotFound(t *testing.T) {
	store, err := OpenFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "absent")
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestFileStoreDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, err := OpenFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "shift_open", "true"))
	require.NoError(t, store.Delete(ctx, "shift_open"))
	require.NoError(t, store.Delete(ctx, "shift_open"))

	_, err = store.Get(ctx, "shift_open")
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}
