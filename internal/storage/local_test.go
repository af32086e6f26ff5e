package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	ref, err := store.Save(ctx, SaveInput{
		Key:         "abc123.pdf",
		Reader:      strings.NewReader("document body"),
		Size:        13,
		ContentType: "application/pdf",
	})
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	reader, err := store.Open(ctx, ref)
	require.NoError(t, err)
	defer reader.Close()

	body, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.Equal(t, "document body", string(body))
}

func TestLocalStoreOpenMissing(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Open(context.Background(), "ab/absent.pdf")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStoreDeleteIsIdempotent(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	ref, err := store.Save(ctx, SaveInput{
		Key:    "abc123.pdf",
		Reader: strings.NewReader("x"),
		Size:   1,
	})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, ref))
	require.NoError(t, store.Delete(ctx, ref))

	_, err = store.Open(ctx, ref)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStoreRejectsPathEscape(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Open(context.Background(), "../../etc/passwd")
	require.Error(t, err)

	err = store.Delete(context.Background(), "../escape")
	require.Error(t, err)
}

func TestLocalStoreFansOutByKeyPrefix(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ref, err := store.Save(context.Background(), SaveInput{
		Key:    "zz-key.bin",
		Reader: strings.NewReader("x"),
		Size:   1,
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ref, "zz"))
}
