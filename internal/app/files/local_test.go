package files

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), 1024)
	require.NoError(t, err)
	ctx := context.Background()

	stored, err := store.Save(ctx, "cp-1", "Board Resolution.PDF", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), stored.Size)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", stored.SHA256)
	assert.True(t, strings.HasSuffix(stored.Path, ".pdf"))

	rc, err := store.Open(ctx, stored.Path)
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "hello", string(body))

	require.NoError(t, store.Delete(ctx, stored.Path))
	require.NoError(t, store.Delete(ctx, stored.Path))
}

func TestLocalStoreLimits(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), 4)
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "x", "a.txt", strings.NewReader("too long"))
	require.ErrorIs(t, err, ErrTooLarge)

	_, err = store.Save(context.Background(), "x", "a.txt", strings.NewReader(""))
	require.ErrorIs(t, err, ErrEmpty)

	_, err = store.Open(context.Background(), "../etc/passwd")
	require.Error(t, err)
}
