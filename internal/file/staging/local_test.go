package staging

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain name", "report.pdf", "report.pdf"},
		{"unix path", "/etc/passwd", "passwd"},
		{"relative traversal", "../../etc/passwd", "passwd"},
		{"windows path", `..\..\windows\system32\cmd.exe`, "cmd.exe"},
		{"embedded dotdot", "foo..bar.txt", "foobar.txt"},
		{"only dots", "..", "upload"},
		{"empty", "", "upload"},
		{"trailing dots", "name...", "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}

func TestLocalStoreRoundtrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()

	size, err := store.Save(ctx, "abc_hello.txt", strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)

	rc, err := store.Open(ctx, "abc_hello.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello world", string(data))

	require.NoError(t, store.Remove(ctx, "abc_hello.txt"))

	_, err = store.Open(ctx, "abc_hello.txt")
	assert.Error(t, err)
}

func TestLocalStoreEmptyFile(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	size, err := store.Save(context.Background(), "empty.bin", strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
}

func TestLocalStoreRejectsTraversalKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()

	_, err = store.Save(ctx, "../escape.txt", strings.NewReader("x"))
	assert.Error(t, err)

	_, err = store.Open(ctx, "../../etc/passwd")
	assert.Error(t, err)
}

func TestLocalStoreRemoveMissingKey(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, store.Remove(context.Background(), "never-existed"))
}
