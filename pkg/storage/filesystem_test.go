package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) *LocalStorage {
	t.Helper()
	signer := NewSignedURLSigner("secret", time.Minute)
	store, err := NewLocalStorage(t.TempDir(), "http://localhost:8080/files", "http://localhost:8080/api/v1/upload/direct", signer)
	require.NoError(t, err)
	return store
}

func TestLocalStorageRoundTrip(t *testing.T) {
	store := newLocal(t)
	ctx := context.Background()
	payload := bytes.Repeat([]byte("pharma"), 512)
	key := NewKey("pharmaelevate", "notes", "lecture.PDF")

	obj, err := store.Upload(ctx, key, bytes.NewReader(payload), int64(len(payload)), "application/pdf")
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), obj.Size)
	require.Equal(t, "http://localhost:8080/files/"+key, obj.URL)
	require.True(t, strings.HasSuffix(key, ".pdf"))

	file, err := store.Open(key)
	require.NoError(t, err)
	defer file.Close()
	stored, err := io.ReadAll(file)
	require.NoError(t, err)
	require.Equal(t, sha256.Sum256(payload), sha256.Sum256(stored))

	stat, err := store.Stat(ctx, key)
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), stat.Size)

	require.NoError(t, store.Destroy(ctx, key))
	_, err = store.Stat(ctx, key)
	require.ErrorIs(t, err, ErrObjectNotFound)
	require.NoError(t, store.Destroy(ctx, key))
}

func TestLocalStorageClampsKeysToRoot(t *testing.T) {
	store := newLocal(t)
	_, err := store.Upload(context.Background(), "", strings.NewReader("x"), 1, "text/plain")
	require.Error(t, err)

	obj, err := store.Upload(context.Background(), "../../etc/passwd", strings.NewReader("x"), 1, "text/plain")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(obj.Key, "../"))
	_, err = store.Stat(context.Background(), "etc/passwd")
	require.NoError(t, err)
}

func TestLocalStoragePresignPut(t *testing.T) {
	store := newLocal(t)
	signed, err := store.PresignPut(context.Background(), Ticket{Key: "pharmaelevate/gallery/x.png", ContentType: "image/png", Size: 10, Kind: "image"}, 0)
	require.NoError(t, err)
	require.Equal(t, "PUT", signed.Method)

	parsed, err := url.Parse(signed.URL)
	require.NoError(t, err)
	ticket, err := store.ParseDirectToken(parsed.Query().Get("token"))
	require.NoError(t, err)
	require.Equal(t, "pharmaelevate/gallery/x.png", ticket.Key)
	require.Equal(t, "image/png", ticket.ContentType)
	require.Equal(t, int64(10), ticket.Size)
	require.Equal(t, "image", ticket.Kind)
}

func TestKeyInFolder(t *testing.T) {
	key := NewKey("root", "notes", "a.pdf")
	require.True(t, KeyInFolder(key, "root", "notes"))
	require.False(t, KeyInFolder(key, "root", "gallery"))
	require.False(t, KeyInFolder("root/notes/../x", "root", "notes"))
	require.False(t, KeyInFolder("root/notes/sub/x.pdf", "root", "notes"))
}
