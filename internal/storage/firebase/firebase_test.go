package firebase

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"bookcatalog/internal/models"
	"bookcatalog/internal/storage"
	"bookcatalog/internal/storage/storagetest"
)

var _ storage.Storage = (*Store)(nil)

func newTestStore(t *testing.T, baseURL string, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	store, err := New(baseURL, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_Contract(t *testing.T) {
	for _, mode := range []UpdateMode{UpdateReplace, UpdateMerge} {
		t.Run(mode.String(), func(t *testing.T) {
			storagetest.Run(t, func(t *testing.T) storage.BookService {
				_, server := newFakeRTDB(t, DefaultCollection)
				return newTestStore(t, server.URL, WithUpdateMode(mode))
			})
		})
	}
}

func TestNew_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		opts    []Option
	}{
		{name: "empty url", baseURL: "   "},
		{name: "relative url", baseURL: "books-db.firebaseio.com"},
		{name: "unsupported scheme", baseURL: "ftp://books-db.firebaseio.com"},
		{name: "invalid collection", baseURL: "https://books-db.firebaseio.com", opts: []Option{WithCollection("a/b")}},
		{name: "zero timeout", baseURL: "https://books-db.firebaseio.com", opts: []Option{WithTimeout(0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.baseURL, tt.opts...)
			assert.ErrorIs(t, err, storage.ErrConfiguration)
		})
	}
}

func TestStore_GetAllBooksKeepsServerOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Book.json", r.URL.Path)
		io.WriteString(w, `{
			"-Nb": {"title": "Second", "author": "B", "publishDate": "2001-02-03", "readAlready": true},
			"-Na": {"title": "First", "author": "A", "publishDate": "1999-12-31", "readAlready": false},
			"-Nc": null
		}`)
	}))
	defer server.Close()

	store := newTestStore(t, server.URL)
	books, err := store.GetAllBooks(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []models.Book{
		{ID: "-Nb", Title: "Second", Author: "B", PublishDate: models.NewDate(2001, time.February, 3), ReadAlready: true},
		{ID: "-Na", Title: "First", Author: "A", PublishDate: models.NewDate(1999, time.December, 31)},
	}, books)
}

func TestStore_MalformedResponses(t *testing.T) {
	respondWith := func(body string) *Store {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, body)
		}))
		t.Cleanup(server.Close)
		return newTestStore(t, server.URL)
	}
	ctx := context.Background()

	_, err := respondWith(`[1, 2, 3]`).GetAllBooks(ctx)
	assert.ErrorIs(t, err, storage.ErrUpstream)

	_, err = respondWith(`{"-Na": {"title": "x", "author": "y", "publishDate": "yesterday"}}`).GetAllBooks(ctx)
	assert.ErrorIs(t, err, storage.ErrUpstream)

	_, _, err = respondWith(`"not a record"`).GetBookByID(ctx, "-Na")
	assert.ErrorIs(t, err, storage.ErrUpstream)

	_, err = respondWith(`{}`).CreateBook(ctx, storagetest.Dune())
	assert.ErrorIs(t, err, storage.ErrUpstream)
}

func TestStore_StatusErrors(t *testing.T) {
	fake, server := newFakeRTDB(t, DefaultCollection)
	fake.requireAuth("secret")
	ctx := context.Background()

	store := newTestStore(t, server.URL)
	_, err := store.GetAllBooks(ctx)

	var upstream *storage.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusUnauthorized, upstream.StatusCode)
	assert.Contains(t, upstream.Body, "Permission denied")
	assert.False(t, upstream.Timeout())

	authed := newTestStore(t, server.URL, WithAuth("secret"))
	created, err := authed.CreateBook(ctx, storagetest.Dune())
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
}

func TestStore_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	store := newTestStore(t, server.URL, WithTimeout(50*time.Millisecond))

	_, _, err := store.GetBookByID(context.Background(), "-Na")

	var upstream *storage.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.True(t, upstream.Timeout())
}

func TestStore_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	store := newTestStore(t, url)
	err := store.DeleteBookByID(context.Background(), "-Na")
	assert.ErrorIs(t, err, storage.ErrUpstream)
}

func TestStore_UpdateModes(t *testing.T) {
	stored := `{"title": "Dune", "author": "Herbert", "publishDate": "1965-08-01", "readAlready": false, "isbn": "9780441013593"}`
	update := storagetest.Dune()
	update.ID = "-Na"
	update.ReadAlready = true

	t.Run("put replaces the whole node", func(t *testing.T) {
		fake, server := newFakeRTDB(t, DefaultCollection)
		fake.put("-Na", stored)

		store := newTestStore(t, server.URL, WithUpdateMode(UpdateReplace))
		_, err := store.UpdateBook(context.Background(), update)
		require.NoError(t, err)

		node := fake.node("-Na")
		assert.NotContains(t, node, "isbn")
		assert.JSONEq(t, `true`, string(node["readAlready"]))
		assert.Equal(t, []string{http.MethodGet, http.MethodPut}, fake.methods())
	})

	t.Run("patch merges into the node", func(t *testing.T) {
		fake, server := newFakeRTDB(t, DefaultCollection)
		fake.put("-Na", stored)

		store := newTestStore(t, server.URL, WithUpdateMode(UpdateMerge))
		_, err := store.UpdateBook(context.Background(), update)
		require.NoError(t, err)

		node := fake.node("-Na")
		assert.JSONEq(t, `"9780441013593"`, string(node["isbn"]))
		assert.JSONEq(t, `true`, string(node["readAlready"]))
		assert.Equal(t, []string{http.MethodGet, http.MethodPatch}, fake.methods())
	})
}

func TestStore_InvalidKeysNeverReachTheServer(t *testing.T) {
	fake, server := newFakeRTDB(t, DefaultCollection)
	store := newTestStore(t, server.URL)
	ctx := context.Background()

	_, found, err := store.GetBookByID(ctx, "../secrets")
	require.NoError(t, err)
	assert.False(t, found)

	book := storagetest.Dune()
	book.ID = "a/b"
	_, err = store.UpdateBook(ctx, book)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, store.DeleteBookByID(ctx, "a.b"), storage.ErrNotFound)
	assert.Empty(t, fake.methods())
}

func TestStore_CustomCollection(t *testing.T) {
	_, server := newFakeRTDB(t, "books")
	store := newTestStore(t, server.URL+"/", WithCollection("books"))
	ctx := context.Background()

	created, err := store.CreateBook(ctx, storagetest.Dune())
	require.NoError(t, err)

	got, found, err := store.GetBookByID(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, created, got)
}

func TestParseUpdateMode(t *testing.T) {
	mode, err := ParseUpdateMode("PATCH")
	require.NoError(t, err)
	assert.Equal(t, UpdateMerge, mode)

	mode, err = ParseUpdateMode("")
	require.NoError(t, err)
	assert.Equal(t, UpdateReplace, mode)

	_, err = ParseUpdateMode("post")
	assert.Error(t, err)
}
