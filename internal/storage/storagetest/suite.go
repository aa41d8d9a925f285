// Package storagetest holds the behaviour every storage.BookService backend
// must share. Backend packages run it from their own tests.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookcatalog/internal/models"
	"bookcatalog/internal/storage"
)

// Factory returns an empty, ready to use service
type Factory func(t *testing.T) storage.BookService

// Dune is the sample book used throughout the suite
func Dune() models.Book {
	return models.Book{
		Title:       "Dune",
		Author:      "Herbert",
		PublishDate: models.NewDate(1965, time.August, 1),
		ReadAlready: false,
	}
}

// Run executes the contract suite against services built by newService
func Run(t *testing.T, newService Factory) {
	t.Run("CreateAssignsID", func(t *testing.T) { testCreateAssignsID(t, newService(t)) })
	t.Run("CreateIgnoresSuppliedID", func(t *testing.T) { testCreateIgnoresSuppliedID(t, newService(t)) })
	t.Run("CreateRejectsInvalidBook", func(t *testing.T) { testCreateRejectsInvalidBook(t, newService(t)) })
	t.Run("CreateRejectsUnrepresentableDate", func(t *testing.T) { testCreateRejectsUnrepresentableDate(t, newService(t)) })
	t.Run("BoundaryDatesRoundTrip", func(t *testing.T) { testBoundaryDatesRoundTrip(t, newService(t)) })
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, newService(t)) })
	t.Run("UniqueIDs", func(t *testing.T) { testUniqueIDs(t, newService(t)) })
	t.Run("ReadsAreIsolated", func(t *testing.T) { testReadsAreIsolated(t, newService(t)) })
	t.Run("GetMissingBook", func(t *testing.T) { testGetMissingBook(t, newService(t)) })
	t.Run("EmptyCatalog", func(t *testing.T) { testEmptyCatalog(t, newService(t)) })
	t.Run("UpdateUnknownID", func(t *testing.T) { testUpdateUnknownID(t, newService(t)) })
	t.Run("UpdateRejectsInvalidBook", func(t *testing.T) { testUpdateRejectsInvalidBook(t, newService(t)) })
	t.Run("UpdateReplacesFields", func(t *testing.T) { testUpdateReplacesFields(t, newService(t)) })
	t.Run("DeleteUnknownID", func(t *testing.T) { testDeleteUnknownID(t, newService(t)) })
	t.Run("DeleteRemovesBook", func(t *testing.T) { testDeleteRemovesBook(t, newService(t)) })
	t.Run("DuneLifecycle", func(t *testing.T) { testDuneLifecycle(t, newService(t)) })
	t.Run("ConcurrentCreates", func(t *testing.T) { testConcurrentCreates(t, newService(t)) })
}

func testCreateAssignsID(t *testing.T, svc storage.BookService) {
	ctx := context.Background()

	created, err := svc.CreateBook(ctx, Dune())
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	want := Dune()
	want.ID = created.ID
	assert.Equal(t, want, created)
}

func testCreateIgnoresSuppliedID(t *testing.T, svc storage.BookService) {
	ctx := context.Background()

	book := Dune()
	book.ID = "caller-chosen"
	created, err := svc.CreateBook(ctx, book)
	require.NoError(t, err)
	assert.NotEqual(t, "caller-chosen", created.ID)

	_, found, err := svc.GetBookByID(ctx, "caller-chosen")
	require.NoError(t, err)
	assert.False(t, found)
}

func testCreateRejectsInvalidBook(t *testing.T, svc storage.BookService) {
	ctx := context.Background()

	before, err := svc.GetAllBooks(ctx)
	require.NoError(t, err)

	invalid := []models.Book{
		{Author: "Herbert", PublishDate: models.NewDate(1965, time.August, 1)},
		{Title: "Dune", Author: "   ", PublishDate: models.NewDate(1965, time.August, 1)},
		{Title: "Dune", Author: "Herbert"},
	}
	for _, book := range invalid {
		_, err := svc.CreateBook(ctx, book)
		assert.ErrorIs(t, err, storage.ErrValidation)
	}

	after, err := svc.GetAllBooks(ctx)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func testCreateRejectsUnrepresentableDate(t *testing.T, svc storage.BookService) {
	ctx := context.Background()

	created, err := svc.CreateBook(ctx, Dune())
	require.NoError(t, err)

	for _, year := range []int{0, -44, 10000} {
		book := Dune()
		book.PublishDate = models.NewDate(year, time.January, 1)

		_, err := svc.CreateBook(ctx, book)
		var validationErr *storage.ValidationError
		require.ErrorAs(t, err, &validationErr, "year %d", year)
		assert.Equal(t, []string{"publishDate"}, validationErr.Fields)

		book.ID = created.ID
		_, err = svc.UpdateBook(ctx, book)
		assert.ErrorIs(t, err, storage.ErrValidation, "year %d", year)
	}

	books, err := svc.GetAllBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, created, books[0])
}

func testBoundaryDatesRoundTrip(t *testing.T, svc storage.BookService) {
	ctx := context.Background()

	dates := []models.Date{
		models.NewDate(models.MinYear, time.January, 1),
		models.NewDate(1818, time.January, 1),
		models.NewDate(1899, time.December, 31),
		models.NewDate(2300, time.January, 1),
		models.NewDate(models.MaxYear, time.December, 31),
	}
	for _, date := range dates {
		book := Dune()
		book.PublishDate = date

		created, err := svc.CreateBook(ctx, book)
		require.NoError(t, err)

		got, found, err := svc.GetBookByID(ctx, created.ID)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, date, got.PublishDate, "stored %s", date)
	}
}

func testRoundTrip(t *testing.T, svc storage.BookService) {
	ctx := context.Background()

	created, err := svc.CreateBook(ctx, Dune())
	require.NoError(t, err)

	got, found, err := svc.GetBookByID(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, created, got)
}

func testUniqueIDs(t *testing.T, svc storage.BookService) {
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		book := Dune()
		book.Title = fmt.Sprintf("Dune %d", i)
		created, err := svc.CreateBook(ctx, book)
		require.NoError(t, err)
		assert.False(t, seen[created.ID], "duplicate id %s", created.ID)
		seen[created.ID] = true
	}
}

func testReadsAreIsolated(t *testing.T, svc storage.BookService) {
	ctx := context.Background()

	created, err := svc.CreateBook(ctx, Dune())
	require.NoError(t, err)

	// mutate everything handed out and make sure none of it sticks
	created.Title = "mutated via create result"

	got, _, err := svc.GetBookByID(ctx, created.ID)
	require.NoError(t, err)
	got.Title = "mutated via get"

	all, err := svc.GetAllBooks(ctx)
	require.NoError(t, err)
	for i := range all {
		all[i].Title = "mutated via list"
		all[i].ReadAlready = true
	}

	again, found, err := svc.GetBookByID(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Dune", again.Title)
	assert.False(t, again.ReadAlready)
}

func testGetMissingBook(t *testing.T, svc storage.BookService) {
	book, found, err := svc.GetBookByID(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, models.Book{}, book)
}

func testEmptyCatalog(t *testing.T, svc storage.BookService) {
	books, err := svc.GetAllBooks(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, books)
	assert.Empty(t, books)
}

func testUpdateUnknownID(t *testing.T, svc storage.BookService) {
	book := Dune()
	book.ID = "does-not-exist"

	_, err := svc.UpdateBook(context.Background(), book)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	var notFound *storage.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "does-not-exist", notFound.ID)
}

func testUpdateRejectsInvalidBook(t *testing.T, svc storage.BookService) {
	ctx := context.Background()

	created, err := svc.CreateBook(ctx, Dune())
	require.NoError(t, err)

	created.Title = ""
	_, err = svc.UpdateBook(ctx, created)
	assert.ErrorIs(t, err, storage.ErrValidation)

	got, _, err := svc.GetBookByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.Title)
}

func testUpdateReplacesFields(t *testing.T, svc storage.BookService) {
	ctx := context.Background()

	created, err := svc.CreateBook(ctx, Dune())
	require.NoError(t, err)

	replacement := models.Book{
		ID:          created.ID,
		Title:       "Dune Messiah",
		Author:      "Frank Herbert",
		PublishDate: models.NewDate(1969, time.October, 15),
		ReadAlready: true,
	}
	updated, err := svc.UpdateBook(ctx, replacement)
	require.NoError(t, err)
	assert.Equal(t, replacement, updated)

	got, found, err := svc.GetBookByID(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, replacement, got)
}

func testDeleteUnknownID(t *testing.T, svc storage.BookService) {
	err := svc.DeleteBookByID(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testDeleteRemovesBook(t *testing.T, svc storage.BookService) {
	ctx := context.Background()

	keep, err := svc.CreateBook(ctx, Dune())
	require.NoError(t, err)
	doomed := Dune()
	doomed.Title = "Children of Dune"
	doomed, err = svc.CreateBook(ctx, doomed)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteBookByID(ctx, doomed.ID))

	_, found, err := svc.GetBookByID(ctx, doomed.ID)
	require.NoError(t, err)
	assert.False(t, found)

	all, err := svc.GetAllBooks(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, keep.ID, all[0].ID)

	assert.ErrorIs(t, svc.DeleteBookByID(ctx, doomed.ID), storage.ErrNotFound)
}

func testDuneLifecycle(t *testing.T, svc storage.BookService) {
	ctx := context.Background()

	before, err := svc.GetAllBooks(ctx)
	require.NoError(t, err)

	created, err := svc.CreateBook(ctx, Dune())
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	after, err := svc.GetAllBooks(ctx)
	require.NoError(t, err)
	assert.Len(t, after, len(before)+1)

	created.ReadAlready = true
	_, err = svc.UpdateBook(ctx, created)
	require.NoError(t, err)

	got, found, err := svc.GetBookByID(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.ReadAlready)
	assert.Equal(t, "Dune", got.Title)
	assert.Equal(t, "Herbert", got.Author)
	assert.Equal(t, models.NewDate(1965, time.August, 1), got.PublishDate)

	require.NoError(t, svc.DeleteBookByID(ctx, created.ID))
	_, found, err = svc.GetBookByID(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, found)
}

func testConcurrentCreates(t *testing.T, svc storage.BookService) {
	ctx := context.Background()
	const workers = 8
	const perWorker = 5

	var wg sync.WaitGroup
	ids := make(chan string, workers*perWorker)
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				book := Dune()
				book.Title = fmt.Sprintf("Dune %d-%d", w, i)
				created, err := svc.CreateBook(ctx, book)
				if err != nil {
					errs <- err
					continue
				}
				ids <- created.ID
			}
		}(w)
	}
	wg.Wait()
	close(ids)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	seen := make(map[string]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, workers*perWorker)

	all, err := svc.GetAllBooks(ctx)
	require.NoError(t, err)
	assert.Len(t, all, workers*perWorker)
}
