package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"bookcatalog/internal/models"
	"bookcatalog/internal/storage"
)

// MemoryDB is an in-memory implementation of storage.Storage.
// Books are kept in insertion order and live as long as the process.
type MemoryDB struct {
	mu          sync.RWMutex
	books       []models.Book
	seed        []models.Book
	initialized bool
}

// NewMemoryDB creates an empty store that adds seed on Initialize
func NewMemoryDB(seed ...models.Book) *MemoryDB {
	return &MemoryDB{
		books: make([]models.Book, 0, len(seed)),
		seed:  seed,
	}
}

// Initialize loads the seed books, each under a fresh ID. Only the first call has an effect.
func (m *MemoryDB) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}
	for _, book := range m.seed {
		stored := book.Clone()
		stored.ID = uuid.NewString()
		m.books = append(m.books, stored)
	}
	m.initialized = true

	return nil
}

// CreateBook stores a copy of book under a new random ID
func (m *MemoryDB) CreateBook(ctx context.Context, book models.Book) (models.Book, error) {
	if err := storage.ValidateBook(book); err != nil {
		return models.Book{}, err
	}

	stored := book.Clone()
	stored.ID = uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.books = append(m.books, stored)
	return stored.Clone(), nil
}

// GetBookByID returns a copy of the book with the given ID
func (m *MemoryDB) GetBookByID(ctx context.Context, id string) (models.Book, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if i := m.indexOf(id); i >= 0 {
		return m.books[i].Clone(), true, nil
	}
	return models.Book{}, false, nil
}

// GetAllBooks returns copies of all books in insertion order
func (m *MemoryDB) GetAllBooks(ctx context.Context) ([]models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	books := make([]models.Book, len(m.books))
	for i, book := range m.books {
		books[i] = book.Clone()
	}
	return books, nil
}

// UpdateBook replaces the stored book in place, keeping its position
func (m *MemoryDB) UpdateBook(ctx context.Context, book models.Book) (models.Book, error) {
	if err := storage.ValidateBook(book); err != nil {
		return models.Book{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(book.ID)
	if i < 0 {
		return models.Book{}, &storage.NotFoundError{ID: book.ID}
	}

	m.books[i] = book.Clone()
	return m.books[i].Clone(), nil
}

// DeleteBookByID removes the book with the given ID
func (m *MemoryDB) DeleteBookByID(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return &storage.NotFoundError{ID: id}
	}

	m.books = append(m.books[:i], m.books[i+1:]...)
	return nil
}

// Close does nothing for the in-memory store
func (m *MemoryDB) Close() error {
	return nil
}

// indexOf must be called with m.mu held
func (m *MemoryDB) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range m.books {
		if m.books[i].ID == id {
			return i
		}
	}
	return -1
}
