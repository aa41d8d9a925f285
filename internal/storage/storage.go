package storage

import (
	"context"

	"bookcatalog/internal/models"
)

// BookService defines the catalog operations every backend provides
type BookService interface {
	// CreateBook stores a copy of book under a freshly assigned ID.
	// Any ID already set on book is ignored.
	CreateBook(ctx context.Context, book models.Book) (models.Book, error)

	// GetBookByID returns false when no book has that ID; a missing ID is not an error.
	GetBookByID(ctx context.Context, id string) (models.Book, bool, error)

	// GetAllBooks returns a snapshot of every stored book
	GetAllBooks(ctx context.Context) ([]models.Book, error)

	// UpdateBook replaces every field of the stored book with the same ID.
	// Returns a *NotFoundError if there is none.
	UpdateBook(ctx context.Context, book models.Book) (models.Book, error)

	// DeleteBookByID returns a *NotFoundError if there is no such book
	DeleteBookByID(ctx context.Context, id string) error
}

// Storage is a BookService with a lifecycle
type Storage interface {
	BookService

	Initialize(ctx context.Context) error
	Close() error
}

// ValidateBook checks the fields required before a book may be persisted
func ValidateBook(book models.Book) error {
	if invalid := book.InvalidFields(); len(invalid) > 0 {
		return &ValidationError{Fields: invalid}
	}
	return nil
}
