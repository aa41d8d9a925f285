package ch

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"

	"bookcatalog/internal/models"
	"bookcatalog/internal/storage"
)

type ClickHouseDB struct {
	conn clickhouse.Conn
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(host string, port int, database, user, password string, useTLS bool) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(Options(host, port, database, user, password, useTLS))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Options builds native protocol connection options
func Options(host string, port int, database, user, password string, useTLS bool) *clickhouse.Options {
	options := &clickhouse.Options{
		Addr:     []string{fmt.Sprintf("%s:%d", host, port)},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
		DialTimeout: 10 * time.Second,
	}

	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}
	return options
}

// Initialize is a no-op - tables are managed via migrations
func (db *ClickHouseDB) Initialize(ctx context.Context) error {
	return nil
}

// CreateBook inserts a copy of the book under a new random ID
func (db *ClickHouseDB) CreateBook(ctx context.Context, book models.Book) (models.Book, error) {
	if err := storage.ValidateBook(book); err != nil {
		return models.Book{}, err
	}

	created := book.Clone()
	created.ID = uuid.NewString()

	err := db.conn.Exec(ctx, `INSERT INTO books (id, title, author, publish_date, read_already, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		created.ID, created.Title, created.Author, created.PublishDate.String(), created.ReadAlready, time.Now().UTC())
	if err != nil {
		return models.Book{}, &storage.UpstreamError{Op: "create book", Err: err}
	}
	return created, nil
}

// GetBookByID returns the book with the given ID
func (db *ClickHouseDB) GetBookByID(ctx context.Context, id string) (models.Book, bool, error) {
	rows, err := db.conn.Query(ctx, `SELECT id, title, author, publish_date, read_already FROM books WHERE id = ? LIMIT 1`, id)
	if err != nil {
		return models.Book{}, false, &storage.UpstreamError{Op: "get book", Err: err}
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return models.Book{}, false, &storage.UpstreamError{Op: "get book", Err: err}
		}
		return models.Book{}, false, nil
	}

	book, err := scanBook(rows)
	if err != nil {
		return models.Book{}, false, &storage.UpstreamError{Op: "get book", Err: err}
	}
	return book, true, nil
}

// GetAllBooks returns every book in creation order
func (db *ClickHouseDB) GetAllBooks(ctx context.Context) ([]models.Book, error) {
	rows, err := db.conn.Query(ctx, `SELECT id, title, author, publish_date, read_already FROM books ORDER BY created_at, id`)
	if err != nil {
		return nil, &storage.UpstreamError{Op: "get books", Err: err}
	}
	defer rows.Close()

	books := make([]models.Book, 0)
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, &storage.UpstreamError{Op: "get books", Err: err}
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.UpstreamError{Op: "get books", Err: err}
	}
	return books, nil
}

// UpdateBook rewrites every column but id and created_at.
// The mutation runs synchronously so the change is visible once it returns.
func (db *ClickHouseDB) UpdateBook(ctx context.Context, book models.Book) (models.Book, error) {
	if err := storage.ValidateBook(book); err != nil {
		return models.Book{}, err
	}

	exists, err := db.exists(ctx, "update book", book.ID)
	if err != nil {
		return models.Book{}, err
	}
	if !exists {
		return models.Book{}, &storage.NotFoundError{ID: book.ID}
	}

	err = db.conn.Exec(syncMutations(ctx), `ALTER TABLE books
		UPDATE title = ?, author = ?, publish_date = ?, read_already = ?
		WHERE id = ?`,
		book.Title, book.Author, book.PublishDate.String(), book.ReadAlready, book.ID)
	if err != nil {
		return models.Book{}, &storage.UpstreamError{Op: "update book", Err: err}
	}
	return book.Clone(), nil
}

// DeleteBookByID removes the book with the given ID
func (db *ClickHouseDB) DeleteBookByID(ctx context.Context, id string) error {
	exists, err := db.exists(ctx, "delete book", id)
	if err != nil {
		return err
	}
	if !exists {
		return &storage.NotFoundError{ID: id}
	}

	if err := db.conn.Exec(syncMutations(ctx), `ALTER TABLE books DELETE WHERE id = ?`, id); err != nil {
		return &storage.UpstreamError{Op: "delete book", Err: err}
	}
	return nil
}

// Close closes the database connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

func (db *ClickHouseDB) exists(ctx context.Context, op, id string) (bool, error) {
	if id == "" {
		return false, nil
	}

	var count uint64
	if err := db.conn.QueryRow(ctx, `SELECT count() FROM books WHERE id = ?`, id).Scan(&count); err != nil {
		return false, &storage.UpstreamError{Op: op, Err: err}
	}
	return count > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(rows rowScanner) (models.Book, error) {
	var (
		book        models.Book
		publishDate string
	)
	if err := rows.Scan(&book.ID, &book.Title, &book.Author, &publishDate, &book.ReadAlready); err != nil {
		return models.Book{}, fmt.Errorf("failed to scan book: %w", err)
	}

	date, err := models.ParseDate(publishDate)
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to scan book %s: %w", book.ID, err)
	}
	book.PublishDate = date
	return book, nil
}

func syncMutations(ctx context.Context) context.Context {
	return clickhouse.Context(ctx, clickhouse.WithSettings(clickhouse.Settings{
		"mutations_sync": 2,
	}))
}
