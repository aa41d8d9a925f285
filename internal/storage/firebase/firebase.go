// Package firebase implements storage.Storage on top of the Firebase Realtime
// Database REST API. Every record lives at {baseURL}/{collection}/{id}.json.
//
// Each operation is a direct translation into HTTP requests: there are no
// retries, no caching and no ordering between concurrent callers. The last
// write the database sees wins. UpdateBook and DeleteBookByID send two
// requests each: a shallow existence check, then the write.
package firebase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"bookcatalog/internal/models"
	"bookcatalog/internal/storage"
)

const (
	// DefaultCollection is the node books are stored under
	DefaultCollection = "Book"

	// DefaultTimeout bounds every request made by the store
	DefaultTimeout = 10 * time.Second

	// maxResponseBytes caps how much of a response body is read
	maxResponseBytes = 16 << 20
)

// Firebase keys must not contain any of these
const forbiddenKeyChars = ".$#[]/"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// UpdateMode selects the HTTP verb UpdateBook writes with
type UpdateMode int

const (
	// UpdateReplace writes with PUT: the stored record becomes exactly the
	// book's fields, and anything else stored at the node is dropped.
	UpdateReplace UpdateMode = iota

	// UpdateMerge writes with PATCH: the book's fields overwrite their stored
	// counterparts, and other children of the node are kept.
	UpdateMerge
)

func (m UpdateMode) method() string {
	if m == UpdateMerge {
		return http.MethodPatch
	}
	return http.MethodPut
}

func (m UpdateMode) String() string {
	if m == UpdateMerge {
		return "patch"
	}
	return "put"
}

// ParseUpdateMode accepts "put" or "patch"
func ParseUpdateMode(s string) (UpdateMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "put":
		return UpdateReplace, nil
	case "patch":
		return UpdateMerge, nil
	default:
		return UpdateReplace, fmt.Errorf("unknown update mode %q (expected put or patch)", s)
	}
}

// Store talks to one collection of a Realtime Database.
// It is safe for concurrent use.
type Store struct {
	baseURL    *url.URL
	collection string
	auth       string
	timeout    time.Duration
	updateMode UpdateMode
	client     *http.Client
	logger     *zap.Logger
}

// Option configures a Store
type Option func(*Store)

// WithCollection sets the node books are stored under
func WithCollection(name string) Option {
	return func(s *Store) { s.collection = name }
}

// WithAuth appends auth=<token> to every request
func WithAuth(token string) Option {
	return func(s *Store) { s.auth = token }
}

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(s *Store) { s.timeout = timeout }
}

// WithUpdateMode selects PUT (full replace) or PATCH (field merge) for updates
func WithUpdateMode(mode UpdateMode) Option {
	return func(s *Store) { s.updateMode = mode }
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(s *Store) { s.client = client }
}

// WithLogger sets the logger used for request tracing
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a store for the database at baseURL.
// A missing or malformed setting is reported as a *storage.ConfigurationError
// before any request is made.
func New(baseURL string, opts ...Option) (*Store, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, &storage.ConfigurationError{Key: "firebase base url", Reason: "is required"}
	}

	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &storage.ConfigurationError{
			Key:    "firebase base url",
			Reason: fmt.Sprintf("must be an absolute http(s) URL, got %q", baseURL),
		}
	}
	u.RawQuery = ""
	u.Fragment = ""

	s := &Store{
		baseURL:    u,
		collection: DefaultCollection,
		timeout:    DefaultTimeout,
		updateMode: UpdateReplace,
		client:     &http.Client{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if !validKey(s.collection) {
		return nil, &storage.ConfigurationError{
			Key:    "firebase collection",
			Reason: fmt.Sprintf("%q is not a valid key", s.collection),
		}
	}
	if s.timeout <= 0 {
		return nil, &storage.ConfigurationError{Key: "firebase timeout", Reason: "must be positive"}
	}

	return s, nil
}

// record is the JSON stored for each book; the ID is the node key, not a field
type record struct {
	Title       string      `json:"title"`
	Author      string      `json:"author"`
	PublishDate models.Date `json:"publishDate"`
	ReadAlready bool        `json:"readAlready"`
}

func recordOf(book models.Book) record {
	return record{
		Title:       book.Title,
		Author:      book.Author,
		PublishDate: book.PublishDate,
		ReadAlready: book.ReadAlready,
	}
}

func (r record) book(id string) models.Book {
	return models.Book{
		ID:          id,
		Title:       r.Title,
		Author:      r.Author,
		PublishDate: r.PublishDate,
		ReadAlready: r.ReadAlready,
	}
}

// Initialize is a no-op: the database has no schema
func (s *Store) Initialize(ctx context.Context) error {
	return nil
}

// CreateBook pushes the book and uses the generated key as its ID
func (s *Store) CreateBook(ctx context.Context, book models.Book) (models.Book, error) {
	const op = "create book"

	if err := storage.ValidateBook(book); err != nil {
		return models.Book{}, err
	}

	body, err := json.Marshal(recordOf(book))
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to encode book: %w", err)
	}

	data, err := s.do(ctx, op, http.MethodPost, s.collectionURL(nil), body)
	if err != nil {
		return models.Book{}, err
	}

	var pushed struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &pushed); err != nil {
		return models.Book{}, &storage.UpstreamError{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if pushed.Name == "" {
		return models.Book{}, &storage.UpstreamError{Op: op, Body: string(data), Err: fmt.Errorf("response has no generated key")}
	}

	created := book.Clone()
	created.ID = pushed.Name
	return created, nil
}

// GetBookByID fetches a single record. A null node means the book does not exist.
func (s *Store) GetBookByID(ctx context.Context, id string) (models.Book, bool, error) {
	const op = "get book"

	if !validKey(id) {
		return models.Book{}, false, nil
	}

	data, err := s.do(ctx, op, http.MethodGet, s.recordURL(id, nil), nil)
	if err != nil {
		return models.Book{}, false, err
	}
	if isNull(data) {
		return models.Book{}, false, nil
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.Book{}, false, &storage.UpstreamError{Op: op, Err: fmt.Errorf("failed to decode book %s: %w", id, err)}
	}
	return rec.book(id), true, nil
}

// GetAllBooks fetches the whole collection, keeping the key order of the response
func (s *Store) GetAllBooks(ctx context.Context) ([]models.Book, error) {
	const op = "get books"

	data, err := s.do(ctx, op, http.MethodGet, s.collectionURL(nil), nil)
	if err != nil {
		return nil, err
	}

	books, err := decodeCollection(data)
	if err != nil {
		return nil, &storage.UpstreamError{Op: op, Err: err}
	}
	return books, nil
}

// UpdateBook overwrites an existing record using the configured UpdateMode
func (s *Store) UpdateBook(ctx context.Context, book models.Book) (models.Book, error) {
	const op = "update book"

	if err := storage.ValidateBook(book); err != nil {
		return models.Book{}, err
	}

	exists, err := s.exists(ctx, op, book.ID)
	if err != nil {
		return models.Book{}, err
	}
	if !exists {
		return models.Book{}, &storage.NotFoundError{ID: book.ID}
	}

	body, err := json.Marshal(recordOf(book))
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to encode book: %w", err)
	}

	if _, err := s.do(ctx, op, s.updateMode.method(), s.recordURL(book.ID, nil), body); err != nil {
		return models.Book{}, err
	}
	return book.Clone(), nil
}

// DeleteBookByID removes an existing record
func (s *Store) DeleteBookByID(ctx context.Context, id string) error {
	const op = "delete book"

	exists, err := s.exists(ctx, op, id)
	if err != nil {
		return err
	}
	if !exists {
		return &storage.NotFoundError{ID: id}
	}

	_, err = s.do(ctx, op, http.MethodDelete, s.recordURL(id, nil), nil)
	return err
}

// Close releases idle connections
func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// exists asks for a shallow copy of the node so no record body is transferred
func (s *Store) exists(ctx context.Context, op, id string) (bool, error) {
	if !validKey(id) {
		return false, nil
	}

	data, err := s.do(ctx, op, http.MethodGet, s.recordURL(id, url.Values{"shallow": {"true"}}), nil)
	if err != nil {
		return false, err
	}
	return !isNull(data), nil
}

func (s *Store) do(ctx context.Context, op, method, endpoint string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, &storage.UpstreamError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("Firebase request failed",
			zap.String("op", op),
			zap.String("method", method),
			zap.String("path", req.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, &storage.UpstreamError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &storage.UpstreamError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	s.logger.Debug("Firebase request",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &storage.UpstreamError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}
	return data, nil
}

func (s *Store) collectionURL(query url.Values) string {
	return s.endpoint(query, s.collection+".json")
}

func (s *Store) recordURL(id string, query url.Values) string {
	return s.endpoint(query, s.collection, id+".json")
}

func (s *Store) endpoint(query url.Values, elem ...string) string {
	u := s.baseURL.JoinPath(elem...)
	if s.auth != "" {
		if query == nil {
			query = url.Values{}
		}
		query.Set("auth", s.auth)
	}
	u.RawQuery = query.Encode()
	return u.String()
}

// decodeCollection reads {"<key>": {...}, ...} in document order.
// A null document is an empty collection.
func decodeCollection(data []byte) ([]models.Book, error) {
	books := make([]models.Book, 0)
	if isNull(data) {
		return books, nil
	}

	iter := json.BorrowIterator(data)
	defer json.ReturnIterator(iter)

	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return nil, fmt.Errorf("failed to decode books: expected a JSON object")
	}

	iter.ReadMapCB(func(it *jsoniter.Iterator, key string) bool {
		if it.WhatIsNext() == jsoniter.NilValue {
			it.Skip()
			return true
		}
		var rec record
		it.ReadVal(&rec)
		if it.Error != nil {
			return false
		}
		books = append(books, rec.book(key))
		return true
	})
	if iter.Error != nil && iter.Error != io.EOF {
		return nil, fmt.Errorf("failed to decode books: %w", iter.Error)
	}

	return books, nil
}

func isNull(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func validKey(key string) bool {
	return key != "" && !strings.ContainsAny(key, forbiddenKeyChars)
}
