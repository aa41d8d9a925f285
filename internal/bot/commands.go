package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"bookcatalog/internal/models"
)

const helpText = `Welcome to the Book Catalog Bot! 📚

Available commands:
/books - List all books
/book <id> - Show one book
/new_book - Add a book step by step
/add Title | Author | YYYY-MM-DD - Add a book in one message
/read <id> - Mark a book as read
/unread <id> - Mark a book as unread
/delete <id> - Delete a book
/cancel - Cancel the current conversation`

const (
	callbackRead   = "read"
	callbackUnread = "unread"
	callbackDelete = "delete"
)

// handleBooks lists the whole catalog
func (b *Bot) handleBooks(ctx context.Context) string {
	books, err := b.books.GetAllBooks(ctx)
	if err != nil {
		return b.describeError("list books", err)
	}

	if len(books) == 0 {
		return "The catalog is empty. Add a book with /new_book"
	}

	var text strings.Builder
	text.WriteString("Books:\n\n")
	for i, book := range books {
		fmt.Fprintf(&text, "%d. %s\n   id: %s\n", i+1, formatBook(book), book.ID)
	}
	return text.String()
}

// handleBook shows a single book with buttons for the common actions
func (b *Bot) handleBook(ctx context.Context, id string) (string, *tgbotapi.InlineKeyboardMarkup) {
	if id == "" {
		return "Usage: /book <id>", nil
	}

	book, found, err := b.books.GetBookByID(ctx, id)
	if err != nil {
		return b.describeError("get book", err), nil
	}
	if !found {
		return fmt.Sprintf("No book with id %s.", id), nil
	}

	toggle := tgbotapi.NewInlineKeyboardButtonData("✅ Mark read", callbackRead+":"+book.ID)
	if book.ReadAlready {
		toggle = tgbotapi.NewInlineKeyboardButtonData("↩️ Mark unread", callbackUnread+":"+book.ID)
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			toggle,
			tgbotapi.NewInlineKeyboardButtonData("🗑 Delete", callbackDelete+":"+book.ID),
		),
	)

	text := fmt.Sprintf("%s\nid: %s", formatBook(book), book.ID)
	return text, &keyboard
}

// handleAdd creates a book from "Title | Author | YYYY-MM-DD"
func (b *Bot) handleAdd(ctx context.Context, args string) string {
	book, err := parseBookLine(args)
	if err != nil {
		return fmt.Sprintf("%v\nUsage: /add Title | Author | YYYY-MM-DD", err)
	}
	return b.createBook(ctx, book)
}

// handleSetRead flips ReadAlready on an existing book
func (b *Bot) handleSetRead(ctx context.Context, id string, read bool) string {
	if id == "" {
		return "Usage: /read <id> or /unread <id>"
	}

	book, found, err := b.books.GetBookByID(ctx, id)
	if err != nil {
		return b.describeError("get book", err)
	}
	if !found {
		return fmt.Sprintf("No book with id %s.", id)
	}

	book.ReadAlready = read
	updated, err := b.books.UpdateBook(ctx, book)
	if err != nil {
		return b.describeError("update book", err)
	}
	return fmt.Sprintf("Updated: %s", formatBook(updated))
}

// handleDelete removes a book
func (b *Bot) handleDelete(ctx context.Context, id string) string {
	if id == "" {
		return "Usage: /delete <id>"
	}

	if err := b.books.DeleteBookByID(ctx, id); err != nil {
		return b.describeError("delete book", err)
	}
	return fmt.Sprintf("Deleted book %s.", id)
}

func (b *Bot) createBook(ctx context.Context, book models.Book) string {
	created, err := b.books.CreateBook(ctx, book)
	if err != nil {
		return b.describeError("create book", err)
	}
	return fmt.Sprintf("Book created successfully!\n%s\nid: %s", formatBook(created), created.ID)
}
