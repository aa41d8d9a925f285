package bot

import (
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"bookcatalog/internal/models"
	"bookcatalog/internal/storage"
)

// reply sends a plain text message
func (b *Bot) reply(chatID int64, text string) {
	b.replyWithMarkup(chatID, text, nil)
}

// replyWithMarkup sends a message with an optional inline keyboard
func (b *Bot) replyWithMarkup(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	if b.api == nil {
		return // For testing
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}

// formatBook renders "Title — Author (YYYY-MM-DD) ✅"
func formatBook(book models.Book) string {
	text := fmt.Sprintf("%s — %s (%s)", book.Title, book.Author, book.PublishDate)
	if book.ReadAlready {
		text += " ✅"
	}
	return text
}

// parseBookLine parses "Title | Author | YYYY-MM-DD"
func parseBookLine(line string) (models.Book, error) {
	parts := strings.Split(line, "|")
	if len(parts) != 3 {
		return models.Book{}, fmt.Errorf("expected 3 fields separated by |, got %d", len(parts))
	}

	date, err := models.ParseDate(parts[2])
	if err != nil {
		return models.Book{}, err
	}

	return models.Book{
		Title:       strings.TrimSpace(parts[0]),
		Author:      strings.TrimSpace(parts[1]),
		PublishDate: date,
	}, nil
}

// describeError turns a store error into a message for the user
func (b *Bot) describeError(op string, err error) string {
	var validationErr *storage.ValidationError
	var notFoundErr *storage.NotFoundError

	switch {
	case errors.As(err, &validationErr):
		return fmt.Sprintf("Missing or invalid fields: %s", strings.Join(validationErr.Fields, ", "))
	case errors.As(err, &notFoundErr):
		return fmt.Sprintf("No book with id %s.", notFoundErr.ID)
	default:
		b.logger.Error("Book operation failed", zap.String("op", op), zap.Error(err))
		return "The catalog is unavailable right now. Please try again later."
	}
}
