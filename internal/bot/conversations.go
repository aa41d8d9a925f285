package bot

import (
	"context"
	"strings"

	"bookcatalog/internal/models"
)

// new_book conversation steps
const (
	stepTitle = iota + 1
	stepAuthor
	stepPublishDate
	stepDone
)

// handleNewBookStart initiates the new book conversation
func (b *Bot) handleNewBookStart(userID int64) string {
	b.setState(userID, &ConversationState{
		Command: "new_book",
		Step:    stepTitle,
		Data:    make(map[string]string),
	})
	return "Please enter the book title:"
}

// handleConversation advances a multi-step command and returns the reply
func (b *Bot) handleConversation(ctx context.Context, userID int64, text string, state *ConversationState) string {
	state.mu.Lock()
	defer state.mu.Unlock()

	switch state.Command {
	case "new_book":
		return b.handleNewBookConversation(ctx, userID, text, state)
	default:
		b.clearState(userID)
		return "Send /help to see available commands."
	}
}

// handleNewBookConversation collects title, author and publish date, then creates the book
func (b *Bot) handleNewBookConversation(ctx context.Context, userID int64, text string, state *ConversationState) string {
	text = strings.TrimSpace(text)

	switch state.Step {
	case stepTitle:
		if text == "" {
			return "The title must not be empty. Please enter the book title:"
		}
		state.Data["title"] = text
		state.Step = stepAuthor
		return "Please enter the author:"

	case stepAuthor:
		if text == "" {
			return "The author must not be empty. Please enter the author:"
		}
		state.Data["author"] = text
		state.Step = stepPublishDate
		return "Please enter the publish date (YYYY-MM-DD):"

	case stepPublishDate:
		date, err := models.ParseDate(text)
		if err != nil {
			return "Please enter the date as YYYY-MM-DD:"
		}

		state.Step = stepDone
		b.clearState(userID)
		return b.createBook(ctx, models.Book{
			Title:       state.Data["title"],
			Author:      state.Data["author"],
			PublishDate: date,
		})
	}

	b.clearState(userID)
	return "Send /help to see available commands."
}
