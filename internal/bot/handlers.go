package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// handleMessage processes a single message
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	// Recover from panics to prevent bot crashes
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleMessage", zap.Any("panic", r))
			b.reply(message.Chat.ID, "An error occurred while processing your request. Please try again.")
		}
	}()

	chatID := message.Chat.ID

	if !message.IsCommand() {
		if state := b.state(message.From.ID); state != nil {
			b.reply(chatID, b.handleConversation(ctx, message.From.ID, message.Text, state))
			return
		}
		b.reply(chatID, "Send /help to see available commands.")
		return
	}

	// Any command cancels an ongoing conversation
	b.clearState(message.From.ID)

	args := strings.TrimSpace(message.CommandArguments())

	switch message.Command() {
	case "start", "help":
		b.reply(chatID, helpText)
	case "books":
		b.reply(chatID, b.handleBooks(ctx))
	case "book":
		text, markup := b.handleBook(ctx, args)
		b.replyWithMarkup(chatID, text, markup)
	case "new_book":
		b.reply(chatID, b.handleNewBookStart(message.From.ID))
	case "add":
		b.reply(chatID, b.handleAdd(ctx, args))
	case "read":
		b.reply(chatID, b.handleSetRead(ctx, args, true))
	case "unread":
		b.reply(chatID, b.handleSetRead(ctx, args, false))
	case "delete":
		b.reply(chatID, b.handleDelete(ctx, args))
	case "cancel":
		b.reply(chatID, "Cancelled.")
	default:
		b.reply(chatID, "Unknown command. Use /help to see available commands.")
	}
}

// handleCallbackQuery processes inline keyboard button clicks
func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleCallbackQuery", zap.Any("panic", r))
		}
	}()

	// Answer the callback query to remove loading state
	if b.api != nil {
		if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
			b.logger.Warn("Failed to answer callback query", zap.Error(err))
		}
	}

	if query.Message == nil {
		return
	}
	b.reply(query.Message.Chat.ID, b.handleCallbackData(ctx, query.Data))
}

func (b *Bot) handleCallbackData(ctx context.Context, data string) string {
	action, id, ok := strings.Cut(data, ":")
	if !ok || id == "" {
		return "Unknown action."
	}

	switch action {
	case callbackRead:
		return b.handleSetRead(ctx, id, true)
	case callbackUnread:
		return b.handleSetRead(ctx, id, false)
	case callbackDelete:
		return b.handleDelete(ctx, id)
	default:
		return "Unknown action."
	}
}

func (b *Bot) state(userID int64) *ConversationState {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	return b.states[userID]
}

func (b *Bot) setState(userID int64, state *ConversationState) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	b.states[userID] = state
}

func (b *Bot) clearState(userID int64) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	delete(b.states, userID)
}
