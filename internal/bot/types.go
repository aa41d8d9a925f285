package bot

import (
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"bookcatalog/internal/storage"
)

// Bot represents the Telegram bot wrapper
type Bot struct {
	api          *tgbotapi.BotAPI
	books        storage.BookService
	allowedUsers map[int64]bool
	states       map[int64]*ConversationState
	statesMu     sync.Mutex
	logger       *zap.Logger
}

// ConversationState tracks the state of multi-step commands.
// mu serializes steps when updates for one user arrive concurrently.
type ConversationState struct {
	mu      sync.Mutex
	Command string
	Step    int
	Data    map[string]string
}
