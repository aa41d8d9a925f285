package bot

import (
	"context"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bookcatalog/internal/models"
	"bookcatalog/internal/storage"
	"bookcatalog/internal/storage/memory"
	"bookcatalog/internal/storage/storagetest"
)

// Note: We can't easily mock tgbotapi.BotAPI, so tests exercise the reply
// logic with a nil API, which makes sending a no-op

func setupBot(t *testing.T) (*Bot, *memory.MemoryDB) {
	db := memory.NewMemoryDB()
	require.NoError(t, db.Initialize(context.Background()))
	return newBot(nil, db, []int64{123}, zap.NewNop()), db
}

func TestBot_NewBookConversation(t *testing.T) {
	bot, db := setupBot(t)
	ctx := context.Background()
	userID := int64(123)

	reply := bot.handleNewBookStart(userID)
	assert.Contains(t, reply, "title")

	state := bot.state(userID)
	require.NotNil(t, state)
	assert.Equal(t, "new_book", state.Command)
	assert.Equal(t, stepTitle, state.Step)

	reply = bot.handleConversation(ctx, userID, "  ", state)
	assert.Contains(t, reply, "must not be empty")
	assert.Equal(t, stepTitle, state.Step)

	bot.handleConversation(ctx, userID, "Dune", state)
	bot.handleConversation(ctx, userID, "Herbert", state)
	assert.Equal(t, stepPublishDate, state.Step)

	reply = bot.handleConversation(ctx, userID, "August 1965", state)
	assert.Contains(t, reply, "YYYY-MM-DD")
	assert.NotNil(t, bot.state(userID), "conversation continues after a bad date")

	reply = bot.handleConversation(ctx, userID, "1965-08-01", state)
	assert.Contains(t, reply, "Book created successfully")
	assert.Nil(t, bot.state(userID))

	books, err := db.GetAllBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "Dune", books[0].Title)
	assert.Equal(t, "Herbert", books[0].Author)
	assert.Equal(t, "1965-08-01", books[0].PublishDate.String())
}

func TestBot_HandleMessageCommandCancelsConversation(t *testing.T) {
	bot, _ := setupBot(t)
	ctx := context.Background()

	bot.handleNewBookStart(123)
	require.NotNil(t, bot.state(123))

	bot.handleMessage(ctx, &tgbotapi.Message{
		From:     &tgbotapi.User{ID: 123},
		Chat:     &tgbotapi.Chat{ID: 456},
		Text:     "/books",
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
	})

	assert.Nil(t, bot.state(123))
}

func TestBot_ConcurrentConversationMessages(t *testing.T) {
	bot, db := setupBot(t)
	ctx := context.Background()
	userID := int64(123)

	bot.handleNewBookStart(userID)

	message := func(text string) *tgbotapi.Message {
		return &tgbotapi.Message{
			From: &tgbotapi.User{ID: userID},
			Chat: &tgbotapi.Chat{ID: userID},
			Text: text,
		}
	}

	// Title and author arrive at once, as webhook updates are handled in parallel
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bot.HandleUpdate(ctx, tgbotapi.Update{Message: message("Dune")})
		}()
	}
	wg.Wait()

	state := bot.state(userID)
	require.NotNil(t, state)
	assert.Equal(t, stepPublishDate, state.Step)

	// Two dates racing create the book only once
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bot.HandleUpdate(ctx, tgbotapi.Update{Message: message("1965-08-01")})
		}()
	}
	wg.Wait()

	assert.Nil(t, bot.state(userID))
	books, err := db.GetAllBooks(ctx)
	require.NoError(t, err)
	assert.Len(t, books, 1)
}

func TestBot_AddAndList(t *testing.T) {
	bot, _ := setupBot(t)
	ctx := context.Background()

	assert.Contains(t, bot.handleBooks(ctx), "The catalog is empty")

	reply := bot.handleAdd(ctx, "Dune | Herbert | 1965-08-01")
	assert.Contains(t, reply, "Book created successfully")

	reply = bot.handleAdd(ctx, "Dune | Herbert")
	assert.Contains(t, reply, "Usage: /add")

	reply = bot.handleAdd(ctx, " | Herbert | 1965-08-01")
	assert.Contains(t, reply, "Missing or invalid fields: title")

	list := bot.handleBooks(ctx)
	assert.Contains(t, list, "1. Dune — Herbert (1965-08-01)")
}

func TestBot_ReadUnreadDelete(t *testing.T) {
	bot, db := setupBot(t)
	ctx := context.Background()

	created, err := db.CreateBook(ctx, storagetest.Dune())
	require.NoError(t, err)

	reply := bot.handleSetRead(ctx, created.ID, true)
	assert.Contains(t, reply, "✅")

	got, _, err := db.GetBookByID(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got.ReadAlready)

	text, markup := bot.handleBook(ctx, created.ID)
	assert.Contains(t, text, created.ID)
	require.NotNil(t, markup)
	assert.Equal(t, callbackUnread+":"+created.ID, *markup.InlineKeyboard[0][0].CallbackData)

	reply = bot.handleCallbackData(ctx, callbackUnread+":"+created.ID)
	assert.NotContains(t, reply, "✅")

	reply = bot.handleCallbackData(ctx, callbackDelete+":"+created.ID)
	assert.Contains(t, reply, "Deleted")

	_, found, err := db.GetBookByID(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, found)

	assert.Contains(t, bot.handleDelete(ctx, created.ID), "No book with id")
	assert.Contains(t, bot.handleSetRead(ctx, "missing", true), "No book with id missing")
	assert.Equal(t, "Unknown action.", bot.handleCallbackData(ctx, "bogus"))
}

// brokenService fails every call as an unreachable backend would
type brokenService struct {
	storage.BookService
}

func (brokenService) GetAllBooks(ctx context.Context) ([]models.Book, error) {
	return nil, &storage.UpstreamError{Op: "get books", StatusCode: 503}
}

func TestBot_UpstreamErrorsAreNotLeaked(t *testing.T) {
	bot := newBot(nil, brokenService{}, []int64{123}, zap.NewNop())

	reply := bot.handleBooks(context.Background())
	assert.True(t, strings.HasPrefix(reply, "The catalog is unavailable"))
	assert.NotContains(t, reply, "503")
}

func TestParseBookLine(t *testing.T) {
	book, err := parseBookLine(" Dune |Herbert | 1965-08-01 ")
	require.NoError(t, err)
	assert.Equal(t, models.Book{
		Title:       "Dune",
		Author:      "Herbert",
		PublishDate: storagetest.Dune().PublishDate,
	}, book)

	_, err = parseBookLine("Dune | Herbert | 01.08.1965")
	assert.Error(t, err)
}
