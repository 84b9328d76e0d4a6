package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/hitome/internal/models"
)

type fakeBot struct {
	mu      sync.Mutex
	sent    []tgbotapi.MessageConfig
	err     error
	updates chan tgbotapi.Update
	stopped bool
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeBot) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeBot) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), f.sent...)
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `a\_b\*c\.d\!`, escapeMarkdown("a_b*c.d!"))
	assert.Equal(t, `\\\(x\)`, escapeMarkdown(`\(x)`))
}

func TestTelegramNotify(t *testing.T) {
	bot := &fakeBot{}
	n := &TelegramNotifier{api: bot, logger: zap.NewNop()}
	thread := &models.Thread{
		ID:           "t1",
		Channel:      models.ChannelGoogle,
		UserName:     "佐藤",
		GoogleRating: 2,
		AISummary:    "待ち時間への不満",
		LastMessage:  "待たされた.",
	}

	require.NoError(t, n.Notify(context.Background(), &models.Store{ID: "s"}, thread))
	assert.Empty(t, bot.messages(), "stores without a chat are skipped")

	store := &models.Store{ID: "s", Name: "ひとめ", TelegramChatID: 42}
	require.NoError(t, n.Notify(context.Background(), store, thread))
	sent := bot.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(42), sent[0].ChatID)
	assert.Equal(t, "MarkdownV2", sent[0].ParseMode)
	assert.Contains(t, sent[0].Text, "要確認: ひとめ")
	assert.Contains(t, sent[0].Text, "★2")
	assert.Contains(t, sent[0].Text, `待たされた\.`)

	bot.err = errors.New("forbidden")
	assert.Error(t, n.Notify(context.Background(), store, thread))
}

func TestTelegramListenAnswersStart(t *testing.T) {
	bot := &fakeBot{updates: make(chan tgbotapi.Update, 2)}
	n := &TelegramNotifier{api: bot, logger: zap.NewNop()}

	bot.updates <- tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     "/start",
		Chat:     &tgbotapi.Chat{ID: 99},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
	}}
	bot.updates <- tgbotapi.Update{Message: &tgbotapi.Message{Text: "hello", Chat: &tgbotapi.Chat{ID: 99}}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Listen(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(bot.messages()) == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	<-done

	sent := bot.messages()
	assert.Equal(t, int64(99), sent[0].ChatID)
	assert.Contains(t, sent[0].Text, "99")
	assert.True(t, bot.stopped)
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Notify(context.Background(), &models.Store{}, &models.Thread{}))
}
