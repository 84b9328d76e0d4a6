package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/hitome/internal/models"
)

const previewRunes = 120

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// TelegramNotifier posts review alerts to the chat configured on each store
type TelegramNotifier struct {
	api    botAPI
	logger *zap.Logger
}

func NewTelegramNotifier(token string, logger *zap.Logger) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	logger.Info("Authorized on Telegram account", zap.String("username", api.Self.UserName))
	return &TelegramNotifier{api: api, logger: logger}, nil
}

func (n *TelegramNotifier) Notify(ctx context.Context, store *models.Store, thread *models.Thread) error {
	if store.TelegramChatID == 0 {
		return nil
	}

	msg := tgbotapi.NewMessage(store.TelegramChatID, formatAlert(store, thread))
	msg.ParseMode = "MarkdownV2"
	if _, err := n.api.Send(msg); err != nil {
		n.logger.Error("Failed to send alert",
			zap.Error(err),
			zap.String("store_id", store.ID),
			zap.String("thread_id", thread.ID),
			zap.Int64("chat_id", store.TelegramChatID))
		return fmt.Errorf("failed to send telegram alert: %w", err)
	}
	return nil
}

// Listen answers /start and /help so owners can find the chat id to put in
// their store settings. It returns when ctx is done.
func (n *TelegramNotifier) Listen(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := n.api.GetUpdatesChan(u)
	defer n.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			n.handleCommand(update.Message)
		}
	}
}

func (n *TelegramNotifier) handleCommand(message *tgbotapi.Message) {
	var text string
	switch message.Command() {
	case "start", "help":
		text = fmt.Sprintf("ひとめ通知ボットです。\nこのチャットのIDは %d です。店舗設定の「Telegram チャットID」に入力すると、要確認のお問い合わせをここに通知します。", message.Chat.ID)
	default:
		text = "不明なコマンドです。/help を送ってください。"
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	if _, err := n.api.Send(msg); err != nil {
		n.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

func formatAlert(store *models.Store, thread *models.Thread) string {
	var b strings.Builder
	b.WriteString("⚠️ *" + escapeMarkdown("要確認: "+store.DisplayName()) + "*\n")
	b.WriteString(escapeMarkdown(fmt.Sprintf("チャネル: %s", thread.Channel)) + "\n")
	b.WriteString(escapeMarkdown("お客様: "+thread.UserName) + "\n")
	if thread.Channel == models.ChannelGoogle && thread.GoogleRating > 0 {
		b.WriteString(escapeMarkdown(fmt.Sprintf("評価: ★%d", thread.GoogleRating)) + "\n")
	}
	if thread.AISummary != "" {
		b.WriteString(escapeMarkdown("要約: "+thread.AISummary) + "\n")
	}
	b.WriteString("\n" + escapeMarkdown(truncate(thread.LastMessage, previewRunes)))
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// escapeMarkdown escapes the characters MarkdownV2 treats as markup
func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}
