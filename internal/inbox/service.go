// Package inbox turns inbound LINE messages and Google reviews into
// classified threads and serves them to store staff.
package inbox

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/hitome/internal/classifier"
	"github.com/xaenox/hitome/internal/dedupe"
	"github.com/xaenox/hitome/internal/models"
	"github.com/xaenox/hitome/internal/notify"
	"github.com/xaenox/hitome/internal/storage"
)

var (
	ErrInvalidStatus = errors.New("invalid status")
	ErrEmptyMessage  = errors.New("message is required")
	ErrNoRecipient   = errors.New("thread has no reply target")
	ErrDelivery      = errors.New("failed to deliver reply")
)

// LineMessenger is the subset of the LINE client the inbox uses
type LineMessenger interface {
	Reply(ctx context.Context, store *models.Store, replyToken, text string) error
	Push(ctx context.Context, store *models.Store, to, text string) error
	DisplayName(ctx context.Context, store *models.Store, userID string) string
}

// ReviewReplier posts a reply under a Google review
type ReviewReplier interface {
	ReplyReview(ctx context.Context, store *models.Store, reviewName, text string) error
}

type Service struct {
	storage    storage.Storage
	classifier classifier.Classifier
	line       LineMessenger
	google     ReviewReplier
	notifier   notify.Notifier
	deduper    dedupe.Deduper
	logger     *zap.Logger
	now        func() time.Time
}

func NewService(
	store storage.Storage,
	clf classifier.Classifier,
	line LineMessenger,
	google ReviewReplier,
	notifier notify.Notifier,
	deduper dedupe.Deduper,
	logger *zap.Logger,
) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if deduper == nil {
		deduper = dedupe.NewMemoryDeduper(dedupe.DefaultTTL)
	}
	return &Service{
		storage:    store,
		classifier: clf,
		line:       line,
		google:     google,
		notifier:   notifier,
		deduper:    deduper,
		logger:     logger,
		now:        time.Now,
	}
}

// dangerWords returns the global and store specific words kept in storage.
// The built-in list is always applied by the classifier.
func (s *Service) dangerWords(ctx context.Context, storeID string) []string {
	words, err := s.storage.ListDangerWords(ctx, storeID)
	if err != nil {
		s.logger.Warn("Failed to load danger words, using defaults",
			zap.String("store_id", storeID),
			zap.Error(err))
		return nil
	}
	out := make([]string, 0, len(words))
	for _, w := range words {
		out = append(out, w.Word)
	}
	return out
}

// seen reports duplicates. Dedupe failures let the delivery through.
func (s *Service) seen(ctx context.Context, key string) bool {
	dup, err := s.deduper.Seen(ctx, key)
	if err != nil {
		s.logger.Warn("Dedupe check failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return dup
}

func (s *Service) addMessage(ctx context.Context, threadID string, sender models.Sender, content string, at time.Time) (*models.Message, error) {
	msg := &models.Message{
		ID:        models.NewID("msg"),
		ThreadID:  threadID,
		Sender:    sender,
		Content:   content,
		CreatedAt: at,
	}
	if err := s.storage.AddMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// alert notifies staff when a thread needs manual review
func (s *Service) alert(ctx context.Context, store *models.Store, thread *models.Thread) {
	err := s.notifier.Notify(ctx, store, thread)
	recordAlert(thread.Channel, err)
	if err != nil {
		s.logger.Warn("Failed to send review alert",
			zap.String("store_id", store.ID),
			zap.String("thread_id", thread.ID),
			zap.Error(err))
	}
}

func applyAnalysis(t *models.Thread, a classifier.Analysis) {
	t.AISummary = a.Summary
	t.AIIntent = a.Intent
	t.AIResponse = a.SuggestedReply
}
