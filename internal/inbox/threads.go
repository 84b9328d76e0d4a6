package inbox

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xaenox/hitome/internal/models"
)

func (s *Service) ListThreads(ctx context.Context, filter models.ThreadFilter) ([]*models.Thread, error) {
	threads, err := s.storage.ListThreads(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	return threads, nil
}

// GetThread returns the thread with its messages attached
func (s *Service) GetThread(ctx context.Context, storeID, id string) (*models.Thread, error) {
	thread, err := s.storage.GetThread(ctx, storeID, id)
	if err != nil {
		return nil, err
	}
	messages, err := s.storage.ListMessages(ctx, thread.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	thread.Messages = make([]models.Message, 0, len(messages))
	for _, m := range messages {
		thread.Messages = append(thread.Messages, *m)
	}
	return thread, nil
}

// Messages returns the thread's messages oldest first and marks it read
func (s *Service) Messages(ctx context.Context, storeID, threadID string) ([]*models.Message, error) {
	thread, err := s.storage.GetThread(ctx, storeID, threadID)
	if err != nil {
		return nil, err
	}
	messages, err := s.storage.ListMessages(ctx, thread.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	if !thread.IsRead {
		thread.IsRead = true
		if err := s.storage.UpdateThread(ctx, thread); err != nil {
			s.logger.Warn("Failed to mark thread read", zap.String("thread_id", thread.ID), zap.Error(err))
		}
	}
	return messages, nil
}

func (s *Service) UpdateStatus(ctx context.Context, storeID, threadID string, status models.ThreadStatus) (*models.Thread, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	thread, err := s.storage.GetThread(ctx, storeID, threadID)
	if err != nil {
		return nil, err
	}
	if thread.SetStatus(status, s.now()) {
		if err := s.storage.UpdateThread(ctx, thread); err != nil {
			return nil, fmt.Errorf("failed to update thread: %w", err)
		}
	}
	return thread, nil
}

// ManualReply delivers a staff reply on the thread's channel, stores it and
// completes the thread
func (s *Service) ManualReply(ctx context.Context, store *models.Store, threadID, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	thread, err := s.storage.GetThread(ctx, store.ID, threadID)
	if err != nil {
		return nil, err
	}

	switch thread.Channel {
	case models.ChannelLINE:
		if thread.UserID == "" {
			return nil, ErrNoRecipient
		}
		err = s.line.Push(ctx, store, thread.UserID, text)
	case models.ChannelGoogle:
		if thread.GoogleReviewID == "" {
			return nil, ErrNoRecipient
		}
		err = s.google.ReplyReview(ctx, store, thread.GoogleReviewID, text)
	default:
		return nil, ErrNoRecipient
	}
	if err != nil {
		s.logger.Error("Failed to deliver manual reply",
			zap.String("store_id", store.ID),
			zap.String("thread_id", thread.ID),
			zap.String("channel", string(thread.Channel)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	now := s.now()
	msg, err := s.addMessage(ctx, thread.ID, models.SenderStore, text, now)
	if err != nil {
		return nil, fmt.Errorf("failed to store reply: %w", err)
	}
	thread.IsRead = true
	thread.SetStatus(models.StatusCompleted, now)
	thread.UpdatedAt = now
	if err := s.storage.UpdateThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("failed to update thread: %w", err)
	}
	return msg, nil
}

// Reset deletes every thread of the store
func (s *Service) Reset(ctx context.Context, storeID string) (int64, error) {
	n, err := s.storage.DeleteThreads(ctx, storeID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset threads: %w", err)
	}
	s.logger.Info("Reset threads", zap.String("store_id", storeID), zap.Int64("deleted", n))
	return n, nil
}

func (s *Service) KPI(ctx context.Context, store *models.Store) (models.KPIMetrics, error) {
	threads, err := s.storage.ListThreads(ctx, models.ThreadFilter{StoreID: store.ID})
	if err != nil {
		return models.KPIMetrics{}, fmt.Errorf("failed to list threads: %w", err)
	}
	return CalculateMetrics(threads, store.AlertSegment, s.now()), nil
}
