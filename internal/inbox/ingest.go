package inbox

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xaenox/hitome/internal/classifier"
	"github.com/xaenox/hitome/internal/google"
	"github.com/xaenox/hitome/internal/line"
	"github.com/xaenox/hitome/internal/models"
	"github.com/xaenox/hitome/internal/storage"
)

// DefaultReviewerName is used when a review carries no reviewer name
const DefaultReviewerName = "Googleユーザー"

// IngestLineEvent stores one webhook event on the sender's latest thread.
// Duplicates and non-text events return a nil thread.
func (s *Service) IngestLineEvent(ctx context.Context, store *models.Store, ev line.Event) (*models.Thread, error) {
	if s.seen(ctx, "line:"+ev.ID) {
		s.logger.Info("Skipping duplicate LINE event",
			zap.String("store_id", store.ID),
			zap.String("event_id", ev.ID),
			zap.Bool("redelivery", ev.Redelivery))
		recordInbound(models.ChannelLINE, "duplicate")
		return nil, nil
	}
	if !ev.IsText {
		s.logger.Debug("Ignoring LINE event",
			zap.String("store_id", store.ID),
			zap.String("type", ev.Type))
		recordInbound(models.ChannelLINE, "ignored")
		return nil, nil
	}
	// group members who have not added the bot arrive without a user id
	if ev.UserID == "" {
		s.logger.Info("Ignoring LINE message without sender",
			zap.String("store_id", store.ID),
			zap.String("event_id", ev.ID))
		recordInbound(models.ChannelLINE, "ignored")
		return nil, nil
	}

	analysis := s.classifier.Analyze(ctx, classifier.InputFor(store, models.ChannelLINE, ev.Text, 0, s.dangerWords(ctx, store.ID)))
	now := s.now()

	thread, err := s.storage.FindLatestThread(ctx, store.ID, models.ChannelLINE, ev.UserID)
	created := false
	prevStatus := models.ThreadStatus("")
	switch {
	case errors.Is(err, storage.ErrNotFound):
		created = true
		thread = &models.Thread{
			ID:            models.NewID("thread"),
			StoreID:       store.ID,
			Channel:       models.ChannelLINE,
			UserName:      s.line.DisplayName(ctx, store, ev.UserID),
			UserID:        ev.UserID,
			Status:        analysis.Status,
			Tags:          analysis.Tags,
			LastMessage:   ev.Text,
			HasDangerWord: analysis.HasDangerWord,
			CreatedAt:     now,
			UpdatedAt:     now,
			ReceivedAt:    now,
		}
		applyAnalysis(thread, analysis)
		if err := s.storage.CreateThread(ctx, thread); err != nil {
			return nil, fmt.Errorf("failed to create thread: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to find thread: %w", err)
	default:
		prevStatus = thread.Status
		thread.MergeTags(analysis.Tags)
		thread.LastMessage = ev.Text
		thread.HasDangerWord = thread.HasDangerWord || analysis.HasDangerWord
		thread.IsRead = false
		thread.ReceivedAt = now
		thread.UpdatedAt = now
		applyAnalysis(thread, analysis)
		switch {
		case analysis.HasDangerWord:
			thread.SetStatus(models.StatusReview, now)
		case thread.Status == models.StatusCompleted:
			thread.SetStatus(models.StatusUnhandled, now)
		}
		if err := s.storage.UpdateThread(ctx, thread); err != nil {
			return nil, fmt.Errorf("failed to update thread: %w", err)
		}
	}

	if _, err := s.addMessage(ctx, thread.ID, models.SenderUser, ev.Text, now); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}
	recordInbound(models.ChannelLINE, "stored")

	s.logger.Info("Stored LINE message",
		zap.String("store_id", store.ID),
		zap.String("thread_id", thread.ID),
		zap.Bool("new_thread", created),
		zap.String("status", string(thread.Status)),
		zap.Bool("danger", analysis.HasDangerWord))

	// threads waiting for manual review get no automatic answers
	if store.AutoReplyEnabled && analysis.AutoReply != "" && ev.ReplyToken != "" && thread.Status != models.StatusReview {
		err := s.line.Reply(ctx, store, ev.ReplyToken, analysis.AutoReply)
		recordAutoReply(models.ChannelLINE, err)
		if err != nil {
			s.logger.Warn("Failed to send auto reply",
				zap.String("store_id", store.ID),
				zap.String("thread_id", thread.ID),
				zap.Error(err))
		} else if _, err := s.addMessage(ctx, thread.ID, models.SenderAI, analysis.AutoReply, s.now()); err != nil {
			s.logger.Error("Failed to store auto reply", zap.String("thread_id", thread.ID), zap.Error(err))
		}
	}

	if thread.Status == models.StatusReview && (analysis.HasDangerWord || prevStatus != models.StatusReview) {
		s.alert(ctx, store, thread)
	}
	return thread, nil
}

// IngestGoogleReview creates or refreshes the thread for a review.
// Duplicate deliveries return a nil thread.
func (s *Service) IngestGoogleReview(ctx context.Context, store *models.Store, review *google.Review) (*models.Thread, error) {
	if review.MessageID != "" && s.seen(ctx, "google:"+review.MessageID) {
		s.logger.Info("Skipping duplicate review notification",
			zap.String("store_id", store.ID),
			zap.String("message_id", review.MessageID))
		recordInbound(models.ChannelGoogle, "duplicate")
		return nil, nil
	}

	analysis := s.classifier.Analyze(ctx, classifier.InputFor(store, models.ChannelGoogle, review.Comment, review.Rating, s.dangerWords(ctx, store.ID)))
	now := s.now()

	reviewer := review.Reviewer
	if reviewer == "" {
		reviewer = DefaultReviewerName
	}
	content := review.Comment
	if content == "" {
		content = fmt.Sprintf("★%d", review.Rating)
	}

	thread, err := s.storage.FindThreadByReview(ctx, store.ID, review.Name)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		thread = &models.Thread{
			ID:                  models.NewID("thread"),
			StoreID:             store.ID,
			Channel:             models.ChannelGoogle,
			UserName:            reviewer,
			Status:              analysis.Status,
			Tags:                analysis.Tags,
			LastMessage:         content,
			HasDangerWord:       analysis.HasDangerWord,
			GoogleRating:        review.Rating,
			GoogleReviewID:      review.Name,
			GoogleReviewComment: review.Comment,
			CreatedAt:           now,
			UpdatedAt:           now,
			ReceivedAt:          now,
		}
		applyAnalysis(thread, analysis)
		if err := s.storage.CreateThread(ctx, thread); err != nil {
			return nil, fmt.Errorf("failed to create review thread: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to find review thread: %w", err)
	default:
		// An edited review replaces the previous classification
		thread.UserName = reviewer
		thread.Tags = analysis.Tags
		thread.LastMessage = content
		thread.HasDangerWord = analysis.HasDangerWord
		thread.GoogleRating = review.Rating
		thread.GoogleReviewComment = review.Comment
		thread.IsRead = false
		thread.ReceivedAt = now
		thread.UpdatedAt = now
		thread.SetStatus(analysis.Status, now)
		applyAnalysis(thread, analysis)
		if err := s.storage.UpdateThread(ctx, thread); err != nil {
			return nil, fmt.Errorf("failed to update review thread: %w", err)
		}
	}

	if _, err := s.addMessage(ctx, thread.ID, models.SenderUser, content, now); err != nil {
		return nil, fmt.Errorf("failed to store review: %w", err)
	}
	recordInbound(models.ChannelGoogle, "stored")

	s.logger.Info("Stored Google review",
		zap.String("store_id", store.ID),
		zap.String("thread_id", thread.ID),
		zap.String("type", review.Type),
		zap.Int("rating", review.Rating),
		zap.String("status", string(thread.Status)))

	if store.AutoReplyEnabled && analysis.AutoReply != "" && store.GoogleAccessToken != "" {
		err := s.google.ReplyReview(ctx, store, review.Name, analysis.AutoReply)
		recordAutoReply(models.ChannelGoogle, err)
		if err != nil {
			s.logger.Warn("Failed to send review auto reply",
				zap.String("store_id", store.ID),
				zap.String("thread_id", thread.ID),
				zap.Error(err))
		} else {
			at := s.now()
			if _, err := s.addMessage(ctx, thread.ID, models.SenderAI, analysis.AutoReply, at); err != nil {
				s.logger.Error("Failed to store auto reply", zap.String("thread_id", thread.ID), zap.Error(err))
			}
			thread.SetStatus(models.StatusCompleted, at)
			if err := s.storage.UpdateThread(ctx, thread); err != nil {
				s.logger.Error("Failed to complete auto replied review", zap.String("thread_id", thread.ID), zap.Error(err))
			}
		}
	}

	if thread.Status == models.StatusReview {
		s.alert(ctx, store, thread)
	}
	return thread, nil
}
