package models

import "time"

type ThreadStatus string

const (
	StatusUnhandled ThreadStatus = "unhandled"
	StatusReview    ThreadStatus = "review"
	StatusCompleted ThreadStatus = "completed"
)

func (s ThreadStatus) Valid() bool {
	switch s {
	case StatusUnhandled, StatusReview, StatusCompleted:
		return true
	}
	return false
}

type Tag string

const (
	TagReservation Tag = "reservation"
	TagQuestion    Tag = "question"
	TagLowRating   Tag = "low_rating"
	TagDanger      Tag = "danger"
	TagLocation    Tag = "location"
	TagHours       Tag = "hours"
	TagMenu        Tag = "menu"
	TagParking     Tag = "parking"
)

// Thread is one aggregated conversation (LINE) or review (Google)
type Thread struct {
	ID            string       `json:"id"`
	StoreID       string       `json:"storeId"`
	Channel       Channel      `json:"channel"`
	UserName      string       `json:"userName"`
	UserID        string       `json:"userId,omitempty"`
	Status        ThreadStatus `json:"status"`
	Tags          []Tag        `json:"tags"`
	LastMessage   string       `json:"lastMessage"`
	AISummary     string       `json:"aiSummary"`
	AIIntent      string       `json:"aiIntent"`
	AIResponse    string       `json:"aiResponse"`
	HasDangerWord bool         `json:"hasDangerWord"`
	IsRead        bool         `json:"isRead"`

	GoogleRating        int    `json:"googleRating,omitempty"`
	GoogleReviewID      string `json:"googleReviewId,omitempty"`
	GoogleReviewComment string `json:"googleReviewComment,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	ReceivedAt  time.Time  `json:"receivedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	Messages []Message `json:"messages,omitempty"`
}

// SetStatus moves the thread to status and keeps CompletedAt in step with it.
// It reports whether the status actually changed.
func (t *Thread) SetStatus(status ThreadStatus, now time.Time) bool {
	if t.Status == status {
		return false
	}
	t.Status = status
	t.UpdatedAt = now
	if status == StatusCompleted {
		completed := now
		t.CompletedAt = &completed
	} else {
		t.CompletedAt = nil
	}
	return true
}

// MergeTags appends tags not already present, keeping the existing order
func (t *Thread) MergeTags(tags []Tag) {
	seen := make(map[Tag]struct{}, len(t.Tags))
	for _, tag := range t.Tags {
		seen[tag] = struct{}{}
	}
	for _, tag := range tags {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		t.Tags = append(t.Tags, tag)
	}
}

// ThreadFilter narrows thread listings. Zero values mean "no filter".
type ThreadFilter struct {
	StoreID string
	Status  ThreadStatus
	Channel Channel
	Since   time.Time
	Limit   int
}
