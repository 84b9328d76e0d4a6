package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Channel identifies where a thread came from
type Channel string

const (
	ChannelLINE   Channel = "LINE"
	ChannelGoogle Channel = "GOOGLE"
)

func (c Channel) Valid() bool {
	return c == ChannelLINE || c == ChannelGoogle
}

// Sender identifies the author of a message inside a thread
type Sender string

const (
	SenderUser  Sender = "user"
	SenderStore Sender = "store"
	SenderAI    Sender = "ai"
)

// User represents a store operator who signed in with LINE Login
type User struct {
	ID         string    `json:"id"`
	LineUserID string    `json:"lineUserId"`
	Name       string    `json:"name"`
	Email      string    `json:"email,omitempty"`
	AvatarURL  string    `json:"avatarUrl,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Session maps an opaque cookie token to a user and the store they are working on
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	StoreID   string    `json:"storeId,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Message is one entry of a conversation, ordered by CreatedAt
type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"threadId"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// DangerWord is a denylisted substring. An empty StoreID marks a global entry.
type DangerWord struct {
	ID        string    `json:"id"`
	StoreID   string    `json:"storeId,omitempty"`
	Word      string    `json:"word"`
	CreatedAt time.Time `json:"createdAt"`
}

// KPIMetrics summarises response performance for one store
type KPIMetrics struct {
	UnhandledCount     int `json:"unhandledCount"`
	ReviewCount        int `json:"reviewCount"`
	MissedThisMonth    int `json:"missedThisMonth"`
	AvgResponseMinutes int `json:"avgResponseMinutes"`
	ZeroUnhandledDays  int `json:"zeroUnhandledDays"`
}

// NewID returns a prefixed random identifier such as "store_3f6c...".
func NewID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
