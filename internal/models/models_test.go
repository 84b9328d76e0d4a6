package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadSetStatus(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	thread := &Thread{Status: StatusUnhandled}

	assert.False(t, thread.SetStatus(StatusUnhandled, now))
	assert.Nil(t, thread.CompletedAt)

	require.True(t, thread.SetStatus(StatusCompleted, now))
	require.NotNil(t, thread.CompletedAt)
	assert.Equal(t, now, *thread.CompletedAt)
	assert.Equal(t, now, thread.UpdatedAt)

	later := now.Add(time.Hour)
	require.True(t, thread.SetStatus(StatusReview, later))
	assert.Nil(t, thread.CompletedAt)
	assert.Equal(t, later, thread.UpdatedAt)
}

func TestThreadMergeTags(t *testing.T) {
	thread := &Thread{Tags: []Tag{TagReservation, TagQuestion}}
	thread.MergeTags([]Tag{TagQuestion, TagDanger, TagDanger})
	assert.Equal(t, []Tag{TagReservation, TagQuestion, TagDanger}, thread.Tags)
}

func TestAlertSegmentMinutes(t *testing.T) {
	assert.Equal(t, 30, AlertImmediate.Minutes())
	assert.Equal(t, 120, AlertStandard.Minutes())
	assert.Equal(t, 1440, AlertRelaxed.Minutes())
	assert.Equal(t, 120, AlertSegment("bogus").Minutes())
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, s.Expired(now))
	assert.True(t, s.Expired(now.Add(time.Minute)))
}

func TestNewID(t *testing.T) {
	id := NewID("store")
	assert.True(t, strings.HasPrefix(id, "store_"))
	assert.NotContains(t, strings.TrimPrefix(id, "store_"), "-")
	assert.NotEqual(t, id, NewID("store"))
}

func TestStoreConnections(t *testing.T) {
	s := &Store{}
	assert.False(t, s.LineConnected())
	assert.Equal(t, "当店", s.DisplayName())

	s.LineChannelID, s.LineChannelSecret, s.LineAccessToken = "1", "secret", "token"
	s.Name = "美容室ひとめ"
	assert.True(t, s.LineConnected())
	assert.Equal(t, "美容室ひとめ", s.DisplayName())
}
