package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaenox/hitome/internal/models"
)

func seedStore(t *testing.T, s *MemoryStorage, id, owner string, created time.Time) *models.Store {
	t.Helper()
	st := &models.Store{
		ID:            id,
		Name:          "store " + id,
		OwnerID:       owner,
		BusinessHours: models.BusinessHours{Start: "09:00", End: "21:00"},
		Tone:          models.ToneStandard,
		IsActive:      true,
		LineChannelID: "ch-" + id,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
	require.NoError(t, s.CreateStore(context.Background(), st))
	return st
}

func TestMemoryStorageStores(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	now := time.Now()

	seedStore(t, s, "a", "u1", now.Add(-time.Hour))
	seedStore(t, s, "b", "u1", now)
	seedStore(t, s, "c", "u2", now)

	stores, err := s.ListUserStores(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, stores, 2)
	assert.Equal(t, "b", stores[0].ID)

	role, err := s.GetStoreRole(ctx, "u1", "a")
	require.NoError(t, err)
	assert.Equal(t, models.RoleOwner, role)

	_, err = s.GetStoreRole(ctx, "u2", "a")
	assert.ErrorIs(t, err, ErrNotFound)

	st, err := s.GetStoreByLineChannel(ctx, "ch-c")
	require.NoError(t, err)
	assert.Equal(t, "c", st.ID)

	require.NoError(t, s.DeactivateStore(ctx, "a"))
	_, err = s.GetStore(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	stores, err = s.ListUserStores(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, stores, 1)
}

func TestMemoryStorageSessions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	now := time.Now()

	require.NoError(t, s.CreateSession(ctx, &models.Session{ID: "s1", UserID: "u1", ExpiresAt: now.Add(time.Hour), CreatedAt: now}))

	sess, err := s.GetSession(ctx, "s1", now)
	require.NoError(t, err)
	assert.Empty(t, sess.StoreID)

	require.NoError(t, s.UpdateSessionStore(ctx, "s1", "a"))
	sess, err = s.GetSession(ctx, "s1", now)
	require.NoError(t, err)
	assert.Equal(t, "a", sess.StoreID)

	_, err = s.GetSession(ctx, "s1", now.Add(time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.DeleteSession(ctx, "s1"))
	_, err = s.GetSession(ctx, "s1", now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorageThreadsAreStoreScoped(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	now := time.Now()

	older := &models.Thread{ID: "t1", StoreID: "a", Channel: models.ChannelLINE, UserID: "U1", Status: models.StatusUnhandled, Tags: []models.Tag{models.TagQuestion}, CreatedAt: now.Add(-time.Minute), UpdatedAt: now.Add(-time.Minute)}
	newer := &models.Thread{ID: "t2", StoreID: "a", Channel: models.ChannelLINE, UserID: "U1", Status: models.StatusReview, CreatedAt: now, UpdatedAt: now}
	review := &models.Thread{ID: "t3", StoreID: "a", Channel: models.ChannelGoogle, GoogleReviewID: "r1", Status: models.StatusUnhandled, CreatedAt: now, UpdatedAt: now}
	other := &models.Thread{ID: "t4", StoreID: "b", Channel: models.ChannelLINE, UserID: "U1", CreatedAt: now, UpdatedAt: now}
	for _, th := range []*models.Thread{older, newer, review, other} {
		require.NoError(t, s.CreateThread(ctx, th))
	}

	_, err := s.GetThread(ctx, "b", "t1")
	assert.ErrorIs(t, err, ErrNotFound)

	latest, err := s.FindLatestThread(ctx, "a", models.ChannelLINE, "U1")
	require.NoError(t, err)
	assert.Equal(t, "t2", latest.ID)

	byReview, err := s.FindThreadByReview(ctx, "a", "r1")
	require.NoError(t, err)
	assert.Equal(t, "t3", byReview.ID)

	list, err := s.ListThreads(ctx, models.ThreadFilter{StoreID: "a", Channel: models.ChannelLINE})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "t2", list[0].ID)

	list, err = s.ListThreads(ctx, models.ThreadFilter{StoreID: "a", Status: models.StatusReview})
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = s.ListThreads(ctx, models.ThreadFilter{StoreID: "a", Since: now.Add(-30 * time.Second), Limit: 1})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	// returned threads are copies
	list[0].Tags = append(list[0].Tags, models.TagDanger)
	got, err := s.GetThread(ctx, "a", list[0].ID)
	require.NoError(t, err)
	assert.NotContains(t, got.Tags, models.TagDanger)

	deleted, err := s.DeleteThreads(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
	_, err = s.GetThread(ctx, "b", "t4")
	assert.NoError(t, err)
}

func TestMemoryStorageMessages(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	now := time.Now()

	assert.ErrorIs(t, s.AddMessage(ctx, &models.Message{ID: "m0", ThreadID: "missing"}), ErrNotFound)

	require.NoError(t, s.CreateThread(ctx, &models.Thread{ID: "t1", StoreID: "a"}))
	require.NoError(t, s.AddMessage(ctx, &models.Message{ID: "m2", ThreadID: "t1", Sender: models.SenderAI, CreatedAt: now.Add(time.Second)}))
	require.NoError(t, s.AddMessage(ctx, &models.Message{ID: "m1", ThreadID: "t1", Sender: models.SenderUser, CreatedAt: now}))

	msgs, err := s.ListMessages(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m2", msgs[1].ID)
}

func TestMemoryStorageDangerWords(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	now := time.Now()

	require.NoError(t, s.AddDangerWord(ctx, &models.DangerWord{ID: "w1", StoreID: "a", Word: "カビ", CreatedAt: now}))
	require.NoError(t, s.AddDangerWord(ctx, &models.DangerWord{ID: "w0", Word: "出禁", CreatedAt: now.Add(time.Second)}))
	require.NoError(t, s.AddDangerWord(ctx, &models.DangerWord{ID: "w2", StoreID: "b", Word: "虫", CreatedAt: now}))

	words, err := s.ListDangerWords(ctx, "a")
	require.NoError(t, err)
	require.Len(t, words, 2)
	assert.Equal(t, "w0", words[0].ID)
	assert.Equal(t, "w1", words[1].ID)

	assert.ErrorIs(t, s.DeleteDangerWord(ctx, "a", "w0"), ErrNotFound)
	assert.ErrorIs(t, s.DeleteDangerWord(ctx, "a", "w2"), ErrNotFound)
	require.NoError(t, s.DeleteDangerWord(ctx, "a", "w1"))
}

func TestMemoryStorageUsers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	require.NoError(t, s.CreateUser(ctx, &models.User{ID: "u1", LineUserID: "Uabc", Name: "old"}))
	require.NoError(t, s.UpdateUserProfile(ctx, "u1", "new", "https://img"))

	u, err := s.GetUserByLineID(ctx, "Uabc")
	require.NoError(t, err)
	assert.Equal(t, "new", u.Name)
	assert.Equal(t, "https://img", u.AvatarURL)

	assert.ErrorIs(t, s.UpdateUserProfile(ctx, "nope", "x", ""), ErrNotFound)
}

func TestMemoryStorageFindLatestThreadRequiresUser(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	anonymous := &models.Thread{ID: "t1", StoreID: "a", Channel: models.ChannelLINE, Status: models.StatusUnhandled, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, s.CreateThread(ctx, anonymous))

	_, err := s.FindLatestThread(ctx, "a", models.ChannelLINE, "")
	assert.ErrorIs(t, err, ErrNotFound)
}
