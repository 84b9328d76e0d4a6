package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaenox/hitome/internal/models"
	"github.com/xaenox/hitome/internal/storage"
)

func TestCreateStore(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	ctx := context.Background()

	rec := env.authed(t, http.MethodPost, "/api/stores", `{"name":"  二号店 ","businessHours":{"start":"09:00","end":"21:00"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	id := body["storeId"].(string)
	require.NotEmpty(t, id)

	store, err := env.storage.GetStore(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "二号店", store.Name)
	assert.Equal(t, models.ToneStandard, store.Tone)
	assert.Equal(t, models.CategorySalon, store.Category)
	assert.Equal(t, models.AlertStandard, store.AlertSegment)
	assert.NotEmpty(t, store.GoogleWebhookToken)

	role, err := env.storage.GetStoreRole(ctx, env.user.ID, id)
	require.NoError(t, err)
	assert.Equal(t, models.RoleOwner, role)

	sess, err := env.storage.GetSession(ctx, env.session.ID, env.server.now())
	require.NoError(t, err)
	assert.Equal(t, id, sess.StoreID)
}

func TestCreateStoreValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"missing name", `{"businessHours":{"start":"09:00","end":"21:00"}}`, "Name and business hours are required"},
		{"missing hours", `{"name":"店"}`, "Name and business hours are required"},
		{"bad hours", `{"name":"店","businessHours":{"start":"9時","end":"21:00"}}`, "Business hours must be HH:MM"},
		{"bad tone", `{"name":"店","businessHours":{"start":"09:00","end":"21:00"},"tone":"rude"}`, "Invalid tone"},
		{"bad category", `{"name":"店","businessHours":{"start":"09:00","end":"21:00"},"category":"bank"}`, "Invalid category"},
		{"bad segment", `{"name":"店","businessHours":{"start":"09:00","end":"21:00"},"alertSegment":"never"}`, "Invalid alert segment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.authed(t, http.MethodPost, "/api/stores", tt.body)
			assertError(t, rec, http.StatusBadRequest, tt.message)
		})
	}
}

func TestListAndSwitchStores(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	ctx := context.Background()

	second := &models.Store{ID: "store_2", Name: "二号店", OwnerID: env.user.ID, IsActive: true}
	require.NoError(t, env.storage.CreateStore(ctx, second))
	foreign := &models.Store{ID: "store_3", Name: "他店", OwnerID: "user_9", IsActive: true}
	require.NoError(t, env.storage.CreateStore(ctx, foreign))

	rec := env.authed(t, http.MethodGet, "/api/stores", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["stores"], 2)

	rec = env.authed(t, http.MethodPatch, "/api/stores", `{}`)
	assertError(t, rec, http.StatusBadRequest, "Store ID is required")

	rec = env.authed(t, http.MethodPatch, "/api/stores", `{"storeId":"store_3"}`)
	assertError(t, rec, http.StatusForbidden, "Access denied")

	rec = env.authed(t, http.MethodPatch, "/api/stores", `{"storeId":"store_2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	sess, err := env.storage.GetSession(ctx, env.session.ID, env.server.now())
	require.NoError(t, err)
	assert.Equal(t, "store_2", sess.StoreID)
}

func TestCurrentStoreHidesSecrets(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	rec := env.authed(t, http.MethodGet, "/api/stores/current", "")
	require.Equal(t, http.StatusOK, rec.Code)
	store := decode(t, rec)["store"].(map[string]any)
	assert.Equal(t, env.store.ID, store["id"])
	assert.Equal(t, "/api/webhook/line/channel-1", store["lineWebhookPath"])
	assert.Equal(t, "/api/webhook/google/store_1?token=hook-token", store["googleWebhookPath"])
	assert.NotContains(t, store, "lineAccessToken")
	assert.NotContains(t, store, "googleAccessToken")
}

func TestUpdateCurrentStore(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	ctx := context.Background()

	rec := env.authed(t, http.MethodPut, "/api/stores/current",
		`{"name":"新店名","tone":"polite","autoReplyEnabled":false,"lineAccessToken":"","telegramChatId":42}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	store, err := env.storage.GetStore(ctx, env.store.ID)
	require.NoError(t, err)
	assert.Equal(t, "新店名", store.Name)
	assert.Equal(t, models.TonePolite, store.Tone)
	assert.False(t, store.AutoReplyEnabled)
	assert.Empty(t, store.LineAccessToken)
	assert.Equal(t, "secret-1", store.LineChannelSecret)
	assert.Equal(t, int64(42), store.TelegramChatID)
	assert.Equal(t, false, decode(t, rec)["store"].(map[string]any)["lineConnected"])

	rec = env.authed(t, http.MethodPut, "/api/stores/current", `{"alertSegment":"sometimes"}`)
	assertError(t, rec, http.StatusBadRequest, "Invalid alert segment")
}

func TestUpdateCurrentStoreRejectsTakenChannel(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	other := &models.Store{ID: "store_2", OwnerID: "user_2", LineChannelID: "taken", IsActive: true}
	require.NoError(t, env.storage.CreateStore(context.Background(), other))

	rec := env.authed(t, http.MethodPut, "/api/stores/current", `{"lineChannelId":"taken"}`)
	assertError(t, rec, http.StatusConflict, "LINE channel is already connected to another store")
}

type channelLookupFailure struct {
	*storage.MemoryStorage
}

func (channelLookupFailure) GetStoreByLineChannel(context.Context, string) (*models.Store, error) {
	return nil, errors.New("db down")
}

func TestUpdateCurrentStoreChannelLookupFailure(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	env.server.storage = channelLookupFailure{env.storage}

	rec := env.authed(t, http.MethodPut, "/api/stores/current", `{"lineChannelId":"fresh"}`)
	assertError(t, rec, http.StatusInternalServerError, "Internal server error")

	store, err := env.storage.GetStore(context.Background(), env.store.ID)
	require.NoError(t, err)
	assert.Equal(t, "channel-1", store.LineChannelID)
}

func TestDeleteStore(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	ctx := context.Background()

	foreign := &models.Store{ID: "store_2", OwnerID: "user_2", IsActive: true}
	require.NoError(t, env.storage.CreateStore(ctx, foreign))
	rec := env.authed(t, http.MethodDelete, "/api/stores/store_2", "")
	assertError(t, rec, http.StatusForbidden, "Only the owner can delete a store")

	rec = env.authed(t, http.MethodDelete, "/api/stores/"+env.store.ID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, err := env.storage.GetStore(ctx, env.store.ID)
	assert.Error(t, err)
	sess, err := env.storage.GetSession(ctx, env.session.ID, env.server.now())
	require.NoError(t, err)
	assert.Empty(t, sess.StoreID)

	rec = env.authed(t, http.MethodGet, "/api/threads", "")
	assertError(t, rec, http.StatusBadRequest, "No store selected")
}
