package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaenox/hitome/internal/line"
	"github.com/xaenox/hitome/internal/models"
)

func textEventBody(id, userID, text string) []byte {
	return []byte(fmt.Sprintf(`{
		"destination": "Ubot",
		"events": [{
			"type": "message",
			"mode": "active",
			"timestamp": 1700000000000,
			"webhookEventId": %q,
			"deliveryContext": {"isRedelivery": false},
			"replyToken": "rt-%s",
			"source": {"type": "user", "userId": %q},
			"message": {"id": "m-%s", "type": "text", "text": %q}
		}]
	}`, id, id, userID, id, text))
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (env *testEnv) lineWebhookRequest(t *testing.T, target, secret string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(line.SignatureHeader, signBody(secret, body))
	}
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	return rec
}

func TestLineWebhookInfo(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/webhook/line", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "LINE Webhook endpoint", decode(t, rec)["message"])
}

func TestLineWebhookStoresMessageAndAutoReplies(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	ctx := context.Background()

	body := textEventBody("ev-1", "U1", "予約したいです")
	rec := env.lineWebhookRequest(t, "/api/webhook/line/channel-1", "secret-1", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["success"])

	thread, err := env.storage.FindLatestThread(ctx, env.store.ID, models.ChannelLINE, "U1")
	require.NoError(t, err)
	assert.Equal(t, "山田", thread.UserName)
	assert.Contains(t, thread.Tags, models.TagReservation)
	require.Len(t, env.line.replies, 1)

	// a redelivered event is acknowledged but not stored twice
	rec = env.lineWebhookRequest(t, "/api/webhook/line/channel-1", "secret-1", body)
	require.Equal(t, http.StatusOK, rec.Code)
	messages, err := env.storage.ListMessages(ctx, thread.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
	assert.Len(t, env.line.replies, 1)
}

func TestLineWebhookRejections(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	body := textEventBody("ev-1", "U1", "こんにちは")

	rec := env.lineWebhookRequest(t, "/api/webhook/line/unknown", "secret-1", body)
	assertError(t, rec, http.StatusNotFound, "Unknown channel")

	rec = env.lineWebhookRequest(t, "/api/webhook/line/channel-1", "", body)
	assertError(t, rec, http.StatusUnauthorized, "No signature")

	rec = env.lineWebhookRequest(t, "/api/webhook/line/channel-1", "wrong", body)
	assertError(t, rec, http.StatusUnauthorized, "Invalid signature")

	rec = env.lineWebhookRequest(t, "/api/webhook/line/channel-1", "secret-1", []byte("{not json"))
	assertError(t, rec, http.StatusBadRequest, "Invalid JSON")

	bare := &models.Store{ID: "store_2", OwnerID: env.user.ID, LineChannelID: "bare", IsActive: true}
	require.NoError(t, env.storage.CreateStore(context.Background(), bare))
	rec = env.lineWebhookRequest(t, "/api/webhook/line/bare", "secret-1", body)
	assertError(t, rec, http.StatusInternalServerError, "Not configured")
}

func TestLineWebhookDefaultChannel(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	ctx := context.Background()

	store := &models.Store{
		ID:               "store_default",
		OwnerID:          env.user.ID,
		LineChannelID:    "default-channel",
		AutoReplyEnabled: false,
		IsActive:         true,
	}
	require.NoError(t, env.storage.CreateStore(ctx, store))

	body := textEventBody("ev-9", "U9", "駐車場はありますか")
	rec := env.lineWebhookRequest(t, "/api/webhook/line", "default-secret", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, err := env.storage.FindLatestThread(ctx, store.ID, models.ChannelLINE, "U9")
	assert.NoError(t, err)
}

func reviewEnvelope(t *testing.T, messageID string, data map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]any{
		"message": map[string]any{
			"data":        base64.StdEncoding.EncodeToString(raw),
			"messageId":   messageID,
			"publishTime": "2026-10-01T09:00:00Z",
		},
		"subscription": "projects/p/subscriptions/s",
	})
	require.NoError(t, err)
	return body
}

func TestGoogleWebhook(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	ctx := context.Background()

	good := reviewEnvelope(t, "msg-1", map[string]any{
		"type":       "NEW_REVIEW",
		"reviewName": "accounts/1/locations/2/reviews/r1",
		"starRating": "FIVE",
		"comment":    "とても良かったです",
		"reviewer":   "佐藤",
	})
	rec := env.do(t, http.MethodPost, "/api/webhook/google/store_1?token=hook-token", string(good))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	thread, err := env.storage.FindThreadByReview(ctx, env.store.ID, "accounts/1/locations/2/reviews/r1")
	require.NoError(t, err)
	assert.Equal(t, 5, thread.GoogleRating)
	assert.Equal(t, models.StatusCompleted, thread.Status)
	require.Len(t, env.google.replies, 1)

	low := reviewEnvelope(t, "msg-2", map[string]any{
		"type":       "NEW_REVIEW",
		"reviewName": "accounts/1/locations/2/reviews/r2",
		"starRating": 2,
		"comment":    "待たされました",
	})
	rec = env.do(t, http.MethodPost, "/api/webhook/google/store_1?token=hook-token", string(low))
	require.Equal(t, http.StatusOK, rec.Code)
	thread, err = env.storage.FindThreadByReview(ctx, env.store.ID, "accounts/1/locations/2/reviews/r2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReview, thread.Status)
	assert.Equal(t, "Googleユーザー", thread.UserName)
	assert.Len(t, env.google.replies, 1)
}

func TestGoogleWebhookRejections(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	body := string(reviewEnvelope(t, "msg-1", map[string]any{"type": "NEW_REVIEW", "reviewName": "r", "starRating": 5}))

	rec := env.do(t, http.MethodPost, "/api/webhook/google/missing?token=hook-token", body)
	assertError(t, rec, http.StatusNotFound, "Store not found")

	rec = env.do(t, http.MethodPost, "/api/webhook/google/store_1?token=wrong", body)
	assertError(t, rec, http.StatusUnauthorized, "Invalid token")

	rec = env.do(t, http.MethodPost, "/api/webhook/google/store_1", body)
	assertError(t, rec, http.StatusUnauthorized, "Invalid token")

	rec = env.do(t, http.MethodPost, "/api/webhook/google/store_1?token=hook-token", `{"message":{"data":"***"}}`)
	assertError(t, rec, http.StatusBadRequest, "Invalid notification")
}

func TestWebhooksRejectOversizedBody(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	huge := []byte(`{"events":[],"pad":"` + strings.Repeat("x", maxWebhookBody) + `"}`)
	rec := env.lineWebhookRequest(t, "/api/webhook/line/channel-1", "secret-1", huge)
	assertError(t, rec, http.StatusRequestEntityTooLarge, "Body too large")

	rec = env.do(t, http.MethodPost, "/api/webhook/google/store_1?token=hook-token", string(huge))
	assertError(t, rec, http.StatusRequestEntityTooLarge, "Body too large")

	// exactly at the limit is still read
	exact := []byte(`{"events":[],"pad":"`)
	exact = append(exact, strings.Repeat("x", maxWebhookBody-len(exact)-2)...)
	exact = append(exact, `"}`...)
	require.Len(t, exact, maxWebhookBody)
	rec = env.lineWebhookRequest(t, "/api/webhook/line/channel-1", "secret-1", exact)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestLineWebhookIgnoresBlankAndAnonymousMessages(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	ctx := context.Background()

	for _, body := range [][]byte{
		textEventBody("ev-1", "U1", ""),
		textEventBody("ev-2", "U1", "   "),
		textEventBody("ev-3", "", "予約したいです"),
	} {
		rec := env.lineWebhookRequest(t, "/api/webhook/line/channel-1", "secret-1", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	threads, err := env.storage.ListThreads(ctx, models.ThreadFilter{StoreID: env.store.ID})
	require.NoError(t, err)
	assert.Empty(t, threads)
	assert.Empty(t, env.line.replies)
}
