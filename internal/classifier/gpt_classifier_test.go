package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/hitome/internal/models"
)

func newChatServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGPTClassifierOverridesSummaryAndIntent(t *testing.T) {
	srv := newChatServer(t, http.StatusOK, "```json\n{\"summary\":\"明日19時に2名で予約希望\",\"intent\":\"予約\"}\n```")
	c := NewGPTClassifier("test-key", srv.URL+"/v1", "gpt-4o-mini", 150, 0.2, NewRuleClassifier(), zap.NewNop())

	a := c.Analyze(context.Background(), lineInput("明日19時から2名で予約したい"))
	assert.Equal(t, "明日19時に2名で予約希望", a.Summary)
	assert.Equal(t, "予約", a.Intent)
	assert.Contains(t, a.Tags, models.TagReservation)
	assert.NotEmpty(t, a.AutoReply)
}

func TestGPTClassifierFallsBackOnError(t *testing.T) {
	srv := newChatServer(t, http.StatusInternalServerError, "")
	c := NewGPTClassifier("test-key", srv.URL+"/v1", "gpt-4o-mini", 150, 0.2, NewRuleClassifier(), zap.NewNop())

	in := lineInput("駐車場はありますか")
	want := NewRuleClassifier().Analyze(context.Background(), in)
	assert.Equal(t, want, c.Analyze(context.Background(), in))
}

func TestGPTClassifierFallsBackOnGarbage(t *testing.T) {
	srv := newChatServer(t, http.StatusOK, "not json at all")
	c := NewGPTClassifier("test-key", srv.URL+"/v1", "gpt-4o-mini", 150, 0.2, NewRuleClassifier(), zap.NewNop())

	a := c.Analyze(context.Background(), lineInput("駐車場はありますか"))
	assert.Equal(t, "駐車場についての問い合わせ", a.Summary)
}

func TestGPTClassifierKeepsDangerWording(t *testing.T) {
	srv := newChatServer(t, http.StatusOK, `{"summary":"返金の相談","intent":"返金"}`)
	c := NewGPTClassifier("test-key", srv.URL+"/v1", "gpt-4o-mini", 150, 0.2, NewRuleClassifier(), zap.NewNop())

	a := c.Analyze(context.Background(), lineInput("返金してください"))
	require.True(t, a.HasDangerWord)
	assert.Equal(t, summaryDanger, a.Summary)
	assert.Equal(t, intentDanger, a.Intent)
}

type promptRecorder struct {
	mu      sync.Mutex
	prompts []string
}

func (r *promptRecorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.prompts...)
}

func newRecordingChatServer(t *testing.T, content string) (*httptest.Server, *promptRecorder) {
	t.Helper()
	rec := &promptRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		rec.mu.Lock()
		for _, m := range req.Messages {
			rec.prompts = append(rec.prompts, m.Content)
		}
		rec.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestGPTClassifierSkipsDangerousMessages(t *testing.T) {
	srv, rec := newRecordingChatServer(t, `{"summary":"返金の相談","intent":"返金"}`)
	rules := NewRuleClassifier()
	c := NewGPTClassifier("test-key", srv.URL+"/v1", "gpt-4o-mini", 150, 0.2, rules, zap.NewNop())

	in := lineInput("返金してください")
	a := c.Analyze(context.Background(), in)
	assert.Equal(t, rules.Analyze(context.Background(), in), a)
	assert.Empty(t, rec.calls())
}

func TestGPTClassifierLabelsChannelInPrompt(t *testing.T) {
	srv, rec := newRecordingChatServer(t, `{"summary":"好意的なレビュー","intent":"感謝"}`)
	c := NewGPTClassifier("test-key", srv.URL+"/v1", "gpt-4o-mini", 150, 0.2, NewRuleClassifier(), zap.NewNop())

	review := lineInput("また来ます")
	review.Channel = models.ChannelGoogle
	review.Rating = 0
	c.Analyze(context.Background(), review)

	review.Rating = 4
	c.Analyze(context.Background(), review)

	c.Analyze(context.Background(), lineInput("また来ます"))

	prompts := rec.calls()
	require.Len(t, prompts, 3)
	assert.Contains(t, prompts[0], "Googleレビュー")
	assert.NotContains(t, prompts[0], "LINEメッセージ")
	assert.Contains(t, prompts[1], "Googleレビュー(★4)")
	assert.Contains(t, prompts[2], "LINEメッセージ")
}
