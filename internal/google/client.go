package google

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/xaenox/hitome/internal/models"
)

const DefaultAPIBaseURL = "https://mybusiness.googleapis.com"

var ErrNotConfigured = errors.New("google: store has no access token")

// Client posts replies to reviews with the store's OAuth access token
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// ReplyReview creates or replaces the store's reply to reviewName
func (c *Client) ReplyReview(ctx context.Context, store *models.Store, reviewName, text string) error {
	if store.GoogleAccessToken == "" {
		return ErrNotConfigured
	}

	payload, err := json.Marshal(map[string]string{"comment": text})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/v4/%s/reply", c.baseURL, strings.TrimPrefix(reviewName, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: store.GoogleAccessToken}))

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error replying to review: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Warn("Google review reply rejected",
			zap.String("store_id", store.ID),
			zap.String("review", reviewName),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body))
		return fmt.Errorf("error replying to review: status %d", resp.StatusCode)
	}
	return nil
}
