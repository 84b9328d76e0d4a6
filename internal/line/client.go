package line

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/line/line-bot-sdk-go/v7/linebot"
	"go.uber.org/zap"

	"github.com/xaenox/hitome/internal/models"
)

// DefaultUserName is shown when the sender's profile cannot be fetched
const DefaultUserName = "LINEユーザー"

var ErrNotConfigured = errors.New("line: store has no messaging credentials")

// Client sends messages through the Messaging API. Credentials come from
// the store, so one Client serves every tenant.
type Client struct {
	endpointBase string
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewClient builds a client. An empty endpointBase uses the public API.
func NewClient(endpointBase string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		endpointBase: endpointBase,
		httpClient:   httpClient,
		logger:       logger,
	}
}

func (c *Client) bot(store *models.Store) (*linebot.Client, error) {
	if store.LineChannelSecret == "" || store.LineAccessToken == "" {
		return nil, ErrNotConfigured
	}
	opts := []linebot.ClientOption{linebot.WithHTTPClient(c.httpClient)}
	if c.endpointBase != "" {
		opts = append(opts, linebot.WithEndpointBase(c.endpointBase))
	}
	return linebot.New(store.LineChannelSecret, store.LineAccessToken, opts...)
}

// Reply answers an inbound event using its reply token
func (c *Client) Reply(ctx context.Context, store *models.Store, replyToken, text string) error {
	bot, err := c.bot(store)
	if err != nil {
		return err
	}
	if _, err := bot.ReplyMessage(replyToken, linebot.NewTextMessage(text)).WithContext(ctx).Do(); err != nil {
		return fmt.Errorf("error sending LINE reply: %w", err)
	}
	return nil
}

// Push sends a message to a user outside of a reply window
func (c *Client) Push(ctx context.Context, store *models.Store, to, text string) error {
	bot, err := c.bot(store)
	if err != nil {
		return err
	}
	if _, err := bot.PushMessage(to, linebot.NewTextMessage(text)).WithContext(ctx).Do(); err != nil {
		return fmt.Errorf("error sending LINE push: %w", err)
	}
	return nil
}

// DisplayName returns the user's LINE profile name, or DefaultUserName
// when the profile is unavailable
func (c *Client) DisplayName(ctx context.Context, store *models.Store, userID string) string {
	bot, err := c.bot(store)
	if err != nil || userID == "" {
		return DefaultUserName
	}
	profile, err := bot.GetProfile(userID).WithContext(ctx).Do()
	if err != nil {
		c.logger.Warn("Failed to get LINE profile",
			zap.String("store_id", store.ID),
			zap.String("line_user_id", userID),
			zap.Error(err))
		return DefaultUserName
	}
	if profile.DisplayName == "" {
		return DefaultUserName
	}
	return profile.DisplayName
}
