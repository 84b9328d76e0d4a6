// Package line talks to the LINE platform: webhook verification and parsing,
// the Messaging API and LINE Login.
package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v7/linebot"
)

// SignatureHeader carries the base64 HMAC-SHA256 of the raw request body
const SignatureHeader = "X-Line-Signature"

var (
	ErrNoSignature      = errors.New("no signature")
	ErrInvalidSignature = errors.New("invalid signature")
)

// ValidateSignature checks signature against HMAC-SHA256(secret, body)
func ValidateSignature(secret string, body []byte, signature string) error {
	if signature == "" {
		return ErrNoSignature
	}
	decoded, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(decoded, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// Event is the part of a webhook event the inbox cares about
type Event struct {
	ID         string
	Type       string
	ReplyToken string
	UserID     string
	MessageID  string
	Text       string
	IsText     bool
	Redelivery bool
	Timestamp  time.Time
}

type webhookPayload struct {
	Destination string           `json:"destination"`
	Events      []*linebot.Event `json:"events"`
}

// ParseEvents decodes a verified webhook body
func ParseEvents(body []byte) ([]Event, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("error decoding webhook body: %w", err)
	}

	events := make([]Event, 0, len(payload.Events))
	for _, e := range payload.Events {
		if e == nil {
			continue
		}
		ev := Event{
			ID:         e.WebhookEventID,
			Type:       string(e.Type),
			ReplyToken: e.ReplyToken,
			Redelivery: e.DeliveryContext.IsRedelivery,
			Timestamp:  e.Timestamp,
		}
		if e.Source != nil {
			ev.UserID = e.Source.UserID
		}
		if msg, ok := e.Message.(*linebot.TextMessage); ok && e.Type == linebot.EventTypeMessage && strings.TrimSpace(msg.Text) != "" {
			ev.IsText = true
			ev.MessageID = msg.ID
			ev.Text = msg.Text
		}
		events = append(events, ev)
	}
	return events, nil
}
