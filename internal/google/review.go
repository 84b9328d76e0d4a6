// Package google receives Business Profile review notifications and posts
// review replies.
package google

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	TypeNewReview     = "NEW_REVIEW"
	TypeUpdatedReview = "UPDATED_REVIEW"
)

var ErrInvalidEnvelope = errors.New("google: invalid push envelope")

// Review is one decoded review notification
type Review struct {
	Name        string
	Type        string
	Rating      int
	Comment     string
	Reviewer    string
	MessageID   string
	PublishTime time.Time
}

type pushEnvelope struct {
	Message struct {
		Data        string    `json:"data"`
		MessageID   string    `json:"messageId"`
		PublishTime time.Time `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type notification struct {
	Type       string          `json:"type"`
	ReviewName string          `json:"reviewName"`
	StarRating json.RawMessage `json:"starRating"`
	Comment    string          `json:"comment"`
	Reviewer   string          `json:"reviewer"`
}

var starNames = map[string]int{
	"ONE":   1,
	"TWO":   2,
	"THREE": 3,
	"FOUR":  4,
	"FIVE":  5,
}

// DecodePushEnvelope unwraps a Pub/Sub push request carrying a review notification
func DecodePushEnvelope(body []byte) (*Review, error) {
	var env pushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if env.Message.Data == "" {
		return nil, fmt.Errorf("%w: empty data", ErrInvalidEnvelope)
	}
	data, err := base64.StdEncoding.DecodeString(env.Message.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: data is not base64: %v", ErrInvalidEnvelope, err)
	}

	var n notification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if n.ReviewName == "" {
		return nil, fmt.Errorf("%w: missing reviewName", ErrInvalidEnvelope)
	}
	rating, err := parseRating(n.StarRating)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if n.Type == "" {
		n.Type = TypeNewReview
	}

	return &Review{
		Name:        n.ReviewName,
		Type:        n.Type,
		Rating:      rating,
		Comment:     strings.TrimSpace(n.Comment),
		Reviewer:    strings.TrimSpace(n.Reviewer),
		MessageID:   env.Message.MessageID,
		PublishTime: env.Message.PublishTime,
	}, nil
}

// parseRating accepts 1..5 as a number or as ONE..FIVE. Missing means 0.
func parseRating(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, ok := starNames[strings.ToUpper(s)]; ok {
			return n, nil
		}
		if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= 5 {
			return n, nil
		}
		return 0, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("invalid starRating %s", raw)
	}
	if n < 0 || n > 5 {
		return 0, fmt.Errorf("starRating %d out of range", n)
	}
	return n, nil
}
