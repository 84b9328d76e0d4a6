package models

import "time"

type Tone string

const (
	TonePolite   Tone = "polite"
	ToneStandard Tone = "standard"
	ToneCasual   Tone = "casual"
)

func (t Tone) Valid() bool {
	switch t {
	case TonePolite, ToneStandard, ToneCasual:
		return true
	}
	return false
}

type Category string

const (
	CategorySalon      Category = "salon"
	CategoryRestaurant Category = "restaurant"
	CategoryMedical    Category = "medical"
)

func (c Category) Valid() bool {
	switch c {
	case CategorySalon, CategoryRestaurant, CategoryMedical:
		return true
	}
	return false
}

// AlertSegment decides how long a thread may stay unhandled before it counts as missed
type AlertSegment string

const (
	AlertImmediate AlertSegment = "immediate"
	AlertStandard  AlertSegment = "standard"
	AlertRelaxed   AlertSegment = "relaxed"
)

func (a AlertSegment) Valid() bool {
	switch a {
	case AlertImmediate, AlertStandard, AlertRelaxed:
		return true
	}
	return false
}

// Minutes returns the alert threshold. Unknown segments behave like standard.
func (a AlertSegment) Minutes() int {
	switch a {
	case AlertImmediate:
		return 30
	case AlertRelaxed:
		return 1440
	default:
		return 120
	}
}

type BusinessHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Store is one tenant business with its channel credentials
type Store struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	OwnerID          string        `json:"ownerId"`
	BusinessHours    BusinessHours `json:"businessHours"`
	Tone             Tone          `json:"tone"`
	Category         Category      `json:"category"`
	AlertSegment     AlertSegment  `json:"alertSegment"`
	AutoReplyEnabled bool          `json:"autoReplyEnabled"`

	LineChannelID      string `json:"lineChannelId,omitempty"`
	LineChannelSecret  string `json:"-"`
	LineAccessToken    string `json:"-"`
	GoogleAccessToken  string `json:"-"`
	GoogleBusinessID   string `json:"googleBusinessId,omitempty"`
	GoogleWebhookToken string `json:"-"`
	TelegramChatID     int64  `json:"telegramChatId,omitempty"`

	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s *Store) LineConnected() bool {
	return s.LineChannelID != "" && s.LineChannelSecret != "" && s.LineAccessToken != ""
}

func (s *Store) GoogleConnected() bool {
	return s.GoogleAccessToken != "" && s.GoogleBusinessID != ""
}

// DisplayName falls back to a generic "our store" when no name is set
func (s *Store) DisplayName() string {
	if s.Name == "" {
		return "当店"
	}
	return s.Name
}

const (
	RoleOwner = "owner"
	RoleStaff = "staff"
)

// StoreUser links a user to a store with a role
type StoreUser struct {
	ID        string    `json:"id"`
	StoreID   string    `json:"storeId"`
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}
