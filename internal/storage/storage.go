package storage

import (
	"context"
	"errors"
	"time"

	"github.com/xaenox/hitome/internal/models"
)

// ErrNotFound is returned when a row does not exist, is inactive or has expired
var ErrNotFound = errors.New("storage: not found")

type Storage interface {
	UserStorage
	StoreStorage
	SessionStorage
	ThreadStorage
	DangerWordStorage
	Close() error
}

type UserStorage interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByLineID(ctx context.Context, lineUserID string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUserProfile(ctx context.Context, id, name, avatarURL string) error
}

type StoreStorage interface {
	// CreateStore inserts the store and links ownerID to it as owner
	CreateStore(ctx context.Context, store *models.Store) error
	GetStore(ctx context.Context, id string) (*models.Store, error)
	GetStoreByLineChannel(ctx context.Context, channelID string) (*models.Store, error)
	ListUserStores(ctx context.Context, userID string) ([]*models.Store, error)
	GetStoreRole(ctx context.Context, userID, storeID string) (string, error)
	UpdateStore(ctx context.Context, store *models.Store) error
	DeactivateStore(ctx context.Context, id string) error
}

type SessionStorage interface {
	CreateSession(ctx context.Context, session *models.Session) error
	// GetSession returns ErrNotFound for unknown and expired sessions
	GetSession(ctx context.Context, id string, now time.Time) (*models.Session, error)
	UpdateSessionStore(ctx context.Context, id, storeID string) error
	DeleteSession(ctx context.Context, id string) error
}

type ThreadStorage interface {
	CreateThread(ctx context.Context, thread *models.Thread) error
	UpdateThread(ctx context.Context, thread *models.Thread) error
	GetThread(ctx context.Context, storeID, id string) (*models.Thread, error)
	FindLatestThread(ctx context.Context, storeID string, channel models.Channel, userID string) (*models.Thread, error)
	FindThreadByReview(ctx context.Context, storeID, reviewID string) (*models.Thread, error)
	ListThreads(ctx context.Context, filter models.ThreadFilter) ([]*models.Thread, error)
	DeleteThreads(ctx context.Context, storeID string) (int64, error)
	AddMessage(ctx context.Context, message *models.Message) error
	ListMessages(ctx context.Context, threadID string) ([]*models.Message, error)
}

type DangerWordStorage interface {
	// ListDangerWords returns global words followed by the store's own words
	ListDangerWords(ctx context.Context, storeID string) ([]*models.DangerWord, error)
	AddDangerWord(ctx context.Context, word *models.DangerWord) error
	DeleteDangerWord(ctx context.Context, storeID, id string) error
}
