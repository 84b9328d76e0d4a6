package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xaenox/hitome/internal/models"
)

// MemoryStorage keeps everything in process. Used for local runs and tests.
type MemoryStorage struct {
	mu          sync.RWMutex
	users       map[string]*models.User
	stores      map[string]*models.Store
	storeUsers  map[string]*models.StoreUser
	sessions    map[string]*models.Session
	threads     map[string]*models.Thread
	messages    map[string][]*models.Message
	dangerWords map[string]*models.DangerWord
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:       make(map[string]*models.User),
		stores:      make(map[string]*models.Store),
		storeUsers:  make(map[string]*models.StoreUser),
		sessions:    make(map[string]*models.Session),
		threads:     make(map[string]*models.Thread),
		messages:    make(map[string][]*models.Message),
		dangerWords: make(map[string]*models.DangerWord),
	}
}

// User methods
func (s *MemoryStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if user, exists := s.users[id]; exists {
		u := *user
		return &u, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) GetUserByLineID(ctx context.Context, lineUserID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.LineUserID == lineUserID {
			u := *user
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := *user
	s.users[user.ID] = &u
	return nil
}

func (s *MemoryStorage) UpdateUserProfile(ctx context.Context, id, name, avatarURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[id]
	if !exists {
		return ErrNotFound
	}
	user.Name = name
	user.AvatarURL = avatarURL
	user.UpdatedAt = time.Now()
	return nil
}

// Store methods
func (s *MemoryStorage) CreateStore(ctx context.Context, store *models.Store) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := *store
	s.stores[store.ID] = &st
	link := &models.StoreUser{
		ID:        models.NewID("su"),
		StoreID:   store.ID,
		UserID:    store.OwnerID,
		Role:      models.RoleOwner,
		CreatedAt: store.CreatedAt,
	}
	s.storeUsers[link.ID] = link
	return nil
}

func (s *MemoryStorage) GetStore(ctx context.Context, id string) (*models.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if store, exists := s.stores[id]; exists && store.IsActive {
		st := *store
		return &st, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) GetStoreByLineChannel(ctx context.Context, channelID string) (*models.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, store := range s.stores {
		if store.IsActive && store.LineChannelID != "" && store.LineChannelID == channelID {
			st := *store
			return &st, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) ListUserStores(ctx context.Context, userID string) ([]*models.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stores := []*models.Store{}
	for _, link := range s.storeUsers {
		if link.UserID != userID {
			continue
		}
		if store, exists := s.stores[link.StoreID]; exists && store.IsActive {
			st := *store
			stores = append(stores, &st)
		}
	}
	sort.Slice(stores, func(i, j int) bool {
		return stores[i].CreatedAt.After(stores[j].CreatedAt)
	})
	return stores, nil
}

func (s *MemoryStorage) GetStoreRole(ctx context.Context, userID, storeID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, link := range s.storeUsers {
		if link.UserID == userID && link.StoreID == storeID {
			return link.Role, nil
		}
	}
	return "", ErrNotFound
}

func (s *MemoryStorage) UpdateStore(ctx context.Context, store *models.Store) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.stores[store.ID]; !exists {
		return ErrNotFound
	}
	st := *store
	s.stores[store.ID] = &st
	return nil
}

func (s *MemoryStorage) DeactivateStore(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	store, exists := s.stores[id]
	if !exists {
		return ErrNotFound
	}
	store.IsActive = false
	store.UpdatedAt = time.Now()
	return nil
}

// Session methods
func (s *MemoryStorage) CreateSession(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := *session
	s.sessions[session.ID] = &sess
	return nil
}

func (s *MemoryStorage) GetSession(ctx context.Context, id string, now time.Time) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[id]
	if !exists || session.Expired(now) {
		return nil, ErrNotFound
	}
	sess := *session
	return &sess, nil
}

func (s *MemoryStorage) UpdateSessionStore(ctx context.Context, id, storeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[id]
	if !exists {
		return ErrNotFound
	}
	session.StoreID = storeID
	return nil
}

func (s *MemoryStorage) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

// Thread methods
func (s *MemoryStorage) CreateThread(ctx context.Context, thread *models.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.threads[thread.ID] = copyThread(thread)
	return nil
}

func (s *MemoryStorage) UpdateThread(ctx context.Context, thread *models.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.threads[thread.ID]
	if !exists || existing.StoreID != thread.StoreID {
		return ErrNotFound
	}
	s.threads[thread.ID] = copyThread(thread)
	return nil
}

func (s *MemoryStorage) GetThread(ctx context.Context, storeID, id string) (*models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	thread, exists := s.threads[id]
	if !exists || thread.StoreID != storeID {
		return nil, ErrNotFound
	}
	return copyThread(thread), nil
}

func (s *MemoryStorage) FindLatestThread(ctx context.Context, storeID string, channel models.Channel, userID string) (*models.Thread, error) {
	if userID == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.Thread
	for _, thread := range s.threads {
		if thread.StoreID != storeID || thread.Channel != channel || thread.UserID != userID {
			continue
		}
		if latest == nil || thread.CreatedAt.After(latest.CreatedAt) {
			latest = thread
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return copyThread(latest), nil
}

func (s *MemoryStorage) FindThreadByReview(ctx context.Context, storeID, reviewID string) (*models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, thread := range s.threads {
		if thread.StoreID == storeID && thread.GoogleReviewID != "" && thread.GoogleReviewID == reviewID {
			return copyThread(thread), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) ListThreads(ctx context.Context, filter models.ThreadFilter) ([]*models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	threads := []*models.Thread{}
	for _, thread := range s.threads {
		if filter.StoreID != "" && thread.StoreID != filter.StoreID {
			continue
		}
		if filter.Status != "" && thread.Status != filter.Status {
			continue
		}
		if filter.Channel != "" && thread.Channel != filter.Channel {
			continue
		}
		if !filter.Since.IsZero() && thread.UpdatedAt.Before(filter.Since) {
			continue
		}
		threads = append(threads, copyThread(thread))
	}
	sort.Slice(threads, func(i, j int) bool {
		return threads[i].CreatedAt.After(threads[j].CreatedAt)
	})
	if filter.Limit > 0 && len(threads) > filter.Limit {
		threads = threads[:filter.Limit]
	}
	return threads, nil
}

func (s *MemoryStorage) DeleteThreads(ctx context.Context, storeID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, thread := range s.threads {
		if thread.StoreID == storeID {
			delete(s.threads, id)
			delete(s.messages, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStorage) AddMessage(ctx context.Context, message *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.threads[message.ThreadID]; !exists {
		return ErrNotFound
	}
	m := *message
	s.messages[message.ThreadID] = append(s.messages[message.ThreadID], &m)
	return nil
}

func (s *MemoryStorage) ListMessages(ctx context.Context, threadID string) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := make([]*models.Message, 0, len(s.messages[threadID]))
	for _, m := range s.messages[threadID] {
		msg := *m
		messages = append(messages, &msg)
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}

// Danger word methods
func (s *MemoryStorage) ListDangerWords(ctx context.Context, storeID string) ([]*models.DangerWord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	words := []*models.DangerWord{}
	for _, w := range s.dangerWords {
		if w.StoreID == "" || w.StoreID == storeID {
			word := *w
			words = append(words, &word)
		}
	}
	sort.Slice(words, func(i, j int) bool {
		if (words[i].StoreID == "") != (words[j].StoreID == "") {
			return words[i].StoreID == ""
		}
		return words[i].CreatedAt.Before(words[j].CreatedAt)
	})
	return words, nil
}

func (s *MemoryStorage) AddDangerWord(ctx context.Context, word *models.DangerWord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := *word
	s.dangerWords[word.ID] = &w
	return nil
}

func (s *MemoryStorage) DeleteDangerWord(ctx context.Context, storeID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.dangerWords[id]
	if !exists || w.StoreID == "" || w.StoreID != storeID {
		return ErrNotFound
	}
	delete(s.dangerWords, id)
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}

func copyThread(t *models.Thread) *models.Thread {
	c := *t
	c.Tags = append([]models.Tag(nil), t.Tags...)
	c.Messages = nil
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		c.CompletedAt = &completed
	}
	return &c
}
