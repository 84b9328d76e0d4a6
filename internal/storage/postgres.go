package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/xaenox/hitome/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := NewPostgresStorageFromDB(db, logger)

	// Initialize database schema
	if err := storage.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		zap.String("host", config.Host),
		zap.String("database", config.DBName))
	return storage, nil
}

// NewPostgresStorageFromDB wraps an already opened handle without running migrations
func NewPostgresStorageFromDB(db *sql.DB, logger *zap.Logger) *PostgresStorage {
	return &PostgresStorage{db: db, logger: logger}
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err = s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

// User methods

const userColumns = `id, line_user_id, name, email, avatar_url, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	user := &models.User{}
	var email, avatar sql.NullString
	if err := row.Scan(&user.ID, &user.LineUserID, &user.Name, &email, &avatar, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, err
	}
	user.Email = email.String
	user.AvatarURL = avatar.String
	return user, nil
}

func (s *PostgresStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "error getting user")
	}
	return user, nil
}

func (s *PostgresStorage) GetUserByLineID(ctx context.Context, lineUserID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE line_user_id = $1`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, lineUserID))
	if err != nil {
		return nil, notFound(err, "error getting user by LINE id")
	}
	return user, nil
}

func (s *PostgresStorage) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, line_user_id, name, email, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.LineUserID,
		user.Name,
		nullString(user.Email),
		nullString(user.AvatarURL),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("error creating user: %w", err)
	}
	return nil
}

func (s *PostgresStorage) UpdateUserProfile(ctx context.Context, id, name, avatarURL string) error {
	query := `UPDATE users SET name = $2, avatar_url = $3, updated_at = NOW() WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query, id, name, nullString(avatarURL))
	if err != nil {
		return fmt.Errorf("error updating user: %w", err)
	}
	return requireRow(res)
}

// Store methods

const storeColumns = `id, name, owner_id, business_hours_start, business_hours_end, tone, category,
	alert_segment, auto_reply_enabled, line_channel_id, line_channel_secret, line_access_token,
	google_access_token, google_business_id, google_webhook_token, telegram_chat_id, is_active,
	created_at, updated_at`

func scanStore(row interface{ Scan(...any) error }) (*models.Store, error) {
	st := &models.Store{}
	var (
		channelID, secret, token, googleToken, googleID, webhookToken sql.NullString
		chatID                                                        sql.NullInt64
	)
	err := row.Scan(
		&st.ID,
		&st.Name,
		&st.OwnerID,
		&st.BusinessHours.Start,
		&st.BusinessHours.End,
		&st.Tone,
		&st.Category,
		&st.AlertSegment,
		&st.AutoReplyEnabled,
		&channelID,
		&secret,
		&token,
		&googleToken,
		&googleID,
		&webhookToken,
		&chatID,
		&st.IsActive,
		&st.CreatedAt,
		&st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	st.LineChannelID = channelID.String
	st.LineChannelSecret = secret.String
	st.LineAccessToken = token.String
	st.GoogleAccessToken = googleToken.String
	st.GoogleBusinessID = googleID.String
	st.GoogleWebhookToken = webhookToken.String
	st.TelegramChatID = chatID.Int64
	return st, nil
}

func (s *PostgresStorage) CreateStore(ctx context.Context, store *models.Store) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO stores (id, name, owner_id, business_hours_start, business_hours_end, tone, category,
			alert_segment, auto_reply_enabled, line_channel_id, line_channel_secret, line_access_token,
			google_access_token, google_business_id, google_webhook_token, telegram_chat_id, is_active,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err = tx.ExecContext(ctx, query,
		store.ID,
		store.Name,
		store.OwnerID,
		store.BusinessHours.Start,
		store.BusinessHours.End,
		store.Tone,
		store.Category,
		store.AlertSegment,
		store.AutoReplyEnabled,
		nullString(store.LineChannelID),
		nullString(store.LineChannelSecret),
		nullString(store.LineAccessToken),
		nullString(store.GoogleAccessToken),
		nullString(store.GoogleBusinessID),
		nullString(store.GoogleWebhookToken),
		nullInt64(store.TelegramChatID),
		store.IsActive,
		store.CreatedAt,
		store.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("error creating store: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO store_users (id, store_id, user_id, role, created_at) VALUES ($1, $2, $3, $4, $5)`,
		models.NewID("su"), store.ID, store.OwnerID, models.RoleOwner, store.CreatedAt)
	if err != nil {
		return fmt.Errorf("error linking store owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing store: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetStore(ctx context.Context, id string) (*models.Store, error) {
	query := `SELECT ` + storeColumns + ` FROM stores WHERE id = $1 AND is_active = TRUE`
	st, err := scanStore(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "error getting store")
	}
	return st, nil
}

func (s *PostgresStorage) GetStoreByLineChannel(ctx context.Context, channelID string) (*models.Store, error) {
	query := `SELECT ` + storeColumns + ` FROM stores WHERE line_channel_id = $1 AND is_active = TRUE LIMIT 1`
	st, err := scanStore(s.db.QueryRowContext(ctx, query, channelID))
	if err != nil {
		return nil, notFound(err, "error getting store by LINE channel")
	}
	return st, nil
}

func (s *PostgresStorage) ListUserStores(ctx context.Context, userID string) ([]*models.Store, error) {
	query := `
		SELECT ` + storeColumns + `
		FROM stores
		WHERE id IN (SELECT store_id FROM store_users WHERE user_id = $1) AND is_active = TRUE
		ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying stores: %w", err)
	}
	defer rows.Close()

	stores := []*models.Store{}
	for rows.Next() {
		st, err := scanStore(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning store: %w", err)
		}
		stores = append(stores, st)
	}
	return stores, rows.Err()
}

func (s *PostgresStorage) GetStoreRole(ctx context.Context, userID, storeID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM store_users WHERE user_id = $1 AND store_id = $2`,
		userID, storeID).Scan(&role)
	if err != nil {
		return "", notFound(err, "error getting store role")
	}
	return role, nil
}

func (s *PostgresStorage) UpdateStore(ctx context.Context, store *models.Store) error {
	query := `
		UPDATE stores SET
			name = $2, business_hours_start = $3, business_hours_end = $4, tone = $5, category = $6,
			alert_segment = $7, auto_reply_enabled = $8, line_channel_id = $9, line_channel_secret = $10,
			line_access_token = $11, google_access_token = $12, google_business_id = $13,
			google_webhook_token = $14, telegram_chat_id = $15, updated_at = $16
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query,
		store.ID,
		store.Name,
		store.BusinessHours.Start,
		store.BusinessHours.End,
		store.Tone,
		store.Category,
		store.AlertSegment,
		store.AutoReplyEnabled,
		nullString(store.LineChannelID),
		nullString(store.LineChannelSecret),
		nullString(store.LineAccessToken),
		nullString(store.GoogleAccessToken),
		nullString(store.GoogleBusinessID),
		nullString(store.GoogleWebhookToken),
		nullInt64(store.TelegramChatID),
		store.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("error updating store: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStorage) DeactivateStore(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE stores SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deactivating store: %w", err)
	}
	return requireRow(res)
}

// Session methods

func (s *PostgresStorage) CreateSession(ctx context.Context, session *models.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, store_id, expires_at, created_at) VALUES ($1, $2, $3, $4, $5)`,
		session.ID, session.UserID, nullString(session.StoreID), session.ExpiresAt, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating session: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetSession(ctx context.Context, id string, now time.Time) (*models.Session, error) {
	session := &models.Session{}
	var storeID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, store_id, expires_at, created_at FROM sessions WHERE id = $1 AND expires_at > $2`,
		id, now).Scan(&session.ID, &session.UserID, &storeID, &session.ExpiresAt, &session.CreatedAt)
	if err != nil {
		return nil, notFound(err, "error getting session")
	}
	session.StoreID = storeID.String
	return session, nil
}

func (s *PostgresStorage) UpdateSessionStore(ctx context.Context, id, storeID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET store_id = $2 WHERE id = $1`, id, nullString(storeID))
	if err != nil {
		return fmt.Errorf("error updating session: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStorage) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("error deleting session: %w", err)
	}
	return nil
}

// Thread methods

const threadColumns = `id, store_id, channel, user_name, user_id, status, tags, last_message,
	ai_summary, ai_intent, ai_response, has_danger_word, is_read, google_rating, google_review_id,
	google_review_comment, created_at, updated_at, received_at, completed_at`

func scanThread(row interface{ Scan(...any) error }) (*models.Thread, error) {
	t := &models.Thread{}
	var (
		userID, reviewID, reviewComment sql.NullString
		rating                          sql.NullInt64
		completedAt                     sql.NullTime
		tags                            pq.StringArray
	)
	err := row.Scan(
		&t.ID,
		&t.StoreID,
		&t.Channel,
		&t.UserName,
		&userID,
		&t.Status,
		&tags,
		&t.LastMessage,
		&t.AISummary,
		&t.AIIntent,
		&t.AIResponse,
		&t.HasDangerWord,
		&t.IsRead,
		&rating,
		&reviewID,
		&reviewComment,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.ReceivedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}
	t.UserID = userID.String
	t.GoogleRating = int(rating.Int64)
	t.GoogleReviewID = reviewID.String
	t.GoogleReviewComment = reviewComment.String
	if completedAt.Valid {
		completed := completedAt.Time
		t.CompletedAt = &completed
	}
	t.Tags = make([]models.Tag, 0, len(tags))
	for _, tag := range tags {
		t.Tags = append(t.Tags, models.Tag(tag))
	}
	return t, nil
}

func tagArray(tags []models.Tag) pq.StringArray {
	arr := make(pq.StringArray, 0, len(tags))
	for _, tag := range tags {
		arr = append(arr, string(tag))
	}
	return arr
}

func (s *PostgresStorage) CreateThread(ctx context.Context, thread *models.Thread) error {
	query := `
		INSERT INTO threads (` + threadColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err := s.db.ExecContext(ctx, query,
		thread.ID,
		thread.StoreID,
		thread.Channel,
		thread.UserName,
		nullString(thread.UserID),
		thread.Status,
		tagArray(thread.Tags),
		thread.LastMessage,
		thread.AISummary,
		thread.AIIntent,
		thread.AIResponse,
		thread.HasDangerWord,
		thread.IsRead,
		nullInt64(int64(thread.GoogleRating)),
		nullString(thread.GoogleReviewID),
		nullString(thread.GoogleReviewComment),
		thread.CreatedAt,
		thread.UpdatedAt,
		thread.ReceivedAt,
		thread.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("error creating thread: %w", err)
	}
	return nil
}

func (s *PostgresStorage) UpdateThread(ctx context.Context, thread *models.Thread) error {
	query := `
		UPDATE threads SET
			user_name = $3, status = $4, tags = $5, last_message = $6, ai_summary = $7, ai_intent = $8,
			ai_response = $9, has_danger_word = $10, is_read = $11, google_rating = $12,
			google_review_comment = $13, updated_at = $14, received_at = $15, completed_at = $16
		WHERE id = $1 AND store_id = $2`

	res, err := s.db.ExecContext(ctx, query,
		thread.ID,
		thread.StoreID,
		thread.UserName,
		thread.Status,
		tagArray(thread.Tags),
		thread.LastMessage,
		thread.AISummary,
		thread.AIIntent,
		thread.AIResponse,
		thread.HasDangerWord,
		thread.IsRead,
		nullInt64(int64(thread.GoogleRating)),
		nullString(thread.GoogleReviewComment),
		thread.UpdatedAt,
		thread.ReceivedAt,
		thread.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("error updating thread: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStorage) GetThread(ctx context.Context, storeID, id string) (*models.Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM threads WHERE id = $1 AND store_id = $2`
	t, err := scanThread(s.db.QueryRowContext(ctx, query, id, storeID))
	if err != nil {
		return nil, notFound(err, "error getting thread")
	}
	return t, nil
}

func (s *PostgresStorage) FindLatestThread(ctx context.Context, storeID string, channel models.Channel, userID string) (*models.Thread, error) {
	if userID == "" {
		return nil, ErrNotFound
	}
	query := `
		SELECT ` + threadColumns + `
		FROM threads
		WHERE store_id = $1 AND channel = $2 AND user_id = $3
		ORDER BY created_at DESC
		LIMIT 1`
	t, err := scanThread(s.db.QueryRowContext(ctx, query, storeID, channel, userID))
	if err != nil {
		return nil, notFound(err, "error finding thread")
	}
	return t, nil
}

func (s *PostgresStorage) FindThreadByReview(ctx context.Context, storeID, reviewID string) (*models.Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM threads WHERE store_id = $1 AND google_review_id = $2 LIMIT 1`
	t, err := scanThread(s.db.QueryRowContext(ctx, query, storeID, reviewID))
	if err != nil {
		return nil, notFound(err, "error finding review thread")
	}
	return t, nil
}

func (s *PostgresStorage) ListThreads(ctx context.Context, filter models.ThreadFilter) ([]*models.Thread, error) {
	query := `SELECT ` + threadColumns + ` FROM threads WHERE store_id = $1`
	args := []any{filter.StoreID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Channel != "" {
		args = append(args, filter.Channel)
		query += fmt.Sprintf(" AND channel = $%d", len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		query += fmt.Sprintf(" AND updated_at >= $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying threads: %w", err)
	}
	defer rows.Close()

	threads := []*models.Thread{}
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning thread: %w", err)
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

func (s *PostgresStorage) DeleteThreads(ctx context.Context, storeID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE store_id = $1`, storeID)
	if err != nil {
		return 0, fmt.Errorf("error deleting threads: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStorage) AddMessage(ctx context.Context, message *models.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, thread_id, sender, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		message.ID, message.ThreadID, message.Sender, message.Content, message.CreatedAt)
	if err != nil {
		return fmt.Errorf("error adding message: %w", err)
	}
	return nil
}

func (s *PostgresStorage) ListMessages(ctx context.Context, threadID string) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, sender, content, created_at
		FROM messages
		WHERE thread_id = $1
		ORDER BY created_at ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	messages := []*models.Message{}
	for rows.Next() {
		m := &models.Message{}
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Sender, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Danger word methods

func (s *PostgresStorage) ListDangerWords(ctx context.Context, storeID string) ([]*models.DangerWord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, word, created_at
		FROM danger_words
		WHERE store_id IS NULL OR store_id = $1
		ORDER BY store_id NULLS FIRST, created_at ASC`, storeID)
	if err != nil {
		return nil, fmt.Errorf("error querying danger words: %w", err)
	}
	defer rows.Close()

	words := []*models.DangerWord{}
	for rows.Next() {
		w := &models.DangerWord{}
		var sid sql.NullString
		if err := rows.Scan(&w.ID, &sid, &w.Word, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning danger word: %w", err)
		}
		w.StoreID = sid.String
		words = append(words, w)
	}
	return words, rows.Err()
}

func (s *PostgresStorage) AddDangerWord(ctx context.Context, word *models.DangerWord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO danger_words (id, store_id, word, created_at) VALUES ($1, $2, $3, $4)`,
		word.ID, nullString(word.StoreID), word.Word, word.CreatedAt)
	if err != nil {
		return fmt.Errorf("error adding danger word: %w", err)
	}
	return nil
}

func (s *PostgresStorage) DeleteDangerWord(ctx context.Context, storeID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM danger_words WHERE id = $1 AND store_id = $2`, id, storeID)
	if err != nil {
		return fmt.Errorf("error deleting danger word: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

func notFound(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}
