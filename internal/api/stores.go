package api

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xaenox/hitome/internal/models"
	"github.com/xaenox/hitome/internal/storage"
)

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// storeView is the public shape of a store. Credentials never leave the
// server, only whether each channel is connected.
type storeView struct {
	*models.Store
	LineConnected   bool `json:"lineConnected"`
	GoogleConnected bool `json:"googleConnected"`
}

func newStoreView(st *models.Store) storeView {
	return storeView{
		Store:           st,
		LineConnected:   st.LineConnected(),
		GoogleConnected: st.GoogleConnected(),
	}
}

// currentStoreView adds the webhook paths the owner pastes into LINE and Pub/Sub
type currentStoreView struct {
	storeView
	LineWebhookPath   string `json:"lineWebhookPath,omitempty"`
	GoogleWebhookPath string `json:"googleWebhookPath,omitempty"`
}

func (s *Server) listStores(c echo.Context) error {
	stores, err := s.storage.ListUserStores(c.Request().Context(), userFrom(c).ID)
	if err != nil {
		return storageError(err, "Stores not found")
	}
	views := make([]storeView, 0, len(stores))
	for _, st := range stores {
		views = append(views, newStoreView(st))
	}
	return c.JSON(http.StatusOK, map[string]any{"stores": views, "success": true})
}

type createStoreRequest struct {
	Name             string               `json:"name"`
	BusinessHours    models.BusinessHours `json:"businessHours"`
	Tone             models.Tone          `json:"tone"`
	Category         models.Category      `json:"category"`
	AlertSegment     models.AlertSegment  `json:"alertSegment"`
	AutoReplyEnabled bool                 `json:"autoReplyEnabled"`
}

func (s *Server) createStore(c echo.Context) error {
	var req createStoreRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.BusinessHours.Start == "" || req.BusinessHours.End == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Name and business hours are required")
	}
	if req.Tone == "" {
		req.Tone = models.ToneStandard
	}
	if req.Category == "" {
		req.Category = models.CategorySalon
	}
	if req.AlertSegment == "" {
		req.AlertSegment = models.AlertStandard
	}
	if err := validateSettings(req.BusinessHours, req.Tone, req.Category, req.AlertSegment); err != nil {
		return err
	}

	user := userFrom(c)
	sess := sessionFrom(c)
	now := s.now()
	store := &models.Store{
		ID:                 models.NewID("store"),
		Name:               req.Name,
		OwnerID:            user.ID,
		BusinessHours:      req.BusinessHours,
		Tone:               req.Tone,
		Category:           req.Category,
		AlertSegment:       req.AlertSegment,
		AutoReplyEnabled:   req.AutoReplyEnabled,
		GoogleWebhookToken: models.NewID(""),
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	ctx := c.Request().Context()
	if err := s.storage.CreateStore(ctx, store); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create store").SetInternal(err)
	}
	if err := s.storage.UpdateSessionStore(ctx, sess.ID, store.ID); err != nil {
		s.logger.Warn("Failed to switch session to new store", zap.String("store_id", store.ID), zap.Error(err))
	}

	s.logger.Info("Store created", zap.String("store_id", store.ID), zap.String("owner_id", user.ID))
	return c.JSON(http.StatusCreated, map[string]any{
		"success": true,
		"storeId": store.ID,
		"store":   newStoreView(store),
	})
}

type switchStoreRequest struct {
	StoreID string `json:"storeId"`
}

func (s *Server) switchStore(c echo.Context) error {
	var req switchStoreRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON")
	}
	if req.StoreID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Store ID is required")
	}

	ctx := c.Request().Context()
	sess := sessionFrom(c)
	if _, err := s.storage.GetStoreRole(ctx, sess.UserID, req.StoreID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return echo.NewHTTPError(http.StatusForbidden, "Access denied")
		}
		return storageError(err, "Store not found")
	}
	if _, err := s.storage.GetStore(ctx, req.StoreID); err != nil {
		return storageError(err, "Store not found")
	}
	if err := s.storage.UpdateSessionStore(ctx, sess.ID, req.StoreID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to switch store").SetInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) currentStore(c echo.Context) error {
	store := storeFrom(c)
	view := currentStoreView{storeView: newStoreView(store)}
	if store.LineChannelID != "" {
		view.LineWebhookPath = "/api/webhook/line/" + store.LineChannelID
	}
	if store.GoogleWebhookToken != "" {
		view.GoogleWebhookPath = "/api/webhook/google/" + store.ID + "?token=" + store.GoogleWebhookToken
	}
	return c.JSON(http.StatusOK, map[string]any{"store": view, "success": true})
}

// updateStoreRequest uses pointers so omitted fields stay unchanged and
// empty strings clear credentials
type updateStoreRequest struct {
	Name              *string               `json:"name"`
	BusinessHours     *models.BusinessHours `json:"businessHours"`
	Tone              *models.Tone          `json:"tone"`
	Category          *models.Category      `json:"category"`
	AlertSegment      *models.AlertSegment  `json:"alertSegment"`
	AutoReplyEnabled  *bool                 `json:"autoReplyEnabled"`
	LineChannelID     *string               `json:"lineChannelId"`
	LineChannelSecret *string               `json:"lineChannelSecret"`
	LineAccessToken   *string               `json:"lineAccessToken"`
	GoogleAccessToken *string               `json:"googleAccessToken"`
	GoogleBusinessID  *string               `json:"googleBusinessId"`
	TelegramChatID    *int64                `json:"telegramChatId"`
}

func (s *Server) updateCurrentStore(c echo.Context) error {
	var req updateStoreRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON")
	}

	store := storeFrom(c)
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "Name is required")
		}
		store.Name = name
	}
	if req.BusinessHours != nil {
		store.BusinessHours = *req.BusinessHours
	}
	if req.Tone != nil {
		store.Tone = *req.Tone
	}
	if req.Category != nil {
		store.Category = *req.Category
	}
	if req.AlertSegment != nil {
		store.AlertSegment = *req.AlertSegment
	}
	if req.AutoReplyEnabled != nil {
		store.AutoReplyEnabled = *req.AutoReplyEnabled
	}
	setTrimmed(&store.LineChannelID, req.LineChannelID)
	setTrimmed(&store.LineChannelSecret, req.LineChannelSecret)
	setTrimmed(&store.LineAccessToken, req.LineAccessToken)
	setTrimmed(&store.GoogleAccessToken, req.GoogleAccessToken)
	setTrimmed(&store.GoogleBusinessID, req.GoogleBusinessID)
	if req.TelegramChatID != nil {
		store.TelegramChatID = *req.TelegramChatID
	}
	if err := validateSettings(store.BusinessHours, store.Tone, store.Category, store.AlertSegment); err != nil {
		return err
	}

	ctx := c.Request().Context()
	if store.LineChannelID != "" {
		other, err := s.storage.GetStoreByLineChannel(ctx, store.LineChannelID)
		switch {
		case err == nil && other.ID != store.ID:
			return echo.NewHTTPError(http.StatusConflict, "LINE channel is already connected to another store")
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return storageError(err, "Store not found")
		}
	}

	store.UpdatedAt = s.now()
	if err := s.storage.UpdateStore(ctx, store); err != nil {
		return storageError(err, "Store not found")
	}
	return c.JSON(http.StatusOK, map[string]any{"store": newStoreView(store), "success": true})
}

func (s *Server) deleteStore(c echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()
	sess := sessionFrom(c)

	role, err := s.storage.GetStoreRole(ctx, sess.UserID, id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return storageError(err, "Store not found")
	}
	if role != models.RoleOwner {
		return echo.NewHTTPError(http.StatusForbidden, "Only the owner can delete a store")
	}
	if err := s.storage.DeactivateStore(ctx, id); err != nil {
		return storageError(err, "Store not found")
	}
	if sess.StoreID == id {
		if err := s.storage.UpdateSessionStore(ctx, sess.ID, ""); err != nil {
			s.logger.Warn("Failed to clear current store", zap.String("store_id", id), zap.Error(err))
		}
	}

	s.logger.Info("Store deactivated", zap.String("store_id", id), zap.String("user_id", sess.UserID))
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func validateSettings(hours models.BusinessHours, tone models.Tone, category models.Category, segment models.AlertSegment) error {
	if !clockPattern.MatchString(hours.Start) || !clockPattern.MatchString(hours.End) {
		return echo.NewHTTPError(http.StatusBadRequest, "Business hours must be HH:MM")
	}
	if !tone.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid tone")
	}
	if !category.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid category")
	}
	if !segment.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid alert segment")
	}
	return nil
}

func setTrimmed(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}
