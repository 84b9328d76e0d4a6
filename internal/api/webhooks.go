package api

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xaenox/hitome/internal/google"
	"github.com/xaenox/hitome/internal/line"
	"github.com/xaenox/hitome/internal/models"
	"github.com/xaenox/hitome/internal/storage"
)

const maxWebhookBody = 1 << 20

func (s *Server) lineWebhookInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "LINE Webhook endpoint",
	})
}

func (s *Server) lineWebhook(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	store, err := s.lineStore(c)
	if err != nil {
		return err
	}
	if store.LineChannelSecret == "" || store.LineAccessToken == "" {
		return echo.NewHTTPError(http.StatusInternalServerError, "Not configured").
			SetInternal(errors.New("store " + store.ID + " has no LINE credentials"))
	}

	switch err := line.ValidateSignature(store.LineChannelSecret, body, c.Request().Header.Get(line.SignatureHeader)); {
	case errors.Is(err, line.ErrNoSignature):
		return echo.NewHTTPError(http.StatusUnauthorized, "No signature")
	case err != nil:
		s.logger.Warn("Rejected LINE webhook", zap.String("store_id", store.ID), zap.Error(err))
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid signature")
	}

	events, err := line.ParseEvents(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON")
	}

	for _, ev := range events {
		if _, err := s.inbox.IngestLineEvent(ctx, store, ev); err != nil {
			s.logger.Error("Failed to process LINE event",
				zap.String("store_id", store.ID),
				zap.String("event_id", ev.ID),
				zap.Error(err))
		}
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// lineStore resolves the store from the path channel id or the configured
// default channel. Credentials missing on the default store come from config.
func (s *Server) lineStore(c echo.Context) (*models.Store, error) {
	ctx := c.Request().Context()
	channelID := c.Param("channelID")
	isDefault := channelID == ""
	if isDefault {
		channelID = s.opts.DefaultLine.ChannelID
	}
	if channelID == "" {
		return nil, echo.NewHTTPError(http.StatusNotFound, "Unknown channel")
	}

	store, err := s.storage.GetStoreByLineChannel(ctx, channelID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "Unknown channel")
	}
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "Internal server error").SetInternal(err)
	}
	if isDefault {
		if store.LineChannelSecret == "" {
			store.LineChannelSecret = s.opts.DefaultLine.ChannelSecret
		}
		if store.LineAccessToken == "" {
			store.LineAccessToken = s.opts.DefaultLine.AccessToken
		}
	}
	return store, nil
}

func (s *Server) googleWebhook(c echo.Context) error {
	ctx := c.Request().Context()
	store, err := s.storage.GetStore(ctx, c.Param("storeID"))
	if err != nil {
		return storageError(err, "Store not found")
	}
	if store.GoogleWebhookToken == "" {
		return echo.NewHTTPError(http.StatusInternalServerError, "Not configured").
			SetInternal(errors.New("store " + store.ID + " has no Google webhook token"))
	}
	token := c.QueryParam("token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(store.GoogleWebhookToken)) != 1 {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
	}

	body, err := readBody(c)
	if err != nil {
		return err
	}
	review, err := google.DecodePushEnvelope(body)
	if err != nil {
		s.logger.Warn("Rejected Google notification", zap.String("store_id", store.ID), zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid notification")
	}

	if _, err := s.inbox.IngestGoogleReview(ctx, store, review); err != nil {
		s.logger.Error("Failed to process Google review",
			zap.String("store_id", store.ID),
			zap.String("review", review.Name),
			zap.Error(err))
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func readBody(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Failed to read body").SetInternal(err)
	}
	if len(body) > maxWebhookBody {
		return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "Body too large")
	}
	return body, nil
}
