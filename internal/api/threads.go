package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"github.com/xaenox/hitome/internal/classifier"
	"github.com/xaenox/hitome/internal/inbox"
	"github.com/xaenox/hitome/internal/models"
)

const (
	defaultThreadLimit = 100
	maxThreadLimit     = 500
	maxDangerWordLen   = 50
)

func (s *Server) listThreads(c echo.Context) error {
	filter := models.ThreadFilter{
		StoreID: storeFrom(c).ID,
		Status:  models.ThreadStatus(c.QueryParam("status")),
		Channel: models.Channel(c.QueryParam("channel")),
		Limit:   defaultThreadLimit,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid status")
	}
	if filter.Channel != "" && !filter.Channel.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid channel")
	}
	if raw := c.QueryParam("since"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ms < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid since")
		}
		filter.Since = time.UnixMilli(ms)
	}
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid limit")
		}
		filter.Limit = min(n, maxThreadLimit)
	}

	threads, err := s.inbox.ListThreads(c.Request().Context(), filter)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error").SetInternal(err)
	}
	if threads == nil {
		threads = []*models.Thread{}
	}
	return c.JSON(http.StatusOK, map[string]any{"threads": threads, "success": true})
}

func (s *Server) getThread(c echo.Context) error {
	thread, err := s.inbox.GetThread(c.Request().Context(), storeFrom(c).ID, c.Param("id"))
	if err != nil {
		return storageError(err, "Thread not found")
	}
	return c.JSON(http.StatusOK, map[string]any{"thread": thread, "success": true})
}

func (s *Server) resetThreads(c echo.Context) error {
	n, err := s.inbox.Reset(c.Request().Context(), storeFrom(c).ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error").SetInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "deleted": n})
}

func (s *Server) listMessages(c echo.Context) error {
	messages, err := s.inbox.Messages(c.Request().Context(), storeFrom(c).ID, c.Param("id"))
	if err != nil {
		return storageError(err, "Thread not found")
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	return c.JSON(http.StatusOK, map[string]any{"messages": messages, "success": true})
}

type statusRequest struct {
	Status models.ThreadStatus `json:"status"`
}

func (s *Server) updateStatus(c echo.Context) error {
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON")
	}
	thread, err := s.inbox.UpdateStatus(c.Request().Context(), storeFrom(c).ID, c.Param("id"), req.Status)
	if errors.Is(err, inbox.ErrInvalidStatus) {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid status")
	}
	if err != nil {
		return storageError(err, "Thread not found")
	}
	return c.JSON(http.StatusOK, map[string]any{"thread": thread, "success": true})
}

type replyRequest struct {
	Message string `json:"message"`
}

func (s *Server) sendReply(c echo.Context) error {
	var req replyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON")
	}
	msg, err := s.inbox.ManualReply(c.Request().Context(), storeFrom(c), c.Param("id"), req.Message)
	switch {
	case err == nil:
	case errors.Is(err, inbox.ErrEmptyMessage):
		return echo.NewHTTPError(http.StatusBadRequest, "Message is required")
	case errors.Is(err, inbox.ErrNoRecipient):
		return echo.NewHTTPError(http.StatusBadRequest, "Thread has no reply target")
	case errors.Is(err, inbox.ErrDelivery):
		return echo.NewHTTPError(http.StatusBadGateway, "Failed to send reply").SetInternal(err)
	default:
		return storageError(err, "Thread not found")
	}
	return c.JSON(http.StatusOK, map[string]any{"message": msg, "success": true})
}

func (s *Server) kpi(c echo.Context) error {
	metrics, err := s.inbox.KPI(c.Request().Context(), storeFrom(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error").SetInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"kpi": metrics, "success": true})
}

func (s *Server) listDangerWords(c echo.Context) error {
	words, err := s.storage.ListDangerWords(c.Request().Context(), storeFrom(c).ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error").SetInternal(err)
	}
	if words == nil {
		words = []*models.DangerWord{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"words":    words,
		"defaults": classifier.DefaultDangerWords,
		"success":  true,
	})
}

type dangerWordRequest struct {
	Word string `json:"word"`
}

func (s *Server) addDangerWord(c echo.Context) error {
	var req dangerWordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON")
	}
	word := strings.TrimSpace(req.Word)
	if word == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Word is required")
	}
	if utf8.RuneCountInString(word) > maxDangerWordLen {
		return echo.NewHTTPError(http.StatusBadRequest, "Word is too long")
	}

	dw := &models.DangerWord{
		ID:        models.NewID("dw"),
		StoreID:   storeFrom(c).ID,
		Word:      word,
		CreatedAt: s.now(),
	}
	if err := s.storage.AddDangerWord(c.Request().Context(), dw); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to add word").SetInternal(err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"word": dw, "success": true})
}

func (s *Server) deleteDangerWord(c echo.Context) error {
	if err := s.storage.DeleteDangerWord(c.Request().Context(), storeFrom(c).ID, c.Param("id")); err != nil {
		return storageError(err, "Word not found")
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}
