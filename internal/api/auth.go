package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xaenox/hitome/internal/line"
	"github.com/xaenox/hitome/internal/models"
	"github.com/xaenox/hitome/internal/storage"
)

const callbackPath = "/api/auth/line/callback"

func (s *Server) redirectURI(c echo.Context) string {
	if s.opts.LoginRedirectURL != "" {
		return s.opts.LoginRedirectURL
	}
	return c.Scheme() + "://" + c.Request().Host + callbackPath
}

// loginRedirect sends the browser to LINE Login with a CSRF state cookie
func (s *Server) loginRedirect(c echo.Context) error {
	state := uuid.NewString()
	nonce := uuid.NewString()
	s.setCookie(c, stateCookie, state, stateTTL)
	return c.Redirect(http.StatusFound, s.login.AuthCodeURL(state, nonce, s.redirectURI(c)))
}

func (s *Server) loginCallback(c echo.Context) error {
	code := c.QueryParam("code")
	state := c.QueryParam("state")
	if code == "" || state == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request")
	}
	stored, err := c.Cookie(stateCookie)
	if err != nil || stored.Value != state {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid state")
	}

	ctx := c.Request().Context()
	profile, err := s.login.Exchange(ctx, code, s.redirectURI(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Authentication failed").SetInternal(err)
	}

	user, err := s.upsertUser(c, profile)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Authentication failed").SetInternal(err)
	}

	now := s.now()
	sess := &models.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: now.Add(s.opts.SessionTTL),
		CreatedAt: now,
	}
	if stores, err := s.storage.ListUserStores(ctx, user.ID); err == nil && len(stores) > 0 {
		sess.StoreID = stores[0].ID
	}
	if err := s.storage.CreateSession(ctx, sess); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Authentication failed").SetInternal(err)
	}

	s.logger.Info("User signed in", zap.String("user_id", user.ID))
	s.setCookie(c, sessionCookie, sess.ID, s.opts.SessionTTL)
	s.clearCookie(c, stateCookie)
	return c.Redirect(http.StatusFound, "/")
}

func (s *Server) upsertUser(c echo.Context, profile *line.Profile) (*models.User, error) {
	ctx := c.Request().Context()
	user, err := s.storage.GetUserByLineID(ctx, profile.UserID)
	switch {
	case err == nil:
		if err := s.storage.UpdateUserProfile(ctx, user.ID, profile.DisplayName, profile.PictureURL); err != nil {
			return nil, err
		}
		user.Name = profile.DisplayName
		user.AvatarURL = profile.PictureURL
		return user, nil
	case errors.Is(err, storage.ErrNotFound):
		now := s.now()
		user = &models.User{
			ID:         models.NewID("user"),
			LineUserID: profile.UserID,
			Name:       profile.DisplayName,
			AvatarURL:  profile.PictureURL,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.storage.CreateUser(ctx, user); err != nil {
			return nil, err
		}
		return user, nil
	default:
		return nil, err
	}
}

type meResponse struct {
	Authenticated  bool         `json:"authenticated"`
	User           *models.User `json:"user"`
	CurrentStoreID string       `json:"currentStoreId"`
	Stores         []storeView  `json:"stores"`
}

func (s *Server) me(c echo.Context) error {
	sess, user, err := s.loadSession(c)
	if errors.Is(err, errNoSession) {
		return c.JSON(http.StatusUnauthorized, map[string]bool{"authenticated": false})
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error").SetInternal(err)
	}

	ctx := c.Request().Context()
	stores, err := s.storage.ListUserStores(ctx, user.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error").SetInternal(err)
	}

	current := sess.StoreID
	if current == "" && len(stores) > 0 {
		current = stores[0].ID
		if err := s.storage.UpdateSessionStore(ctx, sess.ID, current); err != nil {
			s.logger.Warn("Failed to select default store", zap.String("session_user", user.ID), zap.Error(err))
		}
	}

	views := make([]storeView, 0, len(stores))
	for _, st := range stores {
		views = append(views, newStoreView(st))
	}
	return c.JSON(http.StatusOK, meResponse{
		Authenticated:  true,
		User:           user,
		CurrentStoreID: current,
		Stores:         views,
	})
}

func (s *Server) logout(c echo.Context) error {
	if cookie, err := c.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		if err := s.storage.DeleteSession(c.Request().Context(), cookie.Value); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error").SetInternal(err)
		}
	}
	s.clearCookie(c, sessionCookie)
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}
