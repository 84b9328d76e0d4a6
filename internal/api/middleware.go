package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xaenox/hitome/internal/models"
	"github.com/xaenox/hitome/internal/storage"
)

const (
	sessionCookie = "session_id"
	stateCookie   = "line_auth_state"
	stateTTL      = 10 * time.Minute

	ctxSession = "session"
	ctxUser    = "user"
	ctxStore   = "store"
)

var errNoSession = errors.New("no session")

// loadSession resolves the session cookie to a live session and its user
func (s *Server) loadSession(c echo.Context) (*models.Session, *models.User, error) {
	cookie, err := c.Cookie(sessionCookie)
	if err != nil || cookie.Value == "" {
		return nil, nil, errNoSession
	}
	ctx := c.Request().Context()
	sess, err := s.storage.GetSession(ctx, cookie.Value, s.now())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, errNoSession
		}
		return nil, nil, err
	}
	user, err := s.storage.GetUser(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, errNoSession
		}
		return nil, nil, err
	}
	return sess, user, nil
}

func (s *Server) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, user, err := s.loadSession(c)
		if errors.Is(err, errNoSession) {
			return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
		}
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error").SetInternal(err)
		}
		c.Set(ctxSession, sess)
		c.Set(ctxUser, user)
		return next(c)
	}
}

// requireStore loads the session's current store and checks membership
func (s *Server) requireStore(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess := sessionFrom(c)
		if sess.StoreID == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No store selected")
		}
		ctx := c.Request().Context()
		if _, err := s.storage.GetStoreRole(ctx, sess.UserID, sess.StoreID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return echo.NewHTTPError(http.StatusForbidden, "Access denied")
			}
			return storageError(err, "Store not found")
		}
		store, err := s.storage.GetStore(ctx, sess.StoreID)
		if err != nil {
			return storageError(err, "Store not found")
		}
		c.Set(ctxStore, store)
		return next(c)
	}
}

func sessionFrom(c echo.Context) *models.Session {
	return c.Get(ctxSession).(*models.Session)
}

func userFrom(c echo.Context) *models.User {
	return c.Get(ctxUser).(*models.User)
}

func storeFrom(c echo.Context) *models.Store {
	return c.Get(ctxStore).(*models.Store)
}

func (s *Server) setCookie(c echo.Context, name, value string, maxAge time.Duration) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearCookie(c echo.Context, name string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
