package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pamudu-ranasinghe/virtualme/internal/store"
)

// SessionsHandler exposes session lifecycle endpoints. Reading and creating
// sessions needs only the session id; listing and destructive operations are
// admin-only.
type SessionsHandler struct {
	Store *store.Store
}

func (h *SessionsHandler) Register(g *echo.Group, secret []byte) {
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.GET("/:id/messages", h.messages)

	admin := func(fn echo.HandlerFunc) echo.HandlerFunc { return withAuth(fn, secret) }
	g.GET("", admin(h.list))
	g.DELETE("/:id", admin(h.delete))
	g.DELETE("/:id/history", admin(h.clearHistory))
}

func (h *SessionsHandler) create(c echo.Context) error {
	sess, err := h.Store.CreateSession(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, sess)
}

func (h *SessionsHandler) get(c echo.Context) error {
	sess, err := h.Store.GetSession(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrSessionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *SessionsHandler) messages(c echo.Context) error {
	ctx := c.Request().Context()
	sess, err := h.Store.GetSession(ctx, c.Param("id"))
	if errors.Is(err, store.ErrSessionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	msgs, err := h.Store.ListMessages(ctx, sess.ID, 0)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, SessionMessagesResponse{Session: sess, Messages: msgs})
}

func (h *SessionsHandler) list(c echo.Context) error {
	items, err := h.Store.ListSessions(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *SessionsHandler) delete(c echo.Context) error {
	err := h.Store.DeleteSession(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrSessionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *SessionsHandler) clearHistory(c echo.Context) error {
	ctx := c.Request().Context()
	if _, err := h.Store.GetSession(ctx, c.Param("id")); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.Store.ClearMessages(ctx, c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
