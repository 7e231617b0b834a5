package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
	"github.com/tabladeV/manager.tabla-sub002/internal/events"
	"github.com/tabladeV/manager.tabla-sub002/internal/httpclient"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
	"github.com/tabladeV/manager.tabla-sub002/internal/push"
	"github.com/tabladeV/manager.tabla-sub002/internal/serviceworker"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// LoginRequest reports a dashboard login
type LoginRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	RestaurantID string `json:"restaurant_id"`
}

// RestaurantRequest reports a restaurant switch
type RestaurantRequest struct {
	RestaurantID string `json:"restaurant_id"`
}

// PermissionRequest answers the notification permission prompt
type PermissionRequest struct {
	Permission string `json:"permission"`
}

// SessionResponse is the session state after a change
type SessionResponse struct {
	IsLoggedIn   bool   `json:"is_logged_in"`
	RestaurantID string `json:"restaurant_id,omitempty"`
}

// TokenResponse describes device token registration progress. Tokens are redacted.
type TokenResponse struct {
	Registered   string `json:"registered,omitempty"`
	RestaurantID string `json:"restaurant_id,omitempty"`
	Pending      string `json:"pending,omitempty"`
}

// StatusResponse is the agent state reported by /api/v1/status
type StatusResponse struct {
	Platform      string                      `json:"platform,omitempty"`
	Native        bool                        `json:"native"`
	Supported     bool                        `json:"supported"`
	Session       *SessionResponse            `json:"session,omitempty"`
	Permission    string                      `json:"permission,omitempty"`
	Token         *TokenResponse              `json:"token,omitempty"`
	ServiceWorker *serviceworker.Registration `json:"service_worker,omitempty"`
	Events        *events.EventBusStats       `json:"events,omitempty"`
	Uptime        string                      `json:"uptime"`
}

// requireSession, requirePermissions, requireFocus and requireInbox reject
// requests for routes whose dependency was not wired
func (s *Server) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return s.require(s.session != nil, "session", next)
}

func (s *Server) requirePermissions(next echo.HandlerFunc) echo.HandlerFunc {
	return s.require(s.permissions != nil, "permissions", next)
}

func (s *Server) requireFocus(next echo.HandlerFunc) echo.HandlerFunc {
	return s.require(s.focus != nil, "provider", next)
}

func (s *Server) requireInbox(next echo.HandlerFunc) echo.HandlerFunc {
	return s.require(s.inbox != nil, "inbox", next)
}

func (s *Server) require(ready bool, name string, next echo.HandlerFunc) echo.HandlerFunc {
	if ready {
		return next
	}
	return func(c echo.Context) error {
		return s.handleError(c, nil, name+" is not available", http.StatusServiceUnavailable)
	}
}

func (s *Server) getStatus(c echo.Context) error {
	ctx := c.Request().Context()
	resp := StatusResponse{Uptime: time.Since(s.startTime).Round(time.Second).String()}

	if s.service != nil {
		info := s.service.Platform()
		resp.Platform = string(info.Platform)
		resp.Native = info.Native
		resp.Supported = s.service.IsSupported()
	}
	if s.session != nil {
		snap := s.session.Snapshot()
		resp.Session = &SessionResponse{IsLoggedIn: snap.IsLoggedIn, RestaurantID: snap.RestaurantID}
	}
	if s.permissions != nil {
		resp.Permission = string(s.permissions.State())
	}
	if s.tokens != nil {
		token, restaurantID := s.tokens.LastRegistered()
		resp.Token = &TokenResponse{RestaurantID: restaurantID}
		if token != "" {
			resp.Token.Registered = push.RedactToken(token)
		}
		if pending := s.tokens.PendingToken(); pending != "" {
			resp.Token.Pending = push.RedactToken(pending)
		}
	}
	if s.workers != nil {
		reg, err := s.workers.Registration(ctx)
		if err != nil {
			s.logger.Warn("worker registration lookup failed", logger.Error(err))
		}
		resp.ServiceWorker = reg
	}
	if s.eventStats != nil {
		stats := s.eventStats.GetStats()
		resp.Events = &stats
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return s.handleError(c, err, "invalid login request", http.StatusBadRequest)
	}
	if err := s.session.Login(c.Request().Context(), req.AccessToken, req.RefreshToken, req.RestaurantID); err != nil {
		return s.handleError(c, err, "login failed", statusFor(err))
	}
	return s.sessionResponse(c)
}

func (s *Server) logout(c echo.Context) error {
	if err := s.session.Logout(c.Request().Context()); err != nil {
		return s.handleError(c, err, "logout failed", statusFor(err))
	}
	return s.sessionResponse(c)
}

func (s *Server) switchRestaurant(c echo.Context) error {
	var req RestaurantRequest
	if err := c.Bind(&req); err != nil {
		return s.handleError(c, err, "invalid restaurant request", http.StatusBadRequest)
	}
	if err := s.session.SwitchRestaurant(c.Request().Context(), req.RestaurantID); err != nil {
		return s.handleError(c, err, "restaurant switch failed", statusFor(err))
	}
	return s.sessionResponse(c)
}

func (s *Server) sessionResponse(c echo.Context) error {
	snap := s.session.Snapshot()
	return c.JSON(http.StatusOK, SessionResponse{IsLoggedIn: snap.IsLoggedIn, RestaurantID: snap.RestaurantID})
}

func (s *Server) setPermission(c echo.Context) error {
	var req PermissionRequest
	if err := c.Bind(&req); err != nil {
		return s.handleError(c, err, "invalid permission request", http.StatusBadRequest)
	}
	perm, err := push.ParsePermission(req.Permission)
	if err != nil {
		return s.handleError(c, err, "invalid permission", http.StatusBadRequest)
	}
	if err := s.permissions.Set(perm); err != nil {
		return s.handleError(c, err, "permission update failed", statusFor(err))
	}
	return c.JSON(http.StatusOK, PermissionRequest{Permission: string(s.permissions.State())})
}

func (s *Server) handleFocus(c echo.Context) error {
	refreshed := s.focus.HandleFocus(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]bool{"refreshed": refreshed})
}

func (s *Server) listInbox(c echo.Context) error {
	limit := s.inbox.PageSize()
	offset := 0

	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return s.handleError(c, err, "limit must be a positive integer", http.StatusBadRequest)
		}
		limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return s.handleError(c, err, "offset must be a non-negative integer", http.StatusBadRequest)
		}
		offset = n
	}

	page, err := s.inbox.List(c.Request().Context(), limit, offset)
	if err != nil {
		return s.handleError(c, err, "failed to load notifications", statusFor(err))
	}
	return c.JSON(http.StatusOK, page)
}

func (s *Server) unreadCount(c echo.Context) error {
	n, err := s.inbox.UnreadCount(c.Request().Context())
	if err != nil {
		return s.handleError(c, err, "failed to count unread notifications", statusFor(err))
	}
	return c.JSON(http.StatusOK, map[string]int{"unread": n})
}

func (s *Server) markRead(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return s.handleError(c, err, "invalid notification id", http.StatusBadRequest)
	}
	if err := s.inbox.MarkRead(c.Request().Context(), id); err != nil {
		return s.handleError(c, err, "failed to mark notification read", statusFor(err))
	}
	return c.NoContent(http.StatusNoContent)
}

// handleError logs err and writes an ErrorResponse
func (s *Server) handleError(c echo.Context, err error, message string, code int) error {
	resp := ErrorResponse{
		Error:         message,
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}
	if err != nil {
		resp.Error = err.Error()
	}

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", c.Request().URL.Path),
		logger.String("method", c.Request().Method),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error("API error", fields...)
	} else {
		s.logger.Debug("API error", fields...)
	}

	return c.JSON(code, resp)
}

// statusFor maps an error to the HTTP status the control API answers with.
// Failures of the Tabla backend itself surface as 502.
func statusFor(err error) int {
	if _, ok := httpclient.AsHTTPError(err); ok {
		return http.StatusBadGateway
	}
	switch {
	case errors.IsCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest
	case errors.IsCategory(err, errors.CategoryNotFound):
		return http.StatusNotFound
	case errors.IsCategory(err, errors.CategoryTimeout):
		return http.StatusGatewayTimeout
	case errors.IsCategory(err, errors.CategoryNetwork):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
