package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"association/internal/attendance"
	"association/internal/auth"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	svc      *attendance.Service
	meetings attendance.MeetingStore
	checks   map[string]HealthCheck
	log      *zap.Logger
	now      func() time.Time
}

func New(svc *attendance.Service, meetings attendance.MeetingStore, checks map[string]HealthCheck, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, meetings: meetings, checks: checks, log: logger.Named("http"), now: time.Now}
}

// Register mounts the routes. authn authenticates members; mw runs after it
// on every /v1 route.
func (h *Handler) Register(r gin.IRouter, authn gin.HandlerFunc, mw ...gin.HandlerFunc) {
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1", append([]gin.HandlerFunc{authn}, mw...)...)
	v1.POST("/meetings/attend", h.Attend)

	admin := v1.Group("/meetings", auth.RequireAdmin())
	admin.GET("", h.ListMeetings)
	admin.POST("", h.CreateMeeting)
	admin.PATCH("/:id/start", h.StartSession)
	admin.PATCH("/:id/stop", h.StopSession)
	admin.POST("/:id/refresh-qr", h.RefreshQR)
	admin.GET("/:id/qr", h.CurrentQR)
	admin.GET("/:id/attendance", h.ListAttendance)
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.checks {
		healthy := check(ctx) == nil
		body[name] = healthy
		if !healthy {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// ---------- Errors ----------

func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, attendance.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, attendance.ErrInvalidToken), errors.Is(err, attendance.ErrInvalidDuration):
		status = http.StatusBadRequest
	case errors.Is(err, attendance.ErrSessionExpired):
		status = http.StatusGone
	case errors.Is(err, attendance.ErrMemberBlocked):
		status = http.StatusForbidden
	case errors.Is(err, attendance.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}

	kind := attendance.Kind(err)
	if kind == "" {
		kind = "internal"
	}
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	c.JSON(status, gin.H{"error": msg, "code": kind})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "bad_request"})
}
