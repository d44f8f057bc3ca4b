package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"association/internal/attendance"
	"association/internal/auth"
)

type startRequest struct {
	DurationMinutes int `json:"duration_minutes" binding:"omitempty,min=0,max=1440"`
}

type attendRequest struct {
	MeetingID string `json:"meeting_id" binding:"required"`
	Token     string `json:"token" binding:"required"`
}

func (h *Handler) ticket(c *gin.Context, status int, t attendance.Ticket) {
	c.JSON(status, gin.H{
		"meeting_id":               t.MeetingID,
		"token":                    t.Token,
		"expires_at":               t.ExpiresAt,
		"expires_in_seconds":       int(t.ExpiresAt.Sub(h.now()).Seconds()),
		"refresh_interval_seconds": int(h.svc.RotationInterval().Seconds()),
	})
}

// StartSession opens the meeting's QR session. The body is optional.
func (h *Handler) StartSession(c *gin.Context) {
	var req startRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	t, err := h.svc.Start(c.Request.Context(), c.Param("id"), req.DurationMinutes)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ticket(c, http.StatusOK, t)
}

// StopSession expires the meeting's QR session.
func (h *Handler) StopSession(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Stop(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"meeting_id": id, "status": attendance.StatusExpired})
}

// RefreshQR rotates the token now.
func (h *Handler) RefreshQR(c *gin.Context) {
	t, err := h.svc.Refresh(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ticket(c, http.StatusOK, t)
}

// CurrentQR returns the token the QR screen should display.
func (h *Handler) CurrentQR(c *gin.Context) {
	t, err := h.svc.Current(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ticket(c, http.StatusOK, t)
}

// Attend records the authenticated member as present.
func (h *Handler) Attend(c *gin.Context) {
	var req attendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}

	outcome, err := h.svc.RecordAttendance(c.Request.Context(), req.MeetingID, claims.Subject, req.Token)
	if err != nil {
		h.fail(c, err)
		return
	}

	msg := "attendance marked"
	if outcome == attendance.OutcomeAlreadyMarked {
		msg = "attendance already marked for this meeting"
	}
	c.JSON(http.StatusOK, gin.H{
		"meeting_id":     req.MeetingID,
		"outcome":        outcome,
		"already_marked": outcome == attendance.OutcomeAlreadyMarked,
		"message":        msg,
	})
}
