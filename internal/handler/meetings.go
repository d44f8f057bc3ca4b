package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"association/internal/attendance"
	"association/internal/auth"
)

const dateLayout = "2006-01-02"

type createMeetingRequest struct {
	Topic       string `json:"topic" binding:"required"`
	Description string `json:"description"`
	Date        string `json:"date" binding:"required"`
	StartTime   string `json:"start_time" binding:"required"`
	EndTime     string `json:"end_time"`
	Location    string `json:"location"`
	GPSLink     string `json:"gps_link"`
	QRDuration  int    `json:"qr_duration" binding:"omitempty,min=1,max=1440"`
}

// CreateMeeting adds an upcoming meeting.
func (h *Handler) CreateMeeting(c *gin.Context) {
	var req createMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD", "code": "bad_request"})
		return
	}
	claims, _ := auth.ClaimsFrom(c)

	m, err := h.meetings.CreateMeeting(c.Request.Context(), attendance.Meeting{
		Topic:           req.Topic,
		Description:     req.Description,
		Date:            date,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		Location:        req.Location,
		GPSLink:         req.GPSLink,
		DurationMinutes: req.QRDuration,
		CreatedBy:       claims.Subject,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// ListMeetings returns all meetings, newest first, with lapsed sessions shown
// as expired.
func (h *Handler) ListMeetings(c *gin.Context) {
	meetings, err := h.meetings.ListMeetings(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	now := h.now()
	for i := range meetings {
		meetings[i] = meetings[i].Effective(now)
	}
	c.JSON(http.StatusOK, gin.H{"meetings": meetings})
}

// ListAttendance returns the attendance records of one meeting.
func (h *Handler) ListAttendance(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.svc.Session(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	records, err := h.meetings.ListAttendance(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if records == nil {
		records = []attendance.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"meeting_id": id, "count": len(records), "attendance": records})
}
