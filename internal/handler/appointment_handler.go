package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"drivingschool-api/internal/apperrors"
	"drivingschool-api/internal/middleware"
	"drivingschool-api/internal/model"
)

func (h *Handler) ListAppointments(c *gin.Context) {
	rawStart, rawEnd := c.Query("startDate"), c.Query("endDate")
	if rawStart == "" || rawEnd == "" {
		middleware.RespondError(c, apperrors.Validation("startDate and endDate are required"))
		return
	}
	from, err := parseDate(rawStart, h.loc, false)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	to, err := parseDate(rawEnd, h.loc, true)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	if to.Before(from) {
		middleware.RespondError(c, apperrors.Validation("endDate must not be before startDate"))
		return
	}

	p := middleware.PrincipalFrom(c)
	out, err := h.appts.ListAppointments(c.Request.Context(), p.UserID, from, to)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) AcceptAppointment(c *gin.Context) { h.transition(c, model.StatusAccepted) }

func (h *Handler) RejectAppointment(c *gin.Context) { h.transition(c, model.StatusRejected) }

func (h *Handler) transition(c *gin.Context, to model.Status) {
	id, err := pathID(c)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	p := middleware.PrincipalFrom(c)
	a, err := h.appts.Transition(c.Request.Context(), id, p.UserID, to)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

type appointmentRequest struct {
	StudentID int64  `json:"student_id"`
	Date      string `json:"date"`
	Type      string `json:"type"`
}

// CreateAppointment ignores any status in the body; new rows are suggested.
func (h *Handler) CreateAppointment(c *gin.Context) {
	var req appointmentRequest
	if err := bind(c, &req); err != nil {
		middleware.RespondError(c, err)
		return
	}
	if req.StudentID == 0 || req.Date == "" || req.Type == "" {
		middleware.RespondError(c, apperrors.Validation("student_id, date and type are required"))
		return
	}
	date, err := parseDate(req.Date, h.loc, false)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	a, err := h.appts.CreateAppointment(c.Request.Context(), req.StudentID, date, req.Type)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *Handler) EditAppointment(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	var req appointmentRequest
	if err := bind(c, &req); err != nil {
		middleware.RespondError(c, err)
		return
	}
	if req.Date == "" || req.Type == "" {
		middleware.RespondError(c, apperrors.Validation("date and type are required"))
		return
	}
	date, err := parseDate(req.Date, h.loc, false)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	a, err := h.appts.EditAppointment(c.Request.Context(), id, date, req.Type)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAppointment(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	a, err := h.appts.DeleteAppointment(c.Request.Context(), id)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Appointment deleted", "appointment": a})
}
