package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"drivingschool-api/internal/access"
	"drivingschool-api/internal/apperrors"
	"drivingschool-api/internal/middleware"
	"drivingschool-api/internal/model"
)

type Credentials interface {
	Register(ctx context.Context, username, password string) (*model.User, error)
	Authenticate(ctx context.Context, username, password string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	DeleteUser(ctx context.Context, id int64) error
	ResetPassword(ctx context.Context, id int64, password string) error
}

type Sessions interface {
	Mint(u *model.User) (string, error)
}

type Appointments interface {
	CreateAppointment(ctx context.Context, studentID int64, date time.Time, typ string) (*model.Appointment, error)
	ListAppointments(ctx context.Context, studentID int64, from, to time.Time) ([]model.Appointment, error)
	Transition(ctx context.Context, id, studentID int64, status model.Status) (*model.Appointment, error)
	EditAppointment(ctx context.Context, id int64, date time.Time, typ string) (*model.Appointment, error)
	DeleteAppointment(ctx context.Context, id int64) (*model.Appointment, error)
}

type Handler struct {
	creds    Credentials
	sessions Sessions
	appts    Appointments
	loc      *time.Location
}

// New builds the handlers. Dates without an offset are read in loc.
func New(creds Credentials, sessions Sessions, appts Appointments, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{creds: creds, sessions: sessions, appts: appts, loc: loc}
}

// Routes mounts every endpoint on r. Student routes authenticate by session
// and admin routes by the admin secret.
func (h *Handler) Routes(r gin.IRouter, res *access.Resolver) {
	r.POST("/register", h.Register)
	r.POST("/login", h.Login)

	student := r.Group("/appointments", middleware.RequireStudent(res))
	student.GET("", h.ListAppointments)
	student.PUT("/:id/accept", h.AcceptAppointment)
	student.PUT("/:id/reject", h.RejectAppointment)

	admin := middleware.RequireAdmin(res)
	r.POST("/appointments", admin, h.CreateAppointment)
	r.PUT("/appointments/:id", admin, h.EditAppointment)
	r.DELETE("/appointments/:id", admin, h.DeleteAppointment)

	users := r.Group("/admin/users", admin)
	users.GET("", h.ListUsers)
	users.POST("", h.CreateUser)
	users.DELETE("/:id", h.DeleteUser)
	users.POST("/:id/reset-password", h.ResetPassword)
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.Validation("Invalid id")
	}
	return id, nil
}

func bind(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apperrors.Validation("Invalid request body")
	}
	return nil
}
