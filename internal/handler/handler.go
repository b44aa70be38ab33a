// Package handler exposes the portal over HTTP with gin.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gradportal/internal/admin"
	"gradportal/internal/apperr"
	"gradportal/internal/auth"
	"gradportal/internal/httpmiddleware"
	"gradportal/internal/registration"
	"gradportal/internal/roster"
)

// AdminService is the admin credential state machine.
type AdminService interface {
	Authenticate(ctx context.Context, username, credential string) (admin.AuthResult, error)
	RotatePassword(ctx context.Context, username, current, next, confirm string) error
	Scope(ctx context.Context, username string) (admin.Scope, error)
}

// RegistrationService is the student-facing flow.
type RegistrationService interface {
	Login(ctx context.Context, rollNo, credential string) (registration.Student, error)
	CheckRegistration(ctx context.Context, rollNo string) (*registration.Registration, error)
	SubmitRegistration(ctx context.Context, sub registration.Submission) (registration.Result, error)
	GetReference(ctx context.Context, rollNo string) (registration.Reference, error)
	PassDetails(ctx context.Context, rollNo string) (registration.PassData, error)
}

// RosterService serves scoped admin reads and gate check-ins.
type RosterService interface {
	ListStudents(ctx context.Context, scope admin.Scope) ([]roster.StudentRow, error)
	ListGuests(ctx context.Context, scope admin.Scope) ([]roster.GuestRow, error)
	ListBranches(ctx context.Context, scope admin.Scope) ([]string, error)
	FindRegisteredStudent(ctx context.Context, scope admin.Scope, rollNo string) (roster.RegisteredStudent, error)
	RecordCheckIn(ctx context.Context, scope admin.Scope, rollNo string) (bool, error)
	ListCheckedIn(ctx context.Context, scope admin.Scope) ([]roster.CheckIn, error)
}

// PassRenderer renders gate passes.
type PassRenderer interface {
	Render(w io.Writer, p registration.PassData) error
}

// Handler holds the route dependencies.
type Handler struct {
	admins        AdminService
	registrations RegistrationService
	rosters       RosterService
	passes        PassRenderer
	issuer        *auth.Issuer
	logger        *zap.Logger
}

// Deps groups the constructor arguments.
type Deps struct {
	Admins        AdminService
	Registrations RegistrationService
	Rosters       RosterService
	Passes        PassRenderer
	Issuer        *auth.Issuer
	Logger        *zap.Logger
}

// New creates a handler.
func New(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		admins:        d.Admins,
		registrations: d.Registrations,
		rosters:       d.Rosters,
		passes:        d.Passes,
		issuer:        d.Issuer,
		logger:        logger,
	}
}

// Register mounts every /api route on r.
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api")

	api.POST("/login", h.studentLogin)
	api.GET("/check-registration/:rollno", h.checkRegistration)
	api.POST("/submit-guests", h.submitGuests)
	api.GET("/reference/:rollno", h.reference)
	api.GET("/generate-passes/:rollno", h.generatePass)

	api.POST("/admin-login", h.adminLogin)
	api.POST("/change-password", h.changePassword)

	scoped := api.Group("", auth.AdminIdentity(h.issuer), h.requireScope)
	scoped.GET("/students", h.listStudents)
	scoped.GET("/guests", h.listGuests)
	scoped.GET("/branches", h.listBranches)
	scoped.GET("/getStudent/:rollno", h.getStudent)
	scoped.POST("/submitStudent", h.submitStudent)
	scoped.GET("/submitted-students", h.listSubmitted)
}

// fail writes the JSON error envelope for err.
func (h *Handler) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	body := gin.H{"success": false, "message": apperr.Message(err)}

	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Field != "" {
		body["field"] = ae.Field
	}
	switch apperr.KindOf(err) {
	case apperr.KindForbidden:
		body["requirePasswordChange"] = true
	case apperr.KindInfrastructure, apperr.KindUnknown:
		body["error"] = apperr.KindOf(err).String()
		body["retryable"] = apperr.Retryable(err)
		h.logger.Error("request failed",
			zap.String("route", c.FullPath()),
			zap.String("request_id", c.GetString(httpmiddleware.ContextRequestID)),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, body)
}

func (h *Handler) badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "message": message})
}
