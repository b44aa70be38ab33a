package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gradportal/internal/admin"
	"gradportal/internal/auth"
)

const contextScope = "admin_scope"

func (h *Handler) adminLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body")
		return
	}

	res, err := h.admins.Authenticate(c.Request.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	if res.RequiresRotation {
		c.JSON(http.StatusOK, gin.H{
			"success":               true,
			"requirePasswordChange": true,
			"message":               "First login detected. Please change your password to continue.",
			"adminData":             res.Profile,
		})
		return
	}
	body := gin.H{
		"success":               true,
		"requirePasswordChange": false,
		"message":               "Login successful",
		"adminData":             res.Profile,
	}
	if res.Session != nil {
		body["token"] = res.Session.Token
		body["expiresAt"] = res.Session.ExpiresAt
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) changePassword(c *gin.Context) {
	var req struct {
		Username        string `json:"username"`
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body")
		return
	}
	err := h.admins.RotatePassword(c.Request.Context(), strings.TrimSpace(req.Username), req.CurrentPassword, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password changed successfully. Please log in with your new password."})
}

// requireScope re-reads the caller's account and stores its scope.
func (h *Handler) requireScope(c *gin.Context) {
	scope, err := h.admins.Scope(c.Request.Context(), c.GetString(auth.ContextAdminUsername))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Set(contextScope, scope)
	c.Next()
}

func scopeOf(c *gin.Context) admin.Scope {
	v, _ := c.Get(contextScope)
	scope, _ := v.(admin.Scope)
	return scope
}

func (h *Handler) listStudents(c *gin.Context) {
	scope := scopeOf(c)
	rows, err := h.rosters.ListStudents(c.Request.Context(), scope)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"branch":      scope.Branch,
		"crossBranch": scope.AllBranches(),
		"students":    rows,
		"totalCount":  len(rows),
	})
}

func (h *Handler) listGuests(c *gin.Context) {
	scope := scopeOf(c)
	rows, err := h.rosters.ListGuests(c.Request.Context(), scope)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"branch":      scope.Branch,
		"crossBranch": scope.AllBranches(),
		"guests":      rows,
		"totalCount":  len(rows),
	})
}

func (h *Handler) listBranches(c *gin.Context) {
	branches, err := h.rosters.ListBranches(c.Request.Context(), scopeOf(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "branches": branches})
}

func (h *Handler) getStudent(c *gin.Context) {
	st, err := h.rosters.FindRegisteredStudent(c.Request.Context(), scopeOf(c), strings.TrimSpace(c.Param("rollno")))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "student": st})
}

func (h *Handler) submitStudent(c *gin.Context) {
	var req struct {
		RollNo string `json:"rollno"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body")
		return
	}
	already, err := h.rosters.RecordCheckIn(c.Request.Context(), scopeOf(c), strings.TrimSpace(req.RollNo))
	if err != nil {
		h.fail(c, err)
		return
	}
	msg := "Registration Successful"
	if already {
		msg = "Student already checked in"
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg, "alreadySubmitted": already})
}

func (h *Handler) listSubmitted(c *gin.Context) {
	scope := scopeOf(c)
	rows, err := h.rosters.ListCheckedIn(c.Request.Context(), scope)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"branch":      scope.Branch,
		"crossBranch": scope.AllBranches(),
		"students":    rows,
		"totalCount":  len(rows),
	})
}
