package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gradportal/internal/registration"
)

type studentView struct {
	RollNo       string `json:"rollno"`
	Name         string `json:"name"`
	Branch       string `json:"branch"`
	Email        string `json:"email"`
	GuardianName string `json:"guardianName"`
	Program      string `json:"program"`
}

func viewOf(s registration.Student) studentView {
	return studentView{
		RollNo:       s.RollNo,
		Name:         s.Name,
		Branch:       s.Branch,
		Email:        s.Email,
		GuardianName: s.GuardianName,
		Program:      s.Program,
	}
}

func (h *Handler) studentLogin(c *gin.Context) {
	var req struct {
		RollNo              string `json:"rollno"`
		SecondaryCredential string `json:"secondaryCredential"`
		Aadhar              string `json:"aadhar"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body")
		return
	}
	credential := req.SecondaryCredential
	if credential == "" {
		credential = req.Aadhar
	}

	st, err := h.registrations.Login(c.Request.Context(), req.RollNo, credential)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"userData": viewOf(st),
		"message":  "Login successful! Please complete your guest registration.",
	})
}

func (h *Handler) checkRegistration(c *gin.Context) {
	reg, err := h.registrations.CheckRegistration(c.Request.Context(), c.Param("rollno"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if reg == nil {
		c.JSON(http.StatusOK, gin.H{"registered": false})
		return
	}
	guests := reg.Guests
	if guests == nil {
		guests = []registration.Guest{}
	}
	c.JSON(http.StatusOK, gin.H{
		"registered":       true,
		"attendanceIntent": reg.Intent,
		"willAttend":       reg.Intent.WillAttend(),
		"guests":           guests,
	})
}

func (h *Handler) submitGuests(c *gin.Context) {
	var req struct {
		RollNo     string               `json:"rollno"`
		WillAttend *bool                `json:"willAttend"`
		Guests     []registration.Guest `json:"guests"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body")
		return
	}

	res, err := h.registrations.SubmitRegistration(c.Request.Context(), registration.Submission{
		RollNo: req.RollNo,
		Intent: registration.IntentFromWillAttend(req.WillAttend),
		Guests: req.Guests,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":              true,
		"message":              "Registration completed successfully! Your details have been saved.",
		"userData":             viewOf(res.Student),
		"referenceId":          res.Reference.ID,
		"referenceCreatedAt":   res.Reference.CreatedAt,
		"emailStatus":          res.Notification.Status,
		"emailSuccess":         res.Notification.Success,
		"registrationComplete": true,
	})
}

func (h *Handler) reference(c *gin.Context) {
	ref, err := h.registrations.GetReference(c.Request.Context(), c.Param("rollno"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "referenceId": ref.ID, "createdAt": ref.CreatedAt})
}

func (h *Handler) generatePass(c *gin.Context) {
	pass, err := h.registrations.PassDetails(c.Request.Context(), c.Param("rollno"))
	if err != nil {
		h.fail(c, err)
		return
	}
	// render fully before writing so a failure can still become a JSON error
	var buf bytes.Buffer
	if err := h.passes.Render(&buf, pass); err != nil {
		h.fail(c, err)
		return
	}
	filename := fmt.Sprintf("gate-pass-%s.pdf", strings.ReplaceAll(pass.Student.RollNo, `"`, ""))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
