package handler

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aman-churiwal/crm-gateway/internal/apiresponses"
	"github.com/aman-churiwal/crm-gateway/internal/config"
	"github.com/aman-churiwal/crm-gateway/internal/mail"
	"github.com/aman-churiwal/crm-gateway/internal/middleware"
	"github.com/aman-churiwal/crm-gateway/internal/models"
)

// LeadStore persists leads; implemented by repository.LeadRepository.
type LeadStore interface {
	Create(ctx context.Context, lead *models.Lead) error
}

// Mailer queues a message without waiting for delivery.
type Mailer interface {
	Send(msg mail.Message)
}

// IntakeHandler serves the public lead forms.
type IntakeHandler struct {
	leads    LeadStore
	mailer   Mailer
	branding config.BrandingConfig
	log      *zap.SugaredLogger
}

func NewIntakeHandler(leads LeadStore, mailer Mailer, branding config.BrandingConfig, log *zap.SugaredLogger) *IntakeHandler {
	return &IntakeHandler{leads: leads, mailer: mailer, branding: branding, log: log}
}

type leadRequest struct {
	Name       string `json:"name" binding:"required,max=200"`
	Email      string `json:"email" binding:"required,email"`
	Phone      string `json:"phone" binding:"max=32"`
	Country    string `json:"country" binding:"max=100"`
	Course     string `json:"course" binding:"max=200"`
	LoanAmount int64  `json:"loan_amount" binding:"gte=0"`
	Message    string `json:"message" binding:"max=5000"`
}

// Register mounts the public form routes.
func (h *IntakeHandler) Register(rg *gin.RouterGroup, _ gin.HandlerFunc) {
	rg.POST("/intake", h.Intake)
	rg.POST("/enquiry", h.Enquiry)
}

// Loan intake form
func (h *IntakeHandler) Intake(c *gin.Context) {
	h.capture(c, models.LeadSourceIntake)
}

// General enquiry form
func (h *IntakeHandler) Enquiry(c *gin.Context) {
	h.capture(c, models.LeadSourceEnquiry)
}

func (h *IntakeHandler) capture(c *gin.Context, source string) {
	var req leadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apiresponses.NewHTTPError(http.StatusBadRequest, err))
		c.Abort()
		return
	}

	lead := &models.Lead{
		Source:     source,
		Name:       strings.TrimSpace(req.Name),
		Email:      strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:      strings.TrimSpace(req.Phone),
		Country:    req.Country,
		Course:     req.Course,
		LoanAmount: req.LoanAmount,
		Message:    req.Message,
		OriginIP:   c.ClientIP(),
	}

	if err := h.leads.Create(c.Request.Context(), lead); err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}

	middleware.GetReqLogger(c, h.log).Infow("Lead captured", "source", source, "lead_id", lead.ID.String())

	h.mailer.Send(h.acknowledgement(lead))
	if h.branding.SupportEmail != "" {
		h.mailer.Send(h.notification(lead))
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"msg":     "Thank you! Our team will contact you shortly.",
		"id":      lead.ID,
	})
}

func (h *IntakeHandler) acknowledgement(lead *models.Lead) mail.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Hi %s,</p>", html.EscapeString(lead.Name))
	fmt.Fprintf(&b, "<p>Thank you for contacting %s. A counsellor will get back to you shortly.</p>",
		html.EscapeString(h.branding.CompanyName))
	if h.branding.SupportPhone != "" {
		fmt.Fprintf(&b, "<p>Need help sooner? Call us on %s.</p>", html.EscapeString(h.branding.SupportPhone))
	}

	return mail.Message{
		To:      []string{lead.Email},
		Subject: fmt.Sprintf("We received your %s - %s", lead.Source, h.branding.CompanyName),
		HTML:    b.String(),
	}
}

func (h *IntakeHandler) notification(lead *models.Lead) mail.Message {
	var b strings.Builder
	b.WriteString("<ul>")
	for _, row := range [][2]string{
		{"Source", lead.Source},
		{"Name", lead.Name},
		{"Email", lead.Email},
		{"Phone", lead.Phone},
		{"Country", lead.Country},
		{"Course", lead.Course},
		{"Message", lead.Message},
	} {
		if row[1] == "" {
			continue
		}
		fmt.Fprintf(&b, "<li><b>%s:</b> %s</li>", row[0], html.EscapeString(row[1]))
	}
	if lead.LoanAmount > 0 {
		fmt.Fprintf(&b, "<li><b>Loan amount:</b> %d</li>", lead.LoanAmount)
	}
	b.WriteString("</ul>")

	return mail.Message{
		To:      []string{h.branding.SupportEmail},
		Subject: fmt.Sprintf("New %s lead: %s", lead.Source, lead.Name),
		HTML:    b.String(),
	}
}
