package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aman-churiwal/crm-gateway/internal/apiresponses"
	"github.com/aman-churiwal/crm-gateway/internal/circuitbreaker"
	"github.com/aman-churiwal/crm-gateway/internal/models"
)

// MailStatus is the part of the mail supervisor the admin endpoints read.
type MailStatus interface {
	Current() (provider string, port int, ok bool)
	BreakerMetrics() circuitbreaker.Metrics
	ResetBreaker()
}

// LeadLister lists recent leads; implemented by repository.LeadRepository.
type LeadLister interface {
	ListRecent(ctx context.Context, source string, limit int) ([]models.Lead, error)
}

// Handles system-related endpoints
type SystemHandler struct {
	env       string
	company   string
	startedAt time.Time
	mail      MailStatus
	leads     LeadLister
}

func NewSystemHandler(env, company string, startedAt time.Time, mail MailStatus, leads LeadLister) *SystemHandler {
	return &SystemHandler{
		env:       env,
		company:   company,
		startedAt: startedAt,
		mail:      mail,
		leads:     leads,
	}
}

// Health is the unauthenticated readiness probe.
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"uptime":    time.Since(h.startedAt).Seconds(),
		"env":       h.env,
	})
}

// StatusPage answers GET /.
func (h *SystemHandler) StatusPage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": h.company + " API is running",
		"status":  "ok",
		"env":     h.env,
	})
}

// Register mounts the admin system routes. Every route here needs a principal.
func (h *SystemHandler) Register(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	system := rg.Group("/system", auth)
	{
		system.GET("/mail", h.MailTransportStatus)
		system.POST("/mail/reset-breaker", h.ResetMailBreaker)
	}
	rg.GET("/leads", auth, h.RecentLeads)
}

// Returns the published mail transport and the re-init breaker state
func (h *SystemHandler) MailTransportStatus(c *gin.Context) {
	provider, port, ready := h.mail.Current()

	c.JSON(http.StatusOK, gin.H{
		"ready":    ready,
		"provider": provider,
		"port":     port,
		"breaker":  h.mail.BreakerMetrics(),
	})
}

// Manually resets the mail re-init breaker
func (h *SystemHandler) ResetMailBreaker(c *gin.Context) {
	h.mail.ResetBreaker()

	c.JSON(http.StatusOK, gin.H{
		"message": "Mail breaker reset successfully",
	})
}

func (h *SystemHandler) RecentLeads(c *gin.Context) {
	var q struct {
		Source string `form:"source" binding:"omitempty,oneof=intake enquiry"`
		Limit  int    `form:"limit" binding:"omitempty,min=1,max=200"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(apiresponses.NewHTTPError(http.StatusBadRequest, err))
		c.Abort()
		return
	}

	leads, err := h.leads.ListRecent(c.Request.Context(), q.Source, q.Limit)
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "leads": leads})
}
