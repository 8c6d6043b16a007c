package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gowvp/roadeye/internal/conf"
	"github.com/gowvp/roadeye/internal/core/notify"
	"github.com/ixugo/goddd/pkg/web"
)

type mailer interface {
	Enabled() bool
	Notify(ctx context.Context, a notify.Alert) error
}

type EmailAPI struct {
	mail    mailer
	limiter func(id string) bool
}

func NewEmailAPI(bc *conf.Bootstrap) EmailAPI {
	return EmailAPI{
		mail:    NewEmail(bc),
		limiter: web.IDRateLimiter(0.2, 1, 3*time.Minute),
	}
}

func RegisterEmail(r gin.IRouter, api EmailAPI, mid ...gin.HandlerFunc) {
	group := r.Group("/api/v1/emails", mid...)
	group.POST("/send-email", api.sendEmail)
}

type sendEmailInput struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Severity  string  `json:"severity"`
	Location  string  `json:"location"`
	ImageURL  string  `json:"image_url"`
}

// sendEmail 人工触发的告警邮件
func (e EmailAPI) sendEmail(c *gin.Context) {
	var in sendEmailInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !e.mail.Enabled() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Email credentials not configured"})
		return
	}
	if e.limiter != nil && !e.limiter(c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
		return
	}

	err := e.mail.Notify(c.Request.Context(), notify.Alert{
		Severity:  in.Severity,
		Location:  in.Location,
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
		ImageURL:  in.ImageURL,
		Date:      time.Now(),
	})
	if err != nil {
		if errors.Is(err, notify.ErrNotConfigured) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Email credentials not configured"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Email sent successfully"})
}
