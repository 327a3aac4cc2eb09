package app

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/calamars-bot/calamars-go/internal/config"
	"github.com/calamars-bot/calamars-go/internal/metrics"
	"github.com/calamars-bot/calamars-go/internal/webhook"
)

const metricsRealm = `Basic realm="metrics"`

// metricsAuthMiddleware guards /metrics with Basic Auth when
// cfg.AuthEnabled is set. Rejected scrapes are counted as HTTP errors.
func metricsAuthMiddleware(cfg config.MetricsConfig, m *metrics.Metrics) gin.HandlerFunc {
	if !cfg.AuthEnabled {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		user, pass, ok := c.Request.BasicAuth()
		// Both halves are always compared
		userOK := webhook.SecretEqual(user, cfg.Username)
		passOK := webhook.SecretEqual(pass, cfg.Password)
		if !ok || !userOK || !passOK {
			m.RecordHTTPError("unauthorized", "metrics")
			c.Header("WWW-Authenticate", metricsRealm)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}
