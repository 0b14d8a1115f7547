// Package handler exposes the report engine over HTTP: health and metrics, the live
// alert websocket, and JWT-protected admin and query routes.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"restockbot/backend/internal/alerthub"
	"restockbot/backend/internal/metrics"
	"restockbot/backend/internal/reports"
)

// Handler holds the collaborators behind the HTTP routes.
type Handler struct {
	Reports  *reports.Service
	Hub      *alerthub.Hub
	Auth     *Authenticator
	Gatherer prometheus.Gatherer

	logger *slog.Logger
}

func NewHandler(svc *reports.Service, hub *alerthub.Hub, auth *Authenticator, gatherer prometheus.Gatherer, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{Reports: svc, Hub: hub, Auth: auth, Gatherer: gatherer, logger: log}
}

// Register mounts every route on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.Health)
	if h.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(h.Gatherer)))
	}
	if h.Hub != nil {
		r.GET("/ws/alerts", h.ServeAlerts)
	}

	api := r.Group("/api", h.Auth.AdminOnly())
	{
		api.GET("/history", h.GetHistory)
		api.GET("/reports/pending", h.GetPendingReports)
		api.GET("/cooldowns", h.GetCooldowns)
		api.POST("/locations/:key/checked", h.MarkChecked)
		api.POST("/reports/:id/resolve", h.ResolveReport)

		admin := api.Group("/admin")
		admin.POST("/clear", h.ClearAll)
		admin.DELETE("/cooldowns/:key", h.RemoveCooldown)
		admin.POST("/reporters/:id/disable", h.DisableReporter)
		admin.POST("/reporters/:id/enable", h.EnableReporter)
	}
}

// NewRouter returns a gin engine with recovery and every route registered.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.logger))
	h.Register(r)
	return r
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Debug("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
		)
	}
}
