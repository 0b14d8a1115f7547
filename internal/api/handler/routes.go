package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"restockbot/backend/internal/reports"
	"restockbot/backend/internal/storage"
)

type resolveRequest struct {
	Decision string `json:"decision" binding:"required"`
	Note     string `json:"note"`
}

type disableRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *Handler) GetHistory(c *gin.Context) {
	history, err := h.Reports.QueryHistory(c.Request.Context(), c.Query("region"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

func (h *Handler) GetPendingReports(c *gin.Context) {
	pending, err := h.Reports.PendingReports(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": pending})
}

func (h *Handler) GetCooldowns(c *gin.Context) {
	cooldowns, err := h.Reports.ActiveCooldowns(c.Request.Context(), c.Query("location"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cooldowns": cooldowns})
}

func (h *Handler) MarkChecked(c *gin.Context) {
	if err := h.Reports.MarkLocationChecked(c.Request.Context(), c.Param("key"), actor(c)); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ResolveReport(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "decision is required"})
		return
	}
	decision, err := reports.ParseDecision(req.Decision)
	if err != nil {
		h.writeError(c, err)
		return
	}

	res, err := h.Reports.Resolve(c.Request.Context(), c.Param("id"), decision, actor(c), req.Note)
	if err != nil && !(res != nil && errors.Is(err, reports.ErrAlertNotDelivered)) {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"report":            res.Report,
		"history_updated":   res.HistoryUpdated,
		"cooldown":          res.Cooldown,
		"cooldowns_removed": res.CooldownsRemoved,
		"alert_sent":        res.AlertSent,
	})
}

func (h *Handler) ClearAll(c *gin.Context) {
	res, err := h.Reports.AdminClearAll(c.Request.Context(), actor(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reports_cleared":   res.ReportsCleared,
		"cooldowns_cleared": res.CooldownsCleared,
	})
}

func (h *Handler) RemoveCooldown(c *gin.Context) {
	removed, err := h.Reports.AdminRemoveCooldown(c.Request.Context(), c.Param("key"), actor(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (h *Handler) DisableReporter(c *gin.Context) {
	var req disableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reason is required"})
		return
	}
	if err := h.Reports.AdminDisableReporter(c.Request.Context(), c.Param("id"), req.Reason, actor(c)); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) EnableReporter(c *gin.Context) {
	if err := h.Reports.AdminEnableReporter(c.Request.Context(), c.Param("id"), actor(c)); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// writeError maps engine errors to status codes. Bodies only carry user-safe text.
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		validation *reports.ValidationError
		resolved   *reports.AlreadyResolvedError
		denied     *reports.DeniedError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &validation):
		status = http.StatusBadRequest
	case errors.As(err, &resolved), errors.As(err, &denied), errors.Is(err, reports.ErrReporterNotDisabled):
		status = http.StatusConflict
	case errors.Is(err, reports.ErrReportNotFound), errors.Is(err, reports.ErrUnknownLocation):
		status = http.StatusNotFound
	case storage.IsPersistence(err):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
	}
	c.JSON(status, gin.H{"error": reports.UserMessage(err)})
}
