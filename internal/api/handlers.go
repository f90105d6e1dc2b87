package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gopost/engine/internal/domain"
	"github.com/gopost/engine/internal/logger"
)

// getStats returns aggregate job counts plus credential cache occupancy.
func (r *Router) getStats(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), statsTimeout)
	defer cancel()

	stats, err := r.stats.GetStats(ctx)
	if err != nil {
		r.logger.Error("failed to load job stats", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}

	resp := gin.H{
		"jobs": stats,
	}
	if r.cache != nil {
		global, tenant := r.cache.Sizes()
		resp["credential_cache"] = gin.H{
			"global_entries": global,
			"tenant_entries": tenant,
		}
	}
	if r.engine != nil {
		resp["scheduler_running"] = r.engine.IsRunning()
	}

	c.JSON(http.StatusOK, resp)
}

// cancelSchedule rewinds a scheduled job to draft. A job that is already
// claimed, published, or missing reports a conflict; the caller decides
// whether that matters.
func (r *Router) cancelSchedule(c *gin.Context) {
	jobID := c.Param("id")
	tenantID := c.Query("tenant_id")

	err := r.engine.Cancel(c.Request.Context(), jobID, tenantID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"job_id": jobID, "status": string(domain.JobStatusDraft)})
	case errors.Is(err, domain.ErrClaimConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "job is not in a cancellable state"})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	default:
		r.logger.Error("failed to cancel schedule",
			logger.String("job_id", jobID),
			logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel schedule"})
	}
}
