package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) CacheStats(c *gin.Context) {
	stats, err := h.mapUseCase.CacheStats(c.Request.Context())
	if err != nil {
		h.RespondWithError(c, err)
		return
	}
	h.RespondWithJSON(c, http.StatusOK, "cache statistics", stats)
}

func (h *Handler) CacheCleanup(c *gin.Context) {
	reports, err := h.mapUseCase.CleanupCaches(c.Request.Context())
	if err != nil {
		requestLogger(c).Error("cache cleanup incomplete", "error", err)
		h.RespondWithJSON(c, http.StatusInternalServerError, "cache cleanup incomplete", reports)
		return
	}
	h.RespondWithJSON(c, http.StatusOK, "cache cleaned up", reports)
}

func (h *Handler) CacheClear(c *gin.Context) {
	if err := h.mapUseCase.ClearCaches(c.Request.Context()); err != nil {
		h.RespondWithError(c, err)
		return
	}
	h.RespondWithJSON(c, http.StatusOK, "cache cleared", nil)
}
