package handler

import (
	"net/http"

	"github.com/JonathonClaypool/MilMap-sub001/internal/infrastructure/http/v1/dto"
	"github.com/gin-gonic/gin"
)

func (h *Handler) Zoom(c *gin.Context) {
	var req dto.ZoomQuery
	if !h.bindQuery(c, &req) {
		return
	}

	res, err := h.mapUseCase.CalculateZoom(req.Scale, req.DPI, req.Latitude)
	if err != nil {
		h.RespondWithError(c, err)
		return
	}
	h.RespondWithJSON(c, http.StatusOK, "calculated zoom", res)
}
