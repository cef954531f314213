package handler

import (
	"net/http"

	"github.com/JonathonClaypool/MilMap-sub001/internal/infrastructure/http/v1/dto"
	"github.com/gin-gonic/gin"
)

func (h *Handler) Elevation(c *gin.Context) {
	var req dto.ElevationQuery
	if !h.bindQuery(c, &req) {
		return
	}

	v, ok, err := h.mapUseCase.GetElevation(c.Request.Context(), *req.Lat, *req.Lon, req.Interpolate)
	if err != nil {
		h.RespondWithError(c, err)
		return
	}

	resp := dto.ElevationResponse{Lat: *req.Lat, Lon: *req.Lon}
	if ok {
		resp.Elevation = &v
	}
	h.RespondWithJSON(c, http.StatusOK, "got elevation", resp)
}

func (h *Handler) ElevationGrid(c *gin.Context) {
	var req dto.ElevationGridQuery
	if !h.bindQuery(c, &req) {
		return
	}

	g, err := h.mapUseCase.GetElevationGrid(c.Request.Context(), req.Box(), req.Rows, req.Cols)
	if err != nil {
		h.RespondWithError(c, err)
		return
	}
	h.RespondWithJSON(c, http.StatusOK, "got elevation grid", dto.NewElevationGridResponse(g))
}
