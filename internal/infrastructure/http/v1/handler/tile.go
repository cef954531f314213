package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/JonathonClaypool/MilMap-sub001/internal/infrastructure/http/v1/dto"
	"github.com/JonathonClaypool/MilMap-sub001/internal/tilecache"
	"github.com/gin-gonic/gin"
)

const attribution = "© OpenStreetMap contributors"

func (h *Handler) Tile(c *gin.Context) {
	l := requestLogger(c)

	strX := c.Param("x")
	strY := c.Param("y")
	strZ := c.Param("z")

	x, err := strconv.Atoi(strX)
	if err != nil {
		l.Warn("invalid x parameter", "x", strX, "error", err)
		h.RespondWithJSON(c, http.StatusBadRequest, "x should be integer", nil)
		return
	}

	y, err := strconv.Atoi(strY)
	if err != nil {
		l.Warn("invalid y parameter", "y", strY, "error", err)
		h.RespondWithJSON(c, http.StatusBadRequest, "y should be integer", nil)
		return
	}

	z, err := strconv.Atoi(strZ)
	if err != nil {
		l.Warn("invalid z parameter", "z", strZ, "error", err)
		h.RespondWithJSON(c, http.StatusBadRequest, "z should be integer", nil)
		return
	}

	data, found, err := h.mapUseCase.GetTile(c.Request.Context(), z, x, y)
	if err != nil {
		h.RespondWithError(c, err)
		return
	}
	if !found {
		h.RespondWithJSON(c, http.StatusNotFound, "tile not found", nil)
		return
	}

	c.Header("Cache-Control", "public, max-age=604800")
	c.Header("X-OpenStreetMap-Attribution", attribution)
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}

// Tiles resolves every tile covering a bounding box. Per-tile failures are
// reported next to the tiles that succeeded.
func (h *Handler) Tiles(c *gin.Context) {
	var req dto.TilesQuery
	if !h.bindQuery(c, &req) {
		return
	}

	res, err := h.mapUseCase.GetTiles(c.Request.Context(), req.Box(), *req.Zoom)
	if err != nil && !errors.Is(err, tilecache.ErrNoTiles) {
		h.RespondWithError(c, err)
		return
	}

	body := dto.NewTilesResponse(res, req.IncludeData)
	if err != nil {
		h.RespondWithJSON(c, http.StatusBadGateway, err.Error(), body)
		return
	}
	h.RespondWithJSON(c, http.StatusOK, "got tiles", body)
}

func (h *Handler) TileCoordinates(c *gin.Context) {
	var req dto.TilesQuery
	if !h.bindQuery(c, &req) {
		return
	}

	coords, err := h.mapUseCase.TileCoordinates(req.Box(), *req.Zoom)
	if err != nil {
		h.RespondWithError(c, err)
		return
	}
	h.RespondWithJSON(c, http.StatusOK, "got tile coordinates", coords)
}
