package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Overpass forwards a query, sent either as the "data" form field or as the
// raw request body, and relays the raw JSON answer.
func (h *Handler) Overpass(c *gin.Context) {
	var query string
	if strings.HasPrefix(c.ContentType(), "application/x-www-form-urlencoded") {
		query = c.PostForm("data")
	} else {
		body, err := c.GetRawData()
		if err != nil {
			h.RespondWithJSON(c, http.StatusBadRequest, "failed to read request body", nil)
			return
		}
		query = string(body)
	}

	body, err := h.mapUseCase.QueryOverpass(c.Request.Context(), query)
	if err != nil {
		h.RespondWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}
