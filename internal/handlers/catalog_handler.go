package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Countries handles GET /v1/catalog/countries.
func (h *Handler) Countries(c *gin.Context) {
	data, err := h.catalog.Countries(c.Request.Context())
	if err != nil {
		catalogError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

// PackagesByCountry handles GET /v1/catalog/countries/:id/packages.
func (h *Handler) PackagesByCountry(c *gin.Context) {
	data, err := h.catalog.PackagesByCountry(c.Request.Context(), c.Param("id"))
	if err != nil {
		catalogError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

func catalogError(c *gin.Context, err error) {
	log.WithError(err).WithField("path", c.FullPath()).Error("catalog lookup failed")
	c.JSON(http.StatusBadGateway, gin.H{
		"error":   "catalog_unavailable",
		"message": "The eSIM catalog is unavailable right now. Please try again.",
	})
}
