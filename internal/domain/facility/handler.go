package facility

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/imssbienestar/medicos/internal/platform/apperr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the catalog lookups. They are public like the
// dashboards that use them.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/opciones/entidades", h.ListRegions)
	api.GET("/clues/:clues", h.GetFacility)
}

func (h *Handler) ListRegions(c echo.Context) error {
	regions, err := h.svc.Regions(c.Request().Context())
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if regions == nil {
		regions = []string{}
	}
	return c.JSON(http.StatusOK, regions)
}

func (h *Handler) GetFacility(c echo.Context) error {
	f, err := h.svc.GetFacility(c.Request().Context(), c.Param("clues"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, f)
}
