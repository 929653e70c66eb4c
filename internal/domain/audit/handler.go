package audit

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/imssbienestar/medicos/internal/platform/apperr"
	"github.com/imssbienestar/medicos/internal/platform/auth"
	"github.com/imssbienestar/medicos/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("/admin/audit-logs", auth.RequireRole(auth.RoleAdmin))
	admin.GET("", h.List)
	admin.DELETE("/bulk-delete", h.BulkDelete)
}

func parseDay(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (h *Handler) List(c echo.Context) error {
	f := Filter{
		Username: c.QueryParam("username"),
		Action:   c.QueryParam("action"),
	}
	start, err := parseDay(c.QueryParam("start_date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "start_date must be YYYY-MM-DD")
	}
	end, err := parseDay(c.QueryParam("end_date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "end_date must be YYYY-MM-DD")
	}
	f.Start = start
	if end != nil {
		// end_date is inclusive
		next := end.AddDate(0, 0, 1)
		f.End = &next
	}

	pg := pagination.FromContext(c)
	entries, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if entries == nil {
		entries = []*Entry{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, pg.Limit, pg.Offset))
}

func (h *Handler) BulkDelete(c echo.Context) error {
	var req BulkDeleteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Secret == "" {
		req.Secret = c.Request().Header.Get(auth.ConfirmSecretHeader)
	}
	n, err := h.svc.BulkDelete(c.Request().Context(), &req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"deleted": n,
		"message": "audit logs deleted",
	})
}
