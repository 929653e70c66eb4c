// Package reporting serves read-only projections of the roster: chart
// series, a summary and a spreadsheet export. Counts cover non-deleted,
// non-coordination records; the export covers every non-deleted record.
package reporting

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/imssbienestar/medicos/internal/platform/apperr"
	"github.com/imssbienestar/medicos/internal/platform/auth"
)

// ChartDefinition is a count of doctors grouped by one column.
type ChartDefinition struct {
	ID     string
	Name   string
	Column string
	// WithID repeats the label as "id" in every item.
	WithID bool
}

// Charts lists the available chart series.
var Charts = []ChartDefinition{
	{ID: "doctores_por_estado", Name: "Doctores por estado", Column: "entidad"},
	{ID: "doctores_por_especialidad", Name: "Doctores por especialidad", Column: "especialidad"},
	{ID: "doctores_por_estatus", Name: "Doctores por estatus", Column: "estatus", WithID: true},
	{ID: "doctores_por_nivel_atencion", Name: "Doctores por nivel de atención", Column: "nivel_atencion"},
}

// FindChart looks up a chart by ID.
func FindChart(id string) *ChartDefinition {
	for i := range Charts {
		if Charts[i].ID == id {
			return &Charts[i]
		}
	}
	return nil
}

// Item is one bar or slice of a chart.
type Item struct {
	ID    string `json:"id,omitempty"`
	Label string `json:"label"`
	Value int64  `json:"value"`
}

// Summary is the totals report.
type Summary struct {
	Total           int64  `json:"total"`
	PorEstado       []Item `json:"por_estado"`
	PorEspecialidad []Item `json:"por_especialidad"`
}

// Store runs the aggregate queries.
type Store interface {
	CountBy(ctx context.Context, column string) ([]Item, error)
	Total(ctx context.Context) (int64, error)
	ExportRows(ctx context.Context, cols []Column) ([][]string, error)
}

type Handler struct {
	store Store
	log   zerolog.Logger
}

func NewHandler(store Store, logger zerolog.Logger) *Handler {
	return &Handler{store: store, log: logger}
}

// RegisterRoutes mounts the report endpoints on a group with optional
// authentication.
func (h *Handler) RegisterRoutes(public *echo.Group) {
	public.GET("/graficas/:chart", h.Chart)
	public.GET("/reporte/resumen", h.Summary)
	public.GET("/reporte/xlsx", h.Workbook)
}

func requester(c echo.Context) string {
	if u := auth.UsernameFromContext(c.Request().Context()); u != "" {
		return u
	}
	return "invitado"
}

func (h *Handler) Chart(c echo.Context) error {
	def := FindChart(c.Param("chart"))
	if def == nil {
		return echo.NewHTTPError(http.StatusNotFound, "chart not found")
	}
	items, err := h.store.CountBy(c.Request().Context(), def.Column)
	if err != nil {
		return apperr.ToHTTP(apperr.Internal("chart query", err))
	}
	if items == nil {
		items = []Item{}
	}
	if def.WithID {
		for i := range items {
			items[i].ID = items[i].Label
		}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Summary(c echo.Context) error {
	ctx := c.Request().Context()
	total, err := h.store.Total(ctx)
	if err != nil {
		return apperr.ToHTTP(apperr.Internal("summary total", err))
	}
	byRegion, err := h.store.CountBy(ctx, "entidad")
	if err != nil {
		return apperr.ToHTTP(apperr.Internal("summary by region", err))
	}
	bySpecialty, err := h.store.CountBy(ctx, "especialidad")
	if err != nil {
		return apperr.ToHTTP(apperr.Internal("summary by specialty", err))
	}
	if total == 0 && len(byRegion) == 0 && len(bySpecialty) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "no data for the summary report")
	}
	if byRegion == nil {
		byRegion = []Item{}
	}
	if bySpecialty == nil {
		bySpecialty = []Item{}
	}
	return c.JSON(http.StatusOK, &Summary{Total: total, PorEstado: byRegion, PorEspecialidad: bySpecialty})
}

func (h *Handler) Workbook(c echo.Context) error {
	cols, err := SelectColumns(c.QueryParam("columns"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	rows, err := h.store.ExportRows(c.Request().Context(), cols)
	if err != nil {
		return apperr.ToHTTP(apperr.Internal("export query", err))
	}
	if len(rows) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "no doctors to export")
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+WorkbookFileName+`"`)
	c.Response().Header().Set(echo.HeaderContentType, WorkbookContentType)
	c.Response().WriteHeader(http.StatusOK)
	if err := WriteDoctorWorkbook(c.Response(), cols, rows); err != nil {
		h.log.Error().Err(err).Msg("failed to write workbook")
		return err
	}
	h.log.Info().
		Str("user", requester(c)).
		Int("rows", len(rows)).
		Int("columns", len(cols)).
		Msg("workbook exported")
	return nil
}

// SelectColumns resolves a comma-separated column list. An empty list
// selects every column.
func SelectColumns(list string) ([]Column, error) {
	list = strings.TrimSpace(list)
	if list == "" {
		return ExportColumns, nil
	}
	var out []Column
	seen := make(map[string]bool)
	for _, key := range strings.Split(list, ",") {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" || seen[key] {
			continue
		}
		col, ok := columnByKey(key)
		if !ok {
			return nil, apperr.Validation("unknown column %q", key)
		}
		seen[key] = true
		out = append(out, col)
	}
	if len(out) == 0 {
		return nil, apperr.Validation("columns must name at least one column")
	}
	return out, nil
}
