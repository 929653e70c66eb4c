package doctor

import (
	"net/http"
	"strconv"

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

// RegisterRoutes mounts the roster endpoints. public carries optional
// authentication, api requires a valid token.
func (h *Handler) RegisterRoutes(api, public *echo.Group) {
	public.GET("/doctores", h.List)
	public.GET("/doctores/:id", h.Get)
	public.GET("/opciones/entidades-capacidad", h.RegionCapacity)
	public.GET("/clues-con-capacidad/:clues", h.FacilityCapacity)

	read := api.Group("", auth.RequireRole(auth.RoleUser, auth.RoleReadOnly))
	read.GET("/doctores/check-curp/:curp", h.CheckCURP)
	read.GET("/doctores/alertas-vencimiento", h.ExpiringLeaves)
	read.GET("/doctores/:id/historial", h.ListHistory)
	read.GET("/doctores/:id/documentos", h.ListAttachments)

	write := api.Group("", auth.RequireRole(auth.RoleUser))
	write.POST("/doctores", h.Create)
	write.PUT("/doctores/:id", h.Update)
	write.DELETE("/doctores/:id", h.SoftDelete)
	write.POST("/doctores/bulk-delete", h.BulkSoftDelete)
	write.POST("/doctores/:id/historial", h.AddHistory)
	write.POST("/doctores/:id/foto", h.UploadPhoto)
	write.POST("/doctores/:id/documentos", h.UploadAttachment)
	write.DELETE("/doctores/:id/documentos/:doc_id", h.DeleteAttachment)

	admin := api.Group("/admin/doctores", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/eliminados", h.ListDeleted)
	admin.POST("/:id/restore", h.Restore)
	admin.DELETE("/:id/permanente", h.PermanentDelete)
	admin.POST("/permanente", h.BulkPermanentDelete)
}

func filterFromQuery(c echo.Context) Filter {
	search := c.QueryParam("search")
	for _, alias := range []string{"q", "nombre"} {
		if search != "" {
			break
		}
		search = c.QueryParam(alias)
	}
	coord, _ := strconv.ParseBool(c.QueryParam("incluir_coordinacion"))
	return Filter{
		Search:              search,
		Estatus:             c.QueryParam("estatus"),
		Entidad:             c.QueryParam("entidad"),
		Especialidad:        c.QueryParam("especialidad"),
		CLUES:               c.QueryParam("clues"),
		Turno:               c.QueryParam("turno"),
		NivelAtencion:       c.QueryParam("nivel_atencion"),
		IncludeCoordination: coord,
	}
}

func (h *Handler) list(c echo.Context, f Filter) error {
	pg := pagination.FromContext(c)
	doctors, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if doctors == nil {
		doctors = []*Doctor{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(doctors, total, pg.Limit, pg.Offset))
}

func (h *Handler) List(c echo.Context) error {
	return h.list(c, filterFromQuery(c))
}

func (h *Handler) ListDeleted(c echo.Context) error {
	f := filterFromQuery(c)
	f.DeletedOnly = true
	f.IncludeCoordination = true
	return h.list(c, f)
}

func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	includeDeleted, _ := strconv.ParseBool(c.QueryParam("include_deleted"))
	d, err := h.svc.Get(ctx, c.Param("id"), includeDeleted && auth.IsAdmin(ctx))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	d := req.Doctor()
	if err := h.svc.Create(c.Request().Context(), d); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) Update(c echo.Context) error {
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.Update(c.Request().Context(), c.Param("id"), &req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, res.Doctor)
}

func (h *Handler) SoftDelete(c echo.Context) error {
	id := c.Param("id")
	if err := h.svc.SoftDelete(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "doctor " + id + " deleted"})
}

func (h *Handler) BulkSoftDelete(c echo.Context) error {
	var req IDsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	n, err := h.svc.BulkSoftDelete(c.Request().Context(), req.IDs)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"deleted": n})
}

func (h *Handler) Restore(c echo.Context) error {
	id := c.Param("id")
	if err := h.svc.Restore(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "doctor " + id + " restored"})
}

func bindSecret(c echo.Context) (*IDsRequest, error) {
	var req IDsRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	if req.Secret == "" {
		req.Secret = c.Request().Header.Get(auth.ConfirmSecretHeader)
	}
	return &req, nil
}

func (h *Handler) PermanentDelete(c echo.Context) error {
	req, err := bindSecret(c)
	if err != nil {
		return err
	}
	id := c.Param("id")
	if err := h.svc.PermanentDelete(c.Request().Context(), id, req.Secret); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "doctor " + id + " permanently deleted"})
}

func (h *Handler) BulkPermanentDelete(c echo.Context) error {
	req, err := bindSecret(c)
	if err != nil {
		return err
	}
	n, err := h.svc.BulkPermanentDelete(c.Request().Context(), req.IDs, req.Secret)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"deleted": n})
}

func (h *Handler) AddHistory(c echo.Context) error {
	var req HistoryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	entry, err := h.svc.AddHistory(c.Request().Context(), c.Param("id"), &req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, entry)
}

func (h *Handler) ListHistory(c echo.Context) error {
	entries, err := h.svc.ListHistory(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if entries == nil {
		entries = []*HistoryEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) CheckCURP(c echo.Context) error {
	res, err := h.svc.CheckCURP(c.Request().Context(), c.Param("curp"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ExpiringLeaves(c echo.Context) error {
	days, _ := strconv.Atoi(c.QueryParam("dias"))
	doctors, err := h.svc.ExpiringLeaves(c.Request().Context(), days)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if doctors == nil {
		doctors = []*Doctor{}
	}
	return c.JSON(http.StatusOK, doctors)
}

func (h *Handler) RegionCapacity(c echo.Context) error {
	rows, err := h.svc.RegionCapacity(c.Request().Context())
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *Handler) FacilityCapacity(c echo.Context) error {
	res, err := h.svc.FacilityCapacity(c.Request().Context(), c.Param("clues"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}

func formUpload(c echo.Context) (*Upload, func(), error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, nil, echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, nil, echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
	}
	up := &Upload{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Size:        fh.Size,
		Body:        f,
	}
	return up, func() { f.Close() }, nil
}

func (h *Handler) UploadAttachment(c echo.Context) error {
	up, closeFn, err := formUpload(c)
	if err != nil {
		return err
	}
	defer closeFn()
	a, err := h.svc.UploadAttachment(c.Request().Context(), c.Param("id"), c.FormValue("tipo_documento"), up)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) ListAttachments(c echo.Context) error {
	docs, err := h.svc.ListAttachments(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if docs == nil {
		docs = []*Attachment{}
	}
	return c.JSON(http.StatusOK, docs)
}

func (h *Handler) DeleteAttachment(c echo.Context) error {
	docID, err := strconv.ParseInt(c.Param("doc_id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id")
	}
	if err := h.svc.DeleteAttachment(c.Request().Context(), c.Param("id"), docID); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) UploadPhoto(c echo.Context) error {
	up, closeFn, err := formUpload(c)
	if err != nil {
		return err
	}
	defer closeFn()
	url, err := h.svc.UploadPhoto(c.Request().Context(), c.Param("id"), up)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"foto_url": url})
}
