package doctor

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/imssbienestar/medicos/internal/platform/auth"
	"github.com/imssbienestar/medicos/internal/platform/validate"
)

func newTestHandler() (*Handler, *testEnv, *echo.Echo) {
	env := newTestService()
	e := echo.New()
	e.Validator = validate.New()
	return NewHandler(env.svc), env, e
}

func newRequest(ctx context.Context, method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return req.WithContext(ctx)
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	return httpErr.Code
}

func TestHandler_List_Paginated(t *testing.T) {
	h, env, e := newTestHandler()
	for _, id := range []string{"A1", "A2", "A3"} {
		env.seed(sampleDoctor(id))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(context.Background(), http.MethodGet, "/api/doctores?limit=2&skip=1", ""), rec)

	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Data []struct {
			ID string `json:"id_imss"`
		} `json:"data"`
		Total   int  `json:"total_count"`
		HasMore bool `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 3 || len(resp.Data) != 2 || resp.Data[0].ID != "A2" || resp.HasMore {
		t.Errorf("unexpected page: %+v", resp)
	}
}

func TestHandler_List_EmptyIsArray(t *testing.T) {
	h, _, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(context.Background(), http.MethodGet, "/api/doctores", ""), rec)

	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}

func TestHandler_List_InvalidStatus(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(newRequest(context.Background(), http.MethodGet, "/api/doctores?estatus=X", ""), httptest.NewRecorder())
	if code := statusOf(t, h.List(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_Get_NotFound(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(newRequest(context.Background(), http.MethodGet, "/api/doctores/NOPE", ""), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("NOPE")
	if code := statusOf(t, h.Get(c)); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHandler_Get_IncludeDeletedRequiresAdmin(t *testing.T) {
	h, env, e := newTestHandler()
	d := sampleDoctor("A1")
	d.IsDeleted = true
	env.seed(d)

	c := e.NewContext(newRequest(userCtx(), http.MethodGet, "/api/doctores/A1?include_deleted=true", ""), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("A1")
	if code := statusOf(t, h.Get(c)); code != http.StatusNotFound {
		t.Errorf("non-admin: expected 404, got %d", code)
	}

	rec := httptest.NewRecorder()
	c = e.NewContext(newRequest(adminCtx(), http.MethodGet, "/api/doctores/A1?include_deleted=true", ""), rec)
	c.SetParamNames("id")
	c.SetParamValues("A1")
	if err := h.Get(c); err != nil {
		t.Fatalf("admin: unexpected error %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"is_deleted":true`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_Create(t *testing.T) {
	h, env, e := newTestHandler()
	body := `{"id_imss":"B7","nombre":"Dayana","apellido_paterno":"Ruiz","estatus":"01 ACTIVO",
		"fecha_estatus":"2025-05-02","entidad":"SONORA","curp":""}`
	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(userCtx(), http.MethodPost, "/api/doctores", body), rec)

	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	got, ok := env.repo.doctors["B7"]
	if !ok || got.CURP != nil || day(got.FechaEstatus) != "2025-05-02" {
		t.Errorf("unexpected stored record %+v", got)
	}
}

func TestHandler_Update(t *testing.T) {
	h, env, e := newTestHandler()
	env.seed(sampleDoctor("A1"))
	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(userCtx(), http.MethodPut, "/api/doctores/A1",
		`{"turno":"NOCTURNO","apellido_materno":null,"version":1}`), rec)
	c.SetParamNames("id")
	c.SetParamValues("A1")

	if err := h.Update(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := env.repo.doctors["A1"]
	if str(got.Turno) != "NOCTURNO" || got.ApellidoMaterno != nil || got.Version != 2 {
		t.Errorf("unexpected record %+v", got)
	}
	hist := env.repo.historyFor("A1")
	if len(hist) != 1 || hist[0].TipoCambio != ChangeShift {
		t.Errorf("expected one shift entry, got %+v", hist)
	}
}

func TestHandler_Update_StaleVersion(t *testing.T) {
	h, env, e := newTestHandler()
	env.seed(sampleDoctor("A1"))
	c := e.NewContext(newRequest(userCtx(), http.MethodPut, "/api/doctores/A1",
		`{"turno":"NOCTURNO","version":7}`), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("A1")

	if code := statusOf(t, h.Update(c)); code != http.StatusConflict {
		t.Errorf("expected 409, got %d", code)
	}
}

func TestHandler_Create_EmptyDatesAreNull(t *testing.T) {
	h, env, e := newTestHandler()
	body := `{"id_imss":"B8","nombre":"Osmany","apellido_paterno":"Leyva","estatus":"01 ACTIVO",
		"fecha_estatus":"2025-05-02","fecha_nacimiento":"","fecha_vuelo":"","fecha_emision":"",
		"pasaporte":"K123456","telefono":"3111234567","correo":"oleyva@example.mx",
		"licenciatura":"MEDICINA GENERAL","acuerdo":"2024","despliegue":"NAYARIT","estrato":"RURAL"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(userCtx(), http.MethodPost, "/api/doctores", body), rec)

	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	got := env.repo.doctors["B8"]
	if got == nil || got.FechaNacimiento.Valid || got.FechaVuelo.Valid || got.FechaEmision.Valid {
		t.Errorf("expected empty dates stored as null, got %+v", got)
	}
	if str(got.Pasaporte) != "K123456" || str(got.Correo) != "oleyva@example.mx" || str(got.Estrato) != "RURAL" {
		t.Errorf("extra fields not stored: %+v", got)
	}
}

func TestHandler_Create_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing nombre", `{"id_imss":"B9","apellido_paterno":"Ruiz","estatus":"01 ACTIVO","fecha_estatus":"2025-05-02"}`, "nombre: is required"},
		{"bad curp", `{"id_imss":"B9","nombre":"Ana","apellido_paterno":"Ruiz","estatus":"01 ACTIVO","fecha_estatus":"2025-05-02","curp":"XYZ"}`, "curp: is not a valid CURP"},
		{"bad correo", `{"id_imss":"B9","nombre":"Ana","apellido_paterno":"Ruiz","estatus":"01 ACTIVO","fecha_estatus":"2025-05-02","correo":"nope"}`, "correo: is not a valid email address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, env, e := newTestHandler()
			c := e.NewContext(newRequest(userCtx(), http.MethodPost, "/api/doctores", tt.body), httptest.NewRecorder())

			err := h.Create(c)
			if code := statusOf(t, err); code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", code)
			}
			if msg, _ := err.(*echo.HTTPError).Message.(string); !strings.Contains(msg, tt.want) {
				t.Errorf("expected %q in %q", tt.want, msg)
			}
			if _, ok := env.repo.doctors["B9"]; ok {
				t.Error("record should not be stored")
			}
		})
	}
}

func TestHandler_Update_EmptyDateIsNull(t *testing.T) {
	h, env, e := newTestHandler()
	d := sampleDoctor("A1")
	d.FechaVuelo = date(2023, 3, 1)
	env.seed(d)
	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(userCtx(), http.MethodPut, "/api/doctores/A1",
		`{"fecha_notificacion":"","fecha_vuelo":"","turno":"VESPERTINO"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues("A1")

	if err := h.Update(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	got := env.repo.doctors["A1"]
	if str(got.Turno) != "VESPERTINO" || got.FechaVuelo.Valid || got.FechaNotificacion.Valid {
		t.Errorf("unexpected record %+v", got)
	}
}

func TestHandler_AddHistory_Validation(t *testing.T) {
	h, env, e := newTestHandler()
	env.seed(sampleDoctor("A1"))
	c := e.NewContext(newRequest(userCtx(), http.MethodPost, "/api/doctores/A1/historial",
		`{"fecha_inicio":"2023-01-01"}`), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("A1")

	if code := statusOf(t, h.AddHistory(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
	if n := len(env.repo.historyFor("A1")); n != 0 {
		t.Errorf("expected no history written, got %d", n)
	}
}

func TestHandler_AddHistory_EmptyFechaFin(t *testing.T) {
	h, env, e := newTestHandler()
	env.seed(sampleDoctor("A1"))
	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(userCtx(), http.MethodPost, "/api/doctores/A1/historial",
		`{"tipo_cambio":"Estatus","fecha_inicio":"2023-01-01","fecha_fin":""}`), rec)
	c.SetParamNames("id")
	c.SetParamValues("A1")

	if err := h.AddHistory(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hist := env.repo.historyFor("A1")
	if rec.Code != http.StatusCreated || len(hist) != 1 || hist[0].FechaFin.Valid {
		t.Errorf("unexpected result %d %+v", rec.Code, hist)
	}
}

func TestHandler_List_NombreAlias(t *testing.T) {
	h, env, e := newTestHandler()
	env.seed(sampleDoctor("A1"))
	other := sampleDoctor("A2")
	other.Nombre = "Reinaldo"
	env.seed(other)
	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(context.Background(), http.MethodGet, "/api/doctores?nombre=reinaldo", ""), rec)

	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"id_imss":"A2"`) || strings.Contains(rec.Body.String(), `"id_imss":"A1"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_PermanentDelete_SecretHeader(t *testing.T) {
	h, env, e := newTestHandler()
	d := sampleDoctor("A1")
	d.IsDeleted = true
	env.seed(d)

	req := newRequest(adminCtx(), http.MethodDelete, "/api/admin/doctores/A1/permanente", "")
	req.Header.Set(auth.ConfirmSecretHeader, "confirmar")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("A1")

	if err := h.PermanentDelete(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := env.repo.doctors["A1"]; ok {
		t.Error("record should be gone")
	}
}

func TestHandler_BulkPermanentDelete_WrongSecret(t *testing.T) {
	h, env, e := newTestHandler()
	d := sampleDoctor("A1")
	d.IsDeleted = true
	env.seed(d)

	c := e.NewContext(newRequest(adminCtx(), http.MethodPost, "/api/admin/doctores/permanente",
		`{"ids":["A1"],"confirmation_secret":"nope"}`), httptest.NewRecorder())
	if code := statusOf(t, h.BulkPermanentDelete(c)); code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", code)
	}
	if _, ok := env.repo.doctors["A1"]; !ok {
		t.Error("record must survive")
	}
}

func TestHandler_UploadAttachment(t *testing.T) {
	h, env, e := newTestHandler()
	env.seed(sampleDoctor("A1"))

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("tipo_documento", "TITULO")
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="titulo.pdf"`)
	hdr.Set("Content-Type", "application/pdf")
	part, err := w.CreatePart(hdr)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write([]byte("%PDF-1.7"))
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/doctores/A1/documentos", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	c := e.NewContext(req.WithContext(userCtx()), rec)
	c.SetParamNames("id")
	c.SetParamValues("A1")

	if err := h.UploadAttachment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var a Attachment
	if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
		t.Fatal(err)
	}
	if a.TipoDocumento != "TITULO" || a.NombreArchivo != "titulo.pdf" || env.store.Len() != 1 {
		t.Errorf("unexpected attachment %+v", a)
	}
}

func TestHandler_UploadPhoto_MissingFile(t *testing.T) {
	h, env, e := newTestHandler()
	env.seed(sampleDoctor("A1"))
	c := e.NewContext(newRequest(userCtx(), http.MethodPost, "/api/doctores/A1/foto", ""), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("A1")
	if code := statusOf(t, h.UploadPhoto(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_ExpiringLeaves(t *testing.T) {
	h, env, e := newTestHandler()
	d := sampleDoctor("A1")
	d.Estatus, d.FechaFin = StatusDisability, date(2025, 6, 30)
	env.seed(d)

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(userCtx(), http.MethodGet, "/api/doctores/alertas-vencimiento?dias=30", ""), rec)
	if err := h.ExpiringLeaves(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"id_imss":"A1"`) {
		t.Errorf("expected A1 in %s", rec.Body.String())
	}
}
