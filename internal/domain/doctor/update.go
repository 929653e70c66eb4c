package doctor

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/imssbienestar/medicos/internal/platform/apperr"
)

// Optional is a field of a partial update. A key missing from the body
// leaves Set false, an explicit null sets Null.
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// UnmarshalJSON treats an empty string as null for non-string fields, so a
// cleared date input arrives as a clear.
func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	b = bytes.TrimSpace(b)
	_, isString := any(o.Value).(string)
	if bytes.Equal(b, []byte("null")) || (!isString && bytes.Equal(b, []byte(`""`))) {
		var zero T
		o.Null, o.Value = true, zero
		return nil
	}
	o.Null = false
	return json.Unmarshal(b, &o.Value)
}

// NullDate is a date body field that accepts "" as null.
type NullDate struct {
	pgtype.Date
}

func (d *NullDate) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte(`""`)) {
		d.Date = pgtype.Date{}
		return nil
	}
	return d.Date.UnmarshalJSON(b)
}

// UpdateRequest lists every field a client may change.
type UpdateRequest struct {
	CURP                  Optional[string]      `json:"curp"`
	Pasaporte             Optional[string]      `json:"pasaporte"`
	FechaEmision          Optional[pgtype.Date] `json:"fecha_emision"`
	FechaExpiracion       Optional[pgtype.Date] `json:"fecha_expiracion"`
	Nombre                Optional[string]      `json:"nombre"`
	ApellidoPaterno       Optional[string]      `json:"apellido_paterno"`
	ApellidoMaterno       Optional[string]      `json:"apellido_materno"`
	Sexo                  Optional[string]      `json:"sexo"`
	FechaNacimiento       Optional[pgtype.Date] `json:"fecha_nacimiento"`
	MatrimonioID          Optional[string]      `json:"matrimonio_id"`
	Telefono              Optional[string]      `json:"telefono"`
	Correo                Optional[string]      `json:"correo"`
	Licenciatura          Optional[string]      `json:"licenciatura"`
	Especialidad          Optional[string]      `json:"especialidad"`
	CedulaEsp             Optional[string]      `json:"cedula_esp"`
	CedulaLic             Optional[string]      `json:"cedula_lic"`
	Entidad               Optional[string]      `json:"entidad"`
	Municipio             Optional[string]      `json:"municipio"`
	CLUES                 Optional[string]      `json:"clues"`
	NombreUnidad          Optional[string]      `json:"nombre_unidad"`
	Turno                 Optional[string]      `json:"turno"`
	NivelAtencion         Optional[string]      `json:"nivel_atencion"`
	Coordinacion          Optional[string]      `json:"coordinacion"`
	Acuerdo               Optional[string]      `json:"acuerdo"`
	FechaVuelo            Optional[pgtype.Date] `json:"fecha_vuelo"`
	Despliegue            Optional[string]      `json:"despliegue"`
	Estrato               Optional[string]      `json:"estrato"`
	Estatus               Optional[string]      `json:"estatus"`
	FechaEstatus          Optional[pgtype.Date] `json:"fecha_estatus"`
	FechaFin              Optional[pgtype.Date] `json:"fecha_fin"`
	MotivoBaja            Optional[string]      `json:"motivo_baja"`
	FechaDefuncion        Optional[pgtype.Date] `json:"fecha_defuncion"`
	ComentariosEstatus    Optional[string]      `json:"comentarios_estatus"`
	FormaNotificacionBaja Optional[string]      `json:"forma_notificacion_baja"`
	FechaExtraccion       Optional[pgtype.Date] `json:"fecha_extraccion"`
	FechaNotificacion     Optional[pgtype.Date] `json:"fecha_notificacion"`

	// Version, when sent, must match the stored version.
	Version *int `json:"version"`
}

func applyString(dst **string, o Optional[string]) {
	if !o.Set {
		return
	}
	v := strings.TrimSpace(o.Value)
	if o.Null || v == "" {
		*dst = nil
		return
	}
	*dst = &v
}

func applyRequired(dst *string, o Optional[string], field string) error {
	if !o.Set {
		return nil
	}
	v := strings.TrimSpace(o.Value)
	if o.Null || v == "" {
		return apperr.Validation("%s cannot be empty", field)
	}
	*dst = v
	return nil
}

func applyDate(dst *pgtype.Date, o Optional[pgtype.Date]) {
	if !o.Set {
		return
	}
	if o.Null {
		*dst = pgtype.Date{}
		return
	}
	*dst = o.Value
}

// ApplyUpdate merges the fields present in req onto d. Blank strings clear
// nullable fields and are rejected for required ones.
func ApplyUpdate(d *Doctor, req *UpdateRequest) error {
	if err := applyRequired(&d.Nombre, req.Nombre, "nombre"); err != nil {
		return err
	}
	if err := applyRequired(&d.ApellidoPaterno, req.ApellidoPaterno, "apellido_paterno"); err != nil {
		return err
	}
	if err := applyRequired(&d.Estatus, req.Estatus, "estatus"); err != nil {
		return err
	}
	applyString(&d.CURP, req.CURP)
	applyString(&d.Pasaporte, req.Pasaporte)
	applyDate(&d.FechaEmision, req.FechaEmision)
	applyDate(&d.FechaExpiracion, req.FechaExpiracion)
	applyString(&d.ApellidoMaterno, req.ApellidoMaterno)
	applyString(&d.Sexo, req.Sexo)
	applyDate(&d.FechaNacimiento, req.FechaNacimiento)
	applyString(&d.MatrimonioID, req.MatrimonioID)
	applyString(&d.Telefono, req.Telefono)
	applyString(&d.Correo, req.Correo)
	applyString(&d.Licenciatura, req.Licenciatura)
	applyString(&d.Especialidad, req.Especialidad)
	applyString(&d.CedulaEsp, req.CedulaEsp)
	applyString(&d.CedulaLic, req.CedulaLic)
	applyString(&d.Entidad, req.Entidad)
	applyString(&d.Municipio, req.Municipio)
	applyString(&d.CLUES, req.CLUES)
	applyString(&d.NombreUnidad, req.NombreUnidad)
	applyString(&d.Turno, req.Turno)
	applyString(&d.NivelAtencion, req.NivelAtencion)
	applyString(&d.Coordinacion, req.Coordinacion)
	applyString(&d.Acuerdo, req.Acuerdo)
	applyDate(&d.FechaVuelo, req.FechaVuelo)
	applyString(&d.Despliegue, req.Despliegue)
	applyString(&d.Estrato, req.Estrato)
	applyDate(&d.FechaEstatus, req.FechaEstatus)
	applyDate(&d.FechaFin, req.FechaFin)
	applyString(&d.MotivoBaja, req.MotivoBaja)
	applyDate(&d.FechaDefuncion, req.FechaDefuncion)
	applyString(&d.ComentariosEstatus, req.ComentariosEstatus)
	applyString(&d.FormaNotificacionBaja, req.FormaNotificacionBaja)
	applyDate(&d.FechaExtraccion, req.FechaExtraccion)
	applyDate(&d.FechaNotificacion, req.FechaNotificacion)
	return nil
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func day(d pgtype.Date) string {
	if !d.Valid {
		return ""
	}
	return d.Time.Format("2006-01-02")
}

// trackedFields are compared to build the change summary.
var trackedFields = []struct {
	name string
	get  func(*Doctor) string
}{
	{"curp", func(d *Doctor) string { return str(d.CURP) }},
	{"pasaporte", func(d *Doctor) string { return str(d.Pasaporte) }},
	{"fecha_emision", func(d *Doctor) string { return day(d.FechaEmision) }},
	{"fecha_expiracion", func(d *Doctor) string { return day(d.FechaExpiracion) }},
	{"nombre", func(d *Doctor) string { return d.Nombre }},
	{"apellido_paterno", func(d *Doctor) string { return d.ApellidoPaterno }},
	{"apellido_materno", func(d *Doctor) string { return str(d.ApellidoMaterno) }},
	{"sexo", func(d *Doctor) string { return str(d.Sexo) }},
	{"fecha_nacimiento", func(d *Doctor) string { return day(d.FechaNacimiento) }},
	{"matrimonio_id", func(d *Doctor) string { return str(d.MatrimonioID) }},
	{"telefono", func(d *Doctor) string { return str(d.Telefono) }},
	{"correo", func(d *Doctor) string { return str(d.Correo) }},
	{"licenciatura", func(d *Doctor) string { return str(d.Licenciatura) }},
	{"especialidad", func(d *Doctor) string { return str(d.Especialidad) }},
	{"cedula_esp", func(d *Doctor) string { return str(d.CedulaEsp) }},
	{"cedula_lic", func(d *Doctor) string { return str(d.CedulaLic) }},
	{"entidad", func(d *Doctor) string { return str(d.Entidad) }},
	{"municipio", func(d *Doctor) string { return str(d.Municipio) }},
	{"clues", func(d *Doctor) string { return str(d.CLUES) }},
	{"nombre_unidad", func(d *Doctor) string { return str(d.NombreUnidad) }},
	{"turno", func(d *Doctor) string { return str(d.Turno) }},
	{"nivel_atencion", func(d *Doctor) string { return str(d.NivelAtencion) }},
	{"coordinacion", func(d *Doctor) string { return str(d.Coordinacion) }},
	{"acuerdo", func(d *Doctor) string { return str(d.Acuerdo) }},
	{"fecha_vuelo", func(d *Doctor) string { return day(d.FechaVuelo) }},
	{"despliegue", func(d *Doctor) string { return str(d.Despliegue) }},
	{"estrato", func(d *Doctor) string { return str(d.Estrato) }},
	{"estatus", func(d *Doctor) string { return d.Estatus }},
	{"fecha_estatus", func(d *Doctor) string { return day(d.FechaEstatus) }},
	{"fecha_fin", func(d *Doctor) string { return day(d.FechaFin) }},
	{"motivo_baja", func(d *Doctor) string { return str(d.MotivoBaja) }},
	{"fecha_defuncion", func(d *Doctor) string { return day(d.FechaDefuncion) }},
	{"comentarios_estatus", func(d *Doctor) string { return str(d.ComentariosEstatus) }},
	{"forma_notificacion_baja", func(d *Doctor) string { return str(d.FormaNotificacionBaja) }},
	{"fecha_extraccion", func(d *Doctor) string { return day(d.FechaExtraccion) }},
	{"fecha_notificacion", func(d *Doctor) string { return day(d.FechaNotificacion) }},
}

// changedFields returns the names of the fields that differ between before
// and after, in declaration order.
func changedFields(before, after *Doctor) []string {
	var out []string
	for _, f := range trackedFields {
		if f.get(before) != f.get(after) {
			out = append(out, f.name)
		}
	}
	return out
}
