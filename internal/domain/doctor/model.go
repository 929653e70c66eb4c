package doctor

import (
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/imssbienestar/medicos/internal/domain/facility"
)

// Status codes as stored in doctores.estatus.
const (
	StatusActive      = "01 ACTIVO"
	StatusLeaveCuba   = "02 RETIRO TEMP. (CUBA)"
	StatusLeaveMexico = "03 RETIRO TEMP. (MEXICO)"
	StatusPersonal    = "04 SOL. PERSONAL"
	StatusDisability  = "05 INCAPACIDAD"
	StatusDischarge   = "06 BAJA"
	StatusDeath       = "07 DEFUNCION"
)

// Statuses lists every valid status in code order.
var Statuses = []string{
	StatusActive, StatusLeaveCuba, StatusLeaveMexico, StatusPersonal,
	StatusDisability, StatusDischarge, StatusDeath,
}

func ValidStatus(s string) bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsDischargeFamily reports whether s ends the doctor's assignment.
func IsDischargeFamily(s string) bool {
	return s == StatusDischarge || s == StatusDeath
}

// IsTemporaryLeave reports whether s carries an end date (fecha_fin).
func IsTemporaryLeave(s string) bool {
	return s == StatusLeaveCuba || s == StatusLeaveMexico || s == StatusDisability
}

// IsCoordination reports whether the coordination flag is set. The column
// holds free text; "SI" and "true" in any case count as set.
func IsCoordination(flag *string) bool {
	if flag == nil {
		return false
	}
	switch strings.ToUpper(strings.TrimSpace(*flag)) {
	case "SI", "SÍ", "TRUE":
		return true
	}
	return false
}

// Doctor is one record of the roster.
type Doctor struct {
	ID                    string      `db:"id_imss" json:"id_imss"`
	CURP                  *string     `db:"curp" json:"curp"`
	Pasaporte             *string     `db:"pasaporte" json:"pasaporte"`
	FechaEmision          pgtype.Date `db:"fecha_emision" json:"fecha_emision"`
	FechaExpiracion       pgtype.Date `db:"fecha_expiracion" json:"fecha_expiracion"`
	Nombre                string      `db:"nombre" json:"nombre"`
	ApellidoPaterno       string      `db:"apellido_paterno" json:"apellido_paterno"`
	ApellidoMaterno       *string     `db:"apellido_materno" json:"apellido_materno"`
	Sexo                  *string     `db:"sexo" json:"sexo"`
	FechaNacimiento       pgtype.Date `db:"fecha_nacimiento" json:"fecha_nacimiento"`
	MatrimonioID          *string     `db:"matrimonio_id" json:"matrimonio_id"`
	Telefono              *string     `db:"telefono" json:"telefono"`
	Correo                *string     `db:"correo" json:"correo"`
	Licenciatura          *string     `db:"licenciatura" json:"licenciatura"`
	Especialidad          *string     `db:"especialidad" json:"especialidad"`
	CedulaEsp             *string     `db:"cedula_esp" json:"cedula_esp"`
	CedulaLic             *string     `db:"cedula_lic" json:"cedula_lic"`
	Entidad               *string     `db:"entidad" json:"entidad"`
	Municipio             *string     `db:"municipio" json:"municipio"`
	CLUES                 *string     `db:"clues" json:"clues"`
	NombreUnidad          *string     `db:"nombre_unidad" json:"nombre_unidad"`
	Turno                 *string     `db:"turno" json:"turno"`
	NivelAtencion         *string     `db:"nivel_atencion" json:"nivel_atencion"`
	Coordinacion          *string     `db:"coordinacion" json:"coordinacion"`
	Acuerdo               *string     `db:"acuerdo" json:"acuerdo"`
	FechaVuelo            pgtype.Date `db:"fecha_vuelo" json:"fecha_vuelo"`
	Despliegue            *string     `db:"despliegue" json:"despliegue"`
	Estrato               *string     `db:"estrato" json:"estrato"`
	Estatus               string      `db:"estatus" json:"estatus"`
	FechaEstatus          pgtype.Date `db:"fecha_estatus" json:"fecha_estatus"`
	FechaFin              pgtype.Date `db:"fecha_fin" json:"fecha_fin"`
	MotivoBaja            *string     `db:"motivo_baja" json:"motivo_baja"`
	FechaDefuncion        pgtype.Date `db:"fecha_defuncion" json:"fecha_defuncion"`
	ComentariosEstatus    *string     `db:"comentarios_estatus" json:"comentarios_estatus"`
	FormaNotificacionBaja *string     `db:"forma_notificacion_baja" json:"forma_notificacion_baja"`
	FechaExtraccion       pgtype.Date `db:"fecha_extraccion" json:"fecha_extraccion"`
	FechaNotificacion     pgtype.Date `db:"fecha_notificacion" json:"fecha_notificacion"`
	FotoURL               *string     `db:"foto_url" json:"foto_url"`
	IsDeleted             bool        `db:"is_deleted" json:"is_deleted"`
	DeletedAt             *time.Time  `db:"deleted_at" json:"deleted_at,omitempty"`
	DeletedBy             *string     `db:"deleted_by" json:"deleted_by,omitempty"`
	Version               int         `db:"version" json:"version"`
	CreatedAt             time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time   `db:"updated_at" json:"updated_at"`

	Documentos []*Attachment   `json:"documentos,omitempty"`
	Historial  []*HistoryEntry `json:"historial,omitempty"`
}

// FullName returns "nombre apellido_paterno apellido_materno".
func (d *Doctor) FullName() string {
	parts := []string{d.Nombre, d.ApellidoPaterno}
	if d.ApellidoMaterno != nil {
		parts = append(parts, *d.ApellidoMaterno)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// HistoryEntry is an immutable row of historial_estatus.
type HistoryEntry struct {
	ID          int64       `db:"id" json:"id"`
	DoctorID    string      `db:"id_imss" json:"id_imss"`
	TipoCambio  string      `db:"tipo_cambio" json:"tipo_cambio"`
	Estatus     *string     `db:"estatus" json:"estatus"`
	FechaInicio pgtype.Date `db:"fecha_inicio" json:"fecha_inicio"`
	FechaFin    pgtype.Date `db:"fecha_fin" json:"fecha_fin"`
	CLUES       *string     `db:"clues" json:"clues"`
	Entidad     *string     `db:"entidad" json:"entidad"`
	Turno       *string     `db:"turno" json:"turno"`
	Comentarios *string     `db:"comentarios" json:"comentarios"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// CreateRequest is the body of a new record. Date fields accept "" as null.
type CreateRequest struct {
	ID                    string   `json:"id_imss" validate:"required,max=100"`
	CURP                  *string  `json:"curp" validate:"omitempty,curp"`
	Pasaporte             *string  `json:"pasaporte" validate:"omitempty,max=50"`
	FechaEmision          NullDate `json:"fecha_emision"`
	FechaExpiracion       NullDate `json:"fecha_expiracion"`
	Nombre                string   `json:"nombre" validate:"required,max=255"`
	ApellidoPaterno       string   `json:"apellido_paterno" validate:"required,max=255"`
	ApellidoMaterno       *string  `json:"apellido_materno" validate:"omitempty,max=255"`
	Sexo                  *string  `json:"sexo" validate:"omitempty,max=10"`
	FechaNacimiento       NullDate `json:"fecha_nacimiento"`
	MatrimonioID          *string  `json:"matrimonio_id" validate:"omitempty,max=100"`
	Telefono              *string  `json:"telefono" validate:"omitempty,max=50"`
	Correo                *string  `json:"correo" validate:"omitempty,email,max=255"`
	Licenciatura          *string  `json:"licenciatura" validate:"omitempty,max=255"`
	Especialidad          *string  `json:"especialidad" validate:"omitempty,max=255"`
	CedulaEsp             *string  `json:"cedula_esp" validate:"omitempty,max=100"`
	CedulaLic             *string  `json:"cedula_lic" validate:"omitempty,max=100"`
	Entidad               *string  `json:"entidad" validate:"omitempty,max=100"`
	Municipio             *string  `json:"municipio" validate:"omitempty,max=100"`
	CLUES                 *string  `json:"clues" validate:"omitempty,max=20"`
	NombreUnidad          *string  `json:"nombre_unidad" validate:"omitempty,max=255"`
	Turno                 *string  `json:"turno" validate:"omitempty,max=50"`
	NivelAtencion         *string  `json:"nivel_atencion" validate:"omitempty,max=50"`
	Coordinacion          *string  `json:"coordinacion" validate:"omitempty,max=10"`
	Acuerdo               *string  `json:"acuerdo" validate:"omitempty,max=255"`
	FechaVuelo            NullDate `json:"fecha_vuelo"`
	Despliegue            *string  `json:"despliegue" validate:"omitempty,max=255"`
	Estrato               *string  `json:"estrato" validate:"omitempty,max=100"`
	Estatus               string   `json:"estatus" validate:"required"`
	FechaEstatus          NullDate `json:"fecha_estatus"`
	FechaFin              NullDate `json:"fecha_fin"`
	MotivoBaja            *string  `json:"motivo_baja"`
	FechaDefuncion        NullDate `json:"fecha_defuncion"`
	ComentariosEstatus    *string  `json:"comentarios_estatus"`
	FormaNotificacionBaja *string  `json:"forma_notificacion_baja"`
	FechaExtraccion       NullDate `json:"fecha_extraccion"`
	FechaNotificacion     NullDate `json:"fecha_notificacion"`
}

// Doctor copies the request into a record for Service.Create.
func (r *CreateRequest) Doctor() *Doctor {
	return &Doctor{
		ID:                    r.ID,
		CURP:                  r.CURP,
		Pasaporte:             r.Pasaporte,
		FechaEmision:          r.FechaEmision.Date,
		FechaExpiracion:       r.FechaExpiracion.Date,
		Nombre:                r.Nombre,
		ApellidoPaterno:       r.ApellidoPaterno,
		ApellidoMaterno:       r.ApellidoMaterno,
		Sexo:                  r.Sexo,
		FechaNacimiento:       r.FechaNacimiento.Date,
		MatrimonioID:          r.MatrimonioID,
		Telefono:              r.Telefono,
		Correo:                r.Correo,
		Licenciatura:          r.Licenciatura,
		Especialidad:          r.Especialidad,
		CedulaEsp:             r.CedulaEsp,
		CedulaLic:             r.CedulaLic,
		Entidad:               r.Entidad,
		Municipio:             r.Municipio,
		CLUES:                 r.CLUES,
		NombreUnidad:          r.NombreUnidad,
		Turno:                 r.Turno,
		NivelAtencion:         r.NivelAtencion,
		Coordinacion:          r.Coordinacion,
		Acuerdo:               r.Acuerdo,
		FechaVuelo:            r.FechaVuelo.Date,
		Despliegue:            r.Despliegue,
		Estrato:               r.Estrato,
		Estatus:               r.Estatus,
		FechaEstatus:          r.FechaEstatus.Date,
		FechaFin:              r.FechaFin.Date,
		MotivoBaja:            r.MotivoBaja,
		FechaDefuncion:        r.FechaDefuncion.Date,
		ComentariosEstatus:    r.ComentariosEstatus,
		FormaNotificacionBaja: r.FormaNotificacionBaja,
		FechaExtraccion:       r.FechaExtraccion.Date,
		FechaNotificacion:     r.FechaNotificacion.Date,
	}
}

// HistoryRequest backfills a history entry by hand.
type HistoryRequest struct {
	TipoCambio  string   `json:"tipo_cambio" validate:"required,max=100"`
	Estatus     *string  `json:"estatus"`
	FechaInicio NullDate `json:"fecha_inicio"`
	FechaFin    NullDate `json:"fecha_fin"`
	CLUES       *string     `json:"clues"`
	Entidad     *string     `json:"entidad"`
	Turno       *string     `json:"turno"`
	Comentarios *string     `json:"comentarios"`
}

// Attachment is a document stored in the object bucket.
type Attachment struct {
	ID            int64     `db:"id" json:"id"`
	DoctorID      string    `db:"id_imss" json:"id_imss"`
	NombreArchivo string    `db:"nombre_archivo" json:"nombre_archivo"`
	URL           string    `db:"url" json:"url"`
	MimeType      *string   `db:"mime_type" json:"mime_type"`
	TipoDocumento string    `db:"tipo_documento" json:"tipo_documento"`
	UploadedAt    time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// Upload is a file received from a multipart request.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Filter narrows List. Estatus "" means no status filter at the repository
// level; the service applies the active default before calling it.
type Filter struct {
	Search              string
	Estatus             string
	Entidad             string
	Especialidad        string
	CLUES               string
	Turno               string
	NivelAtencion       string
	IncludeCoordination bool
	DeletedOnly         bool
}

// UpdateResult is the outcome of Update.
type UpdateResult struct {
	Doctor  *Doctor
	Summary string
	History *HistoryEntry
}

type CURPCheck struct {
	Exists  bool   `json:"exists"`
	Message string `json:"message"`
}

// CapacityRow compares a region's headcount with its quota. Minimo and
// Maximo are nil when the region has no quota row.
type CapacityRow struct {
	Entidad    string `json:"entidad"`
	Actual     int    `json:"actual"`
	Minimo     *int   `json:"minimo"`
	Maximo     *int   `json:"maximo"`
	Disponible *int   `json:"disponible"`
}

type FacilityCapacity struct {
	Unidad    *facility.Facility `json:"unidad"`
	Capacidad *CapacityRow       `json:"capacidad"`
}

type IDsRequest struct {
	IDs    []string `json:"ids"`
	Secret string   `json:"confirmation_secret"`
}
