package doctor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/imssbienestar/medicos/internal/platform/apperr"
	"github.com/imssbienestar/medicos/internal/platform/db"
)

const doctorCols = `id_imss, curp, nombre, apellido_paterno, apellido_materno, sexo,
	fecha_nacimiento, especialidad, cedula_esp, cedula_lic, entidad, municipio, clues,
	nombre_unidad, turno, nivel_atencion, coordinacion, estatus, fecha_estatus, fecha_fin,
	motivo_baja, fecha_defuncion, comentarios_estatus, forma_notificacion_baja,
	fecha_extraccion, fecha_notificacion, pasaporte, fecha_emision, fecha_expiracion,
	matrimonio_id, telefono, correo, licenciatura, acuerdo, fecha_vuelo, despliegue, estrato,
	foto_url, is_deleted, deleted_at, deleted_by, version, created_at, updated_at`

// notCoordination matches rows whose coordination flag is unset.
const notCoordination = `UPPER(TRIM(COALESCE(coordinacion, ''))) NOT IN ('SI', 'SÍ', 'TRUE')`

const historyCols = `id, id_imss, tipo_cambio, estatus, fecha_inicio, fecha_fin, clues,
	entidad, turno, comentarios, created_at`

const attachmentCols = `id, id_imss, nombre_archivo, url, mime_type, tipo_documento, uploaded_at`

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Executor(ctx, r.pool)
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.CURP, &d.Nombre, &d.ApellidoPaterno, &d.ApellidoMaterno, &d.Sexo,
		&d.FechaNacimiento, &d.Especialidad, &d.CedulaEsp, &d.CedulaLic, &d.Entidad, &d.Municipio, &d.CLUES,
		&d.NombreUnidad, &d.Turno, &d.NivelAtencion, &d.Coordinacion, &d.Estatus, &d.FechaEstatus, &d.FechaFin,
		&d.MotivoBaja, &d.FechaDefuncion, &d.ComentariosEstatus, &d.FormaNotificacionBaja,
		&d.FechaExtraccion, &d.FechaNotificacion, &d.Pasaporte, &d.FechaEmision, &d.FechaExpiracion,
		&d.MatrimonioID, &d.Telefono, &d.Correo, &d.Licenciatura, &d.Acuerdo, &d.FechaVuelo, &d.Despliegue, &d.Estrato,
		&d.FotoURL, &d.IsDeleted, &d.DeletedAt, &d.DeletedBy, &d.Version, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanDoctorRows(rows pgx.Rows) ([]*Doctor, error) {
	defer rows.Close()
	var out []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan doctor: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *repoPG) Create(ctx context.Context, d *Doctor) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctores (id_imss, curp, nombre, apellido_paterno, apellido_materno, sexo,
			fecha_nacimiento, especialidad, cedula_esp, cedula_lic, entidad, municipio, clues,
			nombre_unidad, turno, nivel_atencion, coordinacion, estatus, fecha_estatus, fecha_fin,
			motivo_baja, fecha_defuncion, comentarios_estatus, forma_notificacion_baja,
			fecha_extraccion, fecha_notificacion, pasaporte, fecha_emision, fecha_expiracion,
			matrimonio_id, telefono, correo, licenciatura, acuerdo, fecha_vuelo, despliegue, estrato,
			version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34, $35,
			$36, $37, $38)
		RETURNING created_at, updated_at`,
		d.ID, d.CURP, d.Nombre, d.ApellidoPaterno, d.ApellidoMaterno, d.Sexo,
		d.FechaNacimiento, d.Especialidad, d.CedulaEsp, d.CedulaLic, d.Entidad, d.Municipio, d.CLUES,
		d.NombreUnidad, d.Turno, d.NivelAtencion, d.Coordinacion, d.Estatus, d.FechaEstatus, d.FechaFin,
		d.MotivoBaja, d.FechaDefuncion, d.ComentariosEstatus, d.FormaNotificacionBaja,
		d.FechaExtraccion, d.FechaNotificacion, d.Pasaporte, d.FechaEmision, d.FechaExpiracion,
		d.MatrimonioID, d.Telefono, d.Correo, d.Licenciatura, d.Acuerdo, d.FechaVuelo, d.Despliegue, d.Estrato,
		d.Version,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if isUniqueViolation(err) {
		return apperr.Conflict("a doctor with id_imss %s or the same CURP already exists", d.ID)
	}
	if err != nil {
		return fmt.Errorf("create doctor: %w", err)
	}
	return nil
}

func (r *repoPG) getOne(ctx context.Context, sql, id string) (*Doctor, error) {
	d, err := scanDoctor(r.conn(ctx).QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("doctor %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get doctor %s: %w", id, err)
	}
	return d, nil
}

func (r *repoPG) Get(ctx context.Context, id string) (*Doctor, error) {
	return r.getOne(ctx, `SELECT `+doctorCols+` FROM doctores WHERE id_imss = $1`, id)
}

func (r *repoPG) GetForUpdate(ctx context.Context, id string) (*Doctor, error) {
	return r.getOne(ctx, `SELECT `+doctorCols+` FROM doctores
		WHERE id_imss = $1 AND NOT is_deleted FOR UPDATE`, id)
}

func (r *repoPG) Update(ctx context.Context, d *Doctor, expectedVersion int) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE doctores SET curp = $2, nombre = $3, apellido_paterno = $4, apellido_materno = $5,
			sexo = $6, fecha_nacimiento = $7, especialidad = $8, cedula_esp = $9, cedula_lic = $10,
			entidad = $11, municipio = $12, clues = $13, nombre_unidad = $14, turno = $15,
			nivel_atencion = $16, coordinacion = $17, estatus = $18, fecha_estatus = $19,
			fecha_fin = $20, motivo_baja = $21, fecha_defuncion = $22, comentarios_estatus = $23,
			forma_notificacion_baja = $24, fecha_extraccion = $25, fecha_notificacion = $26,
			pasaporte = $27, fecha_emision = $28, fecha_expiracion = $29, matrimonio_id = $30,
			telefono = $31, correo = $32, licenciatura = $33, acuerdo = $34, fecha_vuelo = $35,
			despliegue = $36, estrato = $37,
			version = version + 1, updated_at = NOW()
		WHERE id_imss = $1 AND version = $38 AND NOT is_deleted
		RETURNING version, updated_at`,
		d.ID, d.CURP, d.Nombre, d.ApellidoPaterno, d.ApellidoMaterno,
		d.Sexo, d.FechaNacimiento, d.Especialidad, d.CedulaEsp, d.CedulaLic,
		d.Entidad, d.Municipio, d.CLUES, d.NombreUnidad, d.Turno,
		d.NivelAtencion, d.Coordinacion, d.Estatus, d.FechaEstatus,
		d.FechaFin, d.MotivoBaja, d.FechaDefuncion, d.ComentariosEstatus,
		d.FormaNotificacionBaja, d.FechaExtraccion, d.FechaNotificacion,
		d.Pasaporte, d.FechaEmision, d.FechaExpiracion, d.MatrimonioID,
		d.Telefono, d.Correo, d.Licenciatura, d.Acuerdo, d.FechaVuelo,
		d.Despliegue, d.Estrato,
		expectedVersion,
	).Scan(&d.Version, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Conflict("doctor %s was modified by another request", d.ID)
	}
	if isUniqueViolation(err) {
		return apperr.Conflict("CURP is already registered to another doctor")
	}
	if err != nil {
		return fmt.Errorf("update doctor %s: %w", d.ID, err)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Doctor, int, error) {
	q := db.NewSearchQuery("doctores", doctorCols)
	if f.DeletedOnly {
		q.Add("is_deleted")
	} else {
		q.Add("NOT is_deleted")
	}
	if !f.IncludeCoordination {
		q.Add(notCoordination)
	}
	if f.Search != "" {
		q.ILikeAny(f.Search, "id_imss", "curp", "nombre", "apellido_paterno", "apellido_materno",
			"(nombre || ' ' || apellido_paterno || ' ' || COALESCE(apellido_materno, ''))")
	}
	if f.Estatus != "" {
		q.Eq("estatus", f.Estatus)
	}
	if f.Entidad != "" {
		q.Eq("entidad", f.Entidad)
	}
	if f.Especialidad != "" {
		q.Eq("especialidad", f.Especialidad)
	}
	if f.CLUES != "" {
		q.Eq("clues", f.CLUES)
	}
	if f.Turno != "" {
		q.Eq("turno", f.Turno)
	}
	if f.NivelAtencion != "" {
		q.Eq("nivel_atencion", f.NivelAtencion)
	}
	if f.DeletedOnly {
		q.OrderBy("deleted_at DESC, id_imss")
	} else {
		q.OrderBy("apellido_paterno, apellido_materno, nombre, id_imss")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count doctors: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(limit), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list doctors: %w", err)
	}
	doctors, err := scanDoctorRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return doctors, total, nil
}

func (r *repoPG) CURPTaken(ctx context.Context, curp, excludeID string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM doctores
			WHERE curp = $1 AND NOT is_deleted AND id_imss <> $2)`, curp, excludeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check curp: %w", err)
	}
	return exists, nil
}

func (r *repoPG) CountActiveInRegion(ctx context.Context, region string) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM doctores
		WHERE entidad = $1 AND estatus = $2 AND NOT is_deleted AND `+notCoordination,
		region, StatusActive,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active in %s: %w", region, err)
	}
	return n, nil
}

func (r *repoPG) ActiveCountsByRegion(ctx context.Context) (map[string]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT entidad, COUNT(*) FROM doctores
		WHERE entidad IS NOT NULL AND estatus = $1 AND NOT is_deleted AND `+notCoordination+`
		GROUP BY entidad`, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("count active by region: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var region string
		var n int
		if err := rows.Scan(&region, &n); err != nil {
			return nil, fmt.Errorf("scan region count: %w", err)
		}
		out[region] = n
	}
	return out, rows.Err()
}

func (r *repoPG) ExpiringLeaves(ctx context.Context, from, to time.Time) ([]*Doctor, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+doctorCols+` FROM doctores
		WHERE NOT is_deleted AND estatus = ANY($1) AND fecha_fin BETWEEN $2 AND $3
		ORDER BY fecha_fin, id_imss`,
		[]string{StatusLeaveCuba, StatusLeaveMexico, StatusDisability}, from, to)
	if err != nil {
		return nil, fmt.Errorf("expiring leaves: %w", err)
	}
	return scanDoctorRows(rows)
}

func (r *repoPG) idsWhere(ctx context.Context, cond string, ids []string) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id_imss FROM doctores WHERE id_imss = ANY($1) AND `+cond, ids)
	if err != nil {
		return nil, fmt.Errorf("select doctor ids: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("select doctor ids: %w", err)
	}
	return out, nil
}

func (r *repoPG) LiveIDs(ctx context.Context, ids []string) ([]string, error) {
	return r.idsWhere(ctx, "NOT is_deleted", ids)
}

func (r *repoPG) DeletedIDs(ctx context.Context, ids []string) ([]string, error) {
	return r.idsWhere(ctx, "is_deleted", ids)
}

func (r *repoPG) SoftDelete(ctx context.Context, ids []string, actor string, at time.Time) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctores SET is_deleted = TRUE, deleted_at = $2, deleted_by = $3, updated_at = NOW()
		WHERE id_imss = ANY($1) AND NOT is_deleted`, ids, at, actor)
	if err != nil {
		return 0, fmt.Errorf("soft delete doctors: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *repoPG) Restore(ctx context.Context, id string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctores SET is_deleted = FALSE, deleted_at = NULL, deleted_by = NULL, updated_at = NOW()
		WHERE id_imss = $1 AND is_deleted`, id)
	if isUniqueViolation(err) {
		return false, apperr.Conflict("CURP of doctor %s is held by another active record", id)
	}
	if err != nil {
		return false, fmt.Errorf("restore doctor %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) BlobURLs(ctx context.Context, ids []string) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT url FROM documentos WHERE id_imss = ANY($1)
		UNION ALL
		SELECT foto_url FROM doctores WHERE id_imss = ANY($1) AND foto_url IS NOT NULL`, ids)
	if err != nil {
		return nil, fmt.Errorf("collect blob urls: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect blob urls: %w", err)
	}
	return out, nil
}

func (r *repoPG) PermanentDelete(ctx context.Context, ids []string) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM doctores WHERE id_imss = ANY($1) AND is_deleted`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete doctors: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *repoPG) AddHistory(ctx context.Context, h *HistoryEntry) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO historial_estatus (id_imss, tipo_cambio, estatus, fecha_inicio, fecha_fin,
			clues, entidad, turno, comentarios)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		h.DoctorID, h.TipoCambio, h.Estatus, h.FechaInicio, h.FechaFin,
		h.CLUES, h.Entidad, h.Turno, h.Comentarios,
	).Scan(&h.ID, &h.CreatedAt)
	if err != nil {
		return fmt.Errorf("add history: %w", err)
	}
	return nil
}

func (r *repoPG) ListHistory(ctx context.Context, id string) ([]*HistoryEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+historyCols+` FROM historial_estatus
		WHERE id_imss = $1 ORDER BY fecha_inicio DESC, id DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []*HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.DoctorID, &h.TipoCambio, &h.Estatus, &h.FechaInicio, &h.FechaFin,
			&h.CLUES, &h.Entidad, &h.Turno, &h.Comentarios, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

func scanAttachment(row pgx.Row) (*Attachment, error) {
	var a Attachment
	err := row.Scan(&a.ID, &a.DoctorID, &a.NombreArchivo, &a.URL, &a.MimeType, &a.TipoDocumento, &a.UploadedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repoPG) CreateAttachment(ctx context.Context, a *Attachment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO documentos (id_imss, nombre_archivo, url, mime_type, tipo_documento)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, uploaded_at`,
		a.DoctorID, a.NombreArchivo, a.URL, a.MimeType, a.TipoDocumento,
	).Scan(&a.ID, &a.UploadedAt)
	if err != nil {
		return fmt.Errorf("create attachment: %w", err)
	}
	return nil
}

func (r *repoPG) GetAttachment(ctx context.Context, id string, docID int64) (*Attachment, error) {
	a, err := scanAttachment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+attachmentCols+` FROM documentos WHERE id = $1 AND id_imss = $2`, docID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("document %d not found", docID)
	}
	if err != nil {
		return nil, fmt.Errorf("get attachment: %w", err)
	}
	return a, nil
}

func (r *repoPG) AttachmentByType(ctx context.Context, id, docType string) (*Attachment, error) {
	a, err := scanAttachment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+attachmentCols+` FROM documentos WHERE id_imss = $1 AND tipo_documento = $2
		FOR UPDATE`, id, docType))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attachment by type: %w", err)
	}
	return a, nil
}

func (r *repoPG) ListAttachments(ctx context.Context, id string) ([]*Attachment, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+attachmentCols+` FROM documentos
		WHERE id_imss = $1 ORDER BY tipo_documento`, id)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	var out []*Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repoPG) DeleteAttachment(ctx context.Context, docID int64) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM documentos WHERE id = $1`, docID)
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	return nil
}

func (r *repoPG) SetPhoto(ctx context.Context, id, url string) (*string, error) {
	var old *string
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE doctores d SET foto_url = $2, updated_at = NOW()
		FROM (SELECT foto_url FROM doctores WHERE id_imss = $1 FOR UPDATE) prev
		WHERE d.id_imss = $1 AND NOT d.is_deleted
		RETURNING prev.foto_url`, id, url,
	).Scan(&old)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("doctor %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("set photo: %w", err)
	}
	return old, nil
}
