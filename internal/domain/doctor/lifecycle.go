package doctor

import (
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/imssbienestar/medicos/internal/platform/apperr"
	"github.com/imssbienestar/medicos/internal/platform/validate"
)

// Change kinds written to historial_estatus.tipo_cambio.
const (
	ChangeInitial      = "Alta"
	ChangeStatus       = "Estatus"
	ChangeReassignment = "Reasignación"
	ChangeShift        = "Turno"

	initialComment     = "Registro inicial"
	retroactiveComment = "Registro retroactivo"
)

// Transition is the evaluated result of an update, ready to persist.
type Transition struct {
	Record       *Doctor
	Changed      []string
	History      *HistoryEntry
	EnteredDeath bool
}

// Summary renders the changed field names for the audit log.
func (t *Transition) Summary() string {
	if len(t.Changed) == 0 {
		return "sin cambios"
	}
	return "campos: " + strings.Join(t.Changed, ", ")
}

// sanitizeCURP normalizes a CURP in place: trimmed, upper case, and
// absent rather than blank.
func sanitizeCURP(p **string) {
	if *p == nil {
		return
	}
	v := strings.ToUpper(strings.TrimSpace(**p))
	if v == "" {
		*p = nil
		return
	}
	*p = &v
}

func checkCURP(curp *string) error {
	if curp != nil && !validate.CURP(*curp) {
		return apperr.Validation("curp %q has an invalid format", *curp)
	}
	return nil
}

// applyClearingPolicy drops fields that are meaningless for the record's
// status.
func applyClearingPolicy(d *Doctor) {
	if d.Estatus != StatusDischarge {
		d.MotivoBaja = nil
	}
	if d.Estatus != StatusDeath {
		d.FechaDefuncion = pgtype.Date{}
	}
	if d.Estatus == StatusActive {
		d.FormaNotificacionBaja = nil
		d.FechaExtraccion = pgtype.Date{}
		d.FechaNotificacion = pgtype.Date{}
	}
	if IsDischargeFamily(d.Estatus) {
		d.NivelAtencion = nil
		d.Turno = nil
		d.NombreUnidad = nil
	}
}

func dateOf(t time.Time) pgtype.Date {
	return pgtype.Date{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), Valid: true}
}

func orNone(p *string) string {
	if p == nil {
		return "sin asignar"
	}
	return *p
}

// historyFor returns the single entry describing the status, facility and
// shift changes between before and after, or nil when none changed. A status
// change starts on statusDate when valid, otherwise on today.
func historyFor(before, after *Doctor, statusDate pgtype.Date, today time.Time) *HistoryEntry {
	var kinds, notes []string
	statusChanged := before.Estatus != after.Estatus
	if statusChanged {
		kinds = append(kinds, ChangeStatus)
		notes = append(notes, "Estatus anterior: "+before.Estatus)
	}
	if str(before.CLUES) != str(after.CLUES) {
		kinds = append(kinds, ChangeReassignment)
		notes = append(notes, "CLUES anterior: "+orNone(before.CLUES))
	}
	if str(before.Turno) != str(after.Turno) {
		kinds = append(kinds, ChangeShift)
		notes = append(notes, "Turno anterior: "+orNone(before.Turno))
	}
	if len(kinds) == 0 {
		return nil
	}
	if statusChanged && after.ComentariosEstatus != nil {
		notes = append([]string{*after.ComentariosEstatus}, notes...)
	}

	start := dateOf(today)
	if statusChanged && statusDate.Valid {
		start = statusDate
	}
	comment := strings.Join(notes, "; ")
	status := after.Estatus
	h := &HistoryEntry{
		DoctorID:    after.ID,
		TipoCambio:  strings.Join(kinds, " / "),
		Estatus:     &status,
		FechaInicio: start,
		CLUES:       after.CLUES,
		Entidad:     after.Entidad,
		Turno:       after.Turno,
		Comentarios: &comment,
	}
	if IsTemporaryLeave(after.Estatus) {
		h.FechaFin = after.FechaFin
	}
	return h
}

// Evaluate applies req to a copy of current under the roster rules and
// reports what changed. It performs no I/O, so a rejected update never
// touches storage.
func Evaluate(current *Doctor, req *UpdateRequest, isAdmin bool, today time.Time) (*Transition, error) {
	if current.Estatus == StatusDeath && req.Estatus.Set && !isAdmin &&
		strings.TrimSpace(req.Estatus.Value) != StatusDeath {
		return nil, apperr.Forbidden("only an administrator can change the status of a deceased doctor")
	}

	next := *current
	next.Documentos, next.Historial = nil, nil
	if err := ApplyUpdate(&next, req); err != nil {
		return nil, err
	}
	sanitizeCURP(&next.CURP)
	if err := checkCURP(next.CURP); err != nil {
		return nil, err
	}
	if !ValidStatus(next.Estatus) {
		return nil, apperr.Validation("estatus %q is not a valid status", next.Estatus)
	}
	applyClearingPolicy(&next)

	// Only a fecha_estatus sent with this update dates the new status; the
	// stored one belongs to the previous status.
	var statusDate pgtype.Date
	if req.FechaEstatus.Set && !req.FechaEstatus.Null {
		statusDate = next.FechaEstatus
	}
	return &Transition{
		Record:       &next,
		Changed:      changedFields(current, &next),
		History:      historyFor(current, &next, statusDate, today),
		EnteredDeath: next.Estatus == StatusDeath && current.Estatus != StatusDeath,
	}, nil
}

// prepareNew normalizes and validates a record about to be created.
func prepareNew(d *Doctor) error {
	d.ID = strings.TrimSpace(d.ID)
	d.Nombre = strings.TrimSpace(d.Nombre)
	d.ApellidoPaterno = strings.TrimSpace(d.ApellidoPaterno)
	d.Estatus = strings.TrimSpace(d.Estatus)
	if d.ID == "" || d.Nombre == "" || d.ApellidoPaterno == "" {
		return apperr.Validation("id_imss, nombre and apellido_paterno are required")
	}
	if !ValidStatus(d.Estatus) {
		return apperr.Validation("estatus %q is not a valid status", d.Estatus)
	}
	if !d.FechaEstatus.Valid {
		return apperr.Validation("fecha_estatus is required")
	}
	sanitizeCURP(&d.CURP)
	if err := checkCURP(d.CURP); err != nil {
		return err
	}
	for _, p := range []**string{
		&d.ApellidoMaterno, &d.Sexo, &d.Especialidad, &d.CedulaEsp, &d.CedulaLic,
		&d.Entidad, &d.Municipio, &d.CLUES, &d.NombreUnidad, &d.Turno,
		&d.NivelAtencion, &d.Coordinacion, &d.MotivoBaja, &d.ComentariosEstatus,
		&d.FormaNotificacionBaja, &d.Pasaporte, &d.MatrimonioID, &d.Telefono,
		&d.Correo, &d.Licenciatura, &d.Acuerdo, &d.Despliegue, &d.Estrato,
	} {
		applyString(p, Optional[string]{Set: true, Value: str(*p)})
	}

	d.FotoURL = nil
	d.IsDeleted, d.DeletedAt, d.DeletedBy = false, nil, nil
	d.Version = 1
	d.Documentos, d.Historial = nil, nil
	return nil
}

// initialHistory is the entry written when a record is created.
func initialHistory(d *Doctor) *HistoryEntry {
	status := d.Estatus
	comment := initialComment
	h := &HistoryEntry{
		DoctorID:    d.ID,
		TipoCambio:  ChangeInitial,
		Estatus:     &status,
		FechaInicio: d.FechaEstatus,
		CLUES:       d.CLUES,
		Entidad:     d.Entidad,
		Turno:       d.Turno,
		Comentarios: &comment,
	}
	if IsTemporaryLeave(d.Estatus) {
		h.FechaFin = d.FechaFin
	}
	return h
}
