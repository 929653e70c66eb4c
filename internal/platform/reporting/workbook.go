package reporting

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	WorkbookSheet       = "Doctores"
	WorkbookFileName    = "reporte_doctores.xlsx"
	WorkbookContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Column is an exportable doctores column.
type Column struct {
	Key    string
	Header string
	Width  float64
}

// ExportColumns is the full export in default order. direccion_unidad,
// tipo_establecimiento, subtipo_establecimiento and region come from the
// CLUES catalog.
var ExportColumns = []Column{
	{"id_imss", "ID IMSS", 14},
	{"nombre", "Nombre(s)", 20},
	{"apellido_paterno", "Apellido paterno", 20},
	{"apellido_materno", "Apellido materno", 20},
	{"curp", "CURP", 22},
	{"pasaporte", "Pasaporte", 14},
	{"fecha_emision", "Fecha emisión", 14},
	{"fecha_expiracion", "Fecha expiración", 14},
	{"sexo", "Sexo", 8},
	{"fecha_nacimiento", "Fecha de nacimiento", 14},
	{"matrimonio_id", "Matrimonio ID", 14},
	{"telefono", "Teléfono", 14},
	{"correo", "Correo", 28},
	{"licenciatura", "Licenciatura", 24},
	{"cedula_lic", "Cédula licenciatura", 16},
	{"especialidad", "Especialidad", 28},
	{"cedula_esp", "Cédula especialidad", 16},
	{"acuerdo", "Acuerdo", 12},
	{"fecha_vuelo", "Fecha llegada", 14},
	{"estatus", "Estatus", 24},
	{"fecha_estatus", "Fecha estatus", 14},
	{"fecha_fin", "Fecha término", 14},
	{"turno", "Turno", 14},
	{"despliegue", "Despliegue", 18},
	{"clues", "CLUES", 14},
	{"nombre_unidad", "Unidad médica", 36},
	{"direccion_unidad", "Dirección unidad", 40},
	{"nivel_atencion", "Nivel de atención", 16},
	{"tipo_establecimiento", "Tipo establecimiento", 22},
	{"subtipo_establecimiento", "Subtipo establecimiento", 22},
	{"estrato", "Estrato", 12},
	{"entidad", "Entidad", 18},
	{"municipio", "Municipio", 22},
	{"region", "Región", 16},
	{"coordinacion", "Coordinación", 12},
	{"motivo_baja", "Motivo de baja", 24},
	{"fecha_defuncion", "Fecha de defunción", 14},
	{"comentarios_estatus", "Comentarios", 36},
	{"forma_notificacion_baja", "Forma de notificación", 20},
	{"fecha_extraccion", "Fecha de extracción", 14},
	{"fecha_notificacion", "Fecha de notificación", 14},
}

func columnByKey(key string) (Column, bool) {
	for _, c := range ExportColumns {
		if c.Key == key {
			return c, true
		}
	}
	return Column{}, false
}

// WriteDoctorWorkbook renders rows as a single-sheet workbook with a frozen,
// styled header row. Each row holds one value per column.
func WriteDoctorWorkbook(w io.Writer, cols []Column, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", WorkbookSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D9D9D9"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	for i, col := range cols {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(WorkbookSheet, cell, col.Header); err != nil {
			return fmt.Errorf("header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(WorkbookSheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("header style %s: %w", cell, err)
		}
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if col.Width > 0 {
			if err := f.SetColWidth(WorkbookSheet, name, name, col.Width); err != nil {
				return fmt.Errorf("column width %s: %w", name, err)
			}
		}
	}

	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for i, v := range row {
			values[i] = v
		}
		if err := f.SetSheetRow(WorkbookSheet, cell, &values); err != nil {
			return fmt.Errorf("row %d: %w", r+2, err)
		}
	}

	if err := f.SetPanes(WorkbookSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
