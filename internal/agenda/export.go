package agenda

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"casedesk.org/internal/auth"
	"casedesk.org/internal/docket"
)

// ExportHeader is the first row of an exported week.
var ExportHeader = []string{
	"Data",
	"Dia",
	"Hora",
	"Tipo",
	"Título",
	"Status",
	"Processo",
	"Responsáveis",
	"Mensagens",
}

const exportSheet = "Agenda"

// ExportWeek writes view as an XLSX workbook, one row per event. Dangling
// user and case ids are left blank.
func ExportWeek(w io.Writer, view View, users []auth.User, cases []docket.Case) error {
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}
	numbers := make(map[string]string, len(cases))
	for _, c := range cases {
		numbers[c.ID] = c.Number
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#0E1B2E"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := writeRow(f, 1, toCells(ExportHeader)); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(ExportHeader), 1)
	if err := f.SetCellStyle(exportSheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("set header style: %w", err)
	}

	widths := []float64{12, 10, 8, 14, 40, 14, 24, 36, 10}
	for i, width := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("column name: %w", err)
		}
		if err := f.SetColWidth(exportSheet, col, col, width); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	row := 2
	for _, day := range view.Days {
		for _, e := range day.Events {
			var assignees []string
			for _, id := range e.AssignedTo {
				if name, ok := names[id]; ok {
					assignees = append(assignees, name)
				}
			}
			cells := []any{
				string(day.Date),
				day.Name,
				e.Time,
				typeLabel(e.Type),
				e.Title,
				statusLabel(e.Status),
				numbers[e.CaseID],
				strings.Join(assignees, ", "),
				len(e.Chat),
			}
			if err := writeRow(f, row, cells); err != nil {
				return err
			}
			row++
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, row int, cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, cell, &cells); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func toCells(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func typeLabel(t docket.EventType) string {
	if t == docket.EventAppointment {
		return "Compromisso"
	}
	return "Tarefa"
}

func statusLabel(s docket.EventStatus) string {
	switch s {
	case docket.StatusCompleted:
		return "Concluído"
	case docket.StatusInProgress:
		return "Em andamento"
	default:
		return "Pendente"
	}
}
