// Package report renders the non-conformance report of an inspection.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"caex-inspector-backend/internal/model"
)

const sheetName = "Observaciones"

var headers = []string{"Categoría", "Pregunta", "Estado", "Comentarios", "Tipo de acción", "OT / Aviso", "Fotos"}

// Writer writes XLSX reports into a directory.
type Writer struct {
	dir string
}

// NewWriter creates dir if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report dir %s: %w", dir, err)
	}
	return &Writer{dir: dir}, nil
}

// FileName returns the report file name of the inspection.
func FileName(insp *model.Inspection) string {
	return fmt.Sprintf("caex-%d-%s-%d.xlsx", insp.Equipment.Number, strings.ToLower(string(insp.Type)), insp.ID)
}

// Render writes one row per negative answer and returns the output path.
// items must already have passed the completion gate.
func (w *Writer) Render(insp *model.Inspection, items []model.AnswerDetail) (string, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return "", err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return "", err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return "", err
	}

	summary := [][2]any{
		{"CAEX", insp.Equipment.Number},
		{"Modelo", string(insp.Equipment.Model)},
		{"Tipo", string(insp.Type)},
		{"Inspector", insp.InspectorName},
		{"Supervisor", insp.SupervisorName},
		{"Fecha", insp.CreatedAt.Format("2006-01-02 15:04")},
		{"Comentarios generales", insp.GeneralComments},
	}
	for i, kv := range summary {
		row := i + 1
		if err := f.SetCellValue(sheetName, cell(1, row), kv[0]); err != nil {
			return "", err
		}
		if err := f.SetCellValue(sheetName, cell(2, row), kv[1]); err != nil {
			return "", err
		}
		if err := f.SetCellStyle(sheetName, cell(1, row), cell(1, row), bold); err != nil {
			return "", err
		}
	}

	headerRow := len(summary) + 2
	for i, h := range headers {
		c := cell(i+1, headerRow)
		if err := f.SetCellValue(sheetName, c, h); err != nil {
			return "", err
		}
		if err := f.SetCellStyle(sheetName, c, c, headerStyle); err != nil {
			return "", err
		}
	}

	for i, it := range items {
		row := headerRow + 1 + i
		values := []any{
			it.CategoryName,
			it.QuestionText,
			string(it.State),
			it.Comments,
			deref(it.ActionType),
			deref(it.ReferenceID),
			strings.Join(it.PhotoPaths, "\n"),
		}
		if err := f.SetSheetRow(sheetName, cell(1, row), &values); err != nil {
			return "", err
		}
	}

	if err := f.SetColWidth(sheetName, "A", "A", 24); err != nil {
		return "", err
	}
	if err := f.SetColWidth(sheetName, "B", "B", 48); err != nil {
		return "", err
	}
	if err := f.SetColWidth(sheetName, "C", "G", 18); err != nil {
		return "", err
	}

	path := filepath.Join(w.dir, FileName(insp))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}
	return path, nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func deref[T ~string](p *T) string {
	if p == nil {
		return ""
	}
	return string(*p)
}
