package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/charlesng35/formgate/internal/models"
	"github.com/charlesng35/formgate/pkg/logger"
)

const (
	exportSheetName  = "Submissions"
	exportHeaderFill = "DDDDDD"
	exportTimeFormat = "yyyy-mm-dd hh:mm:ss"
)

type exportColumn struct {
	header string
	width  float64
}

var exportColumns = []exportColumn{
	{header: "ID", width: 10},
	{header: "Name", width: 30},
	{header: "Age", width: 10},
	{header: "Email", width: 30},
	{header: "Timestamp", width: 25},
}

// SubmissionSource is the read side of the record store.
type SubmissionSource interface {
	Count(ctx context.Context) (int64, error)
	SelectAll(ctx context.Context, fn func(*models.Submission) error) error
}

// ExportResult summarises an export run.
type ExportResult struct {
	Path    string `json:"path"`
	Rows    int    `json:"rows"`
	Written bool   `json:"written"`
}

// ExportService writes every submission to an xlsx workbook.
type ExportService struct {
	source SubmissionSource
	log    *zap.Logger
}

// NewExportService constructs an ExportService reading from source.
func NewExportService(source SubmissionSource) (*ExportService, error) {
	if source == nil {
		return nil, errors.New("export service: source is required")
	}
	return &ExportService{source: source, log: logger.WithModule("export")}, nil
}

// Export writes all submissions to path. When there are no submissions nothing is
// written and the result reports Written == false.
func (s *ExportService) Export(ctx context.Context, path string) (ExportResult, error) {
	result := ExportResult{Path: path}
	if path == "" {
		return result, errors.New("export service: output path is required")
	}

	count, err := s.source.Count(ctx)
	if err != nil {
		return result, fmt.Errorf("export service: %w", err)
	}
	if count == 0 {
		s.log.Info("no submissions to export")
		return result, nil
	}

	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheetName); err != nil {
		return result, fmt.Errorf("export service: rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{exportHeaderFill}},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return result, fmt.Errorf("export service: header style: %w", err)
	}

	timeFormat := exportTimeFormat
	timeStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &timeFormat})
	if err != nil {
		return result, fmt.Errorf("export service: timestamp style: %w", err)
	}

	sw, err := f.NewStreamWriter(exportSheetName)
	if err != nil {
		return result, fmt.Errorf("export service: stream writer: %w", err)
	}

	header := make([]interface{}, 0, len(exportColumns))
	for i, col := range exportColumns {
		if err := sw.SetColWidth(i+1, i+1, col.width); err != nil {
			return result, fmt.Errorf("export service: column width: %w", err)
		}
		header = append(header, excelize.Cell{StyleID: headerStyle, Value: col.header})
	}
	if err := sw.SetRow("A1", header); err != nil {
		return result, fmt.Errorf("export service: header row: %w", err)
	}

	row := 1
	err = s.source.SelectAll(ctx, func(rec *models.Submission) error {
		row++
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		return sw.SetRow(cell, []interface{}{
			rec.ID,
			rec.Name,
			rec.Age,
			rec.Email,
			excelize.Cell{StyleID: timeStyle, Value: rec.Timestamp},
		})
	})
	if err != nil {
		return result, fmt.Errorf("export service: write rows: %w", err)
	}

	if err := sw.Flush(); err != nil {
		return result, fmt.Errorf("export service: flush: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return result, fmt.Errorf("export service: create directory: %w", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return result, fmt.Errorf("export service: save %s: %w", path, err)
	}

	result.Rows = row - 1
	result.Written = true
	s.log.Info("exported submissions", zap.String("path", path), zap.Int("rows", result.Rows))
	return result, nil
}
