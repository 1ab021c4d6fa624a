package timers

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"remindbot/internal/models"
	"remindbot/internal/timefmt"
)

// ExportSheet is the sheet name used by Export.
const ExportSheet = "Timers"

var exportColumns = []string{"ID", "Name", "Started (UTC)", "Stopped (UTC)", "Status", "Elapsed", "Elapsed, s"}

// ExcelizeWriter implements SheetWriter using excelize.
type ExcelizeWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

// NewExcelizeWriter creates a workbook whose only sheet is named sheet.
func NewExcelizeWriter(sheet string) (SheetWriter, error) {
	// Excel limit
	if len(sheet) > 31 {
		sheet = sheet[:31]
	}

	file := excelize.NewFile()
	if err := file.SetSheetName(file.GetSheetName(0), sheet); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("rename sheet %s: %w", sheet, err)
	}
	return &ExcelizeWriter{
		file:         file,
		currentSheet: sheet,
		currentRow:   1,
	}, nil
}

// WriteHeader writes bold column headers to the current sheet.
func (w *ExcelizeWriter) WriteHeader(columns []string) error {
	row := make([]interface{}, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	if err := w.writeCells(row); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, w.currentRow)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow)
		_ = w.file.SetCellStyle(w.currentSheet, startCell, endCell, style)
	}

	w.currentRow++
	return nil
}

// WriteRow writes a data row to the current sheet.
func (w *ExcelizeWriter) WriteRow(row []interface{}) error {
	if err := w.writeCells(row); err != nil {
		return err
	}
	w.currentRow++
	return nil
}

func (w *ExcelizeWriter) writeCells(row []interface{}) error {
	for i, val := range row {
		cell, err := excelize.CoordinatesToCellName(i+1, w.currentRow)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.currentSheet, cell, val); err != nil {
			return err
		}
	}
	return nil
}

// Save writes the workbook to wr.
func (w *ExcelizeWriter) Save(wr io.Writer) error {
	return w.file.Write(wr)
}

// Close releases resources.
func (w *ExcelizeWriter) Close() error {
	return w.file.Close()
}

// ExportFilename returns the attachment name for an owner's export.
func ExportFilename(ownerID int64, at time.Time) string {
	return fmt.Sprintf("timers_%d_%s.xlsx", ownerID, at.UTC().Format("20060102_1504"))
}

// Export writes every timer of the owner as an xlsx workbook to w.
// Running timers are measured up to now. Returns the number of exported timers.
func (t *Tracker) Export(ctx context.Context, ownerID int64, w io.Writer) (int, error) {
	list, err := t.List(ctx, ownerID, All)
	if err != nil {
		return 0, err
	}

	xw, err := t.newWriter(ExportSheet)
	if err != nil {
		return 0, err
	}
	defer xw.Close()

	if err := xw.WriteHeader(exportColumns); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	now := t.now().UTC()
	for _, timer := range list {
		if err := xw.WriteRow(exportRow(timer, now)); err != nil {
			return 0, fmt.Errorf("write timer %d: %w", timer.ID, err)
		}
	}

	if err := xw.Save(w); err != nil {
		return 0, fmt.Errorf("save workbook: %w", err)
	}

	t.logger.Info().
		Int64("owner_id", ownerID).
		Int("timers", len(list)).
		Msg("timers exported")
	return len(list), nil
}

func exportRow(timer models.Timer, now time.Time) []interface{} {
	stopped := ""
	status := "running"
	if timer.StoppedAt != nil {
		stopped = timefmt.FormatInstant(*timer.StoppedAt)
		status = "stopped"
	}
	elapsed := timer.Elapsed(now)
	return []interface{}{
		timer.ID,
		timer.Name,
		timefmt.FormatInstant(timer.StartedAt),
		stopped,
		status,
		timefmt.FormatDuration(elapsed),
		int64(elapsed / time.Second),
	}
}
