package reconciliation

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

type exportStyles struct {
	header  int
	base    int
	percent int
	failed  int
}

// ExportHistoryXLSX writes the retained reconciliation reports to an Excel
// workbook for audit review.
func (s *Store) ExportHistoryXLSX(path string) error {
	reports, err := s.Load()
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const sheet = "Reconciliation History"
	fx.SetSheetName(fx.GetSheetName(0), sheet)

	styles, err := createExportStyles(fx)
	if err != nil {
		return err
	}

	fx.SetColWidth(sheet, "A", "A", 20) // Timestamp
	fx.SetColWidth(sheet, "B", "B", 10) // Period
	fx.SetColWidth(sheet, "C", "F", 12) // Counts
	fx.SetColWidth(sheet, "G", "G", 12) // Mismatch %
	fx.SetColWidth(sheet, "H", "H", 10) // Alert
	fx.SetColWidth(sheet, "I", "I", 40) // Error

	headers := []string{
		"Timestamp", "Period", "Total", "Matched", "Missing", "Extra",
		"Mismatch %", "Alert", "Error",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, styles.header)
	}

	row := 2
	failures := 0
	alerts := 0
	for _, r := range reports {
		values := []interface{}{
			r.Timestamp.Format("2006-01-02 15:04:05"),
			r.Result.TimePeriod,
			r.Result.TotalOrders,
			r.Result.MatchedOrders,
			len(r.Result.MissingOrders),
			len(r.Result.ExtraOrders),
			r.Result.MismatchPercentage,
			r.Result.AlertTriggered,
			r.Result.Error,
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			fx.SetCellValue(sheet, cell, v)

			switch {
			case r.Result.Error != "":
				fx.SetCellStyle(sheet, cell, cell, styles.failed)
			case i == 6:
				fx.SetCellStyle(sheet, cell, cell, styles.percent)
			default:
				fx.SetCellStyle(sheet, cell, cell, styles.base)
			}
		}
		if r.Result.Error != "" {
			failures++
		}
		if r.Result.AlertTriggered {
			alerts++
		}
		row++
	}

	row++
	summaryRange := fmt.Sprintf("A%d:I%d", row, row)
	fx.MergeCell(sheet, summaryRange, "")
	summaryCell, _ := excelize.CoordinatesToCellName(1, row)
	fx.SetCellValue(sheet, summaryCell, fmt.Sprintf("📊 SUMMARY - Runs: %d | Alerts: %d | Failures: %d",
		len(reports), alerts, failures))
	fx.SetCellStyle(sheet, summaryCell, summaryCell, styles.header)

	return fx.SaveAs(path)
}

func createExportStyles(fx *excelize.File) (exportStyles, error) {
	var styles exportStyles
	var err error

	styles.header, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold:   true,
			Size:   11,
			Color:  "FFFFFF",
			Family: "Calibri",
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"2F4F4F"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return styles, err
	}

	styles.base, err = fx.NewStyle(&excelize.Style{
		Border: []excelize.Border{
			{Type: "left", Color: "E0E0E0", Style: 1},
			{Type: "right", Color: "E0E0E0", Style: 1},
			{Type: "bottom", Color: "E0E0E0", Style: 1},
		},
	})
	if err != nil {
		return styles, err
	}

	styles.percent, err = fx.NewStyle(&excelize.Style{
		NumFmt: 9,
		Alignment: &excelize.Alignment{
			Horizontal: "right",
		},
		Border: []excelize.Border{
			{Type: "left", Color: "E0E0E0", Style: 1},
			{Type: "right", Color: "E0E0E0", Style: 1},
			{Type: "bottom", Color: "E0E0E0", Style: 1},
		},
	})
	if err != nil {
		return styles, err
	}

	styles.failed, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Color: "FF0000",
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"FFF0F0"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "E0E0E0", Style: 1},
			{Type: "right", Color: "E0E0E0", Style: 1},
			{Type: "bottom", Color: "E0E0E0", Style: 1},
		},
	})
	return styles, err
}
