package xlsx

import (
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
)

const (
	sheetName   = "Deadlines"
	contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var headers = []string{
	"Document",
	"File",
	"Status",
	"End Date",
	"Notice Days",
	"Auto Renews",
	"Cancel By",
	"Days Left",
	"Urgency",
	"Last Alerted",
}

// Writer renders deadline rows as a single-sheet workbook.
type Writer struct{}

func New() *Writer { return &Writer{} }

func (w *Writer) ContentType() string { return contentType }

func (w *Writer) Write(rows []domain.DeadlineRow, generatedOn domain.Date) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetDocProps(&excelize.DocProperties{
		Title:       "Contract deadlines",
		Description: "Generated on " + generatedOn.String(),
	}); err != nil {
		return nil, fmt.Errorf("set doc props: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}
	_ = f.SetCellStyle(sheetName, "A1", "J1", headerStyle)
	_ = f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	for i, r := range rows {
		row := i + 2
		write := func(col int, v string) {
			if v == "" {
				return
			}
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheetName, cell, v)
		}
		write(1, r.Name)
		write(2, r.Filename)
		write(3, string(r.Status))
		write(4, dateCell(r.EndDate))
		write(5, intCell(r.NoticeDays))
		write(6, boolCell(r.AutoRenews))
		write(7, dateCell(r.CancelBy))
		write(8, intCell(r.DaysLeftToCancel))
		write(9, string(r.Tier))
		write(10, dateCell(r.LastAlertedOn))
	}

	_ = f.SetColWidth(sheetName, "A", "A", 32)
	_ = f.SetColWidth(sheetName, "B", "B", 36)
	_ = f.SetColWidth(sheetName, "C", "C", 12)
	_ = f.SetColWidth(sheetName, "D", "H", 13)
	_ = f.SetColWidth(sheetName, "I", "J", 14)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func dateCell(d *domain.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func intCell(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func boolCell(v *bool) string {
	switch {
	case v == nil:
		return ""
	case *v:
		return "yes"
	default:
		return "no"
	}
}
