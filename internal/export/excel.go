package export

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"classbook/internal/models"

	"github.com/xuri/excelize/v2"
)

const gridSheet = "Grid"

var listHeaders = []string{"ID", "Room", "Date", "Time", "Priority", "Status", "Owner", "Updated"}

// WriteBookings renders bookings as an xlsx workbook with a flat list sheet
// and a room by date grid, and writes it to w.
func WriteBookings(w io.Writer, sheetName string, bookings []*models.Booking) error {
	if sheetName == "" {
		sheetName = "Bookings"
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	sorted := make([]*models.Booking, len(bookings))
	copy(sorted, bookings)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Room != b.Room {
			return a.Room < b.Room
		}
		return a.Time < b.Time
	})

	if err := writeList(f, sheetName, sorted); err != nil {
		return err
	}
	if _, err := f.NewSheet(gridSheet); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	if err := writeGrid(f, sorted); err != nil {
		return err
	}

	if sheetName != "Sheet1" {
		_ = f.DeleteSheet("Sheet1")
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

func writeList(f *excelize.File, sheet string, bookings []*models.Booking) error {
	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}

	for i, header := range listHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, header)
		_ = f.SetCellStyle(sheet, cell, cell, headerStyle)
	}

	for i, b := range bookings {
		row := []interface{}{
			b.ID,
			b.Room,
			b.Date.Format(models.DateLayout),
			b.Time.String(),
			b.Priority,
			string(b.Status),
			b.Owner,
			b.UpdatedAt.Format(time.RFC3339),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("error writing row %d: %w", i+2, err)
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 14)
	_ = f.SetColWidth(sheet, "B", "G", 12)
	_ = f.SetColWidth(sheet, "H", "H", 24)
	_ = f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	return nil
}

// writeGrid lays out rooms as rows and dates as columns. Each cell lists the
// room's bookings for that day, one per line.
func writeGrid(f *excelize.File, bookings []*models.Booking) error {
	var (
		rooms []string
		dates []string
	)
	roomRow := make(map[string]int)
	dateCol := make(map[string]int)
	cells := make(map[[2]int][]*models.Booking)

	for _, b := range bookings {
		if _, ok := roomRow[b.Room]; !ok {
			roomRow[b.Room] = 0
			rooms = append(rooms, b.Room)
		}
		d := b.Date.Format(models.DateLayout)
		if _, ok := dateCol[d]; !ok {
			dateCol[d] = 0
			dates = append(dates, d)
		}
	}
	sort.Strings(rooms)
	sort.Strings(dates)
	for i, r := range rooms {
		roomRow[r] = i + 2
	}
	for i, d := range dates {
		dateCol[d] = i + 2
	}
	for _, b := range bookings {
		k := [2]int{roomRow[b.Room], dateCol[b.Date.Format(models.DateLayout)]}
		cells[k] = append(cells[k], b)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}
	freeStyle, err := cellStyle(f, "#C6EFCE")
	if err != nil {
		return err
	}
	reservedStyle, err := cellStyle(f, "#FFEB9C")
	if err != nil {
		return err
	}

	_ = f.SetCellValue(gridSheet, "A1", "Room")
	_ = f.SetCellStyle(gridSheet, "A1", "A1", headerStyle)
	for d, col := range dateCol {
		cell, _ := excelize.CoordinatesToCellName(col, 1)
		_ = f.SetCellValue(gridSheet, cell, d)
		_ = f.SetCellStyle(gridSheet, cell, cell, headerStyle)
	}
	for r, row := range roomRow {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellValue(gridSheet, cell, r)
		_ = f.SetCellStyle(gridSheet, cell, cell, headerStyle)
	}

	for k, list := range cells {
		cell, _ := excelize.CoordinatesToCellName(k[1], k[0])
		lines := make([]string, 0, len(list))
		anyReserved := false
		for _, b := range list {
			line := fmt.Sprintf("%s %s p%d", b.Time, b.ID, b.Priority)
			if b.Reserved() {
				anyReserved = true
				line += " [" + b.Owner + "]"
			}
			lines = append(lines, line)
		}
		_ = f.SetCellValue(gridSheet, cell, strings.Join(lines, "\n"))
		style := freeStyle
		if anyReserved {
			style = reservedStyle
		}
		_ = f.SetCellStyle(gridSheet, cell, cell, style)
	}

	_ = f.SetColWidth(gridSheet, "A", "A", 12)
	if len(dates) > 0 {
		last, _ := excelize.ColumnNumberToName(len(dates) + 1)
		_ = f.SetColWidth(gridSheet, "B", last, 22)
	}
	return nil
}

func cellStyle(f *excelize.File, color string) (int, error) {
	style, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "left",
			Vertical:   "top",
			WrapText:   true,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("error creating style: %w", err)
	}
	return style, nil
}
