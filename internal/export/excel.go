// Package export renders host booking reports as xlsx workbooks.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"stayfinder/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	BookingsSheet = "Bookings"
	SummarySheet  = "Summary"
)

var bookingHeaders = []string{
	"Booking ID", "Listing", "Guest", "Email", "Check-in", "Check-out", "Nights",
	"Guests", "Base price", "Add-ons price", "Total", "Status", "Add-ons", "Special requests",
}

var statusColors = map[string]string{
	models.StatusPending:   "#FFF2CC",
	models.StatusConfirmed: "#E2EFDA",
	models.StatusCancelled: "#F8CBAD",
	models.StatusCompleted: "#D9D9D9",
}

// HostBookingsWorkbook builds a workbook with every booking row and a per-listing summary.
func HostBookingsWorkbook(bookings []*models.HostBooking, generatedAt time.Time) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", BookingsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	if err := writeBookings(f, bookings); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeSummary(f, bookings, generatedAt); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// WriteHostBookings streams the workbook to w.
func WriteHostBookings(w io.Writer, bookings []*models.HostBooking, generatedAt time.Time) error {
	f, err := HostBookingsWorkbook(bookings, generatedAt)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// SaveHostBookings writes the report under dir and returns its path.
func SaveHostBookings(dir string, hostID int64, bookings []*models.HostBooking, generatedAt time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}
	f, err := HostBookingsWorkbook(bookings, generatedAt)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(dir, FileName(hostID, generatedAt))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	return path, nil
}

// FileName is the attachment name of a host report.
func FileName(hostID int64, generatedAt time.Time) string {
	return fmt.Sprintf("host_%d_bookings_%s.xlsx", hostID, generatedAt.Format("20060102_150405"))
}

func writeBookings(f *excelize.File, bookings []*models.HostBooking) error {
	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	statusStyles := make(map[string]int, len(statusColors))
	for status, color := range statusColors {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err != nil {
			return fmt.Errorf("status style: %w", err)
		}
		statusStyles[status] = id
	}

	header := make([]interface{}, len(bookingHeaders))
	for i, h := range bookingHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(BookingsSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(bookingHeaders))
	_ = f.SetCellStyle(BookingsSheet, "A1", lastCol+"1", headerStyle)

	for i, b := range bookings {
		row := i + 2
		values := []interface{}{
			b.ID,
			b.ListingTitle,
			b.GuestName,
			b.GuestEmail,
			b.CheckIn.Format(models.DateLayout),
			b.CheckOut.Format(models.DateLayout),
			b.TotalNights,
			b.Guests,
			b.BasePrice,
			b.AddOnsPrice,
			b.TotalPrice,
			b.Status,
			strings.Join(b.AddOns.Selected(), ", "),
			b.SpecialRequests,
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(BookingsSheet, cell, &values); err != nil {
			return fmt.Errorf("write booking %d: %w", b.ID, err)
		}
		if style, ok := statusStyles[b.Status]; ok {
			statusCell, _ := excelize.CoordinatesToCellName(12, row)
			_ = f.SetCellStyle(BookingsSheet, statusCell, statusCell, style)
		}
	}

	_ = f.SetColWidth(BookingsSheet, "A", "A", 12)
	_ = f.SetColWidth(BookingsSheet, "B", "D", 25)
	_ = f.SetColWidth(BookingsSheet, "E", "L", 14)
	_ = f.SetColWidth(BookingsSheet, "M", "N", 30)
	return f.SetPanes(BookingsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

type listingSummary struct {
	title     string
	active    int
	completed int
	cancelled int
	revenue   float64
}

// writeSummary counts bookings per listing. Revenue is the total of confirmed and completed stays.
func writeSummary(f *excelize.File, bookings []*models.HostBooking, generatedAt time.Time) error {
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}

	byListing := make(map[int64]*listingSummary)
	for _, b := range bookings {
		s, ok := byListing[b.ListingID]
		if !ok {
			s = &listingSummary{title: b.ListingTitle}
			byListing[b.ListingID] = s
		}
		switch b.Status {
		case models.StatusPending:
			s.active++
		case models.StatusConfirmed:
			s.active++
			s.revenue += b.TotalPrice
		case models.StatusCompleted:
			s.completed++
			s.revenue += b.TotalPrice
		case models.StatusCancelled:
			s.cancelled++
		}
	}

	ids := make([]int64, 0, len(byListing))
	for id := range byListing {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	_ = f.SetCellValue(SummarySheet, "A1", "Generated")
	_ = f.SetCellValue(SummarySheet, "B1", generatedAt.UTC().Format(time.RFC3339))
	header := []interface{}{"Listing ID", "Listing", "Active", "Completed", "Cancelled", "Revenue"}
	if err := f.SetSheetRow(SummarySheet, "A3", &header); err != nil {
		return fmt.Errorf("write summary header: %w", err)
	}
	for i, id := range ids {
		s := byListing[id]
		row := []interface{}{id, s.title, s.active, s.completed, s.cancelled, s.revenue}
		cell, _ := excelize.CoordinatesToCellName(1, i+4)
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}
	_ = f.SetColWidth(SummarySheet, "A", "A", 12)
	_ = f.SetColWidth(SummarySheet, "B", "B", 30)
	return nil
}
