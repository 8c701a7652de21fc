package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"geosync/internal/model"
)

// ReportService exports position history and alert logs to Excel
type ReportService struct {
	db *gorm.DB
}

// NewReportService creates a new report service
func NewReportService(db *gorm.DB) *ReportService {
	return &ReportService{db: db}
}

// PositionReport exports a backpack's position history for a time range
func (s *ReportService) PositionReport(ctx context.Context, backpackID string, start, end time.Time) (*bytes.Buffer, error) {
	var positions []model.Position
	if err := s.db.Where("backpack_id = ? AND time >= ? AND time <= ?", backpackID, start, end).
		Order("time ASC").
		Find(&positions).Error; err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Positions"
	f.SetSheetName("Sheet1", sheetName)

	headers := []string{"Time", "Latitude", "Longitude", "Battery"}
	for i, h := range headers {
		f.SetCellValue(sheetName, fmt.Sprintf("%c1", 'A'+i), h)
	}

	for i, p := range positions {
		row := i + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), p.Time.Format(time.RFC3339))
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), p.Lat)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), p.Lon)
		if p.Battery != nil {
			f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), *p.Battery)
		}
	}
	f.SetColWidth(sheetName, "A", "A", 25)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return &buf, nil
}

// AlertReport exports the alert log for a set of backpacks
func (s *ReportService) AlertReport(ctx context.Context, backpackIDs []string, start, end time.Time) (*bytes.Buffer, error) {
	var alerts []model.Alert
	if err := s.db.Where("backpack_id IN ? AND created_at >= ? AND created_at <= ?", backpackIDs, start, end).
		Order("created_at DESC").
		Find(&alerts).Error; err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Alerts"
	f.SetSheetName("Sheet1", sheetName)

	headers := []string{"Time", "Type", "Backpack", "Child", "Zone", "Message", "Status"}
	for i, h := range headers {
		f.SetCellValue(sheetName, fmt.Sprintf("%c1", 'A'+i), h)
	}

	for i, a := range alerts {
		row := i + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), a.CreatedAt.Format(time.RFC3339))
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), string(a.Type))
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), a.BackpackID)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), a.ChildName)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), a.ZoneName)
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), a.Message)
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), string(a.Status))
	}
	f.SetColWidth(sheetName, "A", "A", 25)
	f.SetColWidth(sheetName, "F", "F", 50)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return &buf, nil
}
