package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"geosync/internal/model"
)

// BackpackService handles the backpack registry
type BackpackService struct {
	db    *gorm.DB
	redis *redis.Client
}

// NewBackpackService creates a new backpack service
func NewBackpackService(db *gorm.DB, redisClient *redis.Client) *BackpackService {
	return &BackpackService{db: db, redis: redisClient}
}

// Create registers a backpack
func (s *BackpackService) Create(ctx context.Context, backpack *model.Backpack) error {
	return s.db.Create(backpack).Error
}

// GetBySerial returns a backpack by its serial
func (s *BackpackService) GetBySerial(ctx context.Context, serial string) (*model.Backpack, error) {
	var backpack model.Backpack
	if err := s.db.Where("serial = ?", serial).First(&backpack).Error; err != nil {
		return nil, err
	}
	return &backpack, nil
}

// List returns registered backpacks with pagination
func (s *BackpackService) List(ctx context.Context, page, pageSize int) ([]model.Backpack, int64, error) {
	var backpacks []model.Backpack
	var total int64

	if err := s.db.Model(&model.Backpack{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := s.db.Offset(offset).Limit(pageSize).Order("serial").Find(&backpacks).Error; err != nil {
		return nil, 0, err
	}
	return backpacks, total, nil
}

// ImportTemplate generates the Excel template for bulk backpack registration
func (s *BackpackService) ImportTemplate() (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Backpacks"
	f.SetSheetName("Sheet1", sheetName)

	f.SetCellValue(sheetName, "A1", "Serial*")
	f.SetCellValue(sheetName, "B1", "Label")
	f.SetCellValue(sheetName, "A2", "GKP-0001")
	f.SetCellValue(sheetName, "B2", "GeoKid Pro")
	f.SetColWidth(sheetName, "A", "B", 20)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return &buf, nil
}

// Import registers backpacks in bulk from an Excel sheet with a
// Serial / Label column pair. Rows with a duplicate or empty serial are
// skipped, not fatal.
func (s *BackpackService) Import(ctx context.Context, reader io.Reader) (*model.ImportResult, error) {
	f, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("Excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}

	result := &model.ImportResult{TaskID: uuid.NewString()}
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		result.Total++

		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: missing serial", i+1))
			continue
		}
		serial := strings.TrimSpace(row[0])

		label := ""
		if len(row) > 1 {
			label = strings.TrimSpace(row[1])
		}

		backpack := &model.Backpack{Serial: serial, Label: label, Status: 1}
		if err := s.db.Create(backpack).Error; err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		result.Imported++
	}

	return result, nil
}
