package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"geosync/internal/model"
)

// ErrBackpackTaken means the backpack is already bound to another child.
var ErrBackpackTaken = errors.New("backpack already bound to another child")

// ChildService handles child profile business logic, scoped to the
// owning guardian.
type ChildService struct {
	db *gorm.DB
}

// NewChildService creates a new child service
func NewChildService(db *gorm.DB) *ChildService {
	return &ChildService{db: db}
}

// Create creates a child profile for a guardian, optionally binding a
// backpack by serial in the same call.
func (s *ChildService) Create(ctx context.Context, userID uint, req *model.CreateChildRequest) (*model.Child, error) {
	child := &model.Child{
		Name:     req.Name,
		Age:      req.Age,
		School:   req.School,
		Period:   req.Period,
		PhotoURL: req.PhotoURL,
		UserID:   userID,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if req.BackpackSerial != "" {
			backpack, err := s.findFreeBackpack(tx, req.BackpackSerial)
			if err != nil {
				return err
			}
			child.BackpackID = &backpack.ID
		}
		return tx.Create(child).Error
	})
	if err != nil {
		return nil, err
	}
	return child, nil
}

// GetByID returns a child profile owned by the guardian
func (s *ChildService) GetByID(ctx context.Context, userID, childID uint) (*model.Child, error) {
	var child model.Child
	err := s.db.Preload("Backpack").
		Where("id = ? AND user_id = ?", childID, userID).
		First(&child).Error
	if err != nil {
		return nil, err
	}
	return &child, nil
}

// List returns all child profiles owned by the guardian
func (s *ChildService) List(ctx context.Context, userID uint) ([]model.Child, error) {
	var children []model.Child
	err := s.db.Preload("Backpack").
		Where("user_id = ?", userID).
		Order("created_at").
		Find(&children).Error
	return children, err
}

// Update updates a child profile owned by the guardian
func (s *ChildService) Update(ctx context.Context, userID, childID uint, req *model.UpdateChildRequest) (*model.Child, error) {
	child, err := s.GetByID(ctx, userID, childID)
	if err != nil {
		return nil, err
	}

	if req.Name != "" {
		child.Name = req.Name
	}
	if req.Age != nil {
		child.Age = req.Age
	}
	if req.School != "" {
		child.School = req.School
	}
	if req.Period != "" {
		child.Period = req.Period
	}
	if req.PhotoURL != "" {
		child.PhotoURL = req.PhotoURL
	}

	if err := s.db.Save(child).Error; err != nil {
		return nil, err
	}
	return child, nil
}

// Delete deletes a child profile owned by the guardian
func (s *ChildService) Delete(ctx context.Context, userID, childID uint) error {
	result := s.db.Where("id = ? AND user_id = ?", childID, userID).Delete(&model.Child{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// BindBackpack binds a backpack (by serial) to a child owned by the guardian
func (s *ChildService) BindBackpack(ctx context.Context, userID, childID uint, serial string) (*model.Child, error) {
	child, err := s.GetByID(ctx, userID, childID)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		backpack, err := s.findFreeBackpack(tx, serial)
		if err != nil {
			return err
		}
		child.BackpackID = &backpack.ID
		child.Backpack = backpack
		return tx.Save(child).Error
	})
	if err != nil {
		return nil, err
	}
	return child, nil
}

// UnbindBackpack removes the backpack binding from a child
func (s *ChildService) UnbindBackpack(ctx context.Context, userID, childID uint) error {
	child, err := s.GetByID(ctx, userID, childID)
	if err != nil {
		return err
	}
	child.BackpackID = nil
	child.Backpack = nil
	return s.db.Model(child).Update("backpack_id", nil).Error
}

// BackpackSerials returns the serials of all backpacks bound to the
// guardian's children. Used to scope alert and position queries.
func (s *ChildService) BackpackSerials(ctx context.Context, userID uint) ([]string, error) {
	var serials []string
	err := s.db.Model(&model.Child{}).
		Joins("JOIN backpacks ON backpacks.id = children.backpack_id").
		Where("children.user_id = ? AND children.backpack_id IS NOT NULL", userID).
		Pluck("backpacks.serial", &serials).Error
	return serials, err
}

// OwnsBackpack reports whether one of the guardian's children carries the backpack
func (s *ChildService) OwnsBackpack(ctx context.Context, userID uint, serial string) (bool, error) {
	var count int64
	err := s.db.Model(&model.Child{}).
		Joins("JOIN backpacks ON backpacks.id = children.backpack_id").
		Where("children.user_id = ? AND backpacks.serial = ?", userID, serial).
		Count(&count).Error
	return count > 0, err
}

func (s *ChildService) findFreeBackpack(tx *gorm.DB, serial string) (*model.Backpack, error) {
	var backpack model.Backpack
	if err := tx.Where("serial = ?", serial).First(&backpack).Error; err != nil {
		return nil, err
	}

	var count int64
	if err := tx.Model(&model.Child{}).Where("backpack_id = ?", backpack.ID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrBackpackTaken
	}
	return &backpack, nil
}
