package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"geosync/internal/geo"
	"geosync/internal/model"
)

var (
	// ErrInvalidZone means the zone geometry failed validation.
	ErrInvalidZone = errors.New("invalid safe zone")
	// ErrZoneLimit means the backpack already has the maximum number of zones.
	ErrZoneLimit = fmt.Errorf("at most %d safe zones per backpack", model.MaxZonesPerBackpack)
)

// ZoneService handles safe zone business logic
type ZoneService struct {
	db    *gorm.DB
	redis *redis.Client
}

// NewZoneService creates a new zone service
func NewZoneService(db *gorm.DB, redisClient *redis.Client) *ZoneService {
	return &ZoneService{db: db, redis: redisClient}
}

// Create creates a safe zone for a backpack, enforcing the per-backpack cap
func (s *ZoneService) Create(ctx context.Context, backpackID string, req *model.CreateZoneRequest) (*model.SafeZone, error) {
	radius := float64(model.DefaultZoneRadius)
	if req.Radius != nil {
		radius = *req.Radius
	}

	zone := &model.SafeZone{
		BackpackID: backpackID,
		Name:       req.Name,
		Lat:        *req.Lat,
		Lon:        *req.Lon,
		Radius:     radius,
		Status:     1,
	}
	if err := validateZone(zone); err != nil {
		return nil, err
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.SafeZone{}).Where("backpack_id = ?", backpackID).Count(&count).Error; err != nil {
			return err
		}
		if count >= model.MaxZonesPerBackpack {
			return ErrZoneLimit
		}
		return tx.Create(zone).Error
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCache(ctx, backpackID)
	return zone, nil
}

// GetByID returns a safe zone by ID
func (s *ZoneService) GetByID(ctx context.Context, id uint) (*model.SafeZone, error) {
	var zone model.SafeZone
	if err := s.db.First(&zone, id).Error; err != nil {
		return nil, err
	}
	return &zone, nil
}

// ListByBackpack returns all safe zones configured for a backpack
func (s *ZoneService) ListByBackpack(ctx context.Context, backpackID string) ([]model.SafeZone, error) {
	var zones []model.SafeZone
	err := s.db.Where("backpack_id = ?", backpackID).Order("created_at").Find(&zones).Error
	return zones, err
}

// ListActive returns the active zones for a backpack, preferring the Redis
// cache. The monitor calls this on every position update.
func (s *ZoneService) ListActive(ctx context.Context, backpackID string) ([]model.SafeZone, error) {
	key := zoneCacheKey(backpackID)
	if cached, err := s.redis.Get(ctx, key).Result(); err == nil {
		var zones []model.SafeZone
		if err := json.Unmarshal([]byte(cached), &zones); err == nil {
			return zones, nil
		}
	}

	var zones []model.SafeZone
	if err := s.db.Where("backpack_id = ? AND status = 1", backpackID).Find(&zones).Error; err != nil {
		return nil, err
	}

	if data, err := json.Marshal(zones); err == nil {
		s.redis.Set(ctx, key, data, 5*time.Minute)
	}
	return zones, nil
}

// Update updates a safe zone
func (s *ZoneService) Update(ctx context.Context, id uint, req *model.UpdateZoneRequest) (*model.SafeZone, error) {
	var zone model.SafeZone
	if err := s.db.First(&zone, id).Error; err != nil {
		return nil, err
	}

	if req.Name != nil {
		zone.Name = *req.Name
	}
	if req.Lat != nil {
		zone.Lat = *req.Lat
	}
	if req.Lon != nil {
		zone.Lon = *req.Lon
	}
	if req.Radius != nil {
		zone.Radius = *req.Radius
	}
	if req.Status != nil {
		zone.Status = *req.Status
	}

	if err := validateZone(&zone); err != nil {
		return nil, err
	}
	if err := s.db.Save(&zone).Error; err != nil {
		return nil, err
	}

	s.invalidateCache(ctx, zone.BackpackID)
	return &zone, nil
}

// Delete deletes a safe zone
func (s *ZoneService) Delete(ctx context.Context, id uint) error {
	var zone model.SafeZone
	if err := s.db.First(&zone, id).Error; err != nil {
		return err
	}
	if err := s.db.Delete(&zone).Error; err != nil {
		return err
	}

	s.invalidateCache(ctx, zone.BackpackID)
	return nil
}

func (s *ZoneService) invalidateCache(ctx context.Context, backpackID string) {
	s.redis.Del(ctx, zoneCacheKey(backpackID))
}

func zoneCacheKey(backpackID string) string {
	return fmt.Sprintf("geosync:zones:%s", backpackID)
}

func validateZone(zone *model.SafeZone) error {
	if !(geo.Coordinate{Lat: zone.Lat, Lon: zone.Lon}).Valid() {
		return fmt.Errorf("%w: center coordinate out of range", ErrInvalidZone)
	}
	if zone.Radius < model.MinZoneRadiusMeters || zone.Radius > model.MaxZoneRadiusMeters {
		return fmt.Errorf("%w: radius must be between %d and %d meters",
			ErrInvalidZone, model.MinZoneRadiusMeters, model.MaxZoneRadiusMeters)
	}
	return nil
}
