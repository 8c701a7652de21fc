package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"geosync/internal/geo"
	"geosync/internal/model"
)

// SubjectPositionUplink carries raw position readings from backpacks.
const SubjectPositionUplink = "geosync.uplink.LOCATION"

// PositionMessage is the wire form of a position uplink
type PositionMessage struct {
	BackpackID string  `json:"backpack_id"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Battery    *int    `json:"battery,omitempty"`
	Timestamp  int64   `json:"timestamp"`
}

// PositionService handles position ingest and queries
type PositionService struct {
	db        *gorm.DB
	redis     *redis.Client
	nats      *nats.Conn
	jetstream *JetStreamService
}

// NewPositionService creates a new position service
func NewPositionService(db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn, jetstream *JetStreamService) *PositionService {
	return &PositionService{
		db:        db,
		redis:     redisClient,
		nats:      natsConn,
		jetstream: jetstream,
	}
}

// Ingest validates and records a reading, refreshes the backpack shadow and
// fans the message out on NATS for the monitor and websocket hub.
func (s *PositionService) Ingest(ctx context.Context, msg *PositionMessage) error {
	if msg.BackpackID == "" {
		return fmt.Errorf("%w: missing backpack id", ErrInvalidPosition)
	}
	if !(geo.Coordinate{Lat: msg.Lat, Lon: msg.Lon}).Valid() {
		return fmt.Errorf("%w: coordinate out of range", ErrInvalidPosition)
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().Unix()
	}

	position := &model.Position{
		Time:       time.Unix(msg.Timestamp, 0),
		BackpackID: msg.BackpackID,
		Lat:        msg.Lat,
		Lon:        msg.Lon,
		Battery:    msg.Battery,
	}
	if err := s.db.Create(position).Error; err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}

	s.updateBackpackReport(msg)
	s.cacheShadow(ctx, msg)

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := s.nats.Publish(SubjectPositionUplink, data); err != nil {
		return fmt.Errorf("failed to publish position: %w", err)
	}

	if s.jetstream != nil {
		if err := s.jetstream.PublishPosition(msg.BackpackID, msg); err != nil {
			log.Printf("[Position] Failed to persist position to JetStream: %v", err)
		}
	}

	return nil
}

// GetLatest returns the most recent position for a backpack
func (s *PositionService) GetLatest(ctx context.Context, backpackID string) (*model.Position, error) {
	var position model.Position
	if err := s.db.Where("backpack_id = ?", backpackID).
		Order("time DESC").
		First(&position).Error; err != nil {
		return nil, err
	}
	return &position, nil
}

// GetHistory returns position history for a backpack within a time range
func (s *PositionService) GetHistory(ctx context.Context, backpackID string, start, end time.Time, limit int) ([]model.Position, error) {
	query := s.db.Where("backpack_id = ? AND time >= ? AND time <= ?", backpackID, start, end).
		Order("time ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var positions []model.Position
	if err := query.Find(&positions).Error; err != nil {
		return nil, err
	}
	return positions, nil
}

// Replay re-reads persisted position messages for a backpack from JetStream
func (s *PositionService) Replay(ctx context.Context, backpackID string, start, end time.Time) ([]PositionMessage, error) {
	if s.jetstream == nil {
		return nil, fmt.Errorf("JetStream is not enabled")
	}

	var messages []PositionMessage
	subject := fmt.Sprintf("geosync.positions.%s", backpackID)
	err := s.jetstream.Replay(subject, start, func(msg *nats.Msg) {
		var pm PositionMessage
		if err := json.Unmarshal(msg.Data, &pm); err != nil {
			return
		}
		if pm.Timestamp <= end.Unix() {
			messages = append(messages, pm)
		}
	})
	return messages, err
}

// GetShadow returns the cached real-time state of a backpack
func (s *PositionService) GetShadow(ctx context.Context, backpackID string) (*model.BackpackShadow, error) {
	data, err := s.redis.Get(ctx, shadowKey(backpackID)).Result()
	if err != nil {
		return nil, err
	}

	var shadow model.BackpackShadow
	if err := json.Unmarshal([]byte(data), &shadow); err != nil {
		return nil, err
	}
	return &shadow, nil
}

func (s *PositionService) cacheShadow(ctx context.Context, msg *PositionMessage) {
	shadow := model.BackpackShadow{
		Serial:    msg.BackpackID,
		Lat:       msg.Lat,
		Lon:       msg.Lon,
		Timestamp: msg.Timestamp,
	}
	if msg.Battery != nil {
		shadow.Battery = *msg.Battery
	}

	data, _ := json.Marshal(shadow)
	s.redis.Set(ctx, shadowKey(msg.BackpackID), data, 24*time.Hour)
}

func (s *PositionService) updateBackpackReport(msg *PositionMessage) {
	updates := map[string]interface{}{
		"last_report_at": time.Unix(msg.Timestamp, 0),
	}
	if msg.Battery != nil {
		updates["battery"] = *msg.Battery
	}

	if err := s.db.Model(&model.Backpack{}).
		Where("serial = ?", msg.BackpackID).
		Updates(updates).Error; err != nil {
		log.Printf("[Position] Failed to update backpack %s report time: %v", msg.BackpackID, err)
	}
}

func shadowKey(backpackID string) string {
	return fmt.Sprintf("geosync:shadow:%s", backpackID)
}
