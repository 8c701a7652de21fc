package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"gorm.io/gorm"

	"geosync/internal/model"
)

// Alert subjects. The websocket hub relays geosync.alert.> to connected apps.
const (
	SubjectAlertZoneExit   = "geosync.alert.ZONE_EXIT"
	SubjectAlertOffline    = "geosync.alert.OFFLINE"
	SubjectAlertLowBattery = "geosync.alert.LOW_BATTERY"
)

// WSHubInterface is the broadcast surface the alert service pushes to
type WSHubInterface interface {
	Broadcast(data []byte)
}

// AlertService persists notification records and fans alerts out to
// NATS, JetStream and connected websocket clients. Delivery is
// best-effort, at-least-once; duplicate suppression is the evaluator's
// job, not the sink's.
type AlertService struct {
	db        *gorm.DB
	nats      *nats.Conn
	wsHub     WSHubInterface
	jetstream *JetStreamService

	stopCh chan struct{}
}

// NewAlertService creates a new alert service
func NewAlertService(db *gorm.DB, natsConn *nats.Conn, wsHub WSHubInterface, jetstream *JetStreamService) *AlertService {
	return &AlertService{
		db:        db,
		nats:      natsConn,
		wsHub:     wsHub,
		jetstream: jetstream,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the background offline sweeper
func (s *AlertService) Start() error {
	go s.offlineSweeper()
	log.Println("[Alert] Offline sweeper started")
	return nil
}

// Stop stops background work
func (s *AlertService) Stop() {
	close(s.stopCh)
}

// RecordZoneExit persists and dispatches one zone-exit alert produced by
// the geofence evaluator.
func (s *AlertService) RecordZoneExit(ctx context.Context, exit ZoneExit) error {
	if !s.shouldAlert(model.AlertTypeZoneExit, exit.Zone.BackpackID) {
		return nil
	}

	childName := s.childNameForBackpack(exit.Zone.BackpackID)
	zoneName := exit.Zone.Name
	if zoneName == "" {
		zoneName = "safe zone"
	}

	name := childName
	if name == "" {
		name = fmt.Sprintf("Backpack %s", exit.Zone.BackpackID)
	}

	lat := exit.Reading.Coordinate.Lat
	lon := exit.Reading.Coordinate.Lon
	dist := exit.Distance
	zoneID := exit.Zone.ID

	alert := &model.Alert{
		Type:       model.AlertTypeZoneExit,
		BackpackID: exit.Zone.BackpackID,
		ChildName:  childName,
		ZoneID:     &zoneID,
		ZoneName:   exit.Zone.Name,
		Message:    fmt.Sprintf("%s left %s (%.0f m away)", name, zoneName, dist),
		Lat:        &lat,
		Lon:        &lon,
		Distance:   &dist,
		Status:     model.AlertStatusUnread,
		CreatedAt:  exit.Reading.Time,
	}

	return s.dispatch(ctx, SubjectAlertZoneExit, alert)
}

// RecordOffline persists an offline alert for a backpack that stopped reporting
func (s *AlertService) RecordOffline(ctx context.Context, backpack *model.Backpack, silentFor time.Duration) error {
	childName := s.childNameForBackpack(backpack.Serial)
	name := childName
	if name == "" {
		name = fmt.Sprintf("Backpack %s", backpack.Serial)
	}

	alert := &model.Alert{
		Type:       model.AlertTypeOffline,
		BackpackID: backpack.Serial,
		ChildName:  childName,
		Message:    fmt.Sprintf("%s has been offline for %d minutes", name, int(silentFor.Minutes())),
		Status:     model.AlertStatusUnread,
		CreatedAt:  time.Now(),
	}

	return s.dispatch(ctx, SubjectAlertOffline, alert)
}

// CheckLowBattery emits a low-battery alert when a reading drops below the
// configured threshold. Called by the monitor on each position update.
func (s *AlertService) CheckLowBattery(ctx context.Context, backpackID string, battery int) {
	rule := s.ruleFor(model.AlertTypeLowBattery)
	if rule == nil || !s.ruleApplies(rule, backpackID) {
		return
	}

	if battery >= batteryThreshold(rule) {
		return
	}

	// One unread low-battery alert per backpack at a time.
	if s.hasUnread(model.AlertTypeLowBattery, backpackID) {
		return
	}

	childName := s.childNameForBackpack(backpackID)
	name := childName
	if name == "" {
		name = fmt.Sprintf("Backpack %s", backpackID)
	}

	alert := &model.Alert{
		Type:       model.AlertTypeLowBattery,
		BackpackID: backpackID,
		ChildName:  childName,
		Message:    fmt.Sprintf("%s's backpack battery is at %d%%", name, battery),
		Status:     model.AlertStatusUnread,
		CreatedAt:  time.Now(),
	}

	if err := s.dispatch(ctx, SubjectAlertLowBattery, alert); err != nil {
		log.Printf("[Alert] Failed to record low battery alert: %v", err)
	}
}

// dispatch persists the record, then pushes it to NATS, JetStream and the
// websocket hub. Persistence failure aborts; push failures are logged only.
func (s *AlertService) dispatch(ctx context.Context, subject string, alert *model.Alert) error {
	if err := s.db.WithContext(ctx).Create(alert).Error; err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}

	msg := model.AlertMessage{
		Type:       alert.Type,
		BackpackID: alert.BackpackID,
		ChildName:  alert.ChildName,
		ZoneID:     alert.ZoneID,
		ZoneName:   alert.ZoneName,
		Message:    alert.Message,
		Lat:        alert.Lat,
		Lon:        alert.Lon,
		Distance:   alert.Distance,
		Timestamp:  alert.CreatedAt.Unix(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	if err := s.nats.Publish(subject, data); err != nil {
		log.Printf("[Alert] Failed to publish alert: %v", err)
	}
	if s.jetstream != nil {
		if err := s.jetstream.PublishAlert(string(alert.Type), msg); err != nil {
			log.Printf("[Alert] Failed to persist alert to JetStream: %v", err)
		}
	}
	if s.wsHub != nil {
		push, _ := json.Marshal(map[string]interface{}{
			"type": "alert",
			"data": alert,
		})
		s.wsHub.Broadcast(push)
	}

	return nil
}

// List returns alerts for a set of backpacks with pagination
func (s *AlertService) List(ctx context.Context, backpackIDs []string, q *model.AlertListQuery) ([]model.Alert, int64, error) {
	query := s.db.Model(&model.Alert{}).Where("backpack_id IN ?", backpackIDs)
	if q.BackpackID != "" {
		query = query.Where("backpack_id = ?", q.BackpackID)
	}
	if q.Type != "" {
		query = query.Where("type = ?", q.Type)
	}
	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var alerts []model.Alert
	offset := (q.Page - 1) * q.PageSize
	if err := query.Order("created_at DESC").Offset(offset).Limit(q.PageSize).Find(&alerts).Error; err != nil {
		return nil, 0, err
	}
	return alerts, total, nil
}

// UnreadCount returns the number of unread alerts for a set of backpacks
func (s *AlertService) UnreadCount(ctx context.Context, backpackIDs []string) (int64, error) {
	var count int64
	err := s.db.Model(&model.Alert{}).
		Where("backpack_id IN ? AND status = ?", backpackIDs, model.AlertStatusUnread).
		Count(&count).Error
	return count, err
}

// MarkRead marks a single alert as read
func (s *AlertService) MarkRead(ctx context.Context, id uint) error {
	result := s.db.Model(&model.Alert{}).Where("id = ?", id).
		Update("status", model.AlertStatusRead)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// BatchRead marks a set of alerts as read
func (s *AlertService) BatchRead(ctx context.Context, ids []uint) error {
	return s.db.Model(&model.Alert{}).Where("id IN ?", ids).
		Update("status", model.AlertStatusRead).Error
}

// Clear deletes all alerts for the given backpacks (the notifications
// screen's "clear notifications" action)
func (s *AlertService) Clear(ctx context.Context, backpackIDs []string) error {
	return s.db.Where("backpack_id IN ?", backpackIDs).Delete(&model.Alert{}).Error
}

// offlineSweeper periodically flags backpacks that stopped reporting
func (s *AlertService) offlineSweeper() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweepOffline()
		}
	}
}

func (s *AlertService) sweepOffline() {
	rule := s.ruleFor(model.AlertTypeOffline)
	if rule == nil {
		return
	}

	threshold := time.Now().Add(-offlineThreshold(rule))

	var backpacks []model.Backpack
	s.db.Where("status = 1 AND last_report_at IS NOT NULL AND last_report_at < ?", threshold).
		Find(&backpacks)

	ctx := context.Background()
	for i := range backpacks {
		bp := &backpacks[i]
		if !s.ruleApplies(rule, bp.Serial) {
			continue
		}
		if s.hasUnread(model.AlertTypeOffline, bp.Serial) {
			continue
		}
		if err := s.RecordOffline(ctx, bp, time.Since(*bp.LastReportAt)); err != nil {
			log.Printf("[Alert] Failed to record offline alert for %s: %v", bp.Serial, err)
		}
	}
}

// Defaults applied when a rule row omits or mangles its conditions.
const (
	defaultBatteryThreshold = 20
	defaultOfflineMinutes   = 10
)

// batteryThreshold reads {"battery_below": N} from a rule's conditions.
// Malformed JSON is logged and falls back to the default so a bad rule
// row degrades instead of silently disarming the alert.
func batteryThreshold(rule *model.AlertRule) int {
	var conditions struct {
		BatteryBelow int `json:"battery_below"`
	}
	if len(rule.Conditions) > 0 {
		if err := json.Unmarshal(rule.Conditions, &conditions); err != nil {
			log.Printf("[Alert] Malformed conditions on %s rule: %v", rule.Type, err)
		}
	}
	if conditions.BatteryBelow <= 0 {
		return defaultBatteryThreshold
	}
	return conditions.BatteryBelow
}

// offlineThreshold reads {"offline_minutes": N} from a rule's conditions,
// with the same malformed-row handling as batteryThreshold.
func offlineThreshold(rule *model.AlertRule) time.Duration {
	var conditions struct {
		OfflineMinutes int `json:"offline_minutes"`
	}
	if len(rule.Conditions) > 0 {
		if err := json.Unmarshal(rule.Conditions, &conditions); err != nil {
			log.Printf("[Alert] Malformed conditions on %s rule: %v", rule.Type, err)
		}
	}
	if conditions.OfflineMinutes <= 0 {
		return defaultOfflineMinutes * time.Minute
	}
	return time.Duration(conditions.OfflineMinutes) * time.Minute
}

// shouldAlert checks the rule table for a type/backpack pair. A missing
// rule row means the type is enabled for everyone.
func (s *AlertService) shouldAlert(alertType model.AlertType, backpackID string) bool {
	rule := s.ruleFor(alertType)
	if rule == nil {
		return true
	}
	return s.ruleApplies(rule, backpackID)
}

func (s *AlertService) ruleFor(alertType model.AlertType) *model.AlertRule {
	var rule model.AlertRule
	if err := s.db.Where("type = ?", alertType).First(&rule).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("[Alert] Failed to load rule for %s: %v", alertType, err)
		}
		return nil
	}
	return &rule
}

func (s *AlertService) ruleApplies(rule *model.AlertRule, backpackID string) bool {
	if !rule.Enabled {
		return false
	}
	if rule.SilenceUntil != nil && time.Now().Before(*rule.SilenceUntil) {
		return false
	}
	if rule.AllBackpacks {
		return true
	}

	var backpack model.Backpack
	if err := s.db.Select("id").Where("serial = ?", backpackID).First(&backpack).Error; err != nil {
		return false
	}
	for _, id := range rule.BackpackIDs {
		if uint(id) == backpack.ID {
			return true
		}
	}
	return false
}

func (s *AlertService) hasUnread(alertType model.AlertType, backpackID string) bool {
	var count int64
	s.db.Model(&model.Alert{}).
		Where("backpack_id = ? AND type = ? AND status = ?", backpackID, alertType, model.AlertStatusUnread).
		Count(&count)
	return count > 0
}

func (s *AlertService) childNameForBackpack(serial string) string {
	var child model.Child
	err := s.db.Joins("JOIN backpacks ON backpacks.id = children.backpack_id").
		Where("backpacks.serial = ?", serial).
		First(&child).Error
	if err != nil {
		return ""
	}
	return child.Name
}
