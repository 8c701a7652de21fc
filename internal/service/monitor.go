package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"geosync/internal/geo"
	"geosync/internal/model"
)

// ZoneProvider supplies the authoritative active zone set for a backpack
type ZoneProvider interface {
	ListActive(ctx context.Context, backpackID string) ([]model.SafeZone, error)
}

// AlertSink receives the transitions the monitor detects
type AlertSink interface {
	RecordZoneExit(ctx context.Context, exit ZoneExit) error
	CheckLowBattery(ctx context.Context, backpackID string, battery int)
}

// GeofenceMonitor consumes position uplinks and drives the evaluator.
// Zone edits take effect on the next reading because the zone set is
// fetched fresh per evaluation. A NATS subscription delivers messages
// serially, so the evaluator needs no locking.
type GeofenceMonitor struct {
	zones     ZoneProvider
	sink      AlertSink
	evaluator *Evaluator
	nats      *nats.Conn
	sub       *nats.Subscription
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewGeofenceMonitor creates a new geofence monitor
func NewGeofenceMonitor(natsConn *nats.Conn, zones ZoneProvider, sink AlertSink) *GeofenceMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &GeofenceMonitor{
		zones:     zones,
		sink:      sink,
		evaluator: NewEvaluator(),
		nats:      natsConn,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to position uplinks
func (m *GeofenceMonitor) Start() error {
	sub, err := m.nats.Subscribe(SubjectPositionUplink, func(msg *nats.Msg) {
		var pm PositionMessage
		if err := json.Unmarshal(msg.Data, &pm); err != nil {
			log.Printf("[Monitor] Failed to unmarshal position message: %v", err)
			return
		}
		m.processReading(&pm)
	})
	if err != nil {
		return err
	}
	m.sub = sub

	log.Println("[Monitor] Subscribed to position uplinks")
	return nil
}

// Stop stops the monitor
func (m *GeofenceMonitor) Stop() {
	if m.sub != nil {
		m.sub.Unsubscribe()
	}
	m.cancel()
	log.Println("[Monitor] Stopped")
}

// processReading runs one uplink through the evaluator. Collaborator
// failures are logged and dropped: a missed reading must never kill
// monitoring, and a fetch error must never fabricate an exit alert.
func (m *GeofenceMonitor) processReading(pm *PositionMessage) {
	if pm.Battery != nil {
		m.sink.CheckLowBattery(m.ctx, pm.BackpackID, *pm.Battery)
	}

	zones, err := m.zones.ListActive(m.ctx, pm.BackpackID)
	if err != nil {
		log.Printf("[Monitor] Failed to load zones for %s: %v", pm.BackpackID, err)
		return
	}
	if len(zones) == 0 {
		return
	}

	r := readingFromMessage(pm)
	result, err := m.evaluator.Evaluate(pm.BackpackID, r, zones)
	if err != nil {
		if errors.Is(err, ErrStalePosition) {
			// Out-of-order delivery; newer reading already evaluated.
			return
		}
		log.Printf("[Monitor] Evaluation failed for %s: %v", pm.BackpackID, err)
		return
	}

	for _, id := range result.SkippedZones {
		log.Printf("[Monitor] Skipped invalid zone %d for %s", id, pm.BackpackID)
	}

	for _, exit := range result.Exits {
		if err := m.sink.RecordZoneExit(m.ctx, exit); err != nil {
			log.Printf("[Monitor] Failed to record zone exit for %s: %v", pm.BackpackID, err)
		}
	}
}

func readingFromMessage(pm *PositionMessage) Reading {
	return Reading{
		BackpackID: pm.BackpackID,
		Coordinate: geo.Coordinate{Lat: pm.Lat, Lon: pm.Lon},
		Time:       time.Unix(pm.Timestamp, 0),
	}
}
