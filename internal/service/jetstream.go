package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Stream names
const (
	StreamPositions = "GEOSYNC_POSITIONS"
	StreamAlerts    = "GEOSYNC_ALERTS"
)

// JetStreamService persists position and alert messages for replay
type JetStreamService struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// NewJetStreamService creates a JetStream service and ensures its streams exist
func NewJetStreamService(nc *nats.Conn) (*JetStreamService, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	s := &JetStreamService{nc: nc, js: js}
	if err := s.initStreams(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *JetStreamService) initStreams() error {
	streams := []nats.StreamConfig{
		{
			Name:      StreamPositions,
			Subjects:  []string{"geosync.positions.*"},
			Retention: nats.LimitsPolicy,
			MaxMsgs:   -1,
			MaxBytes:  5 * 1024 * 1024 * 1024,
			MaxAge:    7 * 24 * time.Hour,
			Storage:   nats.FileStorage,
			Replicas:  1,
		},
		{
			Name:      StreamAlerts,
			Subjects:  []string{"geosync.alerts.*"},
			Retention: nats.LimitsPolicy,
			MaxMsgs:   -1,
			MaxBytes:  1 * 1024 * 1024 * 1024,
			MaxAge:    30 * 24 * time.Hour,
			Storage:   nats.FileStorage,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := s.js.AddStream(&cfg); err != nil {
			if err == nats.ErrStreamNameAlreadyInUse {
				if _, err = s.js.UpdateStream(&cfg); err != nil {
					return fmt.Errorf("failed to update stream %s: %w", cfg.Name, err)
				}
			} else {
				return fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
			}
		}
	}
	return nil
}

// PublishPosition persists a position message, keyed by backpack serial
func (s *JetStreamService) PublishPosition(backpackID string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = s.js.Publish(fmt.Sprintf("geosync.positions.%s", backpackID), payload)
	return err
}

// PublishAlert persists an alert message, keyed by alert type
func (s *JetStreamService) PublishAlert(alertType string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = s.js.Publish(fmt.Sprintf("geosync.alerts.%s", alertType), payload)
	return err
}

// Replay reads messages from a stream subject starting at startTime and
// feeds them to handler until the stream is drained or maxWait elapses
// without a message.
func (s *JetStreamService) Replay(subject string, startTime time.Time, handler func(msg *nats.Msg)) error {
	sub, err := s.js.SubscribeSync(subject, nats.StartTime(startTime))
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for {
		msg, err := sub.NextMsg(1 * time.Second)
		if err != nil {
			if err == nats.ErrTimeout {
				return nil // drained
			}
			return err
		}
		handler(msg)
		msg.Ack()
	}
}

// GetStreamInfo returns info for a stream
func (s *JetStreamService) GetStreamInfo(stream string) (*nats.StreamInfo, error) {
	return s.js.StreamInfo(stream)
}

// Close releases the underlying connection reference
func (s *JetStreamService) Close() {
	// The NATS connection is owned by main; nothing to tear down here.
}
