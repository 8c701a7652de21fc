package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"geosync/internal/model"
)

type fakeZoneProvider struct {
	zones []model.SafeZone
	err   error
	calls int
}

func (f *fakeZoneProvider) ListActive(ctx context.Context, backpackID string) ([]model.SafeZone, error) {
	f.calls++
	return f.zones, f.err
}

type fakeAlertSink struct {
	exits      []ZoneExit
	exitErr    error
	lowBattery []int
}

func (f *fakeAlertSink) RecordZoneExit(ctx context.Context, exit ZoneExit) error {
	f.exits = append(f.exits, exit)
	return f.exitErr
}

func (f *fakeAlertSink) CheckLowBattery(ctx context.Context, backpackID string, battery int) {
	f.lowBattery = append(f.lowBattery, battery)
}

func newTestMonitor(zones *fakeZoneProvider, sink *fakeAlertSink) *GeofenceMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &GeofenceMonitor{
		zones:     zones,
		sink:      sink,
		evaluator: NewEvaluator(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func positionMsg(lat, lon float64, ts int64) *PositionMessage {
	return &PositionMessage{
		BackpackID: testSerial,
		Lat:        lat,
		Lon:        lon,
		Timestamp:  ts,
	}
}

func TestMonitorEmitsExitOnce(t *testing.T) {
	zones := &fakeZoneProvider{zones: []model.SafeZone{testZone(1, 150)}}
	sink := &fakeAlertSink{}
	m := newTestMonitor(zones, sink)

	m.processReading(positionMsg(centerLat+0.009, centerLon, 1000))
	m.processReading(positionMsg(centerLat+0.009, centerLon, 1005))

	assert.Len(t, sink.exits, 1)
	assert.Equal(t, uint(1), sink.exits[0].Zone.ID)
}

func TestMonitorNoZonesNeverAlerts(t *testing.T) {
	zones := &fakeZoneProvider{}
	sink := &fakeAlertSink{}
	m := newTestMonitor(zones, sink)

	m.processReading(positionMsg(centerLat+0.5, centerLon+0.5, 1000))

	assert.Empty(t, sink.exits)
	assert.Equal(t, 1, zones.calls)
}

func TestMonitorZoneFetchErrorDoesNotAlert(t *testing.T) {
	zones := &fakeZoneProvider{err: errors.New("store unavailable")}
	sink := &fakeAlertSink{}
	m := newTestMonitor(zones, sink)

	m.processReading(positionMsg(centerLat+0.009, centerLon, 1000))

	assert.Empty(t, sink.exits)
}

func TestMonitorDropsStaleReading(t *testing.T) {
	zones := &fakeZoneProvider{zones: []model.SafeZone{testZone(1, 150)}}
	sink := &fakeAlertSink{}
	m := newTestMonitor(zones, sink)

	// Inside at t=1000, then a stale outside reading from t=900 arrives
	// late. It must not fabricate an exit.
	m.processReading(positionMsg(centerLat, centerLon, 1000))
	m.processReading(positionMsg(centerLat+0.009, centerLon, 900))

	assert.Empty(t, sink.exits)
}

func TestMonitorRearmAfterReturn(t *testing.T) {
	zones := &fakeZoneProvider{zones: []model.SafeZone{testZone(1, 150)}}
	sink := &fakeAlertSink{}
	m := newTestMonitor(zones, sink)

	m.processReading(positionMsg(centerLat+0.009, centerLon, 1000))
	m.processReading(positionMsg(centerLat, centerLon, 1005))
	m.processReading(positionMsg(centerLat+0.009, centerLon, 1010))

	assert.Len(t, sink.exits, 2)
}

func TestMonitorChecksLowBattery(t *testing.T) {
	zones := &fakeZoneProvider{}
	sink := &fakeAlertSink{}
	m := newTestMonitor(zones, sink)

	battery := 15
	pm := positionMsg(centerLat, centerLon, 1000)
	pm.Battery = &battery
	m.processReading(pm)

	assert.Equal(t, []int{15}, sink.lowBattery)
}

func TestMonitorSinkErrorKeepsRunning(t *testing.T) {
	zones := &fakeZoneProvider{zones: []model.SafeZone{testZone(1, 150)}}
	sink := &fakeAlertSink{exitErr: errors.New("sink down")}
	m := newTestMonitor(zones, sink)

	m.processReading(positionMsg(centerLat+0.009, centerLon, 1000))

	// Next reading still evaluates; back inside then out alerts again.
	m.processReading(positionMsg(centerLat, centerLon, 1005))
	m.processReading(positionMsg(centerLat+0.009, centerLon, 1010))
	assert.Len(t, sink.exits, 2)
}
