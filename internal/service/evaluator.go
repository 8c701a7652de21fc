package service

import (
	"errors"
	"fmt"
	"time"

	"geosync/internal/geo"
	"geosync/internal/model"
)

var (
	// ErrInvalidPosition means the reading carries an unusable coordinate.
	ErrInvalidPosition = errors.New("invalid position")
	// ErrStalePosition means the reading is older than one already evaluated.
	ErrStalePosition = errors.New("stale position")
)

// Reading is a single GPS observation fed to the evaluator.
type Reading struct {
	BackpackID string
	Coordinate geo.Coordinate
	Time       time.Time
}

// ContainmentState is the per-zone state after an evaluation.
type ContainmentState struct {
	ZoneID  uint
	Inside  bool
	Alerted bool // an exit alert was already emitted for the current excursion
}

// ZoneExit describes a newly detected inside-to-outside transition.
type ZoneExit struct {
	Zone     model.SafeZone
	Distance float64 // meters from zone center
	Reading  Reading
}

// EvalResult is the outcome of one evaluation call.
type EvalResult struct {
	States       []ContainmentState
	Exits        []ZoneExit // at most one per zone per call
	SkippedZones []uint     // zones rejected by validation, evaluated zones are unaffected
}

type containment struct {
	inside  bool
	alerted bool
}

// Evaluator decides, per backpack and safe zone, whether the backpack is
// inside the zone and detects transition edges. It owns no I/O; the caller
// supplies the authoritative zone set on every call so zone edits take
// effect on the next evaluation. State is per (backpack, zone) and lives
// for the lifetime of the evaluator, so two backpacks never share a latch.
//
// Not safe for concurrent use; the monitor drives it from a single
// goroutine per evaluator.
type Evaluator struct {
	states   map[string]map[uint]*containment
	lastSeen map[string]time.Time
}

// NewEvaluator creates an empty evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		states:   make(map[string]map[uint]*containment),
		lastSeen: make(map[string]time.Time),
	}
}

// Evaluate runs one reading against the backpack's current zone set.
//
// A zone pair never seen before starts as inside/not-alerted, so the first
// reading proving the backpack outside produces a real transition edge.
// While the backpack stays outside the latch suppresses repeat alerts;
// returning inside clears the latch and re-arms the zone. Readings must
// arrive in non-decreasing timestamp order per backpack; older readings
// are rejected with ErrStalePosition.
func (e *Evaluator) Evaluate(backpackID string, r Reading, zones []model.SafeZone) (*EvalResult, error) {
	if r.BackpackID != backpackID {
		return nil, fmt.Errorf("%w: reading belongs to %q, not %q", ErrInvalidPosition, r.BackpackID, backpackID)
	}
	if !r.Coordinate.Valid() {
		return nil, fmt.Errorf("%w: coordinate out of range", ErrInvalidPosition)
	}
	if last, ok := e.lastSeen[backpackID]; ok && r.Time.Before(last) {
		return nil, fmt.Errorf("%w: reading at %s precedes %s", ErrStalePosition, r.Time.Format(time.RFC3339), last.Format(time.RFC3339))
	}
	e.lastSeen[backpackID] = r.Time

	result := &EvalResult{}
	zoneStates, ok := e.states[backpackID]
	if !ok {
		zoneStates = make(map[uint]*containment)
		e.states[backpackID] = zoneStates
	}

	seen := make(map[uint]bool, len(zones))
	for _, zone := range zones {
		if zone.Radius <= 0 || !(geo.Coordinate{Lat: zone.Lat, Lon: zone.Lon}).Valid() {
			result.SkippedZones = append(result.SkippedZones, zone.ID)
			continue
		}
		seen[zone.ID] = true

		st, ok := zoneStates[zone.ID]
		if !ok {
			st = &containment{inside: true}
			zoneStates[zone.ID] = st
		}

		d := geo.Distance(geo.Coordinate{Lat: zone.Lat, Lon: zone.Lon}, r.Coordinate)
		outside := d > zone.Radius

		switch {
		case outside && !st.alerted:
			st.inside = false
			st.alerted = true
			result.Exits = append(result.Exits, ZoneExit{Zone: zone, Distance: d, Reading: r})
		case outside:
			st.inside = false
		default:
			st.inside = true
			st.alerted = false
		}

		result.States = append(result.States, ContainmentState{
			ZoneID:  zone.ID,
			Inside:  st.inside,
			Alerted: st.alerted,
		})
	}

	// Forget zones no longer configured so a deleted zone cannot keep a
	// latch alive if it is later recreated under the same id.
	for id := range zoneStates {
		if !seen[id] {
			delete(zoneStates, id)
		}
	}

	return result, nil
}

// Reset drops all containment state for a backpack. Used when monitoring
// for that backpack is stopped.
func (e *Evaluator) Reset(backpackID string) {
	delete(e.states, backpackID)
	delete(e.lastSeen, backpackID)
}
