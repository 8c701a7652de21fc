package service

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"geosync/internal/geo"
	"geosync/internal/model"
)

const (
	testSerial = "GKP-0001"
	centerLat  = -23.099
	centerLon  = -45.707
)

func testZone(id uint, radius float64) model.SafeZone {
	return model.SafeZone{
		ID:         id,
		BackpackID: testSerial,
		Name:       "Escola",
		Lat:        centerLat,
		Lon:        centerLon,
		Radius:     radius,
	}
}

func reading(serial string, lat, lon float64, at time.Time) Reading {
	return Reading{
		BackpackID: serial,
		Coordinate: geo.Coordinate{Lat: lat, Lon: lon},
		Time:       at,
	}
}

func TestEvaluateInsideZoneCenter(t *testing.T) {
	ev := NewEvaluator()
	zones := []model.SafeZone{testZone(1, 150)}

	res, err := ev.Evaluate(testSerial, reading(testSerial, centerLat, centerLon, time.Unix(1000, 0)), zones)
	assert.NoError(t, err)
	assert.Empty(t, res.Exits)
	assert.Len(t, res.States, 1)
	assert.True(t, res.States[0].Inside)
	assert.False(t, res.States[0].Alerted)
}

func TestEvaluateExitEmitsSingleAlert(t *testing.T) {
	ev := NewEvaluator()
	zones := []model.SafeZone{testZone(1, 150)}

	// ~1 km north of the zone center.
	res, err := ev.Evaluate(testSerial, reading(testSerial, centerLat+0.009, centerLon, time.Unix(1000, 0)), zones)
	assert.NoError(t, err)
	assert.Len(t, res.Exits, 1)
	assert.Equal(t, uint(1), res.Exits[0].Zone.ID)
	assert.Greater(t, res.Exits[0].Distance, 150.0)
	assert.False(t, res.States[0].Inside)
	assert.True(t, res.States[0].Alerted)
}

func TestEvaluateSuppressesWhileStillOutside(t *testing.T) {
	ev := NewEvaluator()
	zones := []model.SafeZone{testZone(1, 150)}

	res, err := ev.Evaluate(testSerial, reading(testSerial, centerLat+0.009, centerLon, time.Unix(1000, 0)), zones)
	assert.NoError(t, err)
	assert.Len(t, res.Exits, 1)

	res, err = ev.Evaluate(testSerial, reading(testSerial, centerLat+0.009, centerLon, time.Unix(1005, 0)), zones)
	assert.NoError(t, err)
	assert.Empty(t, res.Exits)
	assert.True(t, res.States[0].Alerted)
}

func TestEvaluateRearmsAfterReturn(t *testing.T) {
	ev := NewEvaluator()
	zones := []model.SafeZone{testZone(1, 150)}

	res, _ := ev.Evaluate(testSerial, reading(testSerial, centerLat+0.009, centerLon, time.Unix(1000, 0)), zones)
	assert.Len(t, res.Exits, 1)

	// Back inside: latch clears.
	res, err := ev.Evaluate(testSerial, reading(testSerial, centerLat, centerLon, time.Unix(1005, 0)), zones)
	assert.NoError(t, err)
	assert.Empty(t, res.Exits)
	assert.True(t, res.States[0].Inside)
	assert.False(t, res.States[0].Alerted)

	// Out again: exactly one new alert.
	res, err = ev.Evaluate(testSerial, reading(testSerial, centerLat+0.009, centerLon, time.Unix(1010, 0)), zones)
	assert.NoError(t, err)
	assert.Len(t, res.Exits, 1)
}

func TestEvaluateSkipsInvalidZone(t *testing.T) {
	ev := NewEvaluator()
	bad := testZone(7, 0)
	good := testZone(8, 150)

	res, err := ev.Evaluate(testSerial, reading(testSerial, centerLat, centerLon, time.Unix(1000, 0)), []model.SafeZone{bad, good})
	assert.NoError(t, err)
	assert.Equal(t, []uint{7}, res.SkippedZones)
	assert.Len(t, res.States, 1)
	assert.Equal(t, uint(8), res.States[0].ZoneID)
}

func TestEvaluateNoZonesIsNoop(t *testing.T) {
	ev := NewEvaluator()

	res, err := ev.Evaluate(testSerial, reading(testSerial, 89.0, 0.0, time.Unix(1000, 0)), nil)
	assert.NoError(t, err)
	assert.Empty(t, res.Exits)
	assert.Empty(t, res.States)
}

func TestEvaluateRejectsInvalidPosition(t *testing.T) {
	ev := NewEvaluator()
	zones := []model.SafeZone{testZone(1, 150)}

	_, err := ev.Evaluate(testSerial, reading(testSerial, math.NaN(), centerLon, time.Unix(1000, 0)), zones)
	assert.ErrorIs(t, err, ErrInvalidPosition)

	_, err = ev.Evaluate(testSerial, reading(testSerial, 91.0, centerLon, time.Unix(1000, 0)), zones)
	assert.ErrorIs(t, err, ErrInvalidPosition)

	// Reading attributed to a different backpack.
	_, err = ev.Evaluate(testSerial, reading("GKP-9999", centerLat, centerLon, time.Unix(1000, 0)), zones)
	assert.ErrorIs(t, err, ErrInvalidPosition)
}

func TestEvaluateRejectsStaleReading(t *testing.T) {
	ev := NewEvaluator()
	zones := []model.SafeZone{testZone(1, 150)}

	_, err := ev.Evaluate(testSerial, reading(testSerial, centerLat, centerLon, time.Unix(1000, 0)), zones)
	assert.NoError(t, err)

	_, err = ev.Evaluate(testSerial, reading(testSerial, centerLat, centerLon, time.Unix(900, 0)), zones)
	assert.ErrorIs(t, err, ErrStalePosition)

	// Equal timestamps are accepted (non-decreasing order).
	_, err = ev.Evaluate(testSerial, reading(testSerial, centerLat, centerLon, time.Unix(1000, 0)), zones)
	assert.NoError(t, err)
}

func TestEvaluateIsolatesBackpacks(t *testing.T) {
	ev := NewEvaluator()
	zoneA := testZone(1, 150)
	zoneB := model.SafeZone{ID: 2, BackpackID: "GKP-0002", Lat: centerLat, Lon: centerLon, Radius: 150}

	// Backpack A exits its zone.
	res, err := ev.Evaluate(testSerial, reading(testSerial, centerLat+0.009, centerLon, time.Unix(1000, 0)), []model.SafeZone{zoneA})
	assert.NoError(t, err)
	assert.Len(t, res.Exits, 1)

	// Backpack B, same zone geometry: still gets its own alert.
	res, err = ev.Evaluate("GKP-0002", reading("GKP-0002", centerLat+0.009, centerLon, time.Unix(1000, 0)), []model.SafeZone{zoneB})
	assert.NoError(t, err)
	assert.Len(t, res.Exits, 1)
}

func TestEvaluateMultipleZonesIndependentLatches(t *testing.T) {
	ev := NewEvaluator()
	near := testZone(1, 150)
	wide := testZone(2, 5000)
	zones := []model.SafeZone{near, wide}

	// 1 km out: exits the 150 m zone, stays inside the 5 km zone.
	res, err := ev.Evaluate(testSerial, reading(testSerial, centerLat+0.009, centerLon, time.Unix(1000, 0)), zones)
	assert.NoError(t, err)
	assert.Len(t, res.Exits, 1)
	assert.Equal(t, uint(1), res.Exits[0].Zone.ID)

	// 10 km out: the wide zone now fires, the near zone stays latched.
	res, err = ev.Evaluate(testSerial, reading(testSerial, centerLat+0.09, centerLon, time.Unix(1005, 0)), zones)
	assert.NoError(t, err)
	assert.Len(t, res.Exits, 1)
	assert.Equal(t, uint(2), res.Exits[0].Zone.ID)
}

func TestEvaluateZoneEditTakesEffectNextCall(t *testing.T) {
	ev := NewEvaluator()

	// Radius 150: 1 km away is outside.
	res, _ := ev.Evaluate(testSerial, reading(testSerial, centerLat+0.009, centerLon, time.Unix(1000, 0)), []model.SafeZone{testZone(1, 150)})
	assert.Len(t, res.Exits, 1)

	// Zone grown to 2 km: the same point is inside again, latch clears.
	res, err := ev.Evaluate(testSerial, reading(testSerial, centerLat+0.009, centerLon, time.Unix(1005, 0)), []model.SafeZone{testZone(1, 2000)})
	assert.NoError(t, err)
	assert.True(t, res.States[0].Inside)
	assert.False(t, res.States[0].Alerted)
}
