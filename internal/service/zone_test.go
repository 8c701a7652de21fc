package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"geosync/internal/model"
)

// newZoneService backs the service with an in-memory sqlite database.
// The redis client points nowhere; cache misses and failed invalidations
// fall through to the database.
func newZoneService(t *testing.T) *ZoneService {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	// One connection, or each pooled connection gets its own empty :memory: DB.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&model.SafeZone{}))

	return NewZoneService(db, redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}))
}

func zoneRequest(name string) *model.CreateZoneRequest {
	lat, lon := centerLat, centerLon
	return &model.CreateZoneRequest{Name: name, Lat: &lat, Lon: &lon}
}

func TestZoneCapRejectsSixthCreate(t *testing.T) {
	s := newZoneService(t)
	ctx := context.Background()

	for i := 0; i < model.MaxZonesPerBackpack; i++ {
		_, err := s.Create(ctx, testSerial, zoneRequest(fmt.Sprintf("zone %d", i+1)))
		require.NoError(t, err)
	}

	_, err := s.Create(ctx, testSerial, zoneRequest("one too many"))
	assert.ErrorIs(t, err, ErrZoneLimit)

	var count int64
	require.NoError(t, s.db.Model(&model.SafeZone{}).Where("backpack_id = ?", testSerial).Count(&count).Error)
	assert.EqualValues(t, model.MaxZonesPerBackpack, count)

	// The cap is per backpack; another serial is unaffected.
	_, err = s.Create(ctx, "GKP-0002", zoneRequest("first zone elsewhere"))
	assert.NoError(t, err)
}

func TestValidateZoneRadiusBounds(t *testing.T) {
	cases := []struct {
		name   string
		radius float64
		valid  bool
	}{
		{"below minimum", 49, false},
		{"at minimum", 50, true},
		{"default", 150, true},
		{"at maximum", 1000, true},
		{"above maximum", 1001, false},
		{"zero", 0, false},
		{"negative", -150, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			zone := &model.SafeZone{
				BackpackID: testSerial,
				Lat:        centerLat,
				Lon:        centerLon,
				Radius:     tc.radius,
			}
			err := validateZone(zone)
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidZone)
			}
		})
	}
}

func TestValidateZoneRejectsInvalidCenter(t *testing.T) {
	zone := &model.SafeZone{
		BackpackID: testSerial,
		Lat:        91,
		Lon:        centerLon,
		Radius:     150,
	}
	assert.ErrorIs(t, validateZone(zone), ErrInvalidZone)
}
