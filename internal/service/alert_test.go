package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"geosync/internal/model"
)

func ruleWithConditions(alertType model.AlertType, conditions string) *model.AlertRule {
	return &model.AlertRule{
		Type:       alertType,
		Enabled:    true,
		Conditions: json.RawMessage(conditions),
	}
}

func TestBatteryThreshold(t *testing.T) {
	cases := []struct {
		name       string
		conditions string
		want       int
	}{
		{"configured", `{"battery_below": 35}`, 35},
		{"empty conditions", ``, defaultBatteryThreshold},
		{"empty object", `{}`, defaultBatteryThreshold},
		{"malformed json", `{battery_below: 35`, defaultBatteryThreshold},
		{"non-positive value", `{"battery_below": -5}`, defaultBatteryThreshold},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule := ruleWithConditions(model.AlertTypeLowBattery, tc.conditions)
			assert.Equal(t, tc.want, batteryThreshold(rule))
		})
	}
}

func TestOfflineThreshold(t *testing.T) {
	cases := []struct {
		name       string
		conditions string
		want       time.Duration
	}{
		{"configured", `{"offline_minutes": 30}`, 30 * time.Minute},
		{"empty conditions", ``, defaultOfflineMinutes * time.Minute},
		{"malformed json", `not json`, defaultOfflineMinutes * time.Minute},
		{"non-positive value", `{"offline_minutes": 0}`, defaultOfflineMinutes * time.Minute},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule := ruleWithConditions(model.AlertTypeOffline, tc.conditions)
			assert.Equal(t, tc.want, offlineThreshold(rule))
		})
	}
}
