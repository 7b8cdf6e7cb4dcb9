package models

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestValidAlertSeverity(t *testing.T) {
	for _, sev := range []string{AlertSeverityCritical, AlertSeverityHigh, AlertSeverityMedium, AlertSeverityLow} {
		assert.True(t, ValidAlertSeverity(sev), sev)
	}
	assert.False(t, ValidAlertSeverity("URGENT"))
	assert.False(t, ValidAlertSeverity(""))
	assert.False(t, ValidAlertSeverity("critical"))
}

func TestResolutionSLA(t *testing.T) {
	assert.Equal(t, time.Hour, ResolutionSLA(AlertSeverityCritical))
	assert.Equal(t, 4*time.Hour, ResolutionSLA(AlertSeverityHigh))
	assert.Equal(t, 24*time.Hour, ResolutionSLA(AlertSeverityMedium))
	assert.Equal(t, 72*time.Hour, ResolutionSLA(AlertSeverityLow))
	// Unknown severities get the most lenient window.
	assert.Equal(t, 72*time.Hour, ResolutionSLA("unknown"))
}

func TestThresholdDedupeKey(t *testing.T) {
	sessionID := uuid.New()
	at := time.Now()

	key := ThresholdDedupeKey(sessionID, "work_orders", ThresholdErrorRate, at)
	assert.Equal(t, fmt.Sprintf("%s|work_orders|error_rate|%d", sessionID, at.UnixNano()), key)

	// Identical inputs produce identical keys; any differing input changes it.
	assert.Equal(t, key, ThresholdDedupeKey(sessionID, "work_orders", ThresholdErrorRate, at))
	assert.NotEqual(t, key, ThresholdDedupeKey(sessionID, "", ThresholdErrorRate, at))
	assert.NotEqual(t, key, ThresholdDedupeKey(sessionID, "work_orders", ThresholdQualityDrop, at))
	assert.NotEqual(t, key, ThresholdDedupeKey(sessionID, "work_orders", ThresholdErrorRate, at.Add(time.Nanosecond)))
}
