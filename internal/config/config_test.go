package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, StoreSQLite, cfg.Store)
	assert.Equal(t, "guardian.db", cfg.DBPath)
	assert.Equal(t, "localhost:8080", cfg.Addr)
	assert.Equal(t, "wss://broker.hivemq.com:8884/mqtt", cfg.MQTTBroker)
	assert.False(t, cfg.MQTTEnabled)
	assert.Equal(t, 5, cfg.SyncRecent)
	assert.Equal(t, 5*time.Second, cfg.SyncRetryDelay)
	assert.Equal(t, 3, cfg.SyncMaxAttempts)
	assert.Equal(t, "@every 5m", cfg.SyncSchedule)
	assert.Equal(t, 180, cfg.QRSize)
	assert.False(t, cfg.DexcomEnabled())
}

func TestOverrides(t *testing.T) {
	t.Setenv("GUARDIAN_STORE", "bolt")
	t.Setenv("GUARDIAN_TZ", "Asia/Taipei")
	t.Setenv("SYNC_RETRY_DELAY", "250ms")
	t.Setenv("MQTT_ENABLED", "true")
	t.Setenv("DEXCOM_USERNAME", "jane")
	t.Setenv("DEXCOM_PASSWORD", "secret")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, StoreBolt, cfg.Store)
	assert.Equal(t, 250*time.Millisecond, cfg.SyncRetryDelay)
	assert.True(t, cfg.MQTTEnabled)
	assert.True(t, cfg.DexcomEnabled())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Taipei", loc.String())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown store", map[string]string{"GUARDIAN_STORE": "mongo"}},
		{"zero recent", map[string]string{"SYNC_RECENT": "0"}},
		{"zero attempts", map[string]string{"SYNC_MAX_ATTEMPTS": "0"}},
		{"bad zone", map[string]string{"GUARDIAN_TZ": "Mars/Olympus"}},
		{"bad duration", map[string]string{"SYNC_RETRY_DELAY": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := New()
			assert.Error(t, err)
		})
	}
}
