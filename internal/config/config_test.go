package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{"JWT_SECRET": "s3cret"}))
	require.NoError(t, err)

	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, "bidding-live", cfg.JWTIssuer)
	require.Empty(t, cfg.DatabaseURL)
	require.Empty(t, cfg.RedisURL)
	require.Empty(t, cfg.RabbitMQURL)
	require.Equal(t, "auction.events", cfg.SaleExchange)
	require.Equal(t, 5*time.Second, cfg.SweepInterval)
	require.Equal(t, 32, cfg.WSSendBuffer)
	require.Equal(t, 30*time.Second, cfg.WSPingInterval)
	require.Equal(t, 10*time.Second, cfg.WSWriteTimeout)
	require.Equal(t, 3*time.Second, cfg.DBLockTimeout)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"JWT_SECRET":     "s3cret",
		"PORT":           "9090",
		"DATABASE_URL":   "postgres://localhost/bids",
		"SWEEP_INTERVAL": "250ms",
		"WS_SEND_BUFFER": "8",
		"LOG_LEVEL":      "debug",
	}))
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.Port)
	require.Equal(t, "postgres://localhost/bids", cfg.DatabaseURL)
	require.Equal(t, 250*time.Millisecond, cfg.SweepInterval)
	require.Equal(t, 8, cfg.WSSendBuffer)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing_secret", env: map[string]string{}},
		{name: "bad_duration", env: map[string]string{"JWT_SECRET": "s", "SWEEP_INTERVAL": "often"}},
		{name: "zero_interval", env: map[string]string{"JWT_SECRET": "s", "SWEEP_INTERVAL": "0s"}},
		{name: "bad_buffer", env: map[string]string{"JWT_SECRET": "s", "WS_SEND_BUFFER": "many"}},
		{name: "negative_buffer", env: map[string]string{"JWT_SECRET": "s", "WS_SEND_BUFFER": "-1"}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := FromEnv(env(tc.env))
			require.Error(t, err)
		})
	}
}
