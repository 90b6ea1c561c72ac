package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.EqualValues(t, 10000, cfg.MaxConnections)
	assert.Equal(t, 10*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 3*time.Second, cfg.SnapshotTimeout)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MAX_CONNECTIONS", "250")
	t.Setenv("HANDSHAKE_TIMEOUT", "5s")
	t.Setenv("WS_AUTH_SECRET", "0123456789abcdef")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.EqualValues(t, 250, cfg.MaxConnections)
	assert.Equal(t, 5*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, "0123456789abcdef", cfg.WSAuthSecret)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"zero max connections", "MAX_CONNECTIONS", "0"},
		{"negative rate", "CONNECTIONS_PER_SECOND", "-1"},
		{"zero burst", "CONNECTION_BURST", "0"},
		{"zero handshake timeout", "HANDSHAKE_TIMEOUT", "0s"},
		{"short auth secret", "WS_AUTH_SECRET", "too-short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
