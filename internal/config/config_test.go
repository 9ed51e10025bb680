package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_PORT", "9090")
	t.Setenv("BACKEND_URL", "")
	t.Setenv("VARIANT_SETTLE_DELAY", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.APIPort)
	require.Equal(t, "http://localhost:9090", cfg.BackendURL)
	require.Equal(t, 100*time.Millisecond, cfg.VariantSettleDelay)
	require.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
}

func TestDurationAndListParsing(t *testing.T) {
	t.Setenv("BLOCKED_RESET_DELAY", "2500")
	t.Setenv("WIDGET_SESSION_TTL", "10m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("WIDGET_SYNC_CART", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 2500*time.Millisecond, cfg.BlockedResetDelay)
	require.Equal(t, 10*time.Minute, cfg.WidgetSessionTTL)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokerList())
	require.True(t, cfg.SyncCart)
}
