package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir into an empty dir so no stray .env or config/ is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	t.Setenv("APP_ENV", "test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.Equal(t, 20, cfg.RateLimit)
	assert.Equal(t, 10*time.Second, cfg.RateLimitWindow)
	assert.Equal(t, 60*time.Second, cfg.WSPongTimeout)
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, 20, cfg.DBMaxConnections())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := isolate(t)
	t.Setenv("APP_ENV", "test")
	path := filepath.Join(dir, "chat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_addr: \":9000\"\nchat_history_limit: 30\nchat_rate_limit: 5\n"), 0o600))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("CHAT_RATE_LIMIT", "7")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://shop.example, https://admin.shop.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ServerAddr)
	assert.Equal(t, 30, cfg.HistoryLimit)
	assert.Equal(t, 7, cfg.RateLimit)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"https://shop.example", "https://admin.shop.example"}, cfg.AllowedOrigins())
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	t.Setenv("APP_ENV", "test")
	// godotenv never overrides a variable that exists, even if empty.
	t.Setenv("JWT_SECRET", "")
	require.NoError(t, os.Unsetenv("JWT_SECRET"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("JWT_SECRET=from-dotenv\n"), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.JWTSecret)
}

func TestLoad_ProductionGuard(t *testing.T) {
	isolate(t)
	t.Setenv("APP_ENV", "production")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("DATABASE_URL", "postgres://chat@db:5432/chat")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "prod-secret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Production)
}
