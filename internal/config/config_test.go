package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAppJSON(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFileFromJSON(t *testing.T) {
	path := writeAppJSON(t, `{
		"postgresql": {"host": "db.local", "user": "tw", "password": "pw", "db": "twstock"},
		"redis": {"addr": "redis.local:6379"},
		"telegram": {"token": "tok", "allowed": {"42": "someone"}},
		"grpc_server": {"port": 50051},
		"log_level": "debug"
	}`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "db.local", cfg.Postgres.Host)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "redis.local:6379", cfg.Redis.Addr)
	assert.Equal(t, "someone", cfg.Telegram.Allowed[42])
	assert.Equal(t, 50051, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadFileEnvOverlayWins(t *testing.T) {
	path := writeAppJSON(t, `{
		"postgresql": {"host": "db.local", "user": "tw", "password": "pw", "db": "twstock"}
	}`)
	t.Setenv("POSTGRESQL_HOST", "other.host")
	t.Setenv("POSTGRESQL_PORT", "5433")
	t.Setenv("TELEGRAM_ALLOWED", `{"7": "seven"}`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "other.host", cfg.Postgres.Host)
	assert.Equal(t, 5433, cfg.Postgres.Port)
	assert.Equal(t, "seven", cfg.Telegram.Allowed[7])
}

func TestLoadFileMissingRequiredKey(t *testing.T) {
	path := writeAppJSON(t, `{
		"postgresql": {"host": "db.local", "user": "tw", "db": "twstock"}
	}`)

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRESQL_PASSWORD")
}

func TestLoadFileEnvOnly(t *testing.T) {
	t.Setenv("POSTGRESQL_HOST", "env.host")
	t.Setenv("POSTGRESQL_USER", "tw")
	t.Setenv("POSTGRESQL_PASSWORD", "pw")
	t.Setenv("POSTGRESQL_DB", "twstock")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, "env.host", cfg.Postgres.Host)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestDSN(t *testing.T) {
	cfg := &Config{Postgres: Postgres{
		Host: "h", Port: 5432, User: "u", Password: "p", DB: "d",
	}}
	assert.Equal(t,
		"host=h port=5432 user=u password=p dbname=d application_name=twstock",
		cfg.DSN())
}
