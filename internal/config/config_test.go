package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "kes", cfg.Stripe.Currency)
	assert.Equal(t, 10*time.Second, cfg.Mpesa.Timeout)
	assert.Equal(t, "tickets-issued", cfg.Kafka.Topic)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
server:
  port: "9090"
  admin_token: from-file
manual:
  paybill: "522533"
  confirm_token: file-token
mpesa:
  timeout: 3s
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("MANUAL_CONFIRM_TOKEN", "env-token")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "from-file", cfg.Server.AdminToken)
	assert.Equal(t, "522533", cfg.Manual.Paybill)
	assert.Equal(t, "env-token", cfg.Manual.ConfirmToken)
	assert.Equal(t, 3*time.Second, cfg.Mpesa.Timeout)
	// untouched sections keep their defaults
	assert.Equal(t, "localhost", cfg.Database.Host)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "t", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=t sslmode=disable", c.DSN())
}
