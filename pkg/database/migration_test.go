package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLatestVersion(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"000001_init.up.sql",
		"000001_init.down.sql",
		"000003_connector_logs.up.sql",
		"000002_finance.up.sql",
		"README.md",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o600))
	}

	latest, err := getLatestVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, latest)
}

func TestGetLatestVersion_Empty(t *testing.T) {
	_, err := getLatestVersion(t.TempDir())
	assert.Error(t, err)
}

func TestConfigDSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 5432, User: "fern", Password: "secret", Name: "fern"}
	assert.Equal(t, "host=db port=5432 user=fern password=secret dbname=fern sslmode=disable", cfg.DSN())

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.DSN(), "sslmode=require")
}

func TestJSONB_RoundTrip(t *testing.T) {
	value := NewJSONB(map[string]string{"Accept": "application/json"})

	raw, err := value.Value()
	require.NoError(t, err)

	var scanned JSONB[map[string]string]
	require.NoError(t, scanned.Scan(raw))
	assert.Equal(t, "application/json", scanned.GetValue()["Accept"])

	require.NoError(t, scanned.Scan(nil))
	assert.Nil(t, scanned.Data)

	assert.Error(t, scanned.Scan(42))
}
