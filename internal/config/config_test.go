package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := &Config{DBDriver: "mysql"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported DB_DRIVER")
}

func TestValidateRequiresRegistryAddress(t *testing.T) {
	cfg := &Config{
		DBDriver:             DriverSQLite,
		SQLitePath:           "test.db",
		BlockchainServiceURL: "ws://localhost:8546",
		MinterURL:            "http://localhost:7070",
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HANDLE_REGISTRY_ADDRESS")
}

func TestValidateRequiresPostgresHost(t *testing.T) {
	cfg := &Config{DBDriver: DriverPostgres, PostgresDB: "handlemint"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_HOST")
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("HM_TEST_INT", "42")
	t.Setenv("HM_TEST_BOOL", "true")
	t.Setenv("HM_TEST_BAD_INT", "forty-two")
	t.Setenv("HM_TEST_BIG", "3")

	assert.Equal(t, 42, getEnvAsInt("HM_TEST_INT", 1))
	assert.Equal(t, 1, getEnvAsInt("HM_TEST_BAD_INT", 1))
	assert.True(t, getEnvAsBool("HM_TEST_BOOL", false))
	assert.Equal(t, "fallback", getEnv("HM_TEST_MISSING", "fallback"))
	assert.Equal(t, int64(3), getEnvAsBigInt("HM_TEST_BIG", nil).Int64())
}
