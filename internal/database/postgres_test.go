package database

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestGetConfigDefaults(t *testing.T) {
	cfg := GetConfig()

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, "5432", cfg.Port)
	assert.Equal(t, "nexus", cfg.Name)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, 5, cfg.MaxIdleConns)
}

func TestGetConfigOverrides(t *testing.T) {
	viper.Set("database.name", "nexus_test")
	defer viper.Set("database.name", "nexus")

	cfg := GetConfig()
	assert.Equal(t, "nexus_test", cfg.Name)
}
