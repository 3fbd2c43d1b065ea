package main

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagDefaults(t *testing.T) {
	cfg := &Config{}
	newCmd(cfg)

	require.NoError(t, cfg.validate())
	assert.Equal(t, 8080, cfg.port)
	assert.Empty(t, cfg.database)
	assert.True(t, cfg.defaultBalance.Equal(decimal.NewFromInt(1500)))
	assert.Equal(t, "http", cfg.scheme())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("BANKBOX_PORT", "9090")
	t.Setenv("BANKBOX_STARTING_BALANCE", "2500.50")
	t.Setenv("BANKBOX_DATABASE", "/tmp/bankbox.db")

	cfg := &Config{}
	newCmd(cfg)

	require.NoError(t, cfg.validate())
	assert.Equal(t, 9090, cfg.port)
	assert.Equal(t, "/tmp/bankbox.db", cfg.database)
	assert.True(t, cfg.defaultBalance.Equal(decimal.RequireFromString("2500.5")))
}

func TestFlagsBeatEnvironment(t *testing.T) {
	t.Setenv("BANKBOX_PORT", "9090")

	cfg := &Config{}
	cmd := newCmd(cfg)
	require.NoError(t, cmd.ParseFlags([]string{"--port", "7070"}))

	assert.Equal(t, 7070, cfg.port)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{port: 8080, eventBuffer: 1, clientBuffer: 1, startingBalance: "1500"}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port too low", func(c *Config) { c.port = 0 }},
		{"port too high", func(c *Config) { c.port = 65536 }},
		{"cert without key", func(c *Config) { c.tlsCert = "cert.pem" }},
		{"key without cert", func(c *Config) { c.tlsKey = "key.pem" }},
		{"empty event buffer", func(c *Config) { c.eventBuffer = 0 }},
		{"empty client buffer", func(c *Config) { c.clientBuffer = 0 }},
		{"negative starting balance", func(c *Config) { c.startingBalance = "-1" }},
		{"garbage starting balance", func(c *Config) { c.startingBalance = "lots" }},
		{"tiny exponent starting balance", func(c *Config) { c.startingBalance = "1e-8000000" }},
		{"sub-cent starting balance", func(c *Config) { c.startingBalance = "0.00001" }},
	}

	require.NoError(t, valid().validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.validate())
		})
	}
}

func TestHumanReadableSize(t *testing.T) {
	assert.Equal(t, "999 B", humanReadableSize(999))
	assert.Equal(t, "1.5 kB", humanReadableSize(1500))
	assert.Equal(t, "2.0 MB", humanReadableSize(2_000_000))
}
