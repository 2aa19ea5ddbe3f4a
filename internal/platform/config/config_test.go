package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestDefaultsWithoutEnvironment(t *testing.T) {
	cfg, err := fromLookup(lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.True(t, cfg.AutoApprove)
	assert.True(t, cfg.AutoCreateSubject)
	assert.Equal(t, 24*time.Hour, cfg.Transfer.TTL)
	assert.Equal(t, 5, cfg.Transfer.MaxRetries)
	assert.Equal(t, 15*time.Minute, cfg.Transfer.ForwardTimeout)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.BackoffBase)
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.BackoffCap)
	assert.Equal(t, 8, cfg.Scheduler.Concurrency)
	assert.Equal(t, 600, cfg.RateLimit.Requests)
	assert.Empty(t, cfg.Database.URL, "memory stores by default")
}

func TestOverrides(t *testing.T) {
	cfg, err := fromLookup(lookupFrom(map[string]string{
		"HIE_ADDR":                 ":9090",
		"DATABASE_URL":             "postgres://hie@localhost/hie",
		"HIE_AUTO_APPROVE_CONSENT": "false",
		"HIE_MAX_RETRIES":          "3",
		"HIE_TRANSFER_TTL":         "2h",
		"HIE_ENTITY_ENDPOINTS":     "hip-1=http://hip:9000",
		"LOG_LEVEL":                " debug ",
		"HIE_RATE_LIMIT":           "0",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "postgres://hie@localhost/hie", cfg.Database.URL)
	assert.False(t, cfg.AutoApprove)
	assert.Equal(t, 3, cfg.Transfer.MaxRetries)
	assert.Equal(t, 2*time.Hour, cfg.Transfer.TTL)
	assert.Equal(t, "hip-1=http://hip:9000", cfg.EntityEndpoints)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Zero(t, cfg.RateLimit.Requests, "zero disables limiting")
}

func TestMalformedValuesAreErrors(t *testing.T) {
	cases := map[string]map[string]string{
		"bad duration":              {"HIE_TRANSFER_TTL": "tomorrow"},
		"bad int":                   {"HIE_MAX_RETRIES": "five"},
		"bad bool":                  {"HIE_AUTO_CREATE_SUBJECT": "maybe"},
		"negative retries":          {"HIE_MAX_RETRIES": "-1"},
		"cap below base":            {"HIE_BACKOFF_BASE": "1m", "HIE_BACKOFF_CAP": "30s"},
		"short payload key":         {"HIE_PAYLOAD_KEY": "short"},
		"negative rate limit":       {"HIE_RATE_LIMIT": "-5"},
		"zero rate window":          {"HIE_RATE_WINDOW": "0s"},
		"dev secrets in production": {"ENVIRONMENT": "production"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := fromLookup(lookupFrom(env))
			assert.Error(t, err)
		})
	}
}
