package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/brandcast")
	t.Setenv("SECRET_KEY", "jwt-secret")
	t.Setenv("CRON_SECRET", "cron-secret")
	t.Setenv("TOKEN_ENCRYPTION_KEY", strings.Repeat("ab", 32))
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, TriggerHTTP, cfg.Scheduler.Trigger)
	assert.Equal(t, 8, cfg.Scheduler.Workers)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.AdapterTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Credentials.RefreshBuffer)
	assert.Equal(t, 30*time.Minute, cfg.Credentials.RefreshWindow)
	assert.Equal(t, 0, cfg.Scheduler.RetryTransientMaxAttempts)
	assert.False(t, cfg.R2.Enabled())

	key, err := cfg.Credentials.Key()
	require.NoError(t, err)
	assert.Len(t, key, 32)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad driver", map[string]string{"DATABASE_DRIVER": "mysql"}, "DATABASE_DRIVER"},
		{"short key", map[string]string{"TOKEN_ENCRYPTION_KEY": "abcd"}, "TOKEN_ENCRYPTION_KEY"},
		{"bad trigger", map[string]string{"TRIGGER_MODE": "manual"}, "TRIGGER_MODE"},
		{"asynq without redis", map[string]string{"TRIGGER_MODE": "asynq"}, "REDIS_ENABLED"},
		{"http without secret", map[string]string{"CRON_SECRET": ""}, "CRON_SECRET"},
		{"lease shorter than timeout", map[string]string{"CLAIM_LEASE": "10s"}, "CLAIM_LEASE"},
		{"retries without backoff", map[string]string{
			"RETRY_TRANSIENT_MAX_ATTEMPTS": "3", "RETRY_TRANSIENT_BACKOFF": "0s"}, "RETRY_TRANSIENT_BACKOFF"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestR2Endpoint(t *testing.T) {
	r := R2{AccountID: "acc", BucketName: "media"}
	assert.True(t, r.Enabled())
	assert.Equal(t, "https://acc.r2.cloudflarestorage.com", r.EndpointURL())

	r.Endpoint = "http://localhost:9000"
	assert.Equal(t, "http://localhost:9000", r.EndpointURL())
}
