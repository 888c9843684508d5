package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"data-chopper/internal/app"
	"data-chopper/internal/pkg/config"
)

func setChopEnv(t *testing.T, environment string) {
	t.Helper()
	t.Setenv("APP_ENV", environment)
	t.Setenv("STORE_DRIVER", config.StoreDriverPostgres)
	t.Setenv("CHOP_ALLOWED_ENVIRONMENTS", "dev,staging,local")
	t.Setenv("CHOP_SETTINGS_FILE", "")
	t.Setenv("LOG_LEVEL", config.LogLevelNone)
}

// stubApp подменяет сборку приложения и считает ее вызовы
func stubApp(t *testing.T, result error) *int {
	t.Helper()
	calls := 0
	original := newApp
	newApp = func(context.Context, *config.Config, prometheus.Registerer, *zap.Logger) (*app.App, error) {
		calls++
		return nil, result
	}
	t.Cleanup(func() { newApp = original })
	return &calls
}

func TestRunEntries_EnvironmentLockBeforeDatabase(t *testing.T) {
	setChopEnv(t, "production")
	calls := stubApp(t, errors.New("database must not be touched"))

	var stderr bytes.Buffer
	cmd := newEntriesCmd()
	cmd.SetErr(&stderr)

	err := runEntries(cmd, &entriesOptions{percent: 50})
	assert.ErrorIs(t, err, errReported)
	assert.Zero(t, *calls, "no connection or migration in a locked environment")

	out := stderr.String()
	assert.Contains(t, out, "ENVIRONMENT LOCK")
	assert.Contains(t, out, "Current environment: 'production'")
	assert.Contains(t, out, "DANGER")
}

func TestRunEntries_AllowedEnvironmentBuildsApp(t *testing.T) {
	setChopEnv(t, "staging")
	errConnect := errors.New("connect to database: refused")
	calls := stubApp(t, errConnect)

	var stderr bytes.Buffer
	cmd := newEntriesCmd()
	cmd.SetErr(&stderr)

	err := runEntries(cmd, &entriesOptions{percent: 50})
	assert.ErrorIs(t, err, errConnect)
	assert.Equal(t, 1, *calls)
	assert.Empty(t, stderr.String())
}

func TestCheckEnvironmentLock(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		wantErr     bool
		wantDanger  bool
	}{
		{name: "allowed", environment: "dev"},
		{name: "not listed", environment: "qa", wantErr: true},
		{name: "production like", environment: "prod", wantErr: true, wantDanger: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Environment: tt.environment, Settings: config.DefaultSettings()}

			var out bytes.Buffer
			err := checkEnvironmentLock(cfg, zaptest.NewLogger(t), &out)

			if !tt.wantErr {
				require.NoError(t, err)
				assert.Empty(t, out.String())
				return
			}
			assert.ErrorIs(t, err, errReported)
			assert.Contains(t, out.String(), "ENVIRONMENT LOCK")
			assert.Equal(t, tt.wantDanger, bytes.Contains(out.Bytes(), []byte("DANGER")))
		})
	}
}
