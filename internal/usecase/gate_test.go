package usecase

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"data-chopper/internal/models/entities"
	"data-chopper/internal/pkg/metrics"
)

func TestIsAllowed(t *testing.T) {
	tests := []struct {
		env     string
		allowed []string
		want    bool
	}{
		{env: "PRODUCTION", allowed: []string{"dev", "staging"}, want: false},
		{env: "Staging", allowed: []string{"staging"}, want: true},
		{env: "dev", allowed: []string{"DEV"}, want: true},
		{env: "dev", allowed: nil, want: false},
		{env: "", allowed: []string{"dev"}, want: false},
		{env: "staging-2", allowed: []string{"staging"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAllowed(tt.env, tt.allowed))
		})
	}
}

func TestEnvironmentGate_Check(t *testing.T) {
	tests := []struct {
		name           string
		env            string
		wantErr        bool
		productionLike bool
		wantLevel      zapcore.Level
	}{
		{name: "allowed", env: "Local", wantErr: false},
		{name: "denied", env: "qa", wantErr: true, wantLevel: zapcore.WarnLevel},
		{name: "denied production", env: "Production", wantErr: true, productionLike: true, wantLevel: zapcore.ErrorLevel},
		{name: "denied prod", env: "PROD", wantErr: true, productionLike: true, wantLevel: zapcore.ErrorLevel},
		{name: "denied live", env: "live", wantErr: true, productionLike: true, wantLevel: zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.InfoLevel)
			m := metrics.NewNop()
			gate := NewEnvironmentGate(tt.env, []string{"dev", "staging", "local"}, m, zap.New(core))

			err := gate.Check()
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Zero(t, logs.Len())
				return
			}

			var denied *entities.EnvironmentDenied
			require.True(t, errors.As(err, &denied))
			assert.Equal(t, tt.env, denied.Environment)
			assert.Equal(t, tt.productionLike, denied.ProductionLike)

			entries := logs.All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.wantLevel, entries[0].Level)
		})
	}
}
