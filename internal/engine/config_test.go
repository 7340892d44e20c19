package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/svm/internal/app"
	"github.com/roach88/svm/internal/kits"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"default", DefaultConfig(), ""},
		{"zero period", Config{}, "scanPeriod"},
		{"guard equals period", Config{ScanPeriod: 5 * time.Millisecond, GuardTime: 5 * time.Millisecond}, "guardTime"},
		{"negative guard", Config{ScanPeriod: 5 * time.Millisecond, GuardTime: -1}, "guardTime"},
		{"negative steady", Config{ScanPeriod: 5 * time.Millisecond, TimeToSteadyState: -1}, "timeToSteadyState"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigFromApp(t *testing.T) {
	a, err := app.New(kits.MustCatalog(), app.WithSeed(1))
	require.NoError(t, err)
	root := a.Root()
	set := func(name string, v int32) {
		s, ok := root.Slot(name)
		require.True(t, ok)
		root.SetInt(s.ID, v)
	}
	set("scanPeriod", 100)
	set("guardTime", 10)
	set("timeToSteadyState", 2000)
	s, _ := root.Slot("hibernationResetsSteadyState")
	root.SetBool(s.ID, true)

	cfg := ConfigFromApp(a)

	assert.Equal(t, Config{
		ScanPeriod:                   100 * time.Millisecond,
		GuardTime:                    10 * time.Millisecond,
		TimeToSteadyState:            2 * time.Second,
		HibernationResetsSteadyState: true,
	}, cfg)
}

func TestDecodeConfig(t *testing.T) {
	cfg, err := DecodeConfig(strings.NewReader("scanPeriod: 20ms\nguardTime: 2ms\n"), DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, 20*time.Millisecond, cfg.ScanPeriod)
	assert.Equal(t, 2*time.Millisecond, cfg.GuardTime)
	assert.False(t, cfg.HibernationResetsSteadyState)
}

func TestDecodeConfig_Empty(t *testing.T) {
	cfg, err := DecodeConfig(strings.NewReader(""), DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestDecodeConfig_UnknownField(t *testing.T) {
	_, err := DecodeConfig(strings.NewReader("scanPeriodMs: 20\n"), DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scanPeriodMs")
}

func TestDecodeConfig_Invalid(t *testing.T) {
	_, err := DecodeConfig(strings.NewReader("guardTime: 1s\n"), DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "guardTime")
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeToSteadyState: 1s\nhibernationResetsSteadyState: true\n"), 0o644))

	cfg, err := LoadConfig(path, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.TimeToSteadyState)
	assert.True(t, cfg.HibernationResetsSteadyState)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), DefaultConfig())
	assert.Error(t, err)
}
