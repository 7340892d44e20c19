package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/svm/internal/app"
)

// Config holds the scan timing parameters.
type Config struct {
	// ScanPeriod is the time between the starts of consecutive cycles.
	ScanPeriod time.Duration `yaml:"scanPeriod"`

	// GuardTime is the slack left before the deadline at which service
	// work stops for the cycle.
	GuardTime time.Duration `yaml:"guardTime"`

	// TimeToSteadyState is the warm-up duration before IsSteadyState
	// reports true.
	TimeToSteadyState time.Duration `yaml:"timeToSteadyState"`

	// HibernationResetsSteadyState restarts the warm-up after every
	// hibernate exit.
	HibernationResetsSteadyState bool `yaml:"hibernationResetsSteadyState"`
}

// DefaultConfig returns the default timing: 50ms period, 5ms guard.
func DefaultConfig() Config {
	return Config{
		ScanPeriod: 50 * time.Millisecond,
		GuardTime:  5 * time.Millisecond,
	}
}

// Validate checks the timing parameters.
func (c Config) Validate() error {
	if c.ScanPeriod <= 0 {
		return fmt.Errorf("scanPeriod must be positive, got %s", c.ScanPeriod)
	}
	if c.GuardTime < 0 || c.GuardTime >= c.ScanPeriod {
		return fmt.Errorf("guardTime must be in [0, scanPeriod), got %s", c.GuardTime)
	}
	if c.TimeToSteadyState < 0 {
		return fmt.Errorf("timeToSteadyState must not be negative, got %s", c.TimeToSteadyState)
	}
	return nil
}

// Root component config properties read by ConfigFromApp. Durations are
// integer milliseconds.
const (
	propScanPeriod   = "scanPeriod"
	propGuardTime    = "guardTime"
	propSteadyState  = "timeToSteadyState"
	propHibernResets = "hibernationResetsSteadyState"
)

// ConfigFromApp overlays the timing properties of the app's root component
// on the defaults. Properties the root type does not declare keep their
// default.
func ConfigFromApp(a *app.App) Config {
	cfg := DefaultConfig()
	root := a.Root()
	ms := func(name string, dst *time.Duration) {
		if s, ok := root.Slot(name); ok {
			*dst = time.Duration(root.GetInt(s.ID)) * time.Millisecond
		}
	}
	ms(propScanPeriod, &cfg.ScanPeriod)
	ms(propGuardTime, &cfg.GuardTime)
	ms(propSteadyState, &cfg.TimeToSteadyState)
	if s, ok := root.Slot(propHibernResets); ok {
		cfg.HibernationResetsSteadyState = root.GetBool(s.ID)
	}
	return cfg
}

// DecodeConfig reads a YAML runtime config on top of base. Unknown keys are
// rejected. Durations use Go syntax ("50ms").
func DecodeConfig(r io.Reader, base Config) (Config, error) {
	cfg := base
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode runtime config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("runtime config: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads a YAML runtime config file on top of base.
func LoadConfig(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read runtime config: %w", err)
	}
	return DecodeConfig(bytes.NewReader(data), base)
}
