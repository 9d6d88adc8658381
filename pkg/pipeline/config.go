package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/hed1ad/pulseguard/pkg/aead"
	"github.com/hed1ad/pulseguard/pkg/detectors"
	"github.com/hed1ad/pulseguard/pkg/frame"
	"github.com/hed1ad/pulseguard/pkg/history"
	"github.com/hed1ad/pulseguard/pkg/lifecycle"
)

// Config is the session configuration. It is built once at startup and
// copied by New; later changes to the caller's value have no effect.
type Config struct {
	Timing          lifecycle.Timing
	TickInterval    time.Duration
	MaxLinesPerTick int
	HistoryCapacity int

	Marker string
	Tag    string

	Algorithm      string
	Key            []byte
	Nonce          []byte
	AdditionalData []byte

	Detector detectors.Config
}

// DefaultConfig returns the stock timings and model settings. Key and
// Nonce are left empty and must be supplied.
func DefaultConfig() Config {
	return Config{
		Timing: lifecycle.Timing{
			Warmup:   20 * time.Second,
			Baseline: 30 * time.Second,
		},
		TickInterval:    30 * time.Millisecond,
		MaxLinesPerTick: 64,
		HistoryCapacity: history.DefaultCapacity,
		Marker:          frame.DefaultMarker,
		Tag:             frame.DefaultTag,
		Algorithm:       aead.Ascon128,
		Detector:        detectors.DefaultConfig(),
	}
}

// Validate reports the first problem with c.
func (c *Config) Validate() error {
	if c.Timing.Warmup < 0 || c.Timing.Baseline < 0 {
		return errors.New("phase durations must not be negative")
	}
	if c.TickInterval <= 0 {
		return errors.New("tick interval must be positive")
	}
	if c.MaxLinesPerTick <= 0 {
		return errors.New("max lines per tick must be positive")
	}
	if c.HistoryCapacity <= 0 {
		return errors.New("history capacity must be positive")
	}
	if c.Marker == "" || c.Tag == "" {
		return errors.New("frame marker and value tag are required")
	}
	if len(c.Key) == 0 {
		return errors.New("key is required")
	}
	if len(c.Nonce) == 0 {
		return errors.New("nonce is required")
	}
	if err := c.Detector.Validate(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	return nil
}

func (c Config) clone() Config {
	c.Key = append([]byte(nil), c.Key...)
	c.Nonce = append([]byte(nil), c.Nonce...)
	c.AdditionalData = append([]byte(nil), c.AdditionalData...)
	return c
}
