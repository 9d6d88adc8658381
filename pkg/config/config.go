// Package config loads the YAML session configuration.
package config

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hed1ad/pulseguard/pkg/aead"
	"github.com/hed1ad/pulseguard/pkg/detectors"
	"github.com/hed1ad/pulseguard/pkg/lifecycle"
	"github.com/hed1ad/pulseguard/pkg/pipeline"
)

// Source types.
const (
	SourceSerial = "serial"
	SourcePcap   = "pcap"
	SourceFile   = "file"
	SourceStdin  = "stdin"
)

type Config struct {
	Session   SessionConfig   `yaml:"session"`
	Crypto    CryptoConfig    `yaml:"crypto"`
	Frame     FrameConfig     `yaml:"frame"`
	Model     ModelConfig     `yaml:"model"`
	Source    SourceConfig    `yaml:"source"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

type SessionConfig struct {
	Warmup          time.Duration `yaml:"warmup"`
	Baseline        time.Duration `yaml:"baseline"`
	TickInterval    time.Duration `yaml:"tick_interval"`
	MaxLinesPerTick int           `yaml:"max_lines_per_tick"`
	History         int           `yaml:"history"`
}

// CryptoConfig holds the session key material as hex strings.
type CryptoConfig struct {
	Algorithm      string `yaml:"algorithm"`
	Key            string `yaml:"key"`
	Nonce          string `yaml:"nonce"`
	AssociatedData string `yaml:"associated_data"`
}

type FrameConfig struct {
	Marker string `yaml:"marker"`
	Tag    string `yaml:"tag"`
}

type ModelConfig struct {
	Contamination float64 `yaml:"contamination"`
	Seed          int64   `yaml:"seed"`
	Trees         int     `yaml:"trees"`
	SampleSize    int     `yaml:"sample_size"`
	MinSamples    int     `yaml:"min_samples"`
}

type SourceConfig struct {
	Type        string        `yaml:"type"`
	Path        string        `yaml:"path"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// Port filters pcap payloads by UDP/TCP port. Zero accepts any port.
	Port int `yaml:"port"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TelemetryConfig selects the display sinks. The websocket display is
// served on the metrics address.
type TelemetryConfig struct {
	Console   bool `yaml:"console"`
	Websocket bool `yaml:"websocket"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used for keys absent from the file.
func Default() Config {
	pc := pipeline.DefaultConfig()
	return Config{
		Session: SessionConfig{
			Warmup:          pc.Timing.Warmup,
			Baseline:        pc.Timing.Baseline,
			TickInterval:    pc.TickInterval,
			MaxLinesPerTick: pc.MaxLinesPerTick,
			History:         pc.HistoryCapacity,
		},
		Crypto: CryptoConfig{Algorithm: pc.Algorithm},
		Frame:  FrameConfig{Marker: pc.Marker, Tag: pc.Tag},
		Model: ModelConfig{
			Contamination: pc.Detector.Contamination,
			Seed:          pc.Detector.RandomSeed,
			Trees:         pc.Detector.Trees,
			SampleSize:    pc.Detector.SampleSize,
			MinSamples:    pc.Detector.MinSamples,
		},
		Source: SourceConfig{
			Type:        SourceSerial,
			Path:        "/dev/ttyACM0",
			Baud:        115200,
			ReadTimeout: 100 * time.Millisecond,
		},
		Metrics:   MetricsConfig{Enabled: true, Addr: ":9100"},
		Telemetry: TelemetryConfig{Console: true, Websocket: true},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes raw over Default, then validates. Unknown keys are errors.
func Parse(raw []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Session.TickInterval == 0 {
		c.Session.TickInterval = d.Session.TickInterval
	}
	if c.Session.MaxLinesPerTick == 0 {
		c.Session.MaxLinesPerTick = d.Session.MaxLinesPerTick
	}
	if c.Session.History == 0 {
		c.Session.History = d.Session.History
	}
	if c.Crypto.Algorithm == "" {
		c.Crypto.Algorithm = d.Crypto.Algorithm
	}
	if c.Frame.Marker == "" {
		c.Frame.Marker = d.Frame.Marker
	}
	if c.Frame.Tag == "" {
		c.Frame.Tag = d.Frame.Tag
	}
	if c.Model.Trees == 0 {
		c.Model.Trees = d.Model.Trees
	}
	if c.Model.SampleSize == 0 {
		c.Model.SampleSize = d.Model.SampleSize
	}
	if c.Model.MinSamples == 0 {
		c.Model.MinSamples = d.Model.MinSamples
	}
	if c.Source.Type == "" {
		c.Source.Type = d.Source.Type
	}
	if c.Source.Baud == 0 {
		c.Source.Baud = d.Source.Baud
	}
	if c.Source.ReadTimeout == 0 {
		c.Source.ReadTimeout = d.Source.ReadTimeout
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = d.Metrics.Addr
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// Validate checks the whole configuration, including key and nonce sizes.
func (c *Config) Validate() error {
	if _, err := c.Pipeline(); err != nil {
		return err
	}

	switch c.Source.Type {
	case SourceSerial, SourcePcap, SourceFile:
		if c.Source.Path == "" {
			return fmt.Errorf("source.path is required for %s sources", c.Source.Type)
		}
	case SourceStdin:
	default:
		return fmt.Errorf("source.type %q is not one of serial, pcap, file, stdin", c.Source.Type)
	}
	if c.Source.Baud < 0 {
		return fmt.Errorf("source.baud must be positive")
	}
	if c.Source.Port < 0 || c.Source.Port > 65535 {
		return fmt.Errorf("source.port %d out of range", c.Source.Port)
	}
	if (c.Metrics.Enabled || c.Telemetry.Websocket) && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required")
	}
	if _, err := c.Log.handler(io.Discard); err != nil {
		return err
	}
	return nil
}

// Pipeline builds the immutable pipeline configuration.
func (c *Config) Pipeline() (pipeline.Config, error) {
	key, err := decodeHex("crypto.key", c.Crypto.Key)
	if err != nil {
		return pipeline.Config{}, err
	}
	nonce, err := decodeHex("crypto.nonce", c.Crypto.Nonce)
	if err != nil {
		return pipeline.Config{}, err
	}
	ad, err := decodeHex("crypto.associated_data", c.Crypto.AssociatedData)
	if err != nil {
		return pipeline.Config{}, err
	}

	pc := pipeline.Config{
		Timing: lifecycle.Timing{
			Warmup:   c.Session.Warmup,
			Baseline: c.Session.Baseline,
		},
		TickInterval:    c.Session.TickInterval,
		MaxLinesPerTick: c.Session.MaxLinesPerTick,
		HistoryCapacity: c.Session.History,
		Marker:          c.Frame.Marker,
		Tag:             c.Frame.Tag,
		Algorithm:       c.Crypto.Algorithm,
		Key:             key,
		Nonce:           nonce,
		AdditionalData:  ad,
		Detector: detectors.Config{
			Contamination: c.Model.Contamination,
			RandomSeed:    c.Model.Seed,
			Trees:         c.Model.Trees,
			SampleSize:    c.Model.SampleSize,
			MinSamples:    c.Model.MinSamples,
		},
	}
	if err := pc.Validate(); err != nil {
		return pipeline.Config{}, err
	}

	// Catch key and nonce sizes here rather than when the session starts.
	cipher, err := aead.New(pc.Algorithm, pc.Key)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("crypto: %w", err)
	}
	if _, err := aead.NewAuthenticator(cipher, pc.Nonce, pc.AdditionalData); err != nil {
		return pipeline.Config{}, fmt.Errorf("crypto: %w", err)
	}
	return pc, nil
}

func decodeHex(field, s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return b, nil
}

// Logger builds the process logger writing to w.
func (l LogConfig) Logger(w io.Writer) (*slog.Logger, error) {
	h, err := l.handler(w)
	if err != nil {
		return nil, err
	}
	return slog.New(h), nil
}

func (l LogConfig) handler(w io.Writer) (slog.Handler, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(l.Format) {
	case "text", "":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("log.format %q is not text or json", l.Format)
	}
}
