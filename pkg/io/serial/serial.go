// Package serial opens the sensor's USB serial port as a line source.
package serial

import (
	"fmt"
	"time"

	"go.bug.st/serial"

	pio "github.com/hed1ad/pulseguard/pkg/io"
)

// Defaults match the sensor firmware.
const (
	DefaultBaud        = 115200
	DefaultReadTimeout = 100 * time.Millisecond
)

// Config describes the port to open.
type Config struct {
	Port        string
	Baud        int
	ReadTimeout time.Duration
}

func (c Config) mode() *serial.Mode {
	baud := c.Baud
	if baud <= 0 {
		baud = DefaultBaud
	}
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// Open opens the port 8N1. Reads time out so a quiet sensor does not keep
// the scanner from noticing cancellation.
func Open(cfg Config) (*pio.ReaderSource, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("serial: port name is required")
	}
	port, err := serial.Open(cfg.Port, cfg.mode())
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", cfg.Port, err)
	}

	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("serial: set read timeout: %w", err)
	}
	return pio.NewReaderSource(port), nil
}

// Ports lists the serial ports present on the system.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}
