package main

import (
	"fmt"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/embeddedgo/gsat"
	"github.com/embeddedgo/gsat/internal/config"
	"github.com/embeddedgo/gsat/internal/logging"
)

// openDevice opens the configured serial port and returns the driver of the
// module connected to it. The port must be closed by the caller.
func openDevice() (*gsat.Device, serial.Port, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	dc, err := cfg.Device(logging.GetLogger())
	if err != nil {
		return nil, nil, err
	}
	mode := &serial.Mode{
		BaudRate: cfg.Serial.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Serial.Port, mode)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", cfg.Serial.Port, err)
	}
	logging.Info("serial port opened",
		zap.String("port", cfg.Serial.Port), zap.Int("baud", cfg.Serial.Baud))
	return gsat.NewDevice("gs0", port, port, dc), port, nil
}
