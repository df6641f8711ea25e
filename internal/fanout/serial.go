package fanout

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// SerialWriter copies sentences onto a serial port, for displays and
// chart plotters that expect NMEA at 4800 or 9600 baud.
type SerialWriter struct {
	device string
	port   io.WriteCloser
}

func NewSerialWriter(device string, baud int) (*SerialWriter, error) {
	if baud <= 0 {
		baud = 4800
	}
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}
	return &SerialWriter{device: device, port: port}, nil
}

func (w *SerialWriter) Send(p []byte) {
	if len(p) == 0 {
		return
	}
	_, _ = w.port.Write(p)
}

func (w *SerialWriter) Close() error {
	if w.port == nil {
		return nil
	}
	return w.port.Close()
}
