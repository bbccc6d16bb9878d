package serial

import (
	"fmt"
	"time"

	bugst "go.bug.st/serial"
)

// DefaultBaud is the agreed link bit rate (8N1).
const DefaultBaud = 115200

// DefaultReadTimeout bounds a blocking Read on the real port.
const DefaultReadTimeout = 100 * time.Millisecond

// RealPort is a serial device opened through go.bug.st/serial.
type RealPort struct {
	bugst.Port
	name string
}

// OpenReal opens name at baud 8N1 and discards stale input.
func OpenReal(name string, baud int, readTimeout time.Duration) (*RealPort, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	mode := &bugst.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}
	p, err := bugst.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	if err := p.SetReadTimeout(readTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}
	if err := p.ResetInputBuffer(); err != nil {
		p.Close()
		return nil, fmt.Errorf("reset input buffer on %s: %w", name, err)
	}
	return &RealPort{Port: p, name: name}, nil
}

// Name returns the device path.
func (p *RealPort) Name() string { return p.name }

// ListPorts returns the serial devices present on the system.
func ListPorts() ([]string, error) {
	ports, err := bugst.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}
