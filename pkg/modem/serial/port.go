// Package serial adapts a serial device to the modem Transport.
package serial

import (
	"fmt"
	"io"
	"time"

	"github.com/golang/glog"
	"github.com/tarm/serial"
)

// DefaultBaud is the line rate the modem ships with.
const DefaultBaud = 9600

// pollStep paces the read loop. The device is opened with a short
// read timeout so each attempt returns quickly.
const pollStep = 2 * time.Millisecond

// Config selects the device to open.
type Config struct {
	Device string
	Baud   int
}

// Port drives a serial device as a modem Transport. Like the session
// that owns it, a Port is single-owner and does no locking.
type Port struct {
	port  *serial.Port
	stash []byte
}

// Open opens and configures the device. A zero Baud means DefaultBaud.
func Open(cfg Config) (*Port, error) {
	baud := cfg.Baud
	if baud == 0 {
		baud = DefaultBaud
	}
	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        baud,
		ReadTimeout: pollStep,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}
	glog.V(1).Infof("serial: opened %s at %d baud", cfg.Device, baud)
	return &Port{port: p}, nil
}

// Close releases the device.
func (p *Port) Close() error {
	return p.port.Close()
}

// WriteByte implements modem.Transport.
func (p *Port) WriteByte(b byte) error {
	_, err := p.port.Write([]byte{b})
	return err
}

// Write implements modem.Transport.
func (p *Port) Write(buf []byte) (int, error) {
	return p.port.Write(buf)
}

// Read implements modem.Transport. It polls the device until data
// arrives or timeout passes; a quiet line yields 0, nil.
func (p *Port) Read(buf []byte, timeout time.Duration) (int, error) {
	if n := p.takeStash(buf); n > 0 {
		return n, nil
	}
	deadline := time.Now().Add(timeout)
	for {
		n, err := p.port.Read(buf)
		if n > 0 {
			return n, nil
		}
		// a timed-out device read surfaces as io.EOF
		if err != nil && err != io.EOF {
			return 0, err
		}
		if !time.Now().Before(deadline) {
			return 0, nil
		}
		time.Sleep(pollStep)
	}
}

// BufferedLen implements modem.Transport. The driver has no queue
// length query, so waiting bytes are moved into a stash that the next
// Read consumes first.
func (p *Port) BufferedLen() (int, error) {
	probe := make([]byte, 256)
	n, err := p.port.Read(probe)
	if n > 0 {
		p.stash = append(p.stash, probe[:n]...)
	}
	if err != nil && err != io.EOF {
		return len(p.stash), err
	}
	return len(p.stash), nil
}

// FlushInput implements modem.Transport.
func (p *Port) FlushInput() error {
	p.stash = p.stash[:0]
	return p.port.Flush()
}

func (p *Port) takeStash(buf []byte) int {
	if len(p.stash) == 0 {
		return 0
	}
	n := copy(buf, p.stash)
	p.stash = p.stash[:copy(p.stash, p.stash[n:])]
	return n
}
