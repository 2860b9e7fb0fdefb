// Package sim provides an in-memory stand-in for the modem hardware.
// The device speaks the firmware side of the trigger protocol, so
// sessions, the console and the gateway run against it unchanged.
package sim

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/IELS2001/m16go/pkg/modem"
)

// DeviceName is the pseudo device path that selects the simulator in
// place of a serial port.
const DeviceName = "sim"

// Command bytes the firmware listens for, each accepted when seen
// twice in a row.
const (
	cmdMode    byte = 0x6d
	cmdChannel byte = 0x63
	cmdPower   byte = 0x6c
	cmdReport  byte = 0x72
)

// Reading is one canned sensor value a simulated unit reports.
type Reading struct {
	Command modem.Command
	Value   uint16
}

// Unit is a simulated field unit reachable over the air. It answers a
// data request with its readings followed by FINISHED.
type Unit struct {
	ID       uint8
	Password uint16
	Readings []Reading
}

type pending int

const (
	pendingNone pending = iota
	pendingChannel
	pendingPower
)

// Device emulates the modem firmware behind a Transport. All methods
// are safe for concurrent use.
type Device struct {
	Layout   modem.BitLayout
	ChipID   uint16
	Firmware uint8
	HWRev    uint8

	mu      sync.Mutex
	rx      []byte
	last    byte
	hasLast bool
	pending pending

	configMode bool
	channel    uint8
	power      uint8
	started    time.Time

	sent     []modem.Frame
	rxFrames uint16
	units    map[uint8]*Unit
	acks     map[uint8]int
}

// NewDevice creates a powered-on device in transparent mode, tuned to
// channel 1 at full power.
func NewDevice(layout modem.BitLayout) *Device {
	return &Device{
		Layout:   layout,
		ChipID:   0x1234,
		Firmware: 2,
		HWRev:    1,
		channel:  1,
		power:    4,
		started:  time.Now(),
		units:    make(map[uint8]*Unit),
		acks:     make(map[uint8]int),
	}
}

// NewDemoDevice creates a device with one pre-registered unit carrying
// a full set of sensor readings, for running the console or the
// gateway without hardware.
func NewDemoDevice(layout modem.BitLayout) *Device {
	return NewDevice(layout).AddUnit(&Unit{
		ID:       1,
		Password: 0x2f,
		Readings: []Reading{
			{Command: modem.CmdTempSensor, Value: 21},
			{Command: modem.CmdPressureSensor, Value: 1013},
			{Command: modem.CmdConductivitySensor, Value: 500},
			{Command: modem.CmdPHSensor, Value: 7},
		},
	})
}

// AddUnit registers a simulated unit.
func (d *Device) AddUnit(u *Unit) *Device {
	d.mu.Lock()
	d.units[u.ID] = u
	d.mu.Unlock()
	return d
}

// WakeUnit makes a unit start a poll exchange by saying HI. It
// reports whether the unit exists.
func (d *Device) WakeUnit(id uint8) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := d.units[id]
	if u == nil {
		return false
	}
	d.queueFrame(modem.Frame{ID: u.ID, Command: modem.CmdHi, Data: u.Password})
	return true
}

// Receive queues a frame as if it arrived over the air.
func (d *Device) Receive(f modem.Frame) {
	d.mu.Lock()
	d.queueFrame(f)
	d.mu.Unlock()
}

// Sent returns every frame the host has transmitted so far.
func (d *Device) Sent() []modem.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]modem.Frame(nil), d.sent...)
}

// Acked returns how many exchanges of a unit the host has confirmed.
func (d *Device) Acked(id uint8) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acks[id]
}

// Channel returns the tuned channel.
func (d *Device) Channel() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int(d.channel)
}

// PowerLevel returns the selected power level.
func (d *Device) PowerLevel() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int(d.power)
}

// ConfigMode reports whether the device is in configuration mode.
func (d *Device) ConfigMode() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.configMode
}

// WriteByte handles the command side of the protocol.
func (d *Device) WriteByte(b byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.pending {
	case pendingChannel:
		d.pending = pendingNone
		d.hasLast = false
		if ch, ok := channelFrom(b); ok {
			d.channel = ch
		}
		return nil
	case pendingPower:
		d.pending = pendingNone
		d.hasLast = false
		if b >= '1' && b <= '4' {
			d.power = b - '0'
		}
		return nil
	}
	if d.hasLast && d.last == b {
		d.hasLast = false
		d.command(b)
		return nil
	}
	d.last, d.hasLast = b, true
	return nil
}

func (d *Device) command(b byte) {
	switch b {
	case cmdMode:
		d.configMode = !d.configMode
	case cmdChannel:
		d.pending = pendingChannel
	case cmdPower:
		d.pending = pendingPower
	case cmdReport:
		r := d.report()
		d.rx = append(d.rx, r[:]...)
	}
}

func channelFrom(b byte) (uint8, bool) {
	switch {
	case b >= '1' && b <= '9':
		return b - '0', true
	case b >= 'a' && b <= 'c':
		return b - 'a' + 10, true
	}
	return 0, false
}

// Write carries payload frames. Any payload breaks a half-seen
// command pair, like line noise would.
func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hasLast = false
	d.pending = pendingNone
	for i := 0; i+1 < len(p); i += 2 {
		f := d.Layout.DecodeBytes(p[i : i+2])
		d.sent = append(d.sent, f)
		d.deliver(f)
	}
	return len(p), nil
}

// deliver routes a host frame to its unit.
func (d *Device) deliver(f modem.Frame) {
	u := d.units[f.ID]
	if u == nil {
		return
	}
	switch f.Command {
	case modem.CmdRequestData:
		for _, r := range u.Readings {
			d.queueFrame(modem.Frame{ID: u.ID, Command: r.Command, Data: r.Value})
		}
		d.queueFrame(modem.Frame{ID: u.ID, Command: modem.CmdFinished})
	case modem.CmdSensorDataReceived:
		d.acks[u.ID]++
	}
}

func (d *Device) queueFrame(f modem.Frame) {
	w := d.Layout.Wire(f)
	d.rx = append(d.rx, w[:]...)
	d.rxFrames++
}

// Read hands buffered bytes to the host. It never blocks; an empty
// buffer reads as a poll timeout.
func (d *Device) Read(p []byte, _ time.Duration) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := copy(p, d.rx)
	d.rx = d.rx[n:]
	return n, nil
}

// BufferedLen reports bytes waiting for the host.
func (d *Device) BufferedLen() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rx), nil
}

// FlushInput drops everything buffered.
func (d *Device) FlushInput() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rx = nil
	return nil
}

// Close implements io.Closer so callers can treat the device like a
// port.
func (d *Device) Close() error { return nil }

func (d *Device) report() [modem.ReportLen]byte {
	uptime := uint32(time.Since(d.started).Seconds()) & 0xffffff
	var r [modem.ReportLen]byte
	r[0] = 0xaa
	binary.BigEndian.PutUint16(r[1:3], 1)
	r[3] = 0    // bit error rate
	r[4] = 0x30 // signal power
	r[5] = 0x10 // noise power
	binary.BigEndian.PutUint16(r[6:8], d.rxFrames)
	r[8] = 0
	r[9] = d.Firmware
	r[10] = byte(uptime >> 16)
	r[11] = byte(uptime >> 8)
	r[12] = byte(uptime)
	binary.BigEndian.PutUint16(r[13:15], d.ChipID)
	r[15] = d.HWRev&0x03 | d.channel<<2 | 1<<7
	r[16] = (d.power & 0x03) << 2 // the report field is only 2 bits wide
	r[17] = 0x55
	return r
}
