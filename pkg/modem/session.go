package modem

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
)

// Trigger bytes. Each switches the modem into a command-accepting
// state when seen twice within the settle window.
const (
	trigMode    byte = 0x6d
	trigChannel byte = 0x63
	trigPower   byte = 0x6c
	trigReport  byte = 0x72
)

// Timing collects the fixed delays of the command sequences and the
// report poll bounds. The delays are firmware debounce windows, tuned
// per hardware revision.
type Timing struct {
	// Settle separates the two sends of a trigger byte.
	Settle time.Duration
	// ChannelGap separates the channel trigger from the channel byte.
	ChannelGap time.Duration
	// PowerSettle separates the power trigger from the level byte.
	PowerSettle time.Duration
	// ReportPoll bounds one read attempt while polling for a report.
	ReportPoll time.Duration
	// ReportRetryLimit is how many empty read attempts the report poll
	// tolerates before giving up.
	ReportRetryLimit int
	// Drain bounds the read in ReadAvailable.
	Drain time.Duration
}

// DefaultTiming returns the windows current devices need.
func DefaultTiming() Timing {
	return Timing{
		Settle:           time.Second,
		ChannelGap:       time.Millisecond,
		PowerSettle:      1500 * time.Millisecond,
		ReportPoll:       10 * time.Millisecond,
		ReportRetryLimit: 100,
		Drain:            100 * time.Millisecond,
	}
}

// Session sequences modem commands and packet exchange over a
// Transport. A session assumes exclusive ownership of the link and
// does no locking; every operation runs to completion before
// returning. Concurrent callers must serialize access themselves.
type Session struct {
	Transport Transport
	Layout    BitLayout
	Timing    Timing
}

// NewSession creates a session with DefaultTiming.
func NewSession(t Transport, layout BitLayout) *Session {
	return &Session{Transport: t, Layout: layout, Timing: DefaultTiming()}
}

// SwitchOperationMode toggles the modem between transparent and
// configuration mode. The device cannot report which mode it is in,
// so callers track the parity of their calls.
func (s *Session) SwitchOperationMode(ctx context.Context) error {
	glog.V(1).Info("modem: switch operation mode")
	return s.trigger(ctx, trigMode)
}

// SetChannel tunes the modem to channel 1..12. Out-of-range channels
// fail with ErrInvalidChannel before any byte is sent.
func (s *Session) SetChannel(ctx context.Context, channel int) error {
	if channel < 1 || channel > 12 {
		return ErrInvalidChannel
	}
	glog.V(1).Infof("modem: set channel %d", channel)
	if err := s.trigger(ctx, trigChannel); err != nil {
		return err
	}
	if err := s.wait(ctx, s.Timing.ChannelGap); err != nil {
		return err
	}
	return s.writeByte(channelByte(channel))
}

// channelByte maps 1..9 to '1'..'9' and 10..12 to 'a'..'c'.
func channelByte(channel int) byte {
	if channel <= 9 {
		return '0' + byte(channel)
	}
	return 'a' + byte(channel-10)
}

// SetPowerLevel selects transmit power 1..4. Out-of-range levels fail
// with ErrInvalidPower before any byte is sent.
func (s *Session) SetPowerLevel(ctx context.Context, level int) error {
	if level < 1 || level > 4 {
		return ErrInvalidPower
	}
	glog.V(1).Infof("modem: set power level %d", level)
	if err := s.trigger(ctx, trigPower); err != nil {
		return err
	}
	if err := s.wait(ctx, s.Timing.PowerSettle); err != nil {
		return err
	}
	return s.writeByte('0' + byte(level))
}

// Send encodes f under the session layout and writes it as two bytes,
// most significant first.
func (s *Session) Send(f Frame) error {
	b := s.Layout.Wire(f)
	glog.V(2).Infof("modem: send %v as %02x %02x", f, b[0], b[1])
	if _, err := s.Transport.Write(b[:]); err != nil {
		return fmt.Errorf("send packet: %w", err)
	}
	return nil
}

// SendParts is Send for callers holding the triple unassembled.
func (s *Session) SendParts(id uint8, cmd Command, data uint16) error {
	return s.Send(Frame{ID: id, Command: cmd, Data: data})
}

// RequestReport asks for a diagnostic report and polls the link until
// all 18 bytes arrive. Empty read attempts count against
// Timing.ReportRetryLimit; hitting the limit returns ErrReportTimeout
// and no report. Worst-case blocking is the limit times ReportPoll
// plus one settle delay. The context is checked between attempts.
func (s *Session) RequestReport(ctx context.Context) (Report, error) {
	glog.V(1).Info("modem: request report")
	if err := s.trigger(ctx, trigReport); err != nil {
		return Report{}, err
	}
	var buf [ReportLen]byte
	var read, retries int
	for read < ReportLen {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		n, err := s.Transport.Read(buf[read:], s.Timing.ReportPoll)
		if err != nil {
			return Report{}, fmt.Errorf("read report: %w", err)
		}
		if n == 0 {
			if retries++; retries >= s.Timing.ReportRetryLimit {
				return Report{}, ErrReportTimeout
			}
			continue
		}
		read += n
	}
	glog.V(2).Infof("modem: report bytes % 02x", buf[:])
	return ParseReport(buf[:])
}

// BufferedLen reports how many received bytes wait on the link.
func (s *Session) BufferedLen() (int, error) {
	return s.Transport.BufferedLen()
}

// ReadAvailable drains up to len(p) buffered bytes into p, then
// flushes whatever remains so stale traffic does not pile up between
// polls.
func (s *Session) ReadAvailable(p []byte) (int, error) {
	n, err := s.Transport.Read(p, s.Timing.Drain)
	if err != nil {
		return n, err
	}
	return n, s.Transport.FlushInput()
}

// trigger sends b, waits the settle window, and sends b again.
func (s *Session) trigger(ctx context.Context, b byte) error {
	if err := s.writeByte(b); err != nil {
		return err
	}
	if err := s.wait(ctx, s.Timing.Settle); err != nil {
		return err
	}
	return s.writeByte(b)
}

func (s *Session) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Session) writeByte(b byte) error {
	glog.V(2).Infof("modem: write %#02x", b)
	if err := s.Transport.WriteByte(b); err != nil {
		return fmt.Errorf("write %#02x: %w", b, err)
	}
	return nil
}
