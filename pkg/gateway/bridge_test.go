package gateway

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/IELS2001/m16go/pkg/modem"
)

// fakeLink is a script-free transport double. Unlike the session
// tests it is mutex-guarded because the bridge loop runs on its own
// goroutine.
type fakeLink struct {
	mu      sync.Mutex
	writes  []byte
	pending []byte
	flushes int
}

func (l *fakeLink) WriteByte(b byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writes = append(l.writes, b)
	return nil
}

func (l *fakeLink) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writes = append(l.writes, p...)
	return len(p), nil
}

func (l *fakeLink) Read(p []byte, _ time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := copy(p, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}

func (l *fakeLink) BufferedLen() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending), nil
}

func (l *fakeLink) FlushInput() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = nil
	l.flushes++
	return nil
}

func (l *fakeLink) inject(p []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, p...)
}

func (l *fakeLink) sent() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]byte(nil), l.writes...)
}

// diagReport mirrors the wire order of an 18-byte diagnostic report.
var diagReport = []byte{
	0xaa,             // start of frame
	0x01, 0x02,       // transport block
	0x10,             // bit error rate
	0x20,             // signal power
	0x30,             // noise power
	0x00, 0x05,       // packets valid
	0x01,             // packets invalid
	0x02,             // firmware version
	0x00, 0x01, 0x00, // time since boot
	0x12, 0x34,       // chip id
	0b10110101,       // hw rev 1, channel 13, tx complete
	0b00000101,       // diagnostic, power level 1
	0x55,             // end of frame
}

// startBridge runs a bridge over a fake link with all modem delays
// zeroed and no queue or store attached. The loop is stopped and
// checked at cleanup.
func startBridge(t *testing.T, tune func(cfg *Config, sess *modem.Session)) (*Bridge, *fakeLink) {
	t.Helper()
	cfg := &Config{}
	cfg.GatewayID = "gw-test"
	cfg.Modem.Password = 0x2f
	cfg.PollInterval = 5 * time.Millisecond
	link := &fakeLink{}
	sess := &modem.Session{
		Transport: link,
		Layout:    modem.Layout4x4x8,
		Timing:    modem.Timing{ReportRetryLimit: 100},
	}
	if tune != nil {
		tune(cfg, sess)
	}
	b := NewBridge(cfg, sess, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Fatal("bridge loop did not stop")
		}
	})
	return b, link
}

func TestBridgeExecuteSwitchMode(t *testing.T) {
	b, link := startBridge(t, nil)
	res := b.Execute(context.Background(), CommandMsg{Op: OpSwitchMode})
	require.True(t, res.OK)
	require.Empty(t, res.Error)
	require.NotEmpty(t, res.ID)
	require.Equal(t, OpSwitchMode, res.Op)
	require.Equal(t, []byte{0x6d, 0x6d}, link.sent())
}

func TestBridgeExecuteSend(t *testing.T) {
	b, link := startBridge(t, nil)
	res := b.Execute(context.Background(), CommandMsg{
		Op: OpSend, Unit: 5, Command: "request_data",
	})
	require.True(t, res.OK)
	require.Equal(t, []byte{0x51, 0x00}, link.sent())
}

func TestBridgeExecuteErrors(t *testing.T) {
	b, link := startBridge(t, nil)
	for _, test := range []struct {
		name string
		msg  CommandMsg
		want string
	}{
		{"channel out of range", CommandMsg{Op: OpSetChannel, Channel: 13}, "channel out of range"},
		{"power out of range", CommandMsg{Op: OpSetPower, Power: 9}, "power level out of range"},
		{"unknown command name", CommandMsg{Op: OpSend, Command: "WAVE"}, "unknown command"},
		{"unknown op", CommandMsg{Op: "reboot"}, `unknown op "reboot"`},
	} {
		t.Run(test.name, func(t *testing.T) {
			res := b.Execute(context.Background(), test.msg)
			require.False(t, res.OK)
			require.Contains(t, res.Error, test.want)
		})
	}
	require.Empty(t, link.sent())
}

func TestBridgeSetup(t *testing.T) {
	_, link := startBridge(t, func(cfg *Config, _ *modem.Session) {
		cfg.Modem.Channel = 3
		cfg.Modem.Power = 2
	})
	want := []byte{0x63, 0x63, '3', 0x6c, 0x6c, '2'}
	require.Eventually(t, func() bool {
		return bytes.Equal(link.sent(), want)
	}, time.Second, 5*time.Millisecond)
}

func TestBridgeDrain(t *testing.T) {
	b, link := startBridge(t, nil)
	feed, cancel := b.SubscribeFrames()
	defer cancel()

	link.inject([]byte{0x50, 0x2f}) // unit 5 says HI with the password
	link.inject([]byte{0x53, 0x15}) // unit 5, temperature 21

	var got []FrameMsg
	require.Eventually(t, func() bool {
		for {
			select {
			case msg := <-feed:
				got = append(got, msg)
			default:
				return len(got) == 2
			}
		}
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, "gw-test", got[0].Gateway)
	require.Equal(t, uint8(5), got[0].Unit)
	require.Equal(t, "HI", got[0].Command)
	require.Equal(t, uint16(0x2f), got[0].Data)
	require.NotEmpty(t, got[0].EventID)
	require.Equal(t, "TEMP_SENSOR", got[1].Command)
	require.Equal(t, uint16(21), got[1].Data)

	// The collector answers the HI with REQUEST_DATA.
	require.Eventually(t, func() bool {
		return bytes.Equal(link.sent(), []byte{0x51, 0x00})
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return b.Status().PendingUnits == 1
	}, time.Second, 5*time.Millisecond)
}

func TestBridgeRequestReport(t *testing.T) {
	b, link := startBridge(t, func(cfg *Config, _ *modem.Session) {
		// Keep the drain poll away from the report bytes.
		cfg.PollInterval = time.Hour
	})
	link.inject(diagReport)

	res := b.Execute(context.Background(), CommandMsg{Op: OpRequestReport})
	require.True(t, res.OK)
	require.NotNil(t, res.Report)
	require.Equal(t, uint16(0x1234), res.Report.ChipID)
	require.Equal(t, uint8(13), res.Report.Channel)
	require.Equal(t, []byte{0x72, 0x72}, link.sent())

	st := b.Status()
	require.Equal(t, "gw-test", st.Gateway)
	require.Equal(t, "4/4/8", st.Layout)
	require.NotNil(t, st.LastReport)
	require.Equal(t, *res.Report, *st.LastReport)
	require.False(t, st.LastReportAt.IsZero())
}

func TestBridgeSubscribeCancel(t *testing.T) {
	b, _ := startBridge(t, nil)
	feed, cancel := b.SubscribeFrames()
	cancel()
	_, open := <-feed
	require.False(t, open)
	cancel() // second cancel is a no-op
}
