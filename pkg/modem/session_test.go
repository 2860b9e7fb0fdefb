package modem

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeLink scripts transport behavior: writes are recorded, reads are
// served from a queue of chunks where a nil chunk models a timeout
// with no data.
type fakeLink struct {
	writes    []byte
	reads     [][]byte
	readCalls int
	writeErr  error
	readErr   error
	buffered  int
	flushes   int
}

func (l *fakeLink) WriteByte(b byte) error {
	if l.writeErr != nil {
		return l.writeErr
	}
	l.writes = append(l.writes, b)
	return nil
}

func (l *fakeLink) Write(p []byte) (int, error) {
	if l.writeErr != nil {
		return 0, l.writeErr
	}
	l.writes = append(l.writes, p...)
	return len(p), nil
}

func (l *fakeLink) Read(p []byte, timeout time.Duration) (int, error) {
	l.readCalls++
	if l.readErr != nil {
		return 0, l.readErr
	}
	if len(l.reads) == 0 {
		return 0, nil
	}
	chunk := l.reads[0]
	l.reads = l.reads[1:]
	return copy(p, chunk), nil
}

func (l *fakeLink) BufferedLen() (int, error) { return l.buffered, nil }

func (l *fakeLink) FlushInput() error {
	l.flushes++
	return nil
}

// newTestSession zeroes the settle delays so tests run instantly.
func newTestSession(link *fakeLink) *Session {
	s := NewSession(link, Layout3x3x10)
	s.Timing = Timing{ReportRetryLimit: 100}
	return s
}

func TestSwitchOperationMode(t *testing.T) {
	link := &fakeLink{}
	s := newTestSession(link)
	require.NoError(t, s.SwitchOperationMode(context.Background()))
	require.Equal(t, []byte{0x6d, 0x6d}, link.writes)
}

func TestSetChannel(t *testing.T) {
	testCases := []struct {
		name    string
		channel int
		expect  []byte
		err     error
	}{
		{name: "below range", channel: 0, err: ErrInvalidChannel},
		{name: "above range", channel: 13, err: ErrInvalidChannel},
		{name: "lowest", channel: 1, expect: []byte{0x63, 0x63, '1'}},
		{name: "digit", channel: 9, expect: []byte{0x63, 0x63, '9'}},
		{name: "letter", channel: 10, expect: []byte{0x63, 0x63, 'a'}},
		{name: "highest", channel: 12, expect: []byte{0x63, 0x63, 'c'}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			link := &fakeLink{}
			s := newTestSession(link)
			err := s.SetChannel(context.Background(), tc.channel)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				require.Empty(t, link.writes)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expect, link.writes)
		})
	}
}

func TestSetPowerLevel(t *testing.T) {
	testCases := []struct {
		name   string
		level  int
		expect []byte
		err    error
	}{
		{name: "below range", level: 0, err: ErrInvalidPower},
		{name: "above range", level: 5, err: ErrInvalidPower},
		{name: "lowest", level: 1, expect: []byte{0x6c, 0x6c, '1'}},
		{name: "highest", level: 4, expect: []byte{0x6c, 0x6c, '4'}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			link := &fakeLink{}
			s := newTestSession(link)
			err := s.SetPowerLevel(context.Background(), tc.level)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				require.Empty(t, link.writes)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expect, link.writes)
		})
	}
}

func TestSend(t *testing.T) {
	link := &fakeLink{}
	s := newTestSession(link)
	require.NoError(t, s.Send(Frame{ID: 1, Command: CmdHi, Data: 2}))
	require.Equal(t, []byte{0x20, 0x02}, link.writes)

	require.NoError(t, s.SendParts(1, CmdHi, 2))
	require.Equal(t, []byte{0x20, 0x02, 0x20, 0x02}, link.writes)
}

func TestSendWriteFailure(t *testing.T) {
	bad := errors.New("wire gone")
	link := &fakeLink{writeErr: bad}
	s := newTestSession(link)
	require.ErrorIs(t, s.Send(Frame{ID: 1}), bad)
	require.ErrorIs(t, s.SwitchOperationMode(context.Background()), bad)
}

func TestRequestReport(t *testing.T) {
	link := &fakeLink{reads: [][]byte{reportFixture}}
	s := newTestSession(link)
	r, err := s.RequestReport(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte{0x72, 0x72}, link.writes)
	require.Equal(t, 1, link.readCalls)
	require.Equal(t, uint16(0x1234), r.ChipID)
	require.Equal(t, uint8(13), r.Channel)
}

func TestRequestReportChunked(t *testing.T) {
	link := &fakeLink{reads: [][]byte{
		reportFixture[:5],
		nil, // a poll that yields nothing
		reportFixture[5:11],
		reportFixture[11:],
	}}
	s := newTestSession(link)
	r, err := s.RequestReport(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, link.readCalls)
	require.Equal(t, uint8(0xaa), r.StartOfFrame)
	require.Equal(t, uint8(0x55), r.EndOfFrame)
}

func TestRequestReportRetryExhaustion(t *testing.T) {
	link := &fakeLink{}
	s := newTestSession(link)
	s.Timing.ReportRetryLimit = 7
	_, err := s.RequestReport(context.Background())
	require.ErrorIs(t, err, ErrReportTimeout)
	require.Equal(t, 7, link.readCalls)

	link = &fakeLink{}
	s = newTestSession(link)
	_, err = s.RequestReport(context.Background())
	require.ErrorIs(t, err, ErrReportTimeout)
	require.Equal(t, 100, link.readCalls)
}

func TestRequestReportReadFailure(t *testing.T) {
	bad := errors.New("port closed")
	link := &fakeLink{readErr: bad}
	s := newTestSession(link)
	_, err := s.RequestReport(context.Background())
	require.ErrorIs(t, err, bad)
}

func TestSessionCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	link := &fakeLink{}
	s := newTestSession(link)
	s.Timing.Settle = time.Hour
	require.ErrorIs(t, s.SwitchOperationMode(ctx), context.Canceled)
	// the first trigger byte goes out before the settle wait
	require.Equal(t, []byte{0x6d}, link.writes)

	link = &fakeLink{}
	s = newTestSession(link)
	require.ErrorIs(t, s.SetChannel(ctx, 3), context.Canceled)
}

func TestReadAvailable(t *testing.T) {
	link := &fakeLink{reads: [][]byte{{1, 2, 3}}, buffered: 3}
	s := newTestSession(link)

	n, err := s.BufferedLen()
	require.NoError(t, err)
	require.Equal(t, 3, n)

	buf := make([]byte, 8)
	n, err = s.ReadAvailable(buf)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []byte{1, 2, 3}, buf[:n])
	require.Equal(t, 1, link.flushes)
}
