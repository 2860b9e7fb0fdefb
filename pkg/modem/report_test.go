package modem

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var reportFixture = []byte{
	0xaa,       // start of frame
	0x01, 0x02, // transport block
	0x10,       // bit error rate
	0x20,       // signal power
	0x30,       // noise power
	0x00, 0x05, // packets valid
	0x01,             // packets invalid
	0x02,             // firmware version
	0x00, 0x01, 0x00, // time since boot
	0x12, 0x34, // chip id
	0b10110101, // tx complete | tb valid | channel | hw rev
	0b00000101, // power level | diagnostic
	0x55,       // end of frame
}

func TestParseReport(t *testing.T) {
	r, err := ParseReport(reportFixture)
	require.NoError(t, err)
	require.Equal(t, Report{
		StartOfFrame:    0xaa,
		TransportBlock:  0x0102,
		BitErrorRate:    0x10,
		SignalPower:     0x20,
		NoisePower:      0x30,
		PacketValid:     5,
		PacketInvalid:   1,
		FirmwareVersion: 2,
		TimeSinceBoot:   0x000100,
		ChipID:          0x1234,
		HWRev:           1,
		Channel:         13,
		TBValid:         false,
		TxComplete:      true,
		Diagnostic:      true,
		PowerLevel:      1,
		EndOfFrame:      0x55,
	}, r)
}

func TestParseReportLength(t *testing.T) {
	_, err := ParseReport(nil)
	require.ErrorIs(t, err, ErrReportLength)
	_, err = ParseReport(reportFixture[:17])
	require.ErrorIs(t, err, ErrReportLength)
	_, err = ParseReport(append([]byte{0}, reportFixture...))
	require.ErrorIs(t, err, ErrReportLength)
}

func TestPackedStatusBits(t *testing.T) {
	testCases := []struct {
		name       string
		status     statusByte
		hwRev      uint8
		channel    uint8
		tbValid    bool
		txComplete bool
	}{
		{name: "zero", status: 0},
		{name: "all set", status: 0xff, hwRev: 3, channel: 15, tbValid: true, txComplete: true},
		{name: "channel only", status: 0b00101000, channel: 10},
		{name: "flags only", status: 0b11000000, tbValid: true, txComplete: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.hwRev, tc.status.hwRev())
			require.Equal(t, tc.channel, tc.status.channel())
			require.Equal(t, tc.tbValid, tc.status.tbValid())
			require.Equal(t, tc.txComplete, tc.status.txComplete())
		})
	}

	require.True(t, diagByte(0b00000001).diagnostic())
	require.False(t, diagByte(0b11111110).diagnostic())
	require.Equal(t, uint8(3), diagByte(0b00001100).powerLevel())
	// reserved bit groups do not leak into the power level
	require.Equal(t, uint8(0), diagByte(0b11110010).powerLevel())
}
