package gateway

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/IELS2001/m16go/pkg/modem"
)

type collectorHarness struct {
	replies []modem.Frame
	replyErr error
	sets    []SampleSet
	c       *Collector
}

func newCollectorHarness() *collectorHarness {
	h := &collectorHarness{}
	h.c = NewCollector(
		func(f modem.Frame) error {
			h.replies = append(h.replies, f)
			return h.replyErr
		},
		func(s SampleSet) { h.sets = append(h.sets, s) },
	)
	return h
}

func TestCollectorExchange(t *testing.T) {
	h := newCollectorHarness()

	h.c.Feed(modem.Frame{ID: 3, Command: modem.CmdHi})
	require.Equal(t, []modem.Frame{{ID: 3, Command: modem.CmdRequestData}}, h.replies)
	require.Equal(t, 1, h.c.Pending())

	h.c.Feed(modem.Frame{ID: 3, Command: modem.CmdTempSensor, Data: 21})
	h.c.Feed(modem.Frame{ID: 3, Command: modem.CmdPHSensor, Data: 7})
	h.c.Feed(modem.Frame{ID: 3, Command: modem.CmdFinished})

	require.Len(t, h.replies, 2)
	require.Equal(t, modem.Frame{ID: 3, Command: modem.CmdSensorDataReceived, Data: 2}, h.replies[1])
	require.Len(t, h.sets, 1)
	require.Equal(t, uint8(3), h.sets[0].Unit)
	require.Equal(t, []Reading{
		{Sensor: "temperature", Value: 21},
		{Sensor: "ph", Value: 7},
	}, h.sets[0].Readings)
	require.Equal(t, 0, h.c.Pending())
}

func TestCollectorPassword(t *testing.T) {
	h := newCollectorHarness()
	h.c.Password = 0x2f

	h.c.Feed(modem.Frame{ID: 1, Command: modem.CmdHi, Data: 0x30})
	require.Empty(t, h.replies)
	require.Equal(t, 0, h.c.Pending())

	h.c.Feed(modem.Frame{ID: 1, Command: modem.CmdHi, Data: 0x2f})
	require.Len(t, h.replies, 1)
	require.Equal(t, 1, h.c.Pending())
}

func TestCollectorStrayFrames(t *testing.T) {
	h := newCollectorHarness()

	// readings and FINISHED without a HI are dropped
	h.c.Feed(modem.Frame{ID: 2, Command: modem.CmdTempSensor, Data: 9})
	h.c.Feed(modem.Frame{ID: 2, Command: modem.CmdFinished})
	require.Empty(t, h.replies)
	require.Empty(t, h.sets)

	// gateway-side commands coming off the air are ignored
	h.c.Feed(modem.Frame{ID: 2, Command: modem.CmdRequestData})
	h.c.Feed(modem.Frame{ID: 2, Command: modem.CmdSensorDataReceived})
	require.Empty(t, h.replies)
}

func TestCollectorUnitsIndependent(t *testing.T) {
	h := newCollectorHarness()

	h.c.Feed(modem.Frame{ID: 1, Command: modem.CmdHi})
	h.c.Feed(modem.Frame{ID: 2, Command: modem.CmdHi})
	h.c.Feed(modem.Frame{ID: 1, Command: modem.CmdTempSensor, Data: 11})
	h.c.Feed(modem.Frame{ID: 2, Command: modem.CmdPressureSensor, Data: 22})
	h.c.Feed(modem.Frame{ID: 2, Command: modem.CmdFinished})

	require.Len(t, h.sets, 1)
	require.Equal(t, uint8(2), h.sets[0].Unit)
	require.Equal(t, []Reading{{Sensor: "pressure", Value: 22}}, h.sets[0].Readings)
	require.Equal(t, 1, h.c.Pending())
}

func TestCollectorDeadline(t *testing.T) {
	h := newCollectorHarness()
	h.c.Deadline = 10 * time.Millisecond

	h.c.Feed(modem.Frame{ID: 5, Command: modem.CmdHi})
	h.c.units[5].started = time.Now().Add(-time.Second)

	h.c.Feed(modem.Frame{ID: 5, Command: modem.CmdFinished})
	require.Len(t, h.replies, 1) // only the REQUEST_DATA reply
	require.Empty(t, h.sets)
	require.Equal(t, 0, h.c.Pending())
}

func TestCollectorReplyFailure(t *testing.T) {
	h := newCollectorHarness()
	h.replyErr = errors.New("link down")

	// a failed reply does not wedge the exchange
	h.c.Feed(modem.Frame{ID: 4, Command: modem.CmdHi})
	h.c.Feed(modem.Frame{ID: 4, Command: modem.CmdConductivitySensor, Data: 3})
	h.c.Feed(modem.Frame{ID: 4, Command: modem.CmdFinished})
	require.Len(t, h.sets, 1)
}
