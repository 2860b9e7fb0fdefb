package gateway

import (
	"time"

	"github.com/golang/glog"

	"github.com/IELS2001/m16go/pkg/modem"
)

// DefaultExchangeDeadline bounds one poll exchange from HI to
// FINISHED.
const DefaultExchangeDeadline = 30 * time.Second

var sensorNames = map[modem.Command]string{
	modem.CmdTempSensor:         "temperature",
	modem.CmdPressureSensor:     "pressure",
	modem.CmdConductivitySensor: "conductivity",
	modem.CmdPHSensor:           "ph",
}

// Collector runs the gateway half of the unit sensor poll exchange:
//
//	unit    HI (password)
//	gateway REQUEST_DATA
//	unit    one frame per sensor reading
//	unit    FINISHED
//	gateway SENSOR_DATA_RECEIVED (reading count)
//
// Feed is called from a single goroutine; the collector keeps per-unit
// state between frames and does no locking.
type Collector struct {
	// Password gates exchanges when nonzero: a HI carrying anything
	// else is ignored.
	Password uint16
	// Deadline bounds one exchange. Zero means
	// DefaultExchangeDeadline.
	Deadline time.Duration
	// Reply transmits a frame back to the units.
	Reply func(modem.Frame) error
	// OnSampleSet receives each completed exchange.
	OnSampleSet func(SampleSet)

	units map[uint8]*exchange
}

type exchange struct {
	started  time.Time
	readings []Reading
}

// NewCollector creates a collector with the default deadline.
func NewCollector(reply func(modem.Frame) error, done func(SampleSet)) *Collector {
	return &Collector{
		Deadline:    DefaultExchangeDeadline,
		Reply:       reply,
		OnSampleSet: done,
		units:       make(map[uint8]*exchange),
	}
}

// Pending reports how many units have an exchange in flight.
func (c *Collector) Pending() int {
	c.expire(time.Now())
	return len(c.units)
}

// Feed advances the exchange of the frame's unit. Frames that do not
// fit the exchange at its current point are dropped; the radio link
// duplicates and loses traffic, so strictness buys nothing here.
func (c *Collector) Feed(f modem.Frame) {
	now := time.Now()
	c.expire(now)
	if c.units == nil {
		c.units = make(map[uint8]*exchange)
	}
	switch f.Command {
	case modem.CmdHi:
		if c.Password != 0 && f.Data != c.Password {
			glog.Warningf("unit %d: HI with wrong password", f.ID)
			return
		}
		c.units[f.ID] = &exchange{started: now}
		c.reply(modem.Frame{ID: f.ID, Command: modem.CmdRequestData})
	case modem.CmdTempSensor, modem.CmdPressureSensor,
		modem.CmdConductivitySensor, modem.CmdPHSensor:
		ex := c.units[f.ID]
		if ex == nil {
			glog.V(1).Infof("unit %d: reading without HI, dropped", f.ID)
			return
		}
		ex.readings = append(ex.readings, Reading{
			Sensor: sensorNames[f.Command],
			Value:  f.Data,
		})
	case modem.CmdFinished:
		ex := c.units[f.ID]
		if ex == nil {
			return
		}
		delete(c.units, f.ID)
		c.reply(modem.Frame{
			ID:      f.ID,
			Command: modem.CmdSensorDataReceived,
			Data:    uint16(len(ex.readings)),
		})
		if c.OnSampleSet != nil {
			c.OnSampleSet(SampleSet{
				Unit:     f.ID,
				Readings: ex.readings,
				Started:  ex.started,
				Done:     now,
			})
		}
	}
}

func (c *Collector) reply(f modem.Frame) {
	if c.Reply == nil {
		return
	}
	if err := c.Reply(f); err != nil {
		glog.Errorf("reply %v: %v", f, err)
	}
}

func (c *Collector) expire(now time.Time) {
	deadline := c.Deadline
	if deadline <= 0 {
		deadline = DefaultExchangeDeadline
	}
	for unit, ex := range c.units {
		if now.Sub(ex.started) > deadline {
			glog.Warningf("unit %d: exchange expired with %d readings", unit, len(ex.readings))
			delete(c.units, unit)
		}
	}
}
