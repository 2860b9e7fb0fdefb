package modem

import (
	"fmt"
	"strconv"
	"strings"
)

// Command is the action code carried in a frame.
type Command uint8

// Commands understood by the field units. The set fits in 3 bits so the
// same values work under either layout.
const (
	CmdHi Command = iota
	CmdRequestData
	CmdFinished
	CmdTempSensor
	CmdPressureSensor
	CmdConductivitySensor
	CmdPHSensor
	CmdSensorDataReceived
)

var commandNames = map[Command]string{
	CmdHi:                 "HI",
	CmdRequestData:        "REQUEST_DATA",
	CmdFinished:           "FINISHED",
	CmdTempSensor:         "TEMP_SENSOR",
	CmdPressureSensor:     "PRESSURE_SENSOR",
	CmdConductivitySensor: "CONDUCTIVITY_SENSOR",
	CmdPHSensor:           "PH_SENSOR",
	CmdSensorDataReceived: "SENSOR_DATA_RECEIVED",
}

// Known reports whether c is one of the defined commands. Decoding
// preserves unknown values, so callers gate on this where it matters.
func (c Command) Known() bool {
	_, ok := commandNames[c]
	return ok
}

// String implements fmt.Stringer.
func (c Command) String() string {
	if s, ok := commandNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Command(%d)", uint8(c))
}

// ParseCommand resolves a command from its name or numeric value.
func ParseCommand(s string) (Command, error) {
	for c, name := range commandNames {
		if strings.EqualFold(s, name) {
			return c, nil
		}
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, s)
	}
	return Command(n), nil
}

// Frame is one protocol message: a unit id, a command and a payload.
// It is a value type; field widths on the wire come from the BitLayout
// used to encode it.
type Frame struct {
	ID      uint8
	Command Command
	Data    uint16
}

// String implements fmt.Stringer.
func (f Frame) String() string {
	return fmt.Sprintf("id=%d cmd=%s data=%d", f.ID, f.Command, f.Data)
}
