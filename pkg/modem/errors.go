package modem

import "errors"

var (
	// ErrInvalidChannel indicates a channel outside 1..12. Nothing is
	// sent to the device.
	ErrInvalidChannel = errors.New("channel out of range 1..12")
	// ErrInvalidPower indicates a power level outside 1..4. Nothing is
	// sent to the device.
	ErrInvalidPower = errors.New("power level out of range 1..4")
	// ErrReportTimeout indicates the report poll exhausted its retry
	// bound before 18 bytes arrived. No partial report is exposed.
	ErrReportTimeout = errors.New("report poll timed out")
	// ErrReportLength indicates a report buffer that is not exactly
	// 18 bytes.
	ErrReportLength = errors.New("report must be 18 bytes")
	// ErrUnknownLayout indicates an unparseable bit layout notation.
	ErrUnknownLayout = errors.New("unknown bit layout")
	// ErrUnknownCommand indicates a command name that resolves to
	// neither a defined command nor a numeric value.
	ErrUnknownCommand = errors.New("unknown command")
)
