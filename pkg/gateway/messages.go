package gateway

import (
	"time"

	"github.com/google/uuid"

	"github.com/IELS2001/m16go/pkg/modem"
)

// Topics relative to the queue prefix. Each carries the gateway id so
// one broker can serve a fleet.
const (
	TopicReport  = "modems/%s/report"
	TopicFrames  = "modems/%s/frames"
	TopicSamples = "modems/%s/samples"
	TopicCmd     = "modems/%s/cmd"
	TopicCmdRes  = "modems/%s/cmd/result"
)

// Operations accepted on the command topic and the control API.
const (
	OpSwitchMode    = "switch-mode"
	OpSetChannel    = "set-channel"
	OpSetPower      = "set-power"
	OpSend          = "send"
	OpRequestReport = "request-report"
)

// ReportMsg wraps a diagnostic report for publication.
type ReportMsg struct {
	EventID string       `json:"eventId"`
	Gateway string       `json:"gateway"`
	Time    time.Time    `json:"time"`
	Report  modem.Report `json:"report"`
}

// FrameMsg is one frame decoded off the air. Command carries the
// symbolic name when known; RawCommand always carries the wire value.
type FrameMsg struct {
	EventID    string    `json:"eventId"`
	Gateway    string    `json:"gateway"`
	Time       time.Time `json:"time"`
	Unit       uint8     `json:"unit"`
	Command    string    `json:"command"`
	RawCommand uint8     `json:"rawCommand"`
	Data       uint16    `json:"data"`
}

// Reading is one sensor value reported by a unit.
type Reading struct {
	Sensor string `json:"sensor"`
	Value  uint16 `json:"value"`
}

// SampleSet is the outcome of one completed sensor poll exchange.
type SampleSet struct {
	Unit     uint8     `json:"unit"`
	Readings []Reading `json:"readings"`
	Started  time.Time `json:"started"`
	Done     time.Time `json:"done"`
}

// SampleSetMsg wraps a SampleSet for publication.
type SampleSetMsg struct {
	EventID string    `json:"eventId"`
	Gateway string    `json:"gateway"`
	Time    time.Time `json:"time"`
	SampleSet
}

// CommandMsg asks the gateway to drive the modem. Fields beyond Op are
// read per operation: Channel for set-channel, Power for set-power,
// Unit/Command/Data for send.
type CommandMsg struct {
	ID      string `json:"id"`
	Op      string `json:"op"`
	Channel int    `json:"channel,omitempty"`
	Power   int    `json:"power,omitempty"`
	Unit    uint8  `json:"unit,omitempty"`
	Command string `json:"command,omitempty"`
	Data    uint16 `json:"data,omitempty"`
}

// CommandResult reports the outcome of one CommandMsg, correlated by
// its ID.
type CommandResult struct {
	ID     string        `json:"id"`
	Op     string        `json:"op"`
	OK     bool          `json:"ok"`
	Error  string        `json:"error,omitempty"`
	Report *modem.Report `json:"report,omitempty"`
	Time   time.Time     `json:"time"`
}

func newEventID() string {
	return uuid.NewString()
}
