package modem

import "encoding/binary"

// ReportLen is the size of the diagnostic report on the wire.
const ReportLen = 18

// Report is the fixed-layout diagnostic snapshot the modem returns on
// request. A fresh value is produced per request; nothing is retained.
type Report struct {
	StartOfFrame    uint8  `json:"startOfFrame"`
	TransportBlock  uint16 `json:"transportBlock"`
	BitErrorRate    uint8  `json:"bitErrorRate"`
	SignalPower     uint8  `json:"signalPower"`
	NoisePower      uint8  `json:"noisePower"`
	PacketValid     uint16 `json:"packetValid"`
	PacketInvalid   uint8  `json:"packetInvalid"`
	FirmwareVersion uint8  `json:"firmwareVersion"`
	TimeSinceBoot   uint32 `json:"timeSinceBoot"`
	ChipID          uint16 `json:"chipID"`
	HWRev           uint8  `json:"hwRev"`
	Channel         uint8  `json:"channel"`
	TBValid         bool   `json:"tbValid"`
	TxComplete      bool   `json:"txComplete"`
	Diagnostic      bool   `json:"diagnostic"`
	PowerLevel      uint8  `json:"powerLevel"`
	EndOfFrame      uint8  `json:"endOfFrame"`
}

// statusByte is report byte 15: hw revision, channel and two flags
// packed into one octet.
type statusByte byte

func (b statusByte) hwRev() uint8     { return uint8(b) & 0x03 }
func (b statusByte) channel() uint8   { return uint8(b) >> 2 & 0x0f }
func (b statusByte) tbValid() bool    { return b&(1<<6) != 0 }
func (b statusByte) txComplete() bool { return b&(1<<7) != 0 }

// diagByte is report byte 16: diagnostic flag and power level, with
// two reserved bit groups ignored.
type diagByte byte

func (b diagByte) diagnostic() bool { return b&1 != 0 }
func (b diagByte) powerLevel() uint8 {
	return uint8(b) >> 2 & 0x03
}

// ParseReport decodes the 18-byte wire form. The only failure is a
// buffer of the wrong length; field values are taken as they come.
func ParseReport(p []byte) (Report, error) {
	if len(p) != ReportLen {
		return Report{}, ErrReportLength
	}
	status, diag := statusByte(p[15]), diagByte(p[16])
	return Report{
		StartOfFrame:    p[0],
		TransportBlock:  binary.BigEndian.Uint16(p[1:3]),
		BitErrorRate:    p[3],
		SignalPower:     p[4],
		NoisePower:      p[5],
		PacketValid:     binary.BigEndian.Uint16(p[6:8]),
		PacketInvalid:   p[8],
		FirmwareVersion: p[9],
		TimeSinceBoot:   uint32(p[10])<<16 | uint32(p[11])<<8 | uint32(p[12]),
		ChipID:          binary.BigEndian.Uint16(p[13:15]),
		HWRev:           status.hwRev(),
		Channel:         status.channel(),
		TBValid:         status.tbValid(),
		TxComplete:      status.txComplete(),
		Diagnostic:      diag.diagnostic(),
		PowerLevel:      diag.powerLevel(),
		EndOfFrame:      p[17],
	}, nil
}
