package modem

import "fmt"

// BitLayout describes how a Frame packs into the 16-bit wire word:
// id in the most significant bits, command below it, data in the low
// bits, concatenated with no gaps. Field widths must sum to 16.
type BitLayout struct {
	IDBits      uint8
	CommandBits uint8
	DataBits    uint8
}

// The two splits used by deployed firmware.
var (
	Layout3x3x10 = BitLayout{IDBits: 3, CommandBits: 3, DataBits: 10}
	Layout4x4x8  = BitLayout{IDBits: 4, CommandBits: 4, DataBits: 8}
)

// Valid reports whether the field widths cover the word exactly. The
// id and command fields are capped at 8 bits, the width of their Frame
// types.
func (l BitLayout) Valid() bool {
	return l.IDBits > 0 && l.CommandBits > 0 && l.DataBits > 0 &&
		l.IDBits <= 8 && l.CommandBits <= 8 &&
		int(l.IDBits)+int(l.CommandBits)+int(l.DataBits) == 16
}

// String implements fmt.Stringer.
func (l BitLayout) String() string {
	return fmt.Sprintf("%d/%d/%d", l.IDBits, l.CommandBits, l.DataBits)
}

// MaxID is the largest id the layout can carry.
func (l BitLayout) MaxID() uint8 {
	return uint8(1)<<l.IDBits - 1
}

// MaxCommand is the largest command value the layout can carry.
func (l BitLayout) MaxCommand() uint8 {
	return uint8(1)<<l.CommandBits - 1
}

// MaxData is the largest payload the layout can carry.
func (l BitLayout) MaxData() uint16 {
	return uint16(1)<<l.DataBits - 1
}

// Encode packs f into a wire word. Fields wider than their declared
// widths are masked down, not rejected; the firmware does the same.
func (l BitLayout) Encode(f Frame) uint16 {
	var w uint16
	w |= (uint16(f.ID) & uint16(l.MaxID())) << (l.CommandBits + l.DataBits)
	w |= (uint16(f.Command) & uint16(l.MaxCommand())) << l.DataBits
	w |= f.Data & l.MaxData()
	return w
}

// Decode unpacks a wire word. It never fails: a command value outside
// the defined set is preserved as-is for the caller to judge.
func (l BitLayout) Decode(w uint16) Frame {
	return Frame{
		ID:      uint8(w>>(l.CommandBits+l.DataBits)) & l.MaxID(),
		Command: Command(uint8(w>>l.DataBits) & l.MaxCommand()),
		Data:    w & l.MaxData(),
	}
}

// DecodeBytes decodes the 2-byte wire form, most significant byte
// first. Equivalent to Decode(b[0]<<8 | b[1]).
func (l BitLayout) DecodeBytes(b []byte) Frame {
	return l.Decode(uint16(b[0])<<8 | uint16(b[1]))
}

// Wire encodes f and returns the two wire bytes, most significant
// byte first.
func (l BitLayout) Wire(f Frame) [2]byte {
	w := l.Encode(f)
	return [2]byte{byte(w >> 8), byte(w)}
}

// ParseLayout resolves a layout from its "id/command/data" notation,
// e.g. "3/3/10" or "4/4/8".
func ParseLayout(s string) (BitLayout, error) {
	var l BitLayout
	if _, err := fmt.Sscanf(s, "%d/%d/%d", &l.IDBits, &l.CommandBits, &l.DataBits); err != nil {
		return BitLayout{}, fmt.Errorf("%w: %q", ErrUnknownLayout, s)
	}
	if !l.Valid() {
		return BitLayout{}, fmt.Errorf("%w: %q", ErrUnknownLayout, s)
	}
	return l, nil
}
