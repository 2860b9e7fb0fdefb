package modem

import "time"

// Transport is the byte link a Session drives. Implementations wrap a
// serial port (see the serial subpackage) or a test double. Opening,
// configuring and closing the link stays with the implementation; the
// session only moves bytes.
type Transport interface {
	// WriteByte sends one byte.
	WriteByte(b byte) error
	// Write sends the whole buffer.
	Write(p []byte) (int, error)
	// Read fills p with whatever arrives within timeout and returns
	// the count. A timeout with no data is 0, nil, not an error.
	Read(p []byte, timeout time.Duration) (int, error)
	// BufferedLen reports how many received bytes wait unread.
	BufferedLen() (int, error)
	// FlushInput discards received bytes not yet read.
	FlushInput() error
}
