// Package modem implements the host-side driver for the M16 packet
// radio modem.
package modem

// The M16 multiplexes a unit id, a command code and a payload into a
// single 16-bit word over an asynchronous serial link. Two field splits
// exist across firmware generations (3/3/10 and 4/4/8 bits); both are
// served by one codec parameterized with a BitLayout.
//
// Configuration sequences (operation mode, channel, transmit power,
// diagnostic report) are trigger bytes sent twice around a settle
// delay. The double send lets the firmware tell a command apart from
// ordinary traffic while in transparent mode, so the delays are part of
// the wire protocol, not tunables of this package. Session reproduces
// those sequences over any Transport.
//
// Producer: M16 firmware
// Consumer: host applications (gateway daemon, interactive console)
