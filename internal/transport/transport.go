// Package transport implements the byte-oriented bidirectional stream that
// underlies every device: a serial port at a fixed baud rate, or a TCP
// connection that performs a telnet-like login handshake.
package transport

import (
	"time"

	"github.com/micronext/upy-shell/internal/rerr"
)

// Transport is a byte-oriented, bidirectional stream to one board.
//
// Write never short-writes: either all of data lands or an error is
// returned. Read returns at least one byte before the effective timeout, or
// an empty, nil-error result on timeout. Any I/O failure closes the
// transport and every subsequent call returns an error wrapping
// rerr.TransportClosed.
type Transport interface {
	Write(data []byte) (int, error)
	Read(max int) ([]byte, error)
	SetTimeout(d time.Duration, blockForever bool)
	Close() error
}

// NoTimeout is -1, the read-timeout value the serial layer treats as "block
// forever". Through the Transport interface, a blocking Read is requested
// with SetTimeout's blockForever flag, not by passing this value as d.
const NoTimeout = -1

// writeAll is the non-short-writing helper this package's Transport
// implementations delegate Write to: it keeps calling write until all of
// data is written or an error occurs.
func writeAll(write func([]byte) (int, error), data []byte) (int, error) {
	total := 0
	for total < len(data) {
		n, err := write(data[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, rerr.New(rerr.KindTransportClosed, "short write with no progress", nil)
		}
	}
	return total, nil
}
