// Package xfer implements the ack-paced fixed-chunk file-transfer
// sub-protocol that runs as a side conversation over a transport while a
// raw-REPL procedure is mid-execution on the board.
package xfer

import (
	"encoding/hex"
	"io"

	"github.com/micronext/upy-shell/internal/rerr"
	"github.com/micronext/upy-shell/internal/transport"
)

// Mode selects the wire encoding.
type Mode int

const (
	// Binary sends raw bytes; requires the board's has_binary_stdio.
	Binary Mode = iota
	// Hex sends ASCII hex, doubling on-wire size; survives transports that
	// normalize newline bytes or treat 0x03 as interrupt.
	Hex
)

const ack = 0x06

// payloadChunk returns the number of plaintext bytes carried per wire
// chunk: chunk in Binary mode, chunk/2 in Hex mode so the on-wire size
// stays equal to chunk.
func payloadChunk(mode Mode, chunk int) int {
	if mode == Hex {
		return chunk / 2
	}
	return chunk
}

// SendToBoard streams filesize bytes from r to the board, lock-stepped on
// one ACK (0x06) per chunk from the board. Any non-ACK byte received is a
// diagnostic from the board and is forwarded to stderr; the loop continues
//.
func SendToBoard(t transport.Transport, r io.Reader, filesize int64, chunk int, mode Mode, stderr io.Writer) error {
	payload := payloadChunk(mode, chunk)
	remaining := filesize
	buf := make([]byte, payload)
	for remaining > 0 {
		want := int64(payload)
		if remaining < want {
			want = remaining
		}
		n, err := io.ReadFull(r, buf[:want])
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return err
		}
		wire := buf[:n]
		if mode == Hex {
			encoded := make([]byte, hex.EncodedLen(n))
			hex.Encode(encoded, wire)
			wire = encoded
		}
		if _, err := t.Write(wire); err != nil {
			return err
		}
		if err := waitForAck(t, stderr); err != nil {
			return err
		}
		remaining -= want
	}
	return nil
}

// RecvFromBoard is the mirror image of SendToBoard: it reads filesize bytes
// from the board, ACKing after every chunk is fully written to w.
func RecvFromBoard(t transport.Transport, w io.Writer, filesize int64, chunk int, mode Mode) error {
	payload := payloadChunk(mode, chunk)
	remaining := filesize
	for remaining > 0 {
		want := int64(payload)
		if remaining < want {
			want = remaining
		}
		wireWant := int(want)
		if mode == Hex {
			wireWant = int(want) * 2
		}
		raw, err := readExact(t, wireWant)
		if err != nil {
			return err
		}
		var plain []byte
		if mode == Hex {
			plain = make([]byte, hex.DecodedLen(len(raw)))
			if _, err := hex.Decode(plain, raw); err != nil {
				return rerr.New(rerr.KindProtocolError, "invalid hex chunk from board", err)
			}
		} else {
			plain = raw
		}
		if _, err := w.Write(plain); err != nil {
			return err
		}
		if _, err := t.Write([]byte{ack}); err != nil {
			return err
		}
		remaining -= want
	}
	return nil
}

func waitForAck(t transport.Transport, stderr io.Writer) error {
	for {
		b, err := readExact(t, 1)
		if err != nil {
			return err
		}
		if b[0] == ack {
			return nil
		}
		if stderr != nil {
			stderr.Write(b)
		}
	}
}

// readExact puts the transport in blocking mode (no deadline) and blocks
// until n bytes have been read.
func readExact(t transport.Transport, n int) ([]byte, error) {
	t.SetTimeout(0, true)
	out := make([]byte, 0, n)
	for len(out) < n {
		chunk, err := t.Read(n - len(out))
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			continue
		}
		out = append(out, chunk...)
	}
	return out, nil
}
