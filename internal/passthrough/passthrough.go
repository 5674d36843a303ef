// Package passthrough implements the interactive pass-through ("repl")
// mode: a bidirectional bridge between a user terminal and a
// device's transport, with a hot exit key and an optional one-shot mode.
//
// Scheduling uses a two-cooperating-tasks model: a reader
// goroutine copies transport -> stdout, the caller's goroutine copies
// keyboard -> transport and owns exit detection, exactly the
// thread-per-device discipline carved out for pass-through alone.
package passthrough

import (
	"bufio"
	"io"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/micronext/upy-shell/internal/rerr"
	"github.com/micronext/upy-shell/internal/transport"
)

// ExitKey is Ctrl-X (0x18), consumed locally and never forwarded.
const ExitKey = 0x18

// readerTimeout bounds each transport read so the reader can periodically
// check the stop flag without blocking forever on a quiet line.
const readerTimeout = 1 * time.Second

// idleWindow is how long a one-shot session waits for output to go quiet
// before returning, once at least one byte has arrived.
const idleWindow = 1 * time.Second

// Run bridges in (the user's keyboard) and out (the user's screen) to t
// until the user presses Ctrl-X. It writes one carriage return on entry to
// provoke the board's prompt.
//
// If oneShot is non-empty, Run behaves as the "one-shot" mode: oneShot
// (already stripped of its trailing '~' by the caller) is sent immediately
// followed by a carriage return, and Run returns on its own once an idle
// window has elapsed after the first output byte, instead of waiting for
// Ctrl-X.
func Run(t transport.Transport, in io.Reader, out io.Writer, oneShot string) error {
	stop := make(chan struct{})
	done := make(chan struct{})

	go readLoop(t, out, stop, done, oneShot != "")

	if _, err := t.Write([]byte{'\r'}); err != nil {
		close(stop)
		<-done
		return err
	}

	if oneShot != "" {
		if _, err := t.Write([]byte(oneShot + "\r")); err != nil {
			close(stop)
			<-done
			return err
		}
		<-done
		return nil
	}

	br := bufio.NewReader(in)
	for {
		b, err := br.ReadByte()
		if err != nil {
			close(stop)
			<-done
			if err == io.EOF {
				return nil
			}
			return err
		}
		if b == ExitKey {
			close(stop)
			<-done
			return nil
		}
		if b == '\n' {
			b = '\r'
		}
		if _, err := t.Write([]byte{b}); err != nil {
			close(stop)
			<-done
			if rerr.KindOf(err) == rerr.KindTransportClosed {
				return err
			}
			return err
		}
	}
}

// readLoop is the reader task: it copies transport -> out in 1-byte units
// with a 1-second timeout so it can observe stop without an interrupted
// syscall. On TransportClosed it returns silently, leaving the
// foreground to report the error. In one-shot mode
// it self-terminates after idleWindow has elapsed since the last byte, but
// only once at least one byte has been seen.
func readLoop(t transport.Transport, out io.Writer, stop <-chan struct{}, done chan<- struct{}, oneShot bool) {
	defer close(done)
	t.SetTimeout(readerTimeout, false)
	haveOutput := false
	idleDeadline := time.Time{}
	for {
		select {
		case <-stop:
			return
		default:
		}
		chunk, err := t.Read(1)
		if err != nil {
			return
		}
		if len(chunk) == 0 {
			if oneShot && haveOutput && time.Now().After(idleDeadline) {
				return
			}
			continue
		}
		haveOutput = true
		idleDeadline = time.Now().Add(idleWindow)
		out.Write(chunk)
	}
}

// RawStdin puts fd (the host's controlling terminal) into raw mode for the
// duration of a pass-through session, so keystrokes like Ctrl-X reach Run
// one byte at a time instead of being line-buffered and echoed by the
// host's own tty driver. The returned restore func must run on every exit
// path; it is a no-op if fd isn't a terminal (e.g. input piped from a
// file, the one-shot case).
func RawStdin(fd int) (restore func(), err error) {
	if !term.IsTerminal(fd) {
		return func() {}, nil
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, rerr.New(rerr.KindUsageError, "could not set terminal raw mode", err)
	}
	return func() { term.Restore(fd, state) }, nil
}

// StripOneShot reports whether line ends in '~' and, if so, returns the
// line with the trailing '~' removed and ok=true. The caller passes the returned string as Run's oneShot
// argument. A bare "~" strips to an empty command, which isn't one worth
// running, so it reports ok=false rather than a no-op one-shot.
func StripOneShot(line string) (stripped string, ok bool) {
	if rest, found := strings.CutSuffix(line, "~"); found && rest != "" {
		return rest, true
	}
	return "", false
}
