package rawrepl

import (
	"testing"
	"time"

	"github.com/micronext/upy-shell/internal/boardsim"
	"github.com/micronext/upy-shell/internal/rerr"
)

const testTimeout = 2 * time.Second

func TestEnterExecFollowExit(t *testing.T) {
	client, board := boardsim.Pair()
	defer board.Close()

	go boardsim.Run(board, func(blob string) (string, string) {
		return "42\r\n", ""
	})

	ch := New(client)
	if ch.State() != Friendly {
		t.Fatalf("expected Friendly, got %s", ch.State())
	}
	if err := ch.Enter(testTimeout); err != nil {
		t.Fatalf("Enter: %v", err)
	}
	if ch.State() != RawReady {
		t.Fatalf("expected RawReady, got %s", ch.State())
	}
	if err := ch.ExecNoFollow([]byte("print(42)\n"), testTimeout); err != nil {
		t.Fatalf("ExecNoFollow: %v", err)
	}
	if ch.State() != Executing {
		t.Fatalf("expected Executing, got %s", ch.State())
	}
	stdout, stderr, err := ch.Follow(testTimeout)
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if string(stdout) != "42\r\n" || len(stderr) != 0 {
		t.Fatalf("got stdout=%q stderr=%q", stdout, stderr)
	}
	if ch.State() != RawReady {
		t.Fatalf("expected RawReady after Follow, got %s", ch.State())
	}
	if err := ch.Exit(); err != nil {
		t.Fatalf("Exit: %v", err)
	}
	if ch.State() != Friendly {
		t.Fatalf("expected Friendly after Exit, got %s", ch.State())
	}
}

func TestFollowReportsRemoteException(t *testing.T) {
	client, board := boardsim.Pair()
	defer board.Close()

	go boardsim.Run(board, func(blob string) (string, string) {
		return "", "Traceback (most recent call last):\r\nValueError\r\n"
	})

	ch := New(client)
	if err := ch.Enter(testTimeout); err != nil {
		t.Fatalf("Enter: %v", err)
	}
	if err := ch.ExecNoFollow([]byte("raise ValueError\n"), testTimeout); err != nil {
		t.Fatalf("ExecNoFollow: %v", err)
	}
	_, stderr, err := ch.Follow(testTimeout)
	if err == nil {
		t.Fatal("expected RemoteException error")
	}
	if rerr.KindOf(err) != rerr.KindRemoteException {
		t.Fatalf("expected KindRemoteException, got %v", err)
	}
	if len(stderr) == 0 {
		t.Fatal("expected non-empty stderr")
	}
	// A remote exception still leaves the channel ready for Exit: the
	// board itself recovered to its raw prompt.
	if ch.State() != RawReady {
		t.Fatalf("expected RawReady after remote exception, got %s", ch.State())
	}
}

func TestOutOfStateCallIsProtocolError(t *testing.T) {
	client, board := boardsim.Pair()
	defer board.Close()
	go boardsim.Run(board, func(blob string) (string, string) { return "", "" })

	ch := New(client)
	_, _, err := ch.Follow(testTimeout)
	if err == nil {
		t.Fatal("expected error calling Follow from Friendly state")
	}
	if rerr.KindOf(err) != rerr.KindProtocolError {
		t.Fatalf("expected KindProtocolError, got %v", err)
	}
}

func TestDebugOutOfStateCallPanics(t *testing.T) {
	client, board := boardsim.Pair()
	defer board.Close()
	go boardsim.Run(board, func(blob string) (string, string) { return "", "" })

	ch := New(client)
	ch.Debug = true
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic in debug mode")
		}
	}()
	ch.Exit()
}

func TestTransportClosedDuringEnterClosesChannel(t *testing.T) {
	client, board := boardsim.Pair()
	board.Close() // closed before any traffic: Enter's write fails immediately

	ch := New(client)
	err := ch.Enter(testTimeout)
	if err == nil {
		t.Fatal("expected error")
	}
	if ch.State() != Closed {
		t.Fatalf("expected Closed, got %s", ch.State())
	}
	// Every subsequent call must keep failing with TransportClosed.
	if err := ch.Enter(testTimeout); rerr.KindOf(err) != rerr.KindTransportClosed {
		t.Fatalf("expected TransportClosed, got %v", err)
	}
}

func TestForceFriendlyFromRawReady(t *testing.T) {
	client, board := boardsim.Pair()
	defer board.Close()
	go boardsim.Run(board, func(blob string) (string, string) { return "", "" })

	ch := New(client)
	if err := ch.Enter(testTimeout); err != nil {
		t.Fatalf("Enter: %v", err)
	}
	ch.ForceFriendly()
	if ch.State() != Friendly {
		t.Fatalf("expected Friendly, got %s", ch.State())
	}
}
