package rpc

import (
	"strings"
	"testing"
	"time"

	"github.com/micronext/upy-shell/internal/boardsim"
	"github.com/micronext/upy-shell/internal/rawrepl"
	"github.com/micronext/upy-shell/internal/rerr"
)

const testTimeout = 2 * time.Second

func TestCallEvalRoundTrip(t *testing.T) {
	client, board := boardsim.Pair()
	defer board.Close()
	go boardsim.Run(board, func(blob string) (string, string) {
		if !strings.Contains(blob, "def board_name(") {
			t.Errorf("unexpected blob: %q", blob)
		}
		return "'pyboard'\r\n", ""
	})

	ch := rawrepl.New(client)
	f := New(ch, Caps{HasBinaryStdio: true}, 512, testTimeout)
	v, err := f.CallEval("def board_name():\n    return 'pyboard'\n", "board_name", nil, nil)
	if err != nil {
		t.Fatalf("CallEval: %v", err)
	}
	if v != "pyboard" {
		t.Fatalf("got %#v", v)
	}
}

func TestCallEvalNoneResult(t *testing.T) {
	client, board := boardsim.Pair()
	defer board.Close()
	go boardsim.Run(board, func(blob string) (string, string) { return "", "" })

	ch := rawrepl.New(client)
	f := New(ch, Caps{}, 512, testTimeout)
	v, err := f.CallEval("def noop():\n    pass\n", "noop", nil, nil)
	if err != nil {
		t.Fatalf("CallEval: %v", err)
	}
	if v != nil {
		t.Fatalf("expected nil result, got %#v", v)
	}
}

func TestBuildBlobSubstitutesPlaceholders(t *testing.T) {
	f := New(rawrepl.New(nil), Caps{HasBinaryStdio: true}, 256, testTimeout)
	blob := f.buildBlob("def f():\n    return (TIME_OFFSET, HAS_BUFFER, BUFFER_SIZE, IS_UPY)\n", "f", nil)
	if !strings.Contains(blob, "946684800") {
		t.Fatalf("TIME_OFFSET not substituted: %q", blob)
	}
	if !strings.Contains(blob, "True") {
		t.Fatalf("HAS_BUFFER/IS_UPY not substituted: %q", blob)
	}
	if !strings.Contains(blob, "256") {
		t.Fatalf("BUFFER_SIZE not substituted: %q", blob)
	}
}

func TestBuildBlobEncodesArgs(t *testing.T) {
	f := New(rawrepl.New(nil), Caps{}, 512, testTimeout)
	blob := f.buildBlob("def f(a, b, c):\n    pass\n", "f", []any{"it's", 5, true})
	if !strings.Contains(blob, `f('it\'s', 5, True)`) {
		t.Fatalf("unexpected arg encoding: %q", blob)
	}
}

func TestRawArgBypassesQuoting(t *testing.T) {
	f := New(rawrepl.New(nil), Caps{}, 512, testTimeout)
	blob := f.buildBlob("def f(a):\n    pass\n", "f", []any{RawArg("(2024, 1, 1, 1, 0, 0, 0, 0)")})
	if !strings.Contains(blob, "f((2024, 1, 1, 1, 0, 0, 0, 0))") {
		t.Fatalf("RawArg was quoted: %q", blob)
	}
}

func TestCallEvalUnparsableResultIsProtocolError(t *testing.T) {
	client, board := boardsim.Pair()
	defer board.Close()
	go boardsim.Run(board, func(blob string) (string, string) { return "not valid python", "" })

	ch := rawrepl.New(client)
	f := New(ch, Caps{}, 512, testTimeout)
	_, err := f.CallEval("def f():\n    pass\n", "f", nil, nil)
	if err == nil {
		t.Fatal("expected unparsable-result error")
	}
	if rerr.KindOf(err) != rerr.KindProtocolError {
		t.Fatalf("expected KindProtocolError, got %v", err)
	}
}
