package serialmux

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/jump.report/internal/timeutil"
)

const fixture = `# warm-up
READY

1,0
0,312.5
`

func TestReplaySerialMux(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	mux := NewReplaySerialMux([]byte(fixture), 50*time.Millisecond, clock)
	_, ch := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	for _, want := range []string{"READY", "1,0", "0,312.5"} {
		if got := receive(t, ch); got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}

	// the recording is exhausted but the port stays open and still
	// answers the init handshake
	if err := mux.Initialise(); err != nil {
		t.Fatalf("Initialise: %v", err)
	}
	if got := receive(t, ch); got != "READY" {
		t.Errorf("init answer = %q", got)
	}
	if !strings.Contains(mux.port.Written(), InitCommand) {
		t.Errorf("written = %q", mux.port.Written())
	}

	sleeps := clock.Sleeps()
	if len(sleeps) != 3 {
		t.Fatalf("expected 3 paced lines, got %d", len(sleeps))
	}
	for _, d := range sleeps {
		if d != 50*time.Millisecond {
			t.Errorf("sleep %v", d)
		}
	}

	if err := mux.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := mux.SendCommand("INIT"); err == nil {
		t.Error("expected write after close to fail")
	}
}
