package serialmux

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/jump.report/internal/contactmat"
	"github.com/banshee-data/jump.report/internal/jump"
	"github.com/banshee-data/jump.report/internal/monitoring"
	"github.com/banshee-data/jump.report/internal/timeutil"
)

// DisabledSerialMux runs the station with no mat attached. Nothing is read
// from hardware; lines arrive only through Inject, which the debug page
// exposes for bench testing. Commands are logged and dropped.
type DisabledSerialMux struct {
	mu          sync.Mutex
	subscribers map[string]chan string
	closed      bool
	commands    []string

	// clock stamps signals injected without a timestamp, relative to start.
	clock timeutil.Clock
	start time.Time
}

func NewDisabledSerialMux() *DisabledSerialMux {
	return NewDisabledSerialMuxWithClock(timeutil.RealClock{})
}

func NewDisabledSerialMuxWithClock(clock timeutil.Clock) *DisabledSerialMux {
	return &DisabledSerialMux{
		subscribers: make(map[string]chan string),
		clock:       clock,
		start:       clock.Now(),
	}
}

// InjectSignal publishes a signal line stamped with the time elapsed since
// the mux was created, and returns the line.
func (d *DisabledSerialMux) InjectSignal(s jump.Signal) string {
	line := contactmat.Format(s, d.clock.Since(d.start))
	d.Inject(line)
	return line
}

// Subscribe returns a channel that is already closed once the mux is.
func (d *DisabledSerialMux) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, 64)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		close(ch)
	} else {
		d.subscribers[id] = ch
	}
	return id, ch
}

func (d *DisabledSerialMux) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subscribers[id]; ok {
		delete(d.subscribers, id)
		close(ch)
	}
}

// Inject publishes line as if the mat had sent it.
func (d *DisabledSerialMux) Inject(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range d.subscribers {
		select {
		case ch <- line:
		default:
		}
	}
}

func (d *DisabledSerialMux) SendCommand(command string) error {
	command = strings.TrimSpace(command)
	d.mu.Lock()
	d.commands = append(d.commands, command)
	d.mu.Unlock()
	monitoring.Component("serialmux").Debug().Str("command", command).Msg("mat disabled, command dropped")
	return nil
}

// Commands lists every command sent so far.
func (d *DisabledSerialMux) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

func (d *DisabledSerialMux) Initialise() error { return d.SendCommand(InitCommand) }

func (d *DisabledSerialMux) Monitor(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (d *DisabledSerialMux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	for id, ch := range d.subscribers {
		delete(d.subscribers, id)
		close(ch)
	}
	return nil
}

const injectForm = `<form method="post"><input name="line" placeholder="READY"> <button>inject</button></form>
<form method="post"><button name="signal" value="1">airborne</button> <button name="signal" value="0">contact</button></form>`

// AttachAdminRoutes serves /debug/inject. A POST carries either a raw line
// or a signal (0 or 1) stamped with the mux clock.
func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("inject", "inject a contact mat line (no mat attached)", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			fmt.Fprint(w, injectForm)
			return
		}
		if v := r.FormValue("signal"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || (jump.Signal(n) != jump.SignalContact && jump.Signal(n) != jump.SignalAirborne) {
				http.Error(w, "signal must be 0 or 1", http.StatusBadRequest)
				return
			}
			fmt.Fprintf(w, "Injected %q", d.InjectSignal(jump.Signal(n)))
			return
		}
		line := strings.TrimSpace(r.FormValue("line"))
		if line == "" {
			http.Error(w, "Missing line", http.StatusBadRequest)
			return
		}
		d.Inject(line)
		fmt.Fprintf(w, "Injected %q", line)
	})
}
