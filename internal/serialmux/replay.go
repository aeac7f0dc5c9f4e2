package serialmux

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/jump.report/internal/timeutil"
)

// ReplayPort plays a recorded session back as if a mat were attached. It
// answers InitCommand with READY the way the firmware does. Once the
// recording is exhausted the port stays open, silent, until Close.
type ReplayPort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer
	closed  bool
}

// NewReplaySerialMux replays the lines of fixture, pausing delay before
// each one on clock.
func NewReplaySerialMux(fixture []byte, delay time.Duration, clock timeutil.Clock) *SerialMux[*ReplayPort] {
	r, w := io.Pipe()
	p := &ReplayPort{r: r, w: w}

	go func() {
		scan := bufio.NewScanner(bytes.NewReader(fixture))
		for scan.Scan() {
			line := strings.TrimSpace(scan.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if delay > 0 {
				clock.Sleep(delay)
			}
			if _, err := io.WriteString(w, line+"\n"); err != nil {
				return
			}
		}
	}()

	return NewSerialMux(p)
}

func (p *ReplayPort) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

// Write records commands and acknowledges InitCommand.
func (p *ReplayPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	p.written.Write(b)
	p.mu.Unlock()

	if strings.TrimSpace(string(b)) == InitCommand {
		go io.WriteString(p.w, "READY\n")
	}
	return len(b), nil
}

// Written returns every command sent to the port.
func (p *ReplayPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

func (p *ReplayPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.w.Close()
	return p.r.Close()
}
