// Package contactmat parses the line protocol spoken by the contact mat.
//
// Each line is one of:
//
//	1,1532.25                              signal,timestamp in ms
//	{"signal":1,"timestamp_ms":1532.25}    same, JSON framed
//	READY                                  sensor armed
//	ERR <text> / ERROR <text>              sensor fault
//	HB                                     heartbeat
//
// Signal 0 is contact, 1 is airborne. Timestamps come from the mat's own
// monotonic clock.
package contactmat

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/jump.report/internal/jump"
)

var ErrUnknownLine = errors.New("unknown contact mat line")

// Kind classifies a line.
type Kind string

const (
	KindSignal    Kind = "signal"
	KindReady     Kind = "ready"
	KindError     Kind = "error"
	KindHeartbeat Kind = "heartbeat"
)

// Reading is one parsed line.
type Reading struct {
	Kind   Kind
	Signal jump.Signal
	At     time.Duration
	// Message is the text after ERR/ERROR.
	Message string
}

type jsonLine struct {
	Signal      *int     `json:"signal"`
	TimestampMS *float64 `json:"timestamp_ms"`
}

// ParseLine classifies and decodes a single line. Surrounding whitespace is
// ignored. Lines matching no form return an error wrapping ErrUnknownLine.
func ParseLine(line string) (Reading, error) {
	line = strings.TrimSpace(line)
	upper := strings.ToUpper(line)

	switch {
	case line == "":
		return Reading{}, fmt.Errorf("%w: empty", ErrUnknownLine)
	case upper == "READY":
		return Reading{Kind: KindReady}, nil
	case upper == "HB":
		return Reading{Kind: KindHeartbeat}, nil
	case upper == "ERR" || upper == "ERROR":
		return Reading{Kind: KindError}, nil
	case strings.HasPrefix(upper, "ERR ") || strings.HasPrefix(upper, "ERROR "):
		_, msg, _ := strings.Cut(line, " ")
		return Reading{Kind: KindError, Message: strings.TrimSpace(msg)}, nil
	case strings.HasPrefix(line, "{"):
		return parseJSON(line)
	case strings.Contains(line, ","):
		return parseCSV(line)
	}
	return Reading{}, fmt.Errorf("%w: %q", ErrUnknownLine, line)
}

func parseCSV(line string) (Reading, error) {
	sig, ts, _ := strings.Cut(line, ",")
	s, err := strconv.Atoi(strings.TrimSpace(sig))
	if err != nil {
		return Reading{}, fmt.Errorf("%w: bad signal in %q", ErrUnknownLine, line)
	}
	ms, err := strconv.ParseFloat(strings.TrimSpace(ts), 64)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: bad timestamp in %q", ErrUnknownLine, line)
	}
	return signalReading(s, ms)
}

func parseJSON(line string) (Reading, error) {
	var v jsonLine
	if err := json.Unmarshal([]byte(line), &v); err != nil {
		return Reading{}, fmt.Errorf("%w: %v", ErrUnknownLine, err)
	}
	if v.Signal == nil || v.TimestampMS == nil {
		return Reading{}, fmt.Errorf("%w: json line needs signal and timestamp_ms", ErrUnknownLine)
	}
	return signalReading(*v.Signal, *v.TimestampMS)
}

func signalReading(s int, ms float64) (Reading, error) {
	if s != int(jump.SignalContact) && s != int(jump.SignalAirborne) {
		return Reading{}, fmt.Errorf("%w: signal %d", ErrUnknownLine, s)
	}
	if ms < 0 || math.IsNaN(ms) || math.IsInf(ms, 0) {
		return Reading{}, fmt.Errorf("%w: timestamp %v", ErrUnknownLine, ms)
	}
	return Reading{
		Kind:   KindSignal,
		Signal: jump.Signal(s),
		At:     time.Duration(math.Round(ms * float64(time.Millisecond))),
	}, nil
}

// Event converts the reading into a state machine event. Heartbeats carry
// no event.
func (r Reading) Event() (jump.Event, bool) {
	switch r.Kind {
	case KindSignal:
		ev, err := jump.SignalEvent(r.Signal, r.At)
		return ev, err == nil
	case KindReady:
		return jump.Event{Type: jump.EventReady}, true
	case KindError:
		return jump.Event{Type: jump.EventDeviceError}, true
	}
	return jump.Event{}, false
}

// Format renders a signal in the CSV form ParseLine accepts.
func Format(s jump.Signal, at time.Duration) string {
	ms := float64(at) / float64(time.Millisecond)
	return fmt.Sprintf("%d,%s", s, strconv.FormatFloat(ms, 'f', -1, 64))
}

// ReadEvents parses a recorded session. Blank lines and lines starting with
// # are skipped, as are heartbeats. Any other unparsable line is an error
// naming its line number.
func ReadEvents(r io.Reader) ([]jump.Event, error) {
	var events []jump.Event
	scan := bufio.NewScanner(r)
	n := 0
	for scan.Scan() {
		n++
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		reading, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		if ev, ok := reading.Event(); ok {
			events = append(events, ev)
		}
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return events, nil
}
