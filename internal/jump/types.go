package jump

import (
	"errors"
	"fmt"
	"time"
)

// Signal is the binary contact mat reading.
type Signal int

const (
	SignalContact  Signal = 0
	SignalAirborne Signal = 1
)

// EventType identifies what a sensor event reports.
type EventType string

const (
	EventContact     EventType = "contact"      // feet on the mat
	EventAirborne    EventType = "airborne"     // feet left the mat
	EventReady       EventType = "ready"        // sensor confirmed it is listening
	EventDeviceError EventType = "device_error" // transport or sensor failure
)

// Event is one input to the state machine. At is a monotonic reading on the
// sensor's own clock; only differences between readings are meaningful.
type Event struct {
	Type EventType
	At   time.Duration
}

// SignalEvent converts a raw 0/1 reading into an Event.
func SignalEvent(s Signal, at time.Duration) (Event, error) {
	switch s {
	case SignalContact:
		return Event{Type: EventContact, At: at}, nil
	case SignalAirborne:
		return Event{Type: EventAirborne, At: at}, nil
	default:
		return Event{}, fmt.Errorf("invalid signal %d: expected 0 or 1", s)
	}
}

// Phase is the lifecycle phase of the active sub-test.
type Phase string

const (
	PhaseIdle         Phase = "idle"           // waiting for the sensor
	PhaseReady        Phase = "ready"          // on the mat, no open interval
	PhaseJumping      Phase = "jumping"        // airborne, one open interval
	PhaseFinished     Phase = "finished"       // sub-test closed with data
	PhaseDeviceError  Phase = "device_error"   // needs re-initialisation
	PhaseNoJumpsError Phase = "no_jumps_error" // finished with nothing recorded
)

// Terminal reports whether the phase ignores sensor signals until an
// explicit action reopens the sub-test.
func (p Phase) Terminal() bool {
	return p == PhaseFinished || p == PhaseDeviceError || p == PhaseNoJumpsError
}

// TestType selects the protocol.
type TestType string

const (
	TestSingle   TestType = "single"
	TestCombined TestType = "combined"
	TestDropJump TestType = "drop_jump"
	TestRebound  TestType = "rebound"
)

// ValidTestTypes lists every accepted TestType.
var ValidTestTypes = []TestType{TestSingle, TestCombined, TestDropJump, TestRebound}

// ParseTestType validates a test type name.
func ParseTestType(s string) (TestType, error) {
	for _, t := range ValidTestTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown test type %q: expected single, combined, drop_jump or rebound", s)
}

// JumpKind names the movement performed in a sub-test.
type JumpKind string

const (
	KindSquat           JumpKind = "squat_jump"
	KindCountermovement JumpKind = "countermovement_jump"
	KindAbalakov        JumpKind = "abalakov_jump"
	KindDrop            JumpKind = "drop_jump"
	KindRebound         JumpKind = "rebound_jump"
)

// CombinedParts is the fixed order of the three-part combined protocol.
var CombinedParts = [3]JumpKind{KindSquat, KindCountermovement, KindAbalakov}

// TakeoffFoot records which leg(s) the athlete jumps from.
type TakeoffFoot string

const (
	FootBoth  TakeoffFoot = "both"
	FootLeft  TakeoffFoot = "left"
	FootRight TakeoffFoot = "right"
)

// DefaultSensitivityMS is the minimum valid flight when none is configured.
const DefaultSensitivityMS = 100

var (
	ErrNoDropHeights = errors.New("drop jump test requires at least one drop height")
	ErrSensitivity   = errors.New("sensitivity must be positive")
)

// Config is the session configuration fixed at session start. It survives
// every soft reset.
type Config struct {
	TestType      TestType    `json:"test_type" msgpack:"test_type"`
	SensitivityMS float64     `json:"sensitivity_ms" msgpack:"sensitivity_ms"`
	DropHeightsCM []float64   `json:"drop_heights_cm,omitempty" msgpack:"drop_heights_cm,omitempty"`
	TakeoffFoot   TakeoffFoot `json:"takeoff_foot,omitempty" msgpack:"takeoff_foot,omitempty"`
	// Kind is the movement of a single test; defaults to countermovement.
	Kind JumpKind `json:"kind,omitempty" msgpack:"kind,omitempty"`
}

// WithDefaults fills unset optional fields.
func (c Config) WithDefaults() Config {
	if c.SensitivityMS == 0 {
		c.SensitivityMS = DefaultSensitivityMS
	}
	if c.TakeoffFoot == "" {
		c.TakeoffFoot = FootBoth
	}
	if c.TestType == TestSingle && c.Kind == "" {
		c.Kind = KindCountermovement
	}
	return c
}

// Validate checks the configuration can drive a session.
func (c Config) Validate() error {
	if _, err := ParseTestType(string(c.TestType)); err != nil {
		return err
	}
	if c.SensitivityMS <= 0 {
		return fmt.Errorf("%w, got %v", ErrSensitivity, c.SensitivityMS)
	}
	if c.TestType == TestDropJump {
		if len(c.DropHeightsCM) == 0 {
			return ErrNoDropHeights
		}
		seen := make(map[float64]bool, len(c.DropHeightsCM))
		for i, h := range c.DropHeightsCM {
			if h <= 0 {
				return fmt.Errorf("drop height %d must be positive, got %v", i, h)
			}
			if seen[h] {
				return fmt.Errorf("drop height %v cm is listed twice", h)
			}
			seen[h] = true
		}
	}
	switch c.TakeoffFoot {
	case "", FootBoth, FootLeft, FootRight:
	default:
		return fmt.Errorf("unknown takeoff foot %q", c.TakeoffFoot)
	}
	return nil
}

// SubTestCount is the number of sub-tests the protocol runs.
func (c Config) SubTestCount() int {
	switch c.TestType {
	case TestCombined:
		return len(CombinedParts)
	case TestDropJump:
		return len(c.DropHeightsCM)
	default:
		return 1
	}
}

// Composite reports whether the protocol has more than one sub-test slot.
func (c Config) Composite() bool {
	return c.TestType == TestCombined || c.TestType == TestDropJump
}

// SubTestKind returns the movement performed in sub-test i.
func (c Config) SubTestKind(i int) JumpKind {
	switch c.TestType {
	case TestCombined:
		if i >= 0 && i < len(CombinedParts) {
			return CombinedParts[i]
		}
		return ""
	case TestDropJump:
		return KindDrop
	case TestRebound:
		return KindRebound
	default:
		return c.Kind
	}
}

// thresholdSeconds is the minimum valid flight time.
func (c Config) thresholdSeconds() float64 {
	return c.SensitivityMS / 1000
}
