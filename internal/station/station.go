// Package station runs one testing station: it feeds contact mat lines into
// a protocol controller, exposes the operator actions, persists finished
// results and broadcasts status to live subscribers.
package station

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/banshee-data/jump.report/internal/contactmat"
	"github.com/banshee-data/jump.report/internal/db"
	"github.com/banshee-data/jump.report/internal/jump"
	"github.com/banshee-data/jump.report/internal/jump/protocol"
	"github.com/banshee-data/jump.report/internal/jump/result"
	"github.com/banshee-data/jump.report/internal/monitoring"
	"github.com/banshee-data/jump.report/internal/serialmux"
	"github.com/banshee-data/jump.report/internal/timeutil"
)

// ErrIntervalOpen rejects a reconfiguration while the athlete is in the air
// or, in a rebound test, on the ground between two jumps.
var ErrIntervalOpen = errors.New("a jump interval is open")

const DefaultStallTimeout = 30 * time.Second

// ResultStore persists Completed Results.
type ResultStore interface {
	SaveResult(ctx context.Context, r db.StoredResult) error
}

// Initialiser re-arms the sensor after a device error.
type Initialiser interface {
	Initialise() error
}

type Options struct {
	Config jump.Config
	Roster []string

	// Store may be nil, in which case results are only kept in memory.
	Store ResultStore
	// Sensor may be nil.
	Sensor Initialiser
	Clock  timeutil.Clock
	Logger *zerolog.Logger

	// StallTimeout is how long the mat may stay silent during an active
	// test before it is treated as disconnected. Zero uses
	// DefaultStallTimeout.
	StallTimeout time.Duration
}

// Status is the controller status plus the id of the most recently
// persisted result.
type Status struct {
	protocol.Status
	LastResultID string `json:"last_result_id,omitempty"`
}

type Station struct {
	store        ResultStore
	sensor       Initialiser
	clock        timeutil.Clock
	log          zerolog.Logger
	stallTimeout time.Duration

	mu        sync.Mutex
	ctrl      *protocol.Controller
	lastInput time.Time
	lastID    string
	// resultIDs keeps one stored result per roster athlete, so repeated
	// snapshots of the same athlete replace each other.
	resultIDs map[string]string

	subMu       sync.Mutex
	subscribers map[string]chan Status
}

func New(opts Options) (*Station, error) {
	ctrl, err := protocol.New(opts.Config, opts.Roster)
	if err != nil {
		return nil, err
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	logger := *monitoring.Component("station")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	stall := opts.StallTimeout
	if stall <= 0 {
		stall = DefaultStallTimeout
	}
	return &Station{
		store:        opts.Store,
		sensor:       opts.Sensor,
		clock:        clock,
		log:          logger,
		stallTimeout: stall,
		ctrl:         ctrl,
		lastInput:    clock.Now(),
		resultIDs:    make(map[string]string),
		subscribers:  make(map[string]chan Status),
	}, nil
}

// Status returns the current status.
func (s *Station) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Station) statusLocked() Status {
	return Status{Status: s.ctrl.Status(), LastResultID: s.lastID}
}

// HandleLine applies one line from the contact mat. Any parsable line,
// heartbeats included, counts as sensor activity for the stall watchdog.
// Unknown lines are logged and returned as an error wrapping
// contactmat.ErrUnknownLine; they never change state.
func (s *Station) HandleLine(line string) (jump.Outcome, error) {
	reading, err := contactmat.ParseLine(line)
	if err != nil {
		s.log.Warn().Err(err).Msg("skipping contact mat line")
		return jump.Outcome{}, err
	}

	s.mu.Lock()
	s.lastInput = s.clock.Now()
	ev, ok := reading.Event()
	if !ok {
		st := s.ctrl.Status()
		s.mu.Unlock()
		return jump.Outcome{Phase: st.Phase, Ignored: true}, nil
	}
	out := s.ctrl.Apply(ev)
	st := s.statusLocked()
	s.mu.Unlock()

	if reading.Kind == contactmat.KindError {
		s.log.Error().Str("message", reading.Message).Msg("contact mat reported an error")
	}
	if out.Bounced {
		s.log.Debug().Dur("at", ev.At).Msg("landing rejected as bounce")
	}
	if !out.Ignored {
		s.broadcast(st)
	}
	return out, nil
}

// Run feeds every line published by mux into the station until ctx ends or
// the mux closes the subscription.
func (s *Station) Run(ctx context.Context, mux serialmux.SerialMuxInterface) error {
	id, lines := mux.Subscribe()
	defer mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			s.HandleLine(line)
		}
	}
}

// Watch raises a device error when the mat stays silent for longer than
// the stall timeout while a test is ready or running. It blocks until ctx
// ends.
func (s *Station) Watch(ctx context.Context) error {
	period := s.stallTimeout / 4
	if period < 10*time.Millisecond {
		period = 10 * time.Millisecond
	}
	ticker := s.clock.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			s.checkStall()
		}
	}
}

func (s *Station) checkStall() {
	s.mu.Lock()
	phase := s.ctrl.Status().Phase
	silent := s.clock.Since(s.lastInput)
	if (phase != jump.PhaseReady && phase != jump.PhaseJumping) || silent < s.stallTimeout {
		s.mu.Unlock()
		return
	}
	s.ctrl.Apply(jump.Event{Type: jump.EventDeviceError})
	st := s.statusLocked()
	s.mu.Unlock()

	s.log.Warn().Dur("silent", silent).Str("phase", string(phase)).Msg("contact mat stalled")
	s.broadcast(st)
}

// Finish closes the active sub-test. When that completes the protocol the
// result is persisted.
func (s *Station) Finish(ctx context.Context) (Status, error) {
	s.mu.Lock()
	s.lastInput = s.clock.Now()
	out, r, err := s.ctrl.Finish()
	var stored *db.StoredResult
	if err == nil && r != nil {
		stored = s.storedLocked(r)
	}
	st := s.statusLocked()
	s.mu.Unlock()

	if err != nil {
		return st, err
	}
	if out.Phase == jump.PhaseNoJumpsError {
		s.log.Info().Str("athlete", st.AthleteID).Int("sub_test", st.SubTest).Msg("finished with no jumps")
	}
	if stored != nil {
		err = s.persist(ctx, *stored)
	}
	if !out.Ignored {
		s.broadcast(st)
	}
	return st, err
}

// Retry reopens the active sub-test.
func (s *Station) Retry() Status {
	return s.mutate(func(c *protocol.Controller) { c.Retry() })
}

// Reinitialise recovers from a device error and re-arms the sensor.
func (s *Station) Reinitialise() (Status, error) {
	var out jump.Outcome
	st := s.mutate(func(c *protocol.Controller) { out = c.Reinitialise() })
	if out.Ignored || s.sensor == nil {
		return st, nil
	}
	if err := s.sensor.Initialise(); err != nil {
		s.log.Error().Err(err).Msg("failed to re-arm contact mat")
		return st, err
	}
	return st, nil
}

func (s *Station) NextSubTest() (bool, Status) {
	var moved bool
	st := s.mutate(func(c *protocol.Controller) { moved = c.NextSubTest() })
	return moved, st
}

func (s *Station) PrevSubTest() (bool, Status) {
	var moved bool
	st := s.mutate(func(c *protocol.Controller) { moved = c.PrevSubTest() })
	return moved, st
}

// ToggleJump flips the excluded flag of jump i of the active sub-test.
func (s *Station) ToggleJump(i int) (bool, Status) {
	var ok bool
	st := s.mutate(func(c *protocol.Controller) { ok = c.ToggleJump(i) })
	return ok, st
}

// NextAthlete snapshots the current athlete, persists the snapshot and
// moves on. It reports false at the end of the roster.
func (s *Station) NextAthlete(ctx context.Context) (bool, Status, error) {
	return s.moveAthlete(ctx, (*protocol.Controller).NextAthlete)
}

func (s *Station) PrevAthlete(ctx context.Context) (bool, Status, error) {
	return s.moveAthlete(ctx, (*protocol.Controller).PrevAthlete)
}

func (s *Station) moveAthlete(ctx context.Context, move func(*protocol.Controller) (bool, *result.Result, error)) (bool, Status, error) {
	s.mu.Lock()
	s.lastInput = s.clock.Now()
	moved, snap, err := move(s.ctrl)
	var stored *db.StoredResult
	if err == nil && snap != nil {
		stored = s.storedLocked(snap)
	}
	st := s.statusLocked()
	s.mu.Unlock()

	if err != nil {
		return false, st, err
	}
	if stored != nil {
		err = s.persist(ctx, *stored)
	}
	if moved {
		s.broadcast(st)
	}
	return moved, st, err
}

// Configure starts a new protocol. It fails with ErrIntervalOpen while a
// jump interval is open.
func (s *Station) Configure(cfg jump.Config, roster []string) (Status, error) {
	s.mu.Lock()
	if s.ctrl.Status().IntervalOpen {
		st := s.statusLocked()
		s.mu.Unlock()
		return st, ErrIntervalOpen
	}
	if err := s.ctrl.Reconfigure(cfg, roster); err != nil {
		st := s.statusLocked()
		s.mu.Unlock()
		return st, fmt.Errorf("configure: %w", err)
	}
	s.lastInput = s.clock.Now()
	s.lastID = ""
	s.resultIDs = make(map[string]string)
	st := s.statusLocked()
	s.mu.Unlock()

	s.log.Info().
		Str("test_type", string(cfg.TestType)).
		Int("athletes", len(roster)).
		Msg("session configured")
	s.broadcast(st)
	return st, nil
}

func (s *Station) mutate(fn func(*protocol.Controller)) Status {
	s.mu.Lock()
	s.lastInput = s.clock.Now()
	fn(s.ctrl)
	st := s.statusLocked()
	s.mu.Unlock()

	s.broadcast(st)
	return st
}

// storedLocked assigns storage identity to r. Roster athletes keep one id
// for the whole configuration; anonymous results always get a new one.
func (s *Station) storedLocked(r *result.Result) *db.StoredResult {
	id := uuid.NewString()
	if r.AthleteID != "" {
		if prev, ok := s.resultIDs[r.AthleteID]; ok {
			id = prev
		} else {
			s.resultIDs[r.AthleteID] = id
		}
	}
	s.lastID = id
	return &db.StoredResult{
		ID:        id,
		AthleteID: r.AthleteID,
		CreatedAt: s.clock.Now().UTC(),
		Result:    r,
	}
}

func (s *Station) persist(ctx context.Context, r db.StoredResult) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.SaveResult(ctx, r); err != nil {
		s.log.Error().Err(err).Str("result_id", r.ID).Msg("failed to save result")
		return fmt.Errorf("save result: %w", err)
	}
	s.log.Info().
		Str("result_id", r.ID).
		Str("athlete", r.AthleteID).
		Str("test_type", string(r.Result.Type)).
		Float64("headline_cm", r.Result.HeadlineCM()).
		Msg("result saved")
	return nil
}
