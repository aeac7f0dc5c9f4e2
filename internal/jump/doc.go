// Package jump owns the jump-test acquisition core: the session state, the
// contact/airborne state machine and the jump records it produces.
//
// Responsibilities: noise rejection, jump record lifecycle (creation,
// completion, soft exclusion), per sub-test running averages.
// Key types: Session, Event, JumpRecord, Config.
//
// Dependency rule: jump may depend on jump/metrics only. No I/O, logging,
// goroutines or clocks are allowed in this package; timestamps arrive with
// the events. Sub-test sequencing and rosters live in jump/protocol, result
// assembly in jump/result.
package jump
