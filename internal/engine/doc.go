// Package engine implements the scan scheduler that drives an app.
//
// ARCHITECTURE:
//
// Single-threaded scan loop:
// One goroutine runs the loop. Every cycle walks the component tree depth
// first, propagating links into each component immediately before its
// execute step, then polls the services for background work until the
// guard time before the next deadline. Component and service code is
// cooperative: it must return promptly and is never preempted.
//
// Cycle protocol:
//  1. deadline += scanPeriod
//  2. walk: children (if the gate allows), propagate, execute
//  3. apply Add/Remove requests queued during the walk
//  4. poll services until no work is pending or the guard time is reached
//  5. hibernate if every service allows it, yield if the platform requires
//     it, otherwise sleep until the deadline
//
// Hibernate and yield are not errors: Resume returns a status.Result with
// Kind Hibernated or Yielded and the host calls Resume again when it wants
// the loop to continue.
//
// Time is read from a Clock so tests can drive the loop without sleeping.
package engine
