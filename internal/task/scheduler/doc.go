// Package scheduler runs the publication loop.
//
// Each tick loads every post, evaluates the pending ones against the wall
// clock, publishes the due ones through a publish.Gateway, records outcomes
// and writes the whole snapshot back once. Outcome events are broadcast as
// soon as they are produced, before the snapshot is persisted.
//
// Ticks never overlap: the cron chain skips a trigger while the previous one
// is still running, and Tick itself refuses to start while another call is
// in flight.
package scheduler
