// Package notify fans outcome events out to live subscribers.
//
// Contract:
//   - Broadcast never blocks; a subscriber whose buffer is full misses that
//     event and nobody else is affected.
//   - Unsubscribe is idempotent and closes the subscriber channel.
//   - A new subscriber gets exactly one "connected" info event of its own.
package notify
