// Package events carries change notifications out of the authorization
// engine. Every mutation publishes one Event; consumers subscribe either
// in-process (Dispatcher) or over Redis pub/sub (RedisPublisher).
//
// Delivery is best-effort. The engine's correctness never depends on an
// event arriving, so publishers are fire-and-forget from the caller's
// perspective.
package events
