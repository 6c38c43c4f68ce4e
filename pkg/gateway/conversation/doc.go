// Package conversation holds the server side of a voice conversation: one
// Session per client session key, each wrapping a single remote dialogue.
//
// # Turn handling
//
// A Session opens its dialogue lazily on the first turn (or explicitly via
// Start). Text turns are forwarded as-is. Audio turns go through format
// negotiation: the same bytes are re-submitted under each candidate MIME type
// until a reply passes the acceptance predicate.
//
//	declared type ─► audio/webm ─► audio/mp4 ─► audio/mpeg ─► audio/wav ─► audio/ogg
//	      │              │             │             │            │            │
//	      └── accepted? ─┴─────────────┴─────────────┴────────────┴────────────┘
//	                     yes: success        exhausted: audio_processing_failed
//
// Clips below the minimum size are answered locally without any remote call.
//
// # Concurrency
//
// Submissions to one dialogue are serialized. Interrupt never waits for that
// lock: it cancels every in-flight call of the session, including calls still
// waiting for their turn. Every remote call is bounded by a timeout.
//
// # Throttling
//
// A quota error trips a per-session backoff.Guard. While the window is active
// submissions fail fast with a quota error carrying retry_after.
package conversation
