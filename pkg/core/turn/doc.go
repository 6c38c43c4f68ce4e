// Package turn drives one voice conversation from the client side.
//
// An Orchestrator owns the transcript and moves through these states:
//
//	            StartCapture            StopCapture
//	  Idle ─────────────────▶ Recording ───────────▶ Submitting
//	   ▲  │                                             │   │
//	   │  └──────────────── SendText ──────────────────▶│   │ quota error
//	   │                                                │   ▼
//	   │◀──────── reply (muted), api error ─────────────┤  RateLimited
//	   │                                                │   │
//	   │◀──── playback ends ──── Speaking ◀── reply ────┘   │
//	   │                                                    │
//	   └──────────────────── window expires ◀───────────────┘
//
// Interrupt moves Submitting or Speaking straight back to Idle. It stops
// speech, abandons the pending submission and tells the gateway in the
// background; it never waits on the network.
//
// At most one recording or one submission is in flight at a time. A
// submission started while Speaking stops the current utterance first.
package turn
