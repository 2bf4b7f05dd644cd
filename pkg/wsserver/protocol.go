package wsserver

// Message type constants for the WebSocket protocol
const (
	// Client -> Server message types
	MsgTypePing = "ping"

	// Server -> Client event types
	EventState           = "state"            // Full bridge state snapshot
	EventDepositSeen     = "deposit_seen"     // A deposit was published to the relayer
	EventMirrorSubmitted = "mirror_submitted" // A mirror transaction was submitted
	EventMirrorConfirmed = "mirror_confirmed" // A mirror transaction was confirmed
	EventMirrorFailed    = "mirror_failed"    // A mirror attempt failed
	EventPong            = "pong"             // Response to ping
)
