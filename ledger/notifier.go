package ledger

type EventType string

const (
	EventSessionCreated    EventType = "session_created"
	EventParticipantJoined EventType = "participant_joined"
	EventTransferApplied   EventType = "transfer_applied"
	EventTransferUpdated   EventType = "transfer_updated"
	EventTransferDeleted   EventType = "transfer_deleted"
	EventSessionEnded      EventType = "session_ended"
)

// Event is a state change pushed to observers. Delivery is best-effort;
// observers that miss events re-read state with Service.State.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Data      any       `json:"data"`
}

// Scoped reports whether the event goes only to subscribers of SessionID.
// Session creation is announced to everyone so lobbies stay fresh.
func (e Event) Scoped() bool {
	return e.Type != EventSessionCreated
}

// Notifier must not block; Publish is called after a commit while
// per-account locks are held.
type Notifier interface {
	Publish(ev Event)
}

type NopNotifier struct{}

func (NopNotifier) Publish(Event) {}
