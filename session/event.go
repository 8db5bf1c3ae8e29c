package session

import (
	"fmt"
	"strconv"
	"strings"
)

// EventsChannel is the pub/sub channel shared with the character-select
// front ends. Front ends publish login and logout; the char server
// publishes kick and the owning front end drops the account.
const EventsChannel = "session:events"

// EventKind names a session event.
type EventKind string

const (
	EventLogin  EventKind = "login"
	EventLogout EventKind = "logout"
	EventKick   EventKind = "kick"
)

// Event is one message on EventsChannel, encoded as
// "<kind>:<account_id>" with ":<remote>" appended for logins.
type Event struct {
	Kind      EventKind
	AccountID int32
	Remote    string
}

func (e Event) String() string {
	s := fmt.Sprintf("%s:%d", e.Kind, e.AccountID)
	if e.Remote != "" {
		s += ":" + e.Remote
	}
	return s
}

// ParseEvent decodes a payload read from EventsChannel.
func ParseEvent(payload string) (Event, error) {
	parts := strings.SplitN(payload, ":", 3)
	if len(parts) < 2 {
		return Event{}, fmt.Errorf("session event %q: missing account id", payload)
	}
	kind := EventKind(parts[0])
	switch kind {
	case EventLogin, EventLogout, EventKick:
	default:
		return Event{}, fmt.Errorf("session event %q: unknown kind", payload)
	}
	id, err := strconv.ParseInt(parts[1], 10, 32)
	if err != nil || id <= 0 {
		return Event{}, fmt.Errorf("session event %q: bad account id", payload)
	}
	ev := Event{Kind: kind, AccountID: int32(id)}
	if len(parts) == 3 {
		ev.Remote = parts[2]
	}
	return ev, nil
}
