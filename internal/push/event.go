package push

import (
	"encoding/json"
	"fmt"

	"github.com/Mazart23/pet-book/internal/domain"
	"github.com/google/uuid"
)

// Event names emitted by the notifier.
const (
	EventScan     = "notification_scan"
	EventReaction = "notification_reaction"
	EventComment  = "notification_comment"
)

var eventTypes = map[string]domain.NotificationType{
	EventScan:     domain.NotificationScan,
	EventReaction: domain.NotificationReaction,
	EventComment:  domain.NotificationComment,
}

// envelope is one websocket text frame from the notifier.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// payload is the notification-shaped body of an event. Older notifier builds
// put the type-specific data under "guest", "reaction" or "comment" instead
// of "data" and leave out the id and type.
type payload struct {
	ID        string                  `json:"notification_id"`
	Type      domain.NotificationType `json:"notification_type"`
	Timestamp string                  `json:"timestamp"`
	Data      json.RawMessage         `json:"data"`

	Guest    json.RawMessage `json:"guest,omitempty"`
	Reaction json.RawMessage `json:"reaction,omitempty"`
	Comment  json.RawMessage `json:"comment,omitempty"`
}

func parseEvent(frame []byte) (string, domain.Notification, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return "", domain.Notification{}, fmt.Errorf("unmarshal envelope: %w", err)
	}

	typ, known := eventTypes[env.Event]
	if !known {
		return env.Event, domain.Notification{}, fmt.Errorf("unknown event %q", env.Event)
	}

	var p payload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return env.Event, domain.Notification{}, fmt.Errorf("unmarshal %s payload: %w", env.Event, err)
	}

	if p.Type == "" {
		p.Type = typ
	}
	if p.Type != typ {
		return env.Event, domain.Notification{}, fmt.Errorf("%s carries notification_type %q", env.Event, p.Type)
	}
	provisional := p.ID == ""
	if provisional {
		p.ID = uuid.NewString()
	}

	data := p.Data
	if len(data) == 0 {
		switch typ {
		case domain.NotificationScan:
			data = p.Guest
		case domain.NotificationReaction:
			data = p.Reaction
		case domain.NotificationComment:
			data = p.Comment
		}
	}

	n, err := domain.DecodeNotification(p.ID, p.Type, p.Timestamp, data)
	if err != nil {
		return env.Event, domain.Notification{}, err
	}
	n.Provisional = provisional
	return env.Event, n, nil
}
