package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NotificationType discriminates the Data payload of a Notification.
type NotificationType string

const (
	NotificationComment  NotificationType = "comment"
	NotificationReaction NotificationType = "reaction"
	NotificationScan     NotificationType = "scan"
)

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationComment, NotificationReaction, NotificationScan:
		return true
	}
	return false
}

// CommentNotice is the data of a comment notification.
type CommentNotice struct {
	PostID    string `json:"post_id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username,omitempty"`
	CommentID string `json:"comment_id"`
	Content   string `json:"content"`
}

// ReactionNotice is the data of a reaction notification.
type ReactionNotice struct {
	PostID       string       `json:"post_id"`
	UserID       string       `json:"user_id"`
	Username     string       `json:"username,omitempty"`
	ReactionType ReactionKind `json:"reaction_type"`
}

// ScanNotice is the data of a QR scan notification: where the pet's code was
// scanned.
type ScanNotice struct {
	IP        string `json:"ip,omitempty"`
	City      string `json:"city"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

// Notification is one entry of the user's notification feed. Exactly one of
// Comment, Reaction, Scan is set, matching Type.
type Notification struct {
	ID        string
	Type      NotificationType
	Timestamp string

	Comment  *CommentNotice
	Reaction *ReactionNotice
	Scan     *ScanNotice

	// Provisional is set when ID was made up locally because the push channel
	// delivered the notification without one. The backend does not know ID.
	Provisional bool
}

func (n Notification) ItemID() string        { return n.ID }
func (n Notification) ItemTimestamp() string { return n.Timestamp }

// HasServerID reports whether ID is the backend's id.
func (n Notification) HasServerID() bool { return !n.Provisional }

// MatchKey identifies the notification by content so a pushed copy without a
// server id can be matched with the stored one. It covers only the fields
// both channels carry: pulled scans have no IP and names may be missing.
func (n Notification) MatchKey() string {
	parts := []string{string(n.Type), n.Timestamp}
	switch {
	case n.Comment != nil:
		parts = append(parts, n.Comment.PostID, n.Comment.UserID, n.Comment.CommentID, n.Comment.Content)
	case n.Reaction != nil:
		parts = append(parts, n.Reaction.PostID, n.Reaction.UserID, string(n.Reaction.ReactionType))
	case n.Scan != nil:
		parts = append(parts, n.Scan.City, n.Scan.Latitude, n.Scan.Longitude)
	}
	return strings.Join(parts, "\x1f")
}

type notificationWire struct {
	ID        string           `json:"notification_id"`
	Type      NotificationType `json:"notification_type"`
	Timestamp string           `json:"timestamp"`
	Data      json.RawMessage  `json:"data"`
}

// UnmarshalJSON decodes the backend's polymorphic notification shape.
func (n *Notification) UnmarshalJSON(b []byte) error {
	var w notificationWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	decoded, err := DecodeNotification(w.ID, w.Type, w.Timestamp, w.Data)
	if err != nil {
		return err
	}
	*n = decoded
	return nil
}

// MarshalJSON encodes n back into the backend's shape.
func (n Notification) MarshalJSON() ([]byte, error) {
	var data any
	switch n.Type {
	case NotificationComment:
		data = n.Comment
	case NotificationReaction:
		data = n.Reaction
	case NotificationScan:
		data = n.Scan
	default:
		return nil, fmt.Errorf("unknown notification type %q", n.Type)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(notificationWire{
		ID:        n.ID,
		Type:      n.Type,
		Timestamp: n.Timestamp,
		Data:      raw,
	})
}

// DecodeNotification builds a Notification from its envelope fields and the
// raw data payload selected by typ.
func DecodeNotification(id string, typ NotificationType, timestamp string, data json.RawMessage) (Notification, error) {
	n := Notification{ID: id, Type: typ, Timestamp: timestamp}
	if len(data) == 0 {
		return Notification{}, fmt.Errorf("notification %s: missing data", id)
	}

	var err error
	switch typ {
	case NotificationComment:
		n.Comment = &CommentNotice{}
		err = json.Unmarshal(data, n.Comment)
	case NotificationReaction:
		n.Reaction = &ReactionNotice{}
		err = json.Unmarshal(data, n.Reaction)
	case NotificationScan:
		n.Scan = &ScanNotice{}
		err = json.Unmarshal(data, n.Scan)
	default:
		return Notification{}, fmt.Errorf("notification %s: unknown type %q", id, typ)
	}
	if err != nil {
		return Notification{}, fmt.Errorf("notification %s: unmarshal %s data: %w", id, typ, err)
	}
	return n, nil
}

// AsComment converts a comment notification into the Comment it announces.
func (n Notification) AsComment() (Comment, bool) {
	if n.Type != NotificationComment || n.Comment == nil {
		return Comment{}, false
	}
	return Comment{
		ID:        n.Comment.CommentID,
		PostID:    n.Comment.PostID,
		Content:   n.Comment.Content,
		User:      User{ID: n.Comment.UserID, Username: n.Comment.Username},
		Timestamp: n.Timestamp,
	}, true
}
