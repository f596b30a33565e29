// Package events defines the presence and notification payloads exchanged over Kafka.
package events

import "time"

// Event types carried in the event_type header.
const (
	TypePresenceEntered       = "presence.entered"
	TypePresenceLeft          = "presence.left"
	TypePresenceSnapshot      = "presence.snapshot"
	TypeAreaStatusChanged     = "area.status_changed"
	TypeNotificationRequested = "notification.requested"
)

// HeaderEventType names the Kafka header holding the event type.
const HeaderEventType = "event_type"

// PresenceChanged is emitted when a member joins or leaves an area.
type PresenceChanged struct {
	UserID     string    `json:"user_id"`
	AreaID     string    `json:"area_id"`
	Bot        bool      `json:"bot,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Member is one entry of a presence snapshot.
type Member struct {
	UserID string `json:"user_id"`
	Bot    bool   `json:"bot,omitempty"`
}

// PresenceSnapshot lists everyone currently inside an area.
type PresenceSnapshot struct {
	AreaID  string    `json:"area_id"`
	Members []Member  `json:"members"`
	TakenAt time.Time `json:"taken_at"`
}

// AreaStatusChanged is emitted when the free-text status of an area changes.
// ChangedBy is empty when the gateway could not attribute the change.
type AreaStatusChanged struct {
	AreaID     string    `json:"area_id"`
	Status     string    `json:"status"`
	ChangedBy  string    `json:"changed_by,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NotificationRequested asks the chat gateway to post a message to a channel.
type NotificationRequested struct {
	NotificationID string    `json:"notification_id"`
	Channel        string    `json:"channel"`
	Kind           string    `json:"kind"`
	UserID         string    `json:"user_id,omitempty"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
}
