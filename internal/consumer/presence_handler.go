package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"example.com/attendance/internal/domain"
	"example.com/attendance/internal/events"
)

// Lifecycle is the slice of domain.Controller the handler drives.
type Lifecycle interface {
	Entered(ctx context.Context, userID string, at time.Time) (bool, error)
	Left(ctx context.Context, userID string, at time.Time) ([]domain.Record, error)
	Recover(ctx context.Context, present []string) (int, error)
}

// StatusAnnouncer receives area status changes.
type StatusAnnouncer interface {
	AreaStatusChanged(ctx context.Context, status, changedBy string)
}

// PresenceHandler turns presence events for the monitored area into session
// lifecycle calls. Events for other areas and from bots are committed and dropped.
type PresenceHandler struct {
	lifecycle Lifecycle
	announcer StatusAnnouncer
	areaID    string
	logger    *log.Logger
}

// NewPresenceHandler constructs a handler for areaID. A nil announcer disables
// status announcements.
func NewPresenceHandler(lifecycle Lifecycle, announcer StatusAnnouncer, areaID string, logger *log.Logger) *PresenceHandler {
	if logger == nil {
		logger = log.New(log.Writer(), "[presence] ", log.LstdFlags|log.Lshortfile)
	}
	return &PresenceHandler{lifecycle: lifecycle, announcer: announcer, areaID: areaID, logger: logger}
}

// Handle dispatches msg by event type. Unknown types are ignored.
func (h *PresenceHandler) Handle(ctx context.Context, msg Message) error {
	switch msg.EventType {
	case events.TypePresenceEntered, events.TypePresenceLeft:
		var evt events.PresenceChanged
		if err := decodePayload(msg, &evt); err != nil {
			return err
		}
		if !h.accept(evt.AreaID, evt.Bot) {
			return nil
		}
		if evt.UserID == "" {
			return fmt.Errorf("%w: %s without user_id", ErrMalformedPayload, msg.EventType)
		}
		if msg.EventType == events.TypePresenceEntered {
			_, err := h.lifecycle.Entered(ctx, evt.UserID, evt.OccurredAt)
			return err
		}
		_, err := h.lifecycle.Left(ctx, evt.UserID, evt.OccurredAt)
		return err

	case events.TypePresenceSnapshot:
		var snap events.PresenceSnapshot
		if err := decodePayload(msg, &snap); err != nil {
			return err
		}
		if !h.accept(snap.AreaID, false) {
			return nil
		}
		present := make([]string, 0, len(snap.Members))
		for _, m := range snap.Members {
			if m.Bot {
				continue
			}
			present = append(present, m.UserID)
		}
		opened, err := h.lifecycle.Recover(ctx, present)
		if opened > 0 {
			h.logger.Printf("snapshot of %s opened %d sessions", snap.AreaID, opened)
		}
		return err

	case events.TypeAreaStatusChanged:
		var evt events.AreaStatusChanged
		if err := decodePayload(msg, &evt); err != nil {
			return err
		}
		if !h.accept(evt.AreaID, false) || h.announcer == nil {
			return nil
		}
		h.announcer.AreaStatusChanged(ctx, evt.Status, evt.ChangedBy)
		return nil

	default:
		recordIgnored("event_type")
		return nil
	}
}

func (h *PresenceHandler) accept(areaID string, bot bool) bool {
	if bot {
		recordIgnored("bot")
		return false
	}
	if h.areaID != "" && areaID != h.areaID {
		recordIgnored("area")
		return false
	}
	return true
}

func decodePayload(msg Message, v any) error {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, msg.EventType, err)
	}
	return nil
}
