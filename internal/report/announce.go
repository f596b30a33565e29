package report

import (
	"context"
	"log"
	"time"

	"example.com/attendance/internal/domain"
	"example.com/attendance/internal/notify"
)

// Announcer posts session and area notices. Delivery failures are logged and
// never reach the caller.
type Announcer struct {
	notifier notify.Notifier
	channel  string
	logger   *log.Logger
}

// NewAnnouncer constructs an Announcer. A nil logger gets the "[announce] " default.
func NewAnnouncer(notifier notify.Notifier, channel string, logger *log.Logger) *Announcer {
	if logger == nil {
		logger = log.New(log.Writer(), "[announce] ", log.LstdFlags|log.Lshortfile)
	}
	return &Announcer{notifier: notifier, channel: channel, logger: logger}
}

// SessionStarted implements domain.Observer.
func (a *Announcer) SessionStarted(ctx context.Context, userID string, _ time.Time) {
	a.post(ctx, notify.KindSessionStarted, userID, RenderSessionStarted(userID))
}

// SessionCompleted implements domain.Observer.
func (a *Announcer) SessionCompleted(ctx context.Context, userID string, _ []domain.Record, totals []domain.DayTotal) {
	a.post(ctx, notify.KindSessionCompleted, userID, RenderSessionCompleted(userID, totals))
}

// AreaStatusChanged posts the new status of the monitored area. An empty
// status clears the room and is not announced.
func (a *Announcer) AreaStatusChanged(ctx context.Context, status, changedBy string) {
	if status == "" {
		return
	}
	a.post(ctx, notify.KindAreaStatus, changedBy, RenderAreaStatus(status, changedBy))
}

func (a *Announcer) post(ctx context.Context, kind, userID, text string) {
	err := a.notifier.Notify(ctx, notify.Notification{Channel: a.channel, Kind: kind, UserID: userID, Text: text})
	if err != nil {
		a.logger.Printf("notify %s for %s: %v", kind, userID, err)
	}
}
