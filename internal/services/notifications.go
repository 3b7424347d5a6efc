package services

import (
	"log"
	"sync"
	"time"

	"schemacanvas/internal/models"
)

const defaultNotificationLimit = 200

// NotificationLog keeps the most recent user-facing messages of a session. Sequence numbers
// keep growing after old entries are evicted, so clients can poll with Since.
type NotificationLog struct {
	mu    sync.Mutex
	seq   uint64
	limit int
	items []models.Notification
	now   func() time.Time
}

func NewNotificationLog(limit int) *NotificationLog {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	return &NotificationLog{limit: limit, now: time.Now}
}

func (l *NotificationLog) Notify(severity models.Severity, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	l.items = append(l.items, models.Notification{
		Seq:      l.seq,
		Severity: severity,
		Message:  message,
		At:       l.now(),
	})
	if over := len(l.items) - l.limit; over > 0 {
		l.items = append([]models.Notification(nil), l.items[over:]...)
	}
	if severity == models.SeverityError || severity == models.SeverityWarning {
		log.Printf("%s: %s", severity, message)
	}
}

// Since returns the notifications with a sequence number greater than seq.
func (l *NotificationLog) Since(seq uint64) []models.Notification {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.Notification, 0)
	for _, n := range l.items {
		if n.Seq > seq {
			out = append(out, n)
		}
	}
	return out
}

func (l *NotificationLog) Last() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}
