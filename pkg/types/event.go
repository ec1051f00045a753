package types

import "time"

type CheckEventKind string

const (
	CheckEventCreated           CheckEventKind = "created"
	CheckEventSubmitted         CheckEventKind = "submitted"
	CheckEventSubmitFailed      CheckEventKind = "submit_failed"
	CheckEventFallback          CheckEventKind = "fallback"
	CheckEventStatusChanged     CheckEventKind = "status_changed"
	CheckEventStatusSynthesized CheckEventKind = "status_synthesized"
	CheckEventRefreshFailed     CheckEventKind = "refresh_failed"
	CheckEventExpired           CheckEventKind = "expired"
	CheckEventReminderSent      CheckEventKind = "reminder_sent"
	CheckEventNotified          CheckEventKind = "notified"
	CheckEventStale             CheckEventKind = "stale"
	CheckEventArchived          CheckEventKind = "archived"
)

// CheckEvent is one entry of a background check's append-only audit trail.
type CheckEvent struct {
	ID        string         `db:"id" json:"id"`
	CheckID   string         `db:"check_id" json:"checkId"`
	Kind      CheckEventKind `db:"kind" json:"kind"`
	Status    CheckStatus    `db:"status" json:"status"`
	Detail    string         `db:"detail" json:"detail"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
}

// HasEvent reports whether events contains an entry with the given kind and
// detail.
func HasEvent(events []*CheckEvent, kind CheckEventKind, detail string) bool {
	for _, e := range events {
		if e.Kind == kind && e.Detail == detail {
			return true
		}
	}
	return false
}

// IsMarker reports whether events of kind k record a one-time side effect.
// At most one marker exists per check, kind and detail.
func (k CheckEventKind) IsMarker() bool {
	return k == CheckEventNotified || k == CheckEventReminderSent
}
