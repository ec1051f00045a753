package types

type NotificationKind string

const (
	NotificationExpiring NotificationKind = "expiring"
	NotificationExpired  NotificationKind = "expired"
	NotificationStatus   NotificationKind = "status"
)

// Notification is what the lifecycle manager asks the notification
// subsystem to deliver. Transport is not decided here.
type Notification struct {
	Recipient           Contact          `json:"recipient"`
	Kind                NotificationKind `json:"kind"`
	CheckID             string           `json:"checkId"`
	CheckType           CheckType        `json:"checkType"`
	Status              CheckStatus      `json:"status,omitempty"`
	DaysUntilExpiration int              `json:"daysUntilExpiration"`
}
