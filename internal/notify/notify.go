package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"vetting/pkg/types"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Dispatcher hands a notification to whatever delivers it to the volunteer.
type Dispatcher interface {
	Dispatch(ctx context.Context, n types.Notification) error
}

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
}

// NATSDispatcher publishes notifications as JSON to a subject. The
// notification service consumes the subject and picks the channel.
type NATSDispatcher struct {
	conn    Publisher
	subject string
}

func NewNATSDispatcher(conn Publisher, subject string) *NATSDispatcher {
	return &NATSDispatcher{conn: conn, subject: subject}
}

func (d *NATSDispatcher) Dispatch(_ context.Context, n types.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	msg := nats.NewMsg(fmt.Sprintf("%s.%s", d.subject, n.Kind))
	msg.Header.Set("Check-Id", n.CheckID)
	msg.Data = data

	if err := d.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish notification for check %s: %w", n.CheckID, err)
	}
	return nil
}

// LogDispatcher writes notifications to the log. It is used when NATS_URL
// is not configured.
type LogDispatcher struct {
	logger logrus.FieldLogger
}

func NewLogDispatcher(logger logrus.FieldLogger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(_ context.Context, n types.Notification) error {
	d.logger.WithFields(logrus.Fields{
		"kind":         n.Kind,
		"check_id":     n.CheckID,
		"check_type":   n.CheckType,
		"status":       n.Status,
		"volunteer_id": n.Recipient.VolunteerID,
		"days_left":    n.DaysUntilExpiration,
	}).Info("notification")
	return nil
}
