package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"

	"betmirror/domain/entities"
	"betmirror/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// NATSNotificationSender hands notifications to the delivery service over NATS
type NATSNotificationSender struct {
	publisher MessagePublisher
	subject   string
}

var _ interfaces.NotificationSender = (*NATSNotificationSender)(nil)

// NewNATSNotificationSender creates a sender publishing on notifications.send
func NewNATSNotificationSender(publisher MessagePublisher) *NATSNotificationSender {
	return &NATSNotificationSender{
		publisher: publisher,
		subject:   SubjectNotificationsSend,
	}
}

// Send publishes one notification
func (s *NATSNotificationSender) Send(ctx context.Context, notification entities.Notification) error {
	data, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := s.publisher.Publish(ctx, s.subject, data); err != nil {
		return fmt.Errorf("failed to send %s notification to fid %d: %w", notification.Type, notification.RecipientFID, err)
	}
	return nil
}

// LogNotificationSender writes notifications to the log. It is used when no
// message bus is configured.
type LogNotificationSender struct{}

var _ interfaces.NotificationSender = LogNotificationSender{}

// Send logs the notification
func (LogNotificationSender) Send(ctx context.Context, notification entities.Notification) error {
	log.WithFields(log.Fields{
		"recipient_fid": notification.RecipientFID,
		"type":          notification.Type,
		"bet_number":    notification.BetNumber,
	}).Info("Notification (no transport configured)")
	return nil
}
