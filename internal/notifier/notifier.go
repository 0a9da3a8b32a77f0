// Package notifier emits cardholder security notices. Delivery (SMTP, push)
// is owned by downstream consumers of the notification topic.
package notifier

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/credential-payments/internal/interfaces"
	"github.com/akylbek/payment-system/credential-payments/internal/models"
	"github.com/akylbek/payment-system/credential-payments/internal/telemetry"
)

// EventNotifier publishes notices to models.TopicSecurityNotifications,
// keyed by account so a cardholder's notices stay ordered.
type EventNotifier struct {
	publisher interfaces.Publisher
	now       func() time.Time
}

func NewEventNotifier(publisher interfaces.Publisher) *EventNotifier {
	return &EventNotifier{publisher: publisher, now: time.Now}
}

func (n *EventNotifier) SendSecurityAlert(ctx context.Context, account *models.Account, req *models.PaymentRequest, failureCount int) error {
	event := n.event(models.NotificationSecurityAlert, account)
	event.PaymentRequestID = req.ID
	event.MerchantID = req.MerchantID
	event.FailureCount = failureCount
	return n.publisher.Publish(ctx, models.TopicSecurityNotifications, account.ID, event)
}

func (n *EventNotifier) SendRevoked(ctx context.Context, account *models.Account) error {
	return n.publisher.Publish(ctx, models.TopicSecurityNotifications, account.ID,
		n.event(models.NotificationRevoked, account))
}

func (n *EventNotifier) SendSuspended(ctx context.Context, account *models.Account, until time.Time) error {
	event := n.event(models.NotificationSuspended, account)
	event.Until = &until
	return n.publisher.Publish(ctx, models.TopicSecurityNotifications, account.ID, event)
}

func (n *EventNotifier) event(kind models.NotificationType, account *models.Account) models.NotificationEvent {
	return models.NotificationEvent{
		Type:           kind,
		AccountID:      account.ID,
		Email:          account.Email,
		CardholderName: account.CardholderName,
		Timestamp:      n.now().UTC(),
	}
}

// LogNotifier only logs notices.
type LogNotifier struct{}

func (LogNotifier) SendSecurityAlert(_ context.Context, account *models.Account, req *models.PaymentRequest, failureCount int) error {
	telemetry.Logger.Warn("Security alert",
		zap.String("account_id", account.ID),
		zap.String("email", account.Email),
		zap.String("payment_id", req.ID),
		zap.Int("consecutive_failures", failureCount),
	)
	return nil
}

func (LogNotifier) SendRevoked(_ context.Context, account *models.Account) error {
	telemetry.Logger.Warn("Credential revoked notice",
		zap.String("account_id", account.ID),
		zap.String("email", account.Email),
	)
	return nil
}

func (LogNotifier) SendSuspended(_ context.Context, account *models.Account, until time.Time) error {
	telemetry.Logger.Warn("Credential suspended notice",
		zap.String("account_id", account.ID),
		zap.String("email", account.Email),
		zap.Time("until", until),
	)
	return nil
}
