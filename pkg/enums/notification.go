package enums

import "slices"

// NotificationChannel identifies an outbound delivery channel.
type NotificationChannel string

const (
	NotificationChannelEmail    NotificationChannel = "email"
	NotificationChannelWhatsApp NotificationChannel = "whatsapp"
)

func (c NotificationChannel) String() string {
	return string(c)
}

// NotificationEvent keys the customer-facing message templates.
type NotificationEvent string

const (
	NotificationOrderConfirmation NotificationEvent = "order_confirmation"
	NotificationPaymentReceived   NotificationEvent = "payment_received"
	NotificationPaymentApproved   NotificationEvent = "payment_approved"
	NotificationPaymentRejected   NotificationEvent = "payment_rejected"
	NotificationPaymentReminder   NotificationEvent = "payment_reminder"
	NotificationOrderExpired      NotificationEvent = "order_expired"
	NotificationOrderShipped      NotificationEvent = "order_shipped"
	NotificationOrderEnroute      NotificationEvent = "order_enroute"
	NotificationOrderDelivered    NotificationEvent = "order_delivered"
	NotificationOrderCancelled    NotificationEvent = "order_cancelled"
)

var validNotificationEvents = []NotificationEvent{
	NotificationOrderConfirmation,
	NotificationPaymentReceived,
	NotificationPaymentApproved,
	NotificationPaymentRejected,
	NotificationPaymentReminder,
	NotificationOrderExpired,
	NotificationOrderShipped,
	NotificationOrderEnroute,
	NotificationOrderDelivered,
	NotificationOrderCancelled,
}

func (n NotificationEvent) String() string {
	return string(n)
}

// IsValid checks whether the given event matches the canonical set.
func (n NotificationEvent) IsValid() bool {
	return slices.Contains(validNotificationEvents, n)
}

// NotificationEvents returns every template key.
func NotificationEvents() []NotificationEvent {
	out := make([]NotificationEvent, len(validNotificationEvents))
	copy(out, validNotificationEvents)
	return out
}

// ParseNotificationEvent converts raw strings into NotificationEvent.
func ParseNotificationEvent(value string) (NotificationEvent, error) {
	return parseEnum(validNotificationEvents, value, "notification event")
}

// DeliveryStatus records the outcome of one channel send.
type DeliveryStatus string

const (
	DeliveryStatusSent    DeliveryStatus = "sent"
	DeliveryStatusFailed  DeliveryStatus = "failed"
	DeliveryStatusSkipped DeliveryStatus = "skipped"
)
