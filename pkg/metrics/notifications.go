package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics counts outbound customer messages.
type NotificationMetrics struct {
	deliveries *prometheus.CounterVec
	retries    *prometheus.CounterVec
}

func NewNotificationMetrics(reg prometheus.Registerer) *NotificationMetrics {
	if reg == nil {
		return &NotificationMetrics{}
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notification_deliveries_total",
		Help:      "Notification sends by channel, event and status.",
	}, []string{"channel", "event", "status"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notification_retries_total",
		Help:      "Email send retries after transient failures.",
	}, []string{"event"})
	reg.MustRegister(deliveries, retries)
	return &NotificationMetrics{deliveries: deliveries, retries: retries}
}

// ObserveDelivery records the final status of one channel send.
func (n *NotificationMetrics) ObserveDelivery(channel, event, status string) {
	if n == nil || n.deliveries == nil {
		return
	}
	n.deliveries.WithLabelValues(normalizeLabel(channel), normalizeLabel(event), normalizeLabel(status)).Inc()
}

// IncRetry records one retry of an email send.
func (n *NotificationMetrics) IncRetry(event string) {
	if n == nil || n.retries == nil {
		return
	}
	n.retries.WithLabelValues(normalizeLabel(event)).Inc()
}
