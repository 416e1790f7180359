package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/kitsuneprints/storefront-backend/internal/paymentmethods"
	"github.com/kitsuneprints/storefront-backend/pkg/config"
	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/email"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	"github.com/kitsuneprints/storefront-backend/pkg/logger"
	"github.com/kitsuneprints/storefront-backend/pkg/metrics"
	"github.com/kitsuneprints/storefront-backend/pkg/whatsapp"
)

var errDeliveryLog = errors.New("delivery log unavailable")

type deliveryLog interface {
	Find(ctx context.Context, key string, channel enums.NotificationChannel) (*models.NotificationDelivery, error)
	Record(ctx context.Context, row *models.NotificationDelivery) error
}

type instructionSource interface {
	Instructions(method enums.PaymentMethod, total decimal.Decimal, orderNumber string) (paymentmethods.Instructions, error)
}

// Message asks the dispatcher to notify an order's customer about event.
// Scope distinguishes repeatable events of one order, such as successive
// payment submissions.
type Message struct {
	Event  enums.NotificationEvent
	Order  *models.Order
	Reason string
	Scope  string
}

// DedupeKey identifies the message in the delivery log.
func (m Message) DedupeKey() string {
	parts := []string{m.Order.OrderNumber, string(m.Event)}
	if m.Scope != "" {
		parts = append(parts, m.Scope)
	}
	return strings.Join(parts, ":")
}

// DispatcherParams groups dependencies for the dispatcher.
type DispatcherParams struct {
	Renderer        *Renderer
	Email           email.Sender
	WhatsApp        whatsapp.Sender
	WhatsAppEnabled bool
	Log             deliveryLog
	Instructions    instructionSource
	Config          config.NotificationsConfig
	Metrics         *metrics.NotificationMetrics
	Logger          *logger.Logger
}

// Dispatcher renders and delivers customer notifications. Email is retried
// on transient failures; WhatsApp is attempted once.
type Dispatcher struct {
	renderer        *Renderer
	email           email.Sender
	whatsapp        whatsapp.Sender
	whatsappEnabled bool
	log             deliveryLog
	instructions    instructionSource
	maxAttempts     int
	metrics         *metrics.NotificationMetrics
	logg            *logger.Logger
	backoff         func() retry.Backoff
}

// NewDispatcher validates dependencies and applies retry defaults.
func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	switch {
	case params.Renderer == nil:
		return nil, fmt.Errorf("template renderer required")
	case params.Email == nil:
		return nil, fmt.Errorf("email sender required")
	case params.Log == nil:
		return nil, fmt.Errorf("delivery log required")
	}
	attempts := params.Config.EmailMaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := params.Config.EmailBaseDelay
	if delay <= 0 {
		delay = time.Second
	}
	d := &Dispatcher{
		renderer:        params.Renderer,
		email:           params.Email,
		whatsapp:        params.WhatsApp,
		whatsappEnabled: params.WhatsAppEnabled && params.WhatsApp != nil,
		log:             params.Log,
		instructions:    params.Instructions,
		maxAttempts:     attempts,
		metrics:         params.Metrics,
		logg:            params.Logger,
	}
	d.backoff = func() retry.Backoff {
		return retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(delay))
	}
	return d, nil
}

// SendOrderConfirmation delivers the checkout confirmation. The delivery
// log makes the later asynchronous order.created dispatch a no-op.
func (d *Dispatcher) SendOrderConfirmation(ctx context.Context, order *models.Order) error {
	return d.Dispatch(ctx, Message{Event: enums.NotificationOrderConfirmation, Order: order})
}

// Dispatch sends msg over every enabled channel. Only the email outcome is
// returned; WhatsApp failures are logged and recorded.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) error {
	if msg.Order == nil {
		return errors.New("order required")
	}
	if !msg.Event.IsValid() {
		return fmt.Errorf("unknown notification event %q", msg.Event)
	}
	ctx = d.withFields(ctx, map[string]any{
		"order_number": msg.Order.OrderNumber,
		"notification": msg.Event,
	})

	content, err := d.renderer.Render(msg.Event, d.renderer.Data(msg.Order, msg.Reason, d.instructionsFor(msg)))
	if err != nil {
		return err
	}

	emailErr := d.sendEmail(ctx, msg, content)
	if d.whatsappEnabled {
		d.sendWhatsApp(ctx, msg, content)
	}
	return emailErr
}

func (d *Dispatcher) sendEmail(ctx context.Context, msg Message, content Content) error {
	key := msg.DedupeKey()
	recipient := strings.TrimSpace(msg.Order.CustomerEmail)
	if done, err := d.alreadySent(ctx, key, enums.NotificationChannelEmail); err != nil || done {
		return err
	}

	out := email.Message{
		To:         recipient,
		ToName:     msg.Order.CustomerName,
		Subject:    content.Subject,
		Text:       content.Text,
		HTML:       content.HTML,
		Categories: []string{string(msg.Event)},
		CustomArgs: map[string]string{"order_number": msg.Order.OrderNumber, "event": string(msg.Event)},
	}

	attempts := 0
	var lastErr error
	sendErr := retry.Do(ctx, d.retryBackoff(ctx, msg, &attempts, &lastErr), func(ctx context.Context) error {
		attempts++
		lastErr = d.email.Send(ctx, out)
		if lastErr != nil && email.IsTransient(lastErr) {
			return retry.RetryableError(lastErr)
		}
		return lastErr
	})

	row := &models.NotificationDelivery{
		DedupeKey:   key,
		Channel:     enums.NotificationChannelEmail,
		Event:       msg.Event,
		OrderNumber: msg.Order.OrderNumber,
		Recipient:   recipient,
		Status:      enums.DeliveryStatusSent,
		Attempts:    attempts,
	}
	if sendErr != nil {
		row.Status = enums.DeliveryStatusFailed
		errText := sendErr.Error()
		row.LastError = &errText
	}
	d.record(ctx, row)
	d.metrics.ObserveDelivery(string(enums.NotificationChannelEmail), string(msg.Event), string(row.Status))

	if sendErr != nil {
		if d.logg != nil {
			d.logg.Error(d.logg.WithField(ctx, "attempts", attempts), "email delivery failed", sendErr)
		}
		return fmt.Errorf("send %s email: %w", msg.Event, sendErr)
	}
	if d.logg != nil {
		d.logg.Info(ctx, "email delivered")
	}
	return nil
}

func (d *Dispatcher) sendWhatsApp(ctx context.Context, msg Message, content Content) {
	key := msg.DedupeKey()
	phone := strings.TrimSpace(msg.Order.CustomerPhone)
	if phone == "" || strings.TrimSpace(content.WhatsApp) == "" {
		return
	}
	if done, err := d.alreadySent(ctx, key, enums.NotificationChannelWhatsApp); err != nil || done {
		return
	}

	row := &models.NotificationDelivery{
		DedupeKey:   key,
		Channel:     enums.NotificationChannelWhatsApp,
		Event:       msg.Event,
		OrderNumber: msg.Order.OrderNumber,
		Recipient:   phone,
		Status:      enums.DeliveryStatusSent,
		Attempts:    1,
	}
	_, err := d.whatsapp.Send(ctx, phone, content.WhatsApp)
	switch {
	case errors.Is(err, whatsapp.ErrInvalidPhone):
		row.Status = enums.DeliveryStatusSkipped
		errText := err.Error()
		row.LastError = &errText
	case err != nil:
		row.Status = enums.DeliveryStatusFailed
		errText := err.Error()
		row.LastError = &errText
		if d.logg != nil {
			d.logg.Error(ctx, "whatsapp delivery failed", err)
		}
	}
	d.record(ctx, row)
	d.metrics.ObserveDelivery(string(enums.NotificationChannelWhatsApp), string(msg.Event), string(row.Status))
}

func (d *Dispatcher) alreadySent(ctx context.Context, key string, channel enums.NotificationChannel) (bool, error) {
	row, err := d.log.Find(ctx, key, channel)
	if err != nil {
		return false, fmt.Errorf("%w: %v", errDeliveryLog, err)
	}
	if row == nil || row.Status != enums.DeliveryStatusSent {
		return false, nil
	}
	if d.logg != nil {
		d.logg.Info(d.logg.WithField(ctx, "channel", channel), "notification already delivered")
	}
	return true, nil
}

func (d *Dispatcher) record(ctx context.Context, row *models.NotificationDelivery) {
	if err := d.log.Record(context.WithoutCancel(ctx), row); err != nil && d.logg != nil {
		d.logg.Error(d.logg.WithField(ctx, "channel", row.Channel), "record notification delivery", err)
	}
}

func (d *Dispatcher) instructionsFor(msg Message) *paymentmethods.Instructions {
	if d.instructions == nil {
		return nil
	}
	switch msg.Event {
	case enums.NotificationOrderConfirmation, enums.NotificationPaymentReminder, enums.NotificationPaymentRejected:
	default:
		return nil
	}
	ins, err := d.instructions.Instructions(msg.Order.PaymentMethod, msg.Order.Total, msg.Order.OrderNumber)
	if err != nil {
		return nil
	}
	return &ins
}

func (d *Dispatcher) withFields(ctx context.Context, fields map[string]any) context.Context {
	if d.logg == nil {
		return ctx
	}
	return d.logg.WithFields(ctx, fields)
}

// retryBackoff wraps the configured policy so every scheduled retry is
// counted and logged with the failure that caused it.
func (d *Dispatcher) retryBackoff(ctx context.Context, msg Message, attempts *int, lastErr *error) retry.Backoff {
	next := d.backoff()
	return retry.BackoffFunc(func() (time.Duration, bool) {
		delay, stop := next.Next()
		if stop {
			return delay, stop
		}
		d.metrics.IncRetry(string(msg.Event))
		if d.logg != nil {
			d.logg.Warn(d.logg.WithFields(ctx, map[string]any{
				"attempt": *attempts,
				"delay":   delay.String(),
				"error":   (*lastErr).Error(),
			}), "email send failed, retrying")
		}
		return delay, false
	})
}
