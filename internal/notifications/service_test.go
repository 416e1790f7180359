package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kitsuneprints/storefront-backend/pkg/config"
	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/email"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	"github.com/kitsuneprints/storefront-backend/pkg/whatsapp"
)

type fakeEmail struct {
	errs      []error
	sent      []email.Message
	afterSend func()
}

func (f *fakeEmail) Send(_ context.Context, msg email.Message) error {
	f.sent = append(f.sent, msg)
	if f.afterSend != nil {
		f.afterSend()
	}
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

type fakeWhatsApp struct {
	err   error
	sends int
}

func (f *fakeWhatsApp) Send(context.Context, string, string) (string, error) {
	f.sends++
	return "SM123", f.err
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	email      *fakeEmail
	whatsapp   *fakeWhatsApp
	conn       *gorm.DB
	delays     []time.Duration
}

func newDispatcherFixture(t *testing.T, whatsappEnabled bool) *dispatcherFixture {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.NotificationDelivery{}))

	renderer, err := NewRenderer(testShop)
	require.NoError(t, err)
	f := &dispatcherFixture{email: &fakeEmail{}, whatsapp: &fakeWhatsApp{}, conn: conn}
	d, err := NewDispatcher(DispatcherParams{
		Renderer:        renderer,
		Email:           f.email,
		WhatsApp:        f.whatsapp,
		WhatsAppEnabled: whatsappEnabled,
		Log:             NewRepository(conn),
		Config:          config.NotificationsConfig{EmailMaxAttempts: 3, EmailBaseDelay: time.Second},
	})
	require.NoError(t, err)
	policy := d.backoff
	d.backoff = func() retry.Backoff {
		next := policy()
		return retry.BackoffFunc(func() (time.Duration, bool) {
			delay, stop := next.Next()
			if !stop {
				f.delays = append(f.delays, delay)
			}
			return 0, stop
		})
	}
	f.dispatcher = d
	return f
}

func (f *dispatcherFixture) delivery(t *testing.T, key string, channel enums.NotificationChannel) *models.NotificationDelivery {
	t.Helper()
	row, err := NewRepository(f.conn).Find(context.Background(), key, channel)
	require.NoError(t, err)
	return row
}

func TestDispatchSendsEmailOnce(t *testing.T) {
	f := newDispatcherFixture(t, false)
	order := sampleOrder()

	require.NoError(t, f.dispatcher.SendOrderConfirmation(context.Background(), order))
	require.NoError(t, f.dispatcher.Dispatch(context.Background(), Message{Event: enums.NotificationOrderConfirmation, Order: order}))

	require.Len(t, f.email.sent, 1)
	assert.Equal(t, "aiko@example.com", f.email.sent[0].To)
	assert.Equal(t, []string{"order_confirmation"}, f.email.sent[0].Categories)
	row := f.delivery(t, "KP123456-ABC:order_confirmation", enums.NotificationChannelEmail)
	require.NotNil(t, row)
	assert.Equal(t, enums.DeliveryStatusSent, row.Status)
	assert.Equal(t, 1, row.Attempts)
	assert.Zero(t, f.whatsapp.sends)
}

func TestDispatchRetriesTransientEmailErrors(t *testing.T) {
	f := newDispatcherFixture(t, false)
	f.email.errs = []error{
		&email.DeliveryError{StatusCode: 503},
		&email.DeliveryError{StatusCode: 429},
	}

	require.NoError(t, f.dispatcher.Dispatch(context.Background(), Message{Event: enums.NotificationPaymentApproved, Order: sampleOrder()}))
	assert.Len(t, f.email.sent, 3)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.delays)
}

func TestDispatchGivesUpAfterMaxAttempts(t *testing.T) {
	f := newDispatcherFixture(t, false)
	transient := &email.DeliveryError{StatusCode: 502}
	f.email.errs = []error{transient, transient, transient}

	err := f.dispatcher.Dispatch(context.Background(), Message{Event: enums.NotificationPaymentReminder, Order: sampleOrder()})
	require.Error(t, err)
	assert.True(t, Retryable(err))
	assert.Len(t, f.email.sent, 3)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.delays)

	row := f.delivery(t, "KP123456-ABC:payment_reminder", enums.NotificationChannelEmail)
	require.NotNil(t, row)
	assert.Equal(t, enums.DeliveryStatusFailed, row.Status)
	assert.Equal(t, 3, row.Attempts)

	require.NoError(t, f.dispatcher.Dispatch(context.Background(), Message{Event: enums.NotificationPaymentReminder, Order: sampleOrder()}))
	row = f.delivery(t, "KP123456-ABC:payment_reminder", enums.NotificationChannelEmail)
	assert.Equal(t, enums.DeliveryStatusSent, row.Status)
	assert.Equal(t, 4, row.Attempts)
}

func TestDispatchDoesNotRetryPermanentErrors(t *testing.T) {
	f := newDispatcherFixture(t, false)
	f.email.errs = []error{&email.DeliveryError{StatusCode: 400, Body: "bad address"}}

	err := f.dispatcher.Dispatch(context.Background(), Message{Event: enums.NotificationOrderShipped, Order: sampleOrder()})
	require.Error(t, err)
	assert.False(t, Retryable(err))
	assert.Len(t, f.email.sent, 1)
	assert.Empty(t, f.delays)
}

func TestDispatchScopesRepeatableEvents(t *testing.T) {
	f := newDispatcherFixture(t, false)
	order := sampleOrder()

	require.NoError(t, f.dispatcher.Dispatch(context.Background(), Message{Event: enums.NotificationPaymentReceived, Order: order, Scope: uuid.NewString()}))
	require.NoError(t, f.dispatcher.Dispatch(context.Background(), Message{Event: enums.NotificationPaymentReceived, Order: order, Scope: uuid.NewString()}))
	assert.Len(t, f.email.sent, 2)
}

func TestDispatchWhatsApp(t *testing.T) {
	t.Run("sent alongside email", func(t *testing.T) {
		f := newDispatcherFixture(t, true)
		require.NoError(t, f.dispatcher.Dispatch(context.Background(), Message{Event: enums.NotificationOrderEnroute, Order: sampleOrder()}))
		assert.Equal(t, 1, f.whatsapp.sends)
		row := f.delivery(t, "KP123456-ABC:order_enroute", enums.NotificationChannelWhatsApp)
		require.NotNil(t, row)
		assert.Equal(t, enums.DeliveryStatusSent, row.Status)
	})

	t.Run("failure does not fail dispatch", func(t *testing.T) {
		f := newDispatcherFixture(t, true)
		f.whatsapp.err = errors.New("twilio down")
		require.NoError(t, f.dispatcher.Dispatch(context.Background(), Message{Event: enums.NotificationOrderDelivered, Order: sampleOrder()}))
		row := f.delivery(t, "KP123456-ABC:order_delivered", enums.NotificationChannelWhatsApp)
		require.NotNil(t, row)
		assert.Equal(t, enums.DeliveryStatusFailed, row.Status)
	})

	t.Run("invalid phone is skipped", func(t *testing.T) {
		f := newDispatcherFixture(t, true)
		f.whatsapp.err = whatsapp.ErrInvalidPhone
		require.NoError(t, f.dispatcher.Dispatch(context.Background(), Message{Event: enums.NotificationOrderCancelled, Order: sampleOrder()}))
		row := f.delivery(t, "KP123456-ABC:order_cancelled", enums.NotificationChannelWhatsApp)
		require.NotNil(t, row)
		assert.Equal(t, enums.DeliveryStatusSkipped, row.Status)
	})

	t.Run("no phone", func(t *testing.T) {
		f := newDispatcherFixture(t, true)
		order := sampleOrder()
		order.CustomerPhone = ""
		require.NoError(t, f.dispatcher.Dispatch(context.Background(), Message{Event: enums.NotificationOrderShipped, Order: order}))
		assert.Zero(t, f.whatsapp.sends)
	})
}

func TestDispatchValidatesMessage(t *testing.T) {
	f := newDispatcherFixture(t, false)
	assert.Error(t, f.dispatcher.Dispatch(context.Background(), Message{Event: enums.NotificationOrderShipped}))
	assert.Error(t, f.dispatcher.Dispatch(context.Background(), Message{Event: "unknown", Order: sampleOrder()}))
}

func TestDispatchStopsRetryingWhenCanceled(t *testing.T) {
	f := newDispatcherFixture(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.email.errs = []error{&email.DeliveryError{StatusCode: 503}, &email.DeliveryError{StatusCode: 503}}
	f.email.afterSend = cancel

	err := f.dispatcher.Dispatch(ctx, Message{Event: enums.NotificationOrderShipped, Order: sampleOrder()})
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, f.email.sent, 1)

	row := f.delivery(t, "KP123456-ABC:order_shipped", enums.NotificationChannelEmail)
	require.NotNil(t, row)
	assert.Equal(t, enums.DeliveryStatusFailed, row.Status)
}

func TestDefaultEmailBackoffDoublesFromBaseDelay(t *testing.T) {
	renderer, err := NewRenderer(testShop)
	require.NoError(t, err)
	d, err := NewDispatcher(DispatcherParams{
		Renderer: renderer,
		Email:    &fakeEmail{},
		Log:      &memoryLog{},
		Config:   config.NotificationsConfig{EmailMaxAttempts: 3, EmailBaseDelay: time.Second},
	})
	require.NoError(t, err)

	b := d.backoff()
	var delays []time.Duration
	for {
		delay, stop := b.Next()
		if stop {
			break
		}
		delays = append(delays, delay)
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

type memoryLog struct{}

func (memoryLog) Find(context.Context, string, enums.NotificationChannel) (*models.NotificationDelivery, error) {
	return nil, nil
}

func (memoryLog) Record(context.Context, *models.NotificationDelivery) error { return nil }
