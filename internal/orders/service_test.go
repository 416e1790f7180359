package orders

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kitsuneprints/storefront-backend/internal/coupons"
	"github.com/kitsuneprints/storefront-backend/internal/paymentmethods"
	"github.com/kitsuneprints/storefront-backend/pkg/config"
	"github.com/kitsuneprints/storefront-backend/pkg/db"
	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	pkgerrors "github.com/kitsuneprints/storefront-backend/pkg/errors"
	"github.com/kitsuneprints/storefront-backend/pkg/outbox"
	"github.com/kitsuneprints/storefront-backend/pkg/outbox/payloads"
	"github.com/kitsuneprints/storefront-backend/pkg/pagination"
	"github.com/kitsuneprints/storefront-backend/pkg/types"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeCatalog struct {
	products map[uuid.UUID]models.Product
}

func (f *fakeCatalog) FindByIDs(_ context.Context, ids []uuid.UUID) ([]models.Product, error) {
	out := []models.Product{}
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeUploader struct {
	err     error
	objects []string
}

func (f *fakeUploader) Upload(_ context.Context, objectName, _ string, body io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if _, err := io.ReadAll(body); err != nil {
		return "", err
	}
	f.objects = append(f.objects, objectName)
	return "https://storage.googleapis.com/receipts-bucket/" + objectName, nil
}

type fakeNotifier struct {
	err  error
	sent []string
}

func (f *fakeNotifier) SendOrderConfirmation(_ context.Context, order *models.Order) error {
	f.sent = append(f.sent, order.OrderNumber)
	return f.err
}

type orderFixture struct {
	svc      *Service
	conn     *gorm.DB
	catalog  *fakeCatalog
	uploader *fakeUploader
	notifier *fakeNotifier
	poster   models.Product
	scroll   models.Product
}

func newOrderFixture(t *testing.T, policy string) *orderFixture {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&models.Order{},
		&models.OrderItem{},
		&models.PaymentVerification{},
		&models.Coupon{},
		&models.OutboxEvent{},
	))

	poster := models.Product{
		ID:      uuid.New(),
		Name:    "Spirited Night Poster",
		InStock: true,
		Images:  []string{"https://cdn.example.com/poster.jpg"},
		Sizes: types.ProductSizes{
			{Label: enums.SizeA4, Price: decimal.RequireFromString("1200")},
			{Label: enums.SizeA3, Price: decimal.RequireFromString("1800")},
		},
	}
	scroll := models.Product{
		ID:      uuid.New(),
		Name:    "Ronin Wall Scroll",
		InStock: false,
		Sizes:   types.ProductSizes{{Label: enums.SizeA3, Price: decimal.RequireFromString("2500")}},
	}
	catalog := &fakeCatalog{products: map[uuid.UUID]models.Product{poster.ID: poster, scroll.ID: scroll}}

	couponSvc, err := coupons.NewService(coupons.NewRepository(conn), nil, "PKR")
	require.NoError(t, err)

	uploader := &fakeUploader{}
	notifier := &fakeNotifier{}
	svc, err := NewService(ServiceParams{
		Repo:          NewRepository(conn),
		Verifications: NewVerificationRepository(conn),
		Catalog:       catalog,
		Coupons:       couponSvc,
		Instructions: paymentmethods.NewCatalog(config.PaymentAccountsConfig{
			JazzCashNumber:    "03001234567",
			JazzCashTitle:     "Kitsune Prints",
			BankName:          "Meezan Bank",
			BankAccountTitle:  "Kitsune Prints",
			BankAccountNumber: "0101234567",
			CODEnabled:        true,
		}, "PKR"),
		Uploader:  uploader,
		Outbox:    outbox.NewService(outbox.NewRepository(conn), nil),
		Notifier:  notifier,
		TxRunner:  db.NewFromConn(conn),
		Shop:      config.ShopConfig{OrderNumberPrefix: "KP", ShippingProtectionCost: "150", RejectionPolicy: policy},
	})
	require.NoError(t, err)
	svc.now = func() time.Time { return testNow }

	return &orderFixture{
		svc:      svc,
		conn:     conn,
		catalog:  catalog,
		uploader: uploader,
		notifier: notifier,
		poster:   poster,
		scroll:   scroll,
	}
}

func (f *orderFixture) checkout(method string) CreateOrderInput {
	return CreateOrderInput{
		Customer: CustomerInput{
			Name:         "  Aiko   Tanaka ",
			Email:        " Aiko@Example.com ",
			Phone:        "0300 1234567",
			AddressLine1: "12 Mall Road",
			City:         "Lahore",
		},
		Items: []ItemInput{
			{ProductID: f.poster.ID, Size: "a4", Quantity: 2},
			{ProductID: f.poster.ID, Size: "A3", Quantity: 1},
		},
		PaymentMethod: method,
	}
}

func (f *orderFixture) create(t *testing.T, method string) *CreateOrderResult {
	t.Helper()
	res, err := f.svc.Create(context.Background(), f.checkout(method))
	require.NoError(t, err)
	return res
}

func (f *orderFixture) load(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, f.conn.Preload("Items").First(&order, "id = ?", id).Error)
	return &order
}

func (f *orderFixture) eventTypes(t *testing.T, id uuid.UUID) []enums.OutboxEventType {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, f.conn.Where("aggregate_id = ?", id).Order("created_at ASC").Find(&rows).Error)
	out := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.EventType)
	}
	return out
}

func (f *orderFixture) seedCoupon(t *testing.T, limit *int) *models.Coupon {
	t.Helper()
	c := &models.Coupon{
		Code:          "OTAKU10",
		DiscountType:  enums.DiscountTypePercentage,
		DiscountValue: decimal.RequireFromString("10"),
		UsageLimit:    limit,
		ValidFrom:     time.Now().UTC().Add(-24 * time.Hour).Truncate(time.Second),
		ValidUntil:    time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second),
		IsActive:      true,
	}
	require.NoError(t, f.conn.Create(c).Error)
	return c
}

func (f *orderFixture) submit(t *testing.T, orderNumber string) *SubmitPaymentResult {
	t.Helper()
	res, err := f.svc.SubmitPayment(context.Background(), receiptInput(orderNumber))
	require.NoError(t, err)
	return res
}

func receiptInput(orderNumber string) SubmitPaymentInput {
	return SubmitPaymentInput{
		OrderNumber:   orderNumber,
		Email:         "aiko@example.com",
		TransactionID: "JC-998877",
		Receipt:       strings.NewReader("receipt-bytes"),
		ReceiptName:   "receipt.PNG",
		ContentType:   "image/png",
		ReceiptSize:   13,
	}
}

func assertCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	assert.Equal(t, code, typed.Code())
}

func TestCreatePricesFromCatalog(t *testing.T) {
	f := newOrderFixture(t, "")
	input := f.checkout("JazzCash")
	input.ShippingProtection = true

	res, err := f.svc.Create(context.Background(), input)
	require.NoError(t, err)

	assert.Regexp(t, `^KP\d{6}-[0-9A-Z]+$`, res.OrderNumber)
	assert.True(t, res.Subtotal.Equal(decimal.RequireFromString("4200")), res.Subtotal.String())
	assert.True(t, res.ShippingCost.Equal(decimal.RequireFromString("150")))
	assert.True(t, res.Total.Equal(decimal.RequireFromString("4350")), res.Total.String())
	assert.Equal(t, enums.PaymentMethodJazzCash, res.PaymentMethod)
	require.NotNil(t, res.Instructions)
	assert.Equal(t, enums.PaymentMethodJazzCash, res.Instructions.Method)

	order := f.load(t, res.OrderID)
	assert.Equal(t, "Aiko Tanaka", order.CustomerName)
	assert.Equal(t, "aiko@example.com", order.CustomerEmail)
	assert.Equal(t, "Pakistan", order.Country)
	assert.Equal(t, enums.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, enums.OrderStatusProcessing, order.OrderStatus)
	require.Len(t, order.Items, 2)

	assert.Equal(t, []string{res.OrderNumber}, f.notifier.sent)
	assert.Equal(t, []enums.OutboxEventType{enums.EventOrderCreated}, f.eventTypes(t, res.OrderID))
}

func TestCreateSwallowsConfirmationFailure(t *testing.T) {
	f := newOrderFixture(t, "")
	f.notifier.err = errors.New("smtp down")

	res, err := f.svc.Create(context.Background(), f.checkout("bank transfer"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.OrderNumber)
	assert.Len(t, f.notifier.sent, 1)
}

func TestCreateCODHasNoProofStep(t *testing.T) {
	f := newOrderFixture(t, "")
	res := f.create(t, "Cash on Delivery")
	assert.Equal(t, enums.PaymentMethodCOD, res.PaymentMethod)
}

func TestCreateValidation(t *testing.T) {
	f := newOrderFixture(t, "")
	cases := map[string]struct {
		mutate func(*CreateOrderInput)
		code   pkgerrors.Code
	}{
		"bad email": {
			mutate: func(in *CreateOrderInput) { in.Customer.Email = "not-an-email" },
			code:   pkgerrors.CodeValidation,
		},
		"missing city": {
			mutate: func(in *CreateOrderInput) { in.Customer.City = "  " },
			code:   pkgerrors.CodeValidation,
		},
		"no items": {
			mutate: func(in *CreateOrderInput) { in.Items = nil },
			code:   pkgerrors.CodeValidation,
		},
		"zero quantity": {
			mutate: func(in *CreateOrderInput) { in.Items[0].Quantity = 0 },
			code:   pkgerrors.CodeValidation,
		},
		"unknown method": {
			mutate: func(in *CreateOrderInput) { in.PaymentMethod = "paypal" },
			code:   pkgerrors.CodeValidation,
		},
		"unconfigured method": {
			mutate: func(in *CreateOrderInput) { in.PaymentMethod = "easypaisa" },
			code:   pkgerrors.CodeValidation,
		},
		"unknown product": {
			mutate: func(in *CreateOrderInput) { in.Items[0].ProductID = uuid.New() },
			code:   pkgerrors.CodeBusinessRule,
		},
		"out of stock": {
			mutate: func(in *CreateOrderInput) { in.Items[0] = ItemInput{ProductID: f.scroll.ID, Size: "A3", Quantity: 1} },
			code:   pkgerrors.CodeBusinessRule,
		},
		"missing size": {
			mutate: func(in *CreateOrderInput) { in.Items[0].Size = "A1" },
			code:   pkgerrors.CodeBusinessRule,
		},
		"unknown coupon": {
			mutate: func(in *CreateOrderInput) { in.DiscountCode = "NOPE" },
			code:   pkgerrors.CodeNotFound,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			input := f.checkout("jazzcash")
			tc.mutate(&input)
			_, err := f.svc.Create(context.Background(), input)
			assertCode(t, err, tc.code)
		})
	}

	var count int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateAppliesCouponWithoutRedeeming(t *testing.T) {
	f := newOrderFixture(t, "")
	coupon := f.seedCoupon(t, nil)
	input := f.checkout("jazzcash")
	input.DiscountCode = "otaku10"
	input.ShippingProtection = true

	res, err := f.svc.Create(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, res.Discount.Equal(decimal.RequireFromString("435")), res.Discount.String())
	assert.True(t, res.Total.Equal(decimal.RequireFromString("3915")), res.Total.String())

	order := f.load(t, res.OrderID)
	require.NotNil(t, order.CouponID)
	assert.Equal(t, coupon.ID, *order.CouponID)
	require.NotNil(t, order.DiscountCode)
	assert.Equal(t, "OTAKU10", *order.DiscountCode)

	var reloaded models.Coupon
	require.NoError(t, f.conn.First(&reloaded, "id = ?", coupon.ID).Error)
	assert.Zero(t, reloaded.UsedCount)
}

func TestCreateRegeneratesOnNumberCollision(t *testing.T) {
	f := newOrderFixture(t, "")
	first := f.create(t, "jazzcash")

	gen := NewNumberGenerator("KP")
	gen.now = func() time.Time { return testNow }
	gen.random = zeroReader{}
	f.svc.numbers = gen
	taken := "KP000000-" + strings.ToUpper(strconv.FormatInt(testNow.UnixMicro(), 36))
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", first.OrderID).
		Update("order_number", taken).Error)

	res, err := f.svc.Create(context.Background(), f.checkout("jazzcash"))
	require.NoError(t, err)
	assert.NotEqual(t, taken, res.OrderNumber)
	assert.True(t, strings.HasPrefix(res.OrderNumber, "KP000000-"))
}

func TestTrackRequiresMatchingEmail(t *testing.T) {
	f := newOrderFixture(t, "")
	res := f.create(t, "jazzcash")

	tracked, err := f.svc.Track(context.Background(), res.OrderNumber, "AIKO@example.com")
	require.NoError(t, err)
	assert.Equal(t, res.OrderNumber, tracked.Order.OrderNumber)
	assert.NotNil(t, tracked.Instructions)

	_, err = f.svc.Track(context.Background(), res.OrderNumber, "someone@example.com")
	assertCode(t, err, pkgerrors.CodeNotFound)

	_, err = f.svc.Track(context.Background(), "KP000000-XYZ", "aiko@example.com")
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestSubmitPaymentCreatesVerification(t *testing.T) {
	f := newOrderFixture(t, "")
	created := f.create(t, "jazzcash")

	res := f.submit(t, created.OrderNumber)
	assert.Equal(t, enums.PaymentStatusPending, res.PaymentStatus)
	require.Len(t, f.uploader.objects, 1)
	assert.True(t, strings.HasPrefix(f.uploader.objects[0], "receipts/"+created.OrderNumber+"/"))
	assert.True(t, strings.HasSuffix(f.uploader.objects[0], ".png"))

	order := f.load(t, created.OrderID)
	require.NotNil(t, order.TransactionID)
	assert.Equal(t, "JC-998877", *order.TransactionID)
	require.NotNil(t, order.ReceiptURL)
	assert.Equal(t, res.ReceiptURL, *order.ReceiptURL)
	require.NotNil(t, order.PaymentSubmittedAt)

	var v models.PaymentVerification
	require.NoError(t, f.conn.First(&v, "id = ?", res.VerificationID).Error)
	assert.Equal(t, enums.VerificationPending, v.State())
	assert.Equal(t, created.OrderNumber, v.OrderNumber)

	assert.Equal(t, []enums.OutboxEventType{enums.EventOrderCreated, enums.EventOrderPaymentSubmitted}, f.eventTypes(t, created.OrderID))
}

func TestSubmitPaymentRejectsSecondPendingProof(t *testing.T) {
	f := newOrderFixture(t, "")
	created := f.create(t, "jazzcash")
	f.submit(t, created.OrderNumber)

	_, err := f.svc.SubmitPayment(context.Background(), receiptInput(created.OrderNumber))
	assertCode(t, err, pkgerrors.CodeConflict)
	assert.Len(t, f.uploader.objects, 1)
}

func TestSubmitPaymentValidation(t *testing.T) {
	f := newOrderFixture(t, "")
	created := f.create(t, "jazzcash")
	cod := f.create(t, "cod")

	cases := map[string]struct {
		mutate func(*SubmitPaymentInput)
		code   pkgerrors.Code
	}{
		"short transaction id": {func(in *SubmitPaymentInput) { in.TransactionID = " ab " }, pkgerrors.CodeValidation},
		"missing receipt":      {func(in *SubmitPaymentInput) { in.Receipt = nil }, pkgerrors.CodeValidation},
		"bad content type":     {func(in *SubmitPaymentInput) { in.ContentType = "text/html" }, pkgerrors.CodeValidation},
		"too large":            {func(in *SubmitPaymentInput) { in.ReceiptSize = 11 << 20 }, pkgerrors.CodeValidation},
		"wrong email":          {func(in *SubmitPaymentInput) { in.Email = "x@example.com" }, pkgerrors.CodeNotFound},
		"cod order":            {func(in *SubmitPaymentInput) { in.OrderNumber = cod.OrderNumber }, pkgerrors.CodeBusinessRule},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			input := receiptInput(created.OrderNumber)
			tc.mutate(&input)
			_, err := f.svc.SubmitPayment(context.Background(), input)
			assertCode(t, err, tc.code)
		})
	}
	assert.Empty(t, f.uploader.objects)
}

func TestSubmitPaymentUploadFailureAborts(t *testing.T) {
	f := newOrderFixture(t, "")
	created := f.create(t, "jazzcash")
	f.uploader.err = errors.New("bucket unavailable")

	_, err := f.svc.SubmitPayment(context.Background(), receiptInput(created.OrderNumber))
	assertCode(t, err, pkgerrors.CodeDependency)

	var count int64
	require.NoError(t, f.conn.Model(&models.PaymentVerification{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Nil(t, f.load(t, created.OrderID).TransactionID)
}

func TestSubmitPaymentRejectsCancelledOrder(t *testing.T) {
	f := newOrderFixture(t, "")
	created := f.create(t, "jazzcash")
	_, err := f.svc.UpdateStatus(context.Background(), StatusUpdateInput{OrderID: created.OrderID, Status: "cancelled"})
	require.NoError(t, err)

	_, err = f.svc.SubmitPayment(context.Background(), receiptInput(created.OrderNumber))
	assertCode(t, err, pkgerrors.CodeStateConflict)
}

func TestApproveAndRejectPayment(t *testing.T) {
	t.Run("approve confirms and redeems coupon once", func(t *testing.T) {
		f := newOrderFixture(t, "")
		coupon := f.seedCoupon(t, nil)
		input := f.checkout("jazzcash")
		input.DiscountCode = "OTAKU10"
		created, err := f.svc.Create(context.Background(), input)
		require.NoError(t, err)

		approve := func() error {
			return db.NewFromConn(f.conn).WithTx(context.Background(), func(tx *gorm.DB) error {
				order, err := f.svc.LockOrder(context.Background(), tx, created.OrderID)
				if err != nil {
					return err
				}
				return f.svc.ApprovePayment(context.Background(), tx, order, PaymentDecision{}, outbox.AdminActor(uuid.New()))
			})
		}
		require.NoError(t, approve())
		require.NoError(t, approve())

		order := f.load(t, created.OrderID)
		assert.Equal(t, enums.PaymentStatusPaid, order.PaymentStatus)
		assert.Equal(t, enums.OrderStatusConfirmed, order.OrderStatus)
		assert.NotNil(t, order.PaymentConfirmedAt)
		assert.NotNil(t, order.CouponRedeemedAt)

		var reloaded models.Coupon
		require.NoError(t, f.conn.First(&reloaded, "id = ?", coupon.ID).Error)
		assert.Equal(t, 1, reloaded.UsedCount)
	})

	t.Run("reject keeps status by default", func(t *testing.T) {
		f := newOrderFixture(t, "")
		created := f.create(t, "jazzcash")
		err := db.NewFromConn(f.conn).WithTx(context.Background(), func(tx *gorm.DB) error {
			order, err := f.svc.LockOrder(context.Background(), tx, created.OrderID)
			if err != nil {
				return err
			}
			return f.svc.RejectPayment(context.Background(), tx, order, PaymentDecision{}, nil)
		})
		require.NoError(t, err)

		order := f.load(t, created.OrderID)
		assert.Equal(t, enums.PaymentStatusRejected, order.PaymentStatus)
		assert.Equal(t, enums.OrderStatusProcessing, order.OrderStatus)
	})

	t.Run("reject cancels under cancel_order", func(t *testing.T) {
		f := newOrderFixture(t, "cancel_order")
		assert.Equal(t, enums.RejectionPolicyCancelOrder, f.svc.RejectionPolicy())
		created := f.create(t, "jazzcash")
		err := db.NewFromConn(f.conn).WithTx(context.Background(), func(tx *gorm.DB) error {
			order, err := f.svc.LockOrder(context.Background(), tx, created.OrderID)
			if err != nil {
				return err
			}
			return f.svc.RejectPayment(context.Background(), tx, order, PaymentDecision{}, nil)
		})
		require.NoError(t, err)

		order := f.load(t, created.OrderID)
		assert.Equal(t, enums.PaymentStatusRejected, order.PaymentStatus)
		assert.Equal(t, enums.OrderStatusCancelled, order.OrderStatus)
		require.NotNil(t, order.CancellationReason)
	})
}

func TestRejectedPaymentCanBeResubmitted(t *testing.T) {
	f := newOrderFixture(t, "")
	created := f.create(t, "jazzcash")
	first := f.submit(t, created.OrderNumber)

	verifications := NewVerificationRepository(f.conn)
	ok, err := verifications.Resolve(context.Background(), first.VerificationID, false, nil, nil, testNow)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", created.OrderID).
		Update("payment_status", enums.PaymentStatusRejected).Error)

	second := f.submit(t, created.OrderNumber)
	assert.NotEqual(t, first.VerificationID, second.VerificationID)
	assert.Equal(t, enums.PaymentStatusPending, f.load(t, created.OrderID).PaymentStatus)
}

func TestConfirmPaymentResolvesPendingVerification(t *testing.T) {
	f := newOrderFixture(t, "")
	created := f.create(t, "jazzcash")
	submitted := f.submit(t, created.OrderNumber)
	admin := uuid.New()

	view, err := f.svc.ConfirmPayment(context.Background(), created.OrderID, "received in bank", outbox.AdminActor(admin))
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, view.PaymentStatus)
	assert.Equal(t, enums.OrderStatusConfirmed, view.OrderStatus)

	var v models.PaymentVerification
	require.NoError(t, f.conn.First(&v, "id = ?", submitted.VerificationID).Error)
	assert.Equal(t, enums.VerificationVerified, v.State())
	require.NotNil(t, v.VerifiedBy)
	assert.Equal(t, admin, *v.VerifiedBy)

	_, err = f.svc.ConfirmPayment(context.Background(), created.OrderID, "", nil)
	assertCode(t, err, pkgerrors.CodeStateConflict)

	events := f.eventTypes(t, created.OrderID)
	assert.Equal(t, enums.EventOrderPaymentVerified, events[len(events)-1])
}

func TestUpdateStatusTransitions(t *testing.T) {
	f := newOrderFixture(t, "")
	created := f.create(t, "jazzcash")
	ctx := context.Background()

	_, err := f.svc.UpdateStatus(ctx, StatusUpdateInput{OrderID: created.OrderID, Status: "shipped"})
	assertCode(t, err, pkgerrors.CodeStateConflict)

	_, err = f.svc.UpdateStatus(ctx, StatusUpdateInput{OrderID: created.OrderID, Status: "lost"})
	assertCode(t, err, pkgerrors.CodeValidation)

	for _, next := range []string{"confirmed", "shipped", "enroute", "delivered"} {
		view, err := f.svc.UpdateStatus(ctx, StatusUpdateInput{OrderID: created.OrderID, Status: next})
		require.NoError(t, err, next)
		assert.Equal(t, enums.OrderStatus(next), view.OrderStatus)
	}

	_, err = f.svc.UpdateStatus(ctx, StatusUpdateInput{OrderID: created.OrderID, Status: "cancelled"})
	assertCode(t, err, pkgerrors.CodeStateConflict)

	order := f.load(t, created.OrderID)
	assert.Equal(t, enums.PaymentStatusPending, order.PaymentStatus)

	_, err = f.svc.UpdateStatus(ctx, StatusUpdateInput{OrderID: uuid.New(), Status: "confirmed"})
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestUpdateStatusCancelRecordsReason(t *testing.T) {
	f := newOrderFixture(t, "")
	created := f.create(t, "jazzcash")

	view, err := f.svc.UpdateStatus(context.Background(), StatusUpdateInput{
		OrderID: created.OrderID,
		Status:  "Cancelled",
		Note:    "customer asked to cancel",
		Actor:   outbox.AdminActor(uuid.New()),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, view.OrderStatus)
	require.NotNil(t, view.CancellationReason)
	assert.Equal(t, "customer asked to cancel", *view.CancellationReason)
}

func (f *orderFixture) lastEvent(t *testing.T, id uuid.UUID) payloads.OrderEvent {
	t.Helper()
	var row models.OutboxEvent
	require.NoError(t, f.conn.Where("aggregate_id = ?", id).Order("created_at DESC").First(&row).Error)
	envelope, err := outbox.DecodeEnvelope(row.Payload)
	require.NoError(t, err)
	var event payloads.OrderEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &event))
	return event
}

func TestUpdatePaymentStatusMarksFailed(t *testing.T) {
	f := newOrderFixture(t, "")
	created := f.create(t, "bank_transfer")
	ctx := context.Background()

	view, err := f.svc.UpdatePaymentStatus(ctx, PaymentStatusUpdateInput{
		OrderID: created.OrderID,
		Status:  "Failed",
		Note:    "transfer bounced",
		Actor:   outbox.AdminActor(uuid.New()),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusFailed, view.PaymentStatus)
	assert.Equal(t, enums.OrderStatusProcessing, view.OrderStatus)

	order := f.load(t, created.OrderID)
	assert.Equal(t, enums.PaymentStatusFailed, order.PaymentStatus)
	require.NotNil(t, order.PaymentNotes)
	assert.Equal(t, "transfer bounced", *order.PaymentNotes)

	events := f.eventTypes(t, created.OrderID)
	assert.Equal(t, enums.EventOrderPaymentStatusChanged, events[len(events)-1])
	event := f.lastEvent(t, created.OrderID)
	require.NotNil(t, event.PreviousPaymentStatus)
	assert.Equal(t, enums.PaymentStatusPending, *event.PreviousPaymentStatus)
	assert.Equal(t, enums.PaymentStatusFailed, event.PaymentStatus)

	_, err = f.svc.UpdatePaymentStatus(ctx, PaymentStatusUpdateInput{OrderID: created.OrderID, Status: "refunded"})
	assertCode(t, err, pkgerrors.CodeStateConflict)
}

func TestUpdatePaymentStatusRefundsPaidOrder(t *testing.T) {
	f := newOrderFixture(t, "")
	created := f.create(t, "jazzcash")
	ctx := context.Background()

	_, err := f.svc.ConfirmPayment(ctx, created.OrderID, "", nil)
	require.NoError(t, err)

	view, err := f.svc.UpdatePaymentStatus(ctx, PaymentStatusUpdateInput{OrderID: created.OrderID, Status: "refunded"})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRefunded, view.PaymentStatus)
	assert.Equal(t, enums.OrderStatusConfirmed, view.OrderStatus)

	event := f.lastEvent(t, created.OrderID)
	require.NotNil(t, event.PreviousPaymentStatus)
	assert.Equal(t, enums.PaymentStatusPaid, *event.PreviousPaymentStatus)

	_, err = f.svc.UpdatePaymentStatus(ctx, PaymentStatusUpdateInput{OrderID: created.OrderID, Status: "refunded"})
	assertCode(t, err, pkgerrors.CodeStateConflict)
	_, err = f.svc.UpdatePaymentStatus(ctx, PaymentStatusUpdateInput{OrderID: created.OrderID, Status: "failed"})
	assertCode(t, err, pkgerrors.CodeStateConflict)
}

func TestUpdatePaymentStatusGuards(t *testing.T) {
	f := newOrderFixture(t, "")
	created := f.create(t, "jazzcash")
	ctx := context.Background()

	_, err := f.svc.UpdatePaymentStatus(ctx, PaymentStatusUpdateInput{OrderID: created.OrderID, Status: "paid"})
	assertCode(t, err, pkgerrors.CodeValidation)

	f.submit(t, created.OrderNumber)
	_, err = f.svc.UpdatePaymentStatus(ctx, PaymentStatusUpdateInput{OrderID: created.OrderID, Status: "failed"})
	assertCode(t, err, pkgerrors.CodeStateConflict)
	assert.Equal(t, enums.PaymentStatusPending, f.load(t, created.OrderID).PaymentStatus)

	_, err = f.svc.UpdatePaymentStatus(ctx, PaymentStatusUpdateInput{OrderID: uuid.New(), Status: "failed"})
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestCODDeliveredMarksPaid(t *testing.T) {
	f := newOrderFixture(t, "")
	coupon := f.seedCoupon(t, nil)
	input := f.checkout("cod")
	input.DiscountCode = "OTAKU10"
	created, err := f.svc.Create(context.Background(), input)
	require.NoError(t, err)

	for _, next := range []string{"confirmed", "shipped", "enroute", "delivered"} {
		_, err := f.svc.UpdateStatus(context.Background(), StatusUpdateInput{OrderID: created.OrderID, Status: next})
		require.NoError(t, err, next)
	}

	order := f.load(t, created.OrderID)
	assert.Equal(t, enums.PaymentStatusPaid, order.PaymentStatus)
	assert.NotNil(t, order.PaymentConfirmedAt)

	var reloaded models.Coupon
	require.NoError(t, f.conn.First(&reloaded, "id = ?", coupon.ID).Error)
	assert.Equal(t, 1, reloaded.UsedCount)
}

func TestListFiltersOrders(t *testing.T) {
	f := newOrderFixture(t, "")
	jazz := f.create(t, "jazzcash")
	f.create(t, "cod")

	method := enums.PaymentMethodCOD
	list, err := f.svc.List(context.Background(), paginationParams(1, 10), ListFilter{PaymentMethod: &method})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, enums.PaymentMethodCOD, list.Orders[0].PaymentMethod)

	list, err = f.svc.List(context.Background(), paginationParams(1, 10), ListFilter{Search: strings.ToLower(jazz.OrderNumber)})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, jazz.OrderNumber, list.Orders[0].OrderNumber)

	detail, err := f.svc.Get(context.Background(), jazz.OrderID)
	require.NoError(t, err)
	assert.Empty(t, detail.Verifications)
	assert.Len(t, detail.Order.Items, 2)
}

func paginationParams(page, limit int) pagination.Params {
	return pagination.Params{Page: page, Limit: limit}
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
