package models

// All lists every persisted model in dependency order. Used to build the
// schema when running against sqlite, where the Postgres migrations do not
// apply.
func All() []any {
	return []any{
		&Category{},
		&Product{},
		&Coupon{},
		&Order{},
		&OrderItem{},
		&PaymentVerification{},
		&Review{},
		&AdminUser{},
		&NotificationDelivery{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
