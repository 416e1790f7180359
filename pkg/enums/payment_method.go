package enums

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// PaymentMethod describes how a customer intends to settle an order.
type PaymentMethod string

const (
	PaymentMethodJazzCash     PaymentMethod = "jazzcash"
	PaymentMethodEasyPaisa    PaymentMethod = "easypaisa"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodUSDTTRC20    PaymentMethod = "usdt_trc20"
	PaymentMethodCrypto       PaymentMethod = "crypto"
	PaymentMethodCOD          PaymentMethod = "cod"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodJazzCash,
	PaymentMethodEasyPaisa,
	PaymentMethodBankTransfer,
	PaymentMethodUSDTTRC20,
	PaymentMethodCrypto,
	PaymentMethodCOD,
}

// paymentMethodAliases is keyed by the alphanumeric-only lowercase form of
// the labels storefront clients send.
var paymentMethodAliases = map[string]PaymentMethod{
	"jazzcash":       PaymentMethodJazzCash,
	"easypaisa":      PaymentMethodEasyPaisa,
	"banktransfer":   PaymentMethodBankTransfer,
	"bank":           PaymentMethodBankTransfer,
	"usdttrc20":      PaymentMethodUSDTTRC20,
	"usdt":           PaymentMethodUSDTTRC20,
	"crypto":         PaymentMethodCrypto,
	"cod":            PaymentMethodCOD,
	"cashondelivery": PaymentMethodCOD,
}

var paymentMethodLabels = map[PaymentMethod]string{
	PaymentMethodJazzCash:     "JazzCash",
	PaymentMethodEasyPaisa:    "EasyPaisa",
	PaymentMethodBankTransfer: "Bank Transfer",
	PaymentMethodUSDTTRC20:    "USDT (TRC-20)",
	PaymentMethodCrypto:       "Crypto",
	PaymentMethodCOD:          "Cash on Delivery",
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// Label returns the customer-facing name.
func (p PaymentMethod) Label() string {
	if label, ok := paymentMethodLabels[p]; ok {
		return label
	}
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	return slices.Contains(validPaymentMethods, p)
}

// IsManual reports whether the customer must submit proof of payment.
func (p PaymentMethod) IsManual() bool {
	return p.IsValid() && p != PaymentMethodCOD
}

// PaymentMethods returns the closed set in display order.
func PaymentMethods() []PaymentMethod {
	out := make([]PaymentMethod, len(validPaymentMethods))
	copy(out, validPaymentMethods)
	return out
}

// ParsePaymentMethod converts raw input into a PaymentMethod. Casing,
// whitespace and punctuation are ignored, so "Bank Transfer" and
// "USDT (TRC-20)" resolve like their canonical values.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	key := normalizeEnumKey(value)
	if method, ok := paymentMethodAliases[key]; ok {
		return method, nil
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}

func normalizeEnumKey(value string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(value) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
