package paymentmethods

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/kitsuneprints/storefront-backend/pkg/config"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
)

func fullAccounts() config.PaymentAccountsConfig {
	return config.PaymentAccountsConfig{
		JazzCashNumber:    "03001234567",
		JazzCashTitle:     "Kitsune Prints",
		EasyPaisaNumber:   "03111234567",
		BankName:          "Meezan Bank",
		BankAccountTitle:  "Kitsune Prints",
		BankAccountNumber: "0101-123456",
		BankIBAN:          "PK00MEZN0000000101123456",
		USDTAddress:       "TXyz",
		CryptoBTCAddress:  "bc1q",
		CODEnabled:        true,
	}
}

func TestInstructionsEmbedTotalAndOrderNumber(t *testing.T) {
	catalog := NewCatalog(fullAccounts(), "PKR")

	ins, err := catalog.Instructions(enums.PaymentMethodJazzCash, decimal.RequireFromString("2450"), "KP123456-abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	joined := strings.Join(ins.Steps, "\n")
	if !strings.Contains(joined, "PKR 2450.00") {
		t.Fatalf("expected amount in steps, got %q", joined)
	}
	if !strings.Contains(joined, "KP123456-abc") {
		t.Fatalf("expected order number in steps, got %q", joined)
	}
	if !ins.RequiresProof {
		t.Fatal("expected wallet payment to require proof")
	}
	if len(ins.Accounts) != 2 || ins.Accounts[0].Value != "03001234567" {
		t.Fatalf("unexpected accounts %+v", ins.Accounts)
	}
}

func TestInstructionsUnknownMethod(t *testing.T) {
	catalog := NewCatalog(fullAccounts(), "PKR")
	if _, err := catalog.Instructions(enums.PaymentMethod("paypal"), decimal.NewFromInt(1), "KP1"); !errors.Is(err, ErrNoInstructions) {
		t.Fatalf("expected ErrNoInstructions, got %v", err)
	}
}

func TestUnconfiguredMethodsAreHidden(t *testing.T) {
	catalog := NewCatalog(config.PaymentAccountsConfig{JazzCashNumber: "0300"}, "")

	methods := catalog.Methods()
	if len(methods) != 1 || methods[0].Method != enums.PaymentMethodJazzCash {
		t.Fatalf("expected only jazzcash, got %+v", methods)
	}
	if catalog.Supports(enums.PaymentMethodCOD) {
		t.Fatal("expected cod disabled")
	}
	if _, err := catalog.Instructions(enums.PaymentMethodBankTransfer, decimal.Zero, "KP1"); !errors.Is(err, ErrNoInstructions) {
		t.Fatalf("expected ErrNoInstructions, got %v", err)
	}
}

func TestMethodsOrderAndCOD(t *testing.T) {
	catalog := NewCatalog(fullAccounts(), "PKR")
	methods := catalog.Methods()
	if len(methods) != 6 {
		t.Fatalf("expected 6 methods, got %d", len(methods))
	}
	last := methods[len(methods)-1]
	if last.Method != enums.PaymentMethodCOD || last.RequiresProof {
		t.Fatalf("expected cod last without proof, got %+v", last)
	}
}

func TestInstructionsReturnCopies(t *testing.T) {
	catalog := NewCatalog(fullAccounts(), "PKR")
	first, _ := catalog.Instructions(enums.PaymentMethodBankTransfer, decimal.NewFromInt(100), "KP1")
	first.Accounts[0].Value = "tampered"

	second, _ := catalog.Instructions(enums.PaymentMethodBankTransfer, decimal.NewFromInt(100), "KP1")
	if second.Accounts[0].Value != "Meezan Bank" {
		t.Fatalf("expected catalog to be immutable, got %q", second.Accounts[0].Value)
	}
}

func TestNilCatalog(t *testing.T) {
	var catalog *Catalog
	if _, err := catalog.Instructions(enums.PaymentMethodCOD, decimal.Zero, "KP1"); !errors.Is(err, ErrNoInstructions) {
		t.Fatalf("expected ErrNoInstructions, got %v", err)
	}
	if got := catalog.FormatAmount(decimal.NewFromInt(5)); got != "5.00" {
		t.Fatalf("unexpected format %q", got)
	}
}
