package paymentmethods

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kitsuneprints/storefront-backend/pkg/config"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
)

// ErrNoInstructions is returned for methods without a configured template.
var ErrNoInstructions = errors.New("no instructions available")

// Account is one labelled receiving detail shown to the customer.
type Account struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Instructions tell the customer how to pay a specific order.
type Instructions struct {
	Method        enums.PaymentMethod `json:"method"`
	Label         string              `json:"label"`
	Title         string              `json:"title"`
	Steps         []string            `json:"steps"`
	Accounts      []Account           `json:"accounts"`
	RequiresProof bool                `json:"requiresProof"`
}

// Method is a storefront-visible payment option.
type Method struct {
	Method        enums.PaymentMethod `json:"method"`
	Label         string              `json:"label"`
	RequiresProof bool                `json:"requiresProof"`
}

type stepsFunc func(amount, orderNumber string) []string

type entry struct {
	title    string
	accounts []Account
	steps    stepsFunc
}

// Catalog is the single source of payment instructions. It is built once
// and never mutated.
type Catalog struct {
	currency string
	entries  map[enums.PaymentMethod]entry
}

// NewCatalog builds the instruction table from the configured accounts.
// Manual methods whose receiving details are blank are left out.
func NewCatalog(accounts config.PaymentAccountsConfig, currency string) *Catalog {
	currency = strings.TrimSpace(currency)
	entries := make(map[enums.PaymentMethod]entry, len(enums.PaymentMethods()))

	walletSteps := func(wallet string) stepsFunc {
		return func(amount, orderNumber string) []string {
			return []string{
				fmt.Sprintf("Open your %s app and choose Send Money.", wallet),
				fmt.Sprintf("Send exactly %s to the account below.", amount),
				fmt.Sprintf("Use %s as the payment reference.", orderNumber),
				"Upload the transaction id and a screenshot of the receipt on the order tracking page.",
			}
		}
	}

	if number := strings.TrimSpace(accounts.JazzCashNumber); number != "" {
		entries[enums.PaymentMethodJazzCash] = entry{
			title:    "Pay with JazzCash",
			accounts: nonEmpty(Account{"Account number", number}, Account{"Account title", accounts.JazzCashTitle}),
			steps:    walletSteps("JazzCash"),
		}
	}
	if number := strings.TrimSpace(accounts.EasyPaisaNumber); number != "" {
		entries[enums.PaymentMethodEasyPaisa] = entry{
			title:    "Pay with EasyPaisa",
			accounts: nonEmpty(Account{"Account number", number}, Account{"Account title", accounts.EasyPaisaTitle}),
			steps:    walletSteps("EasyPaisa"),
		}
	}
	if number := strings.TrimSpace(accounts.BankAccountNumber); number != "" {
		entries[enums.PaymentMethodBankTransfer] = entry{
			title: "Pay by bank transfer",
			accounts: nonEmpty(
				Account{"Bank", accounts.BankName},
				Account{"Account title", accounts.BankAccountTitle},
				Account{"Account number", number},
				Account{"IBAN", accounts.BankIBAN},
			),
			steps: func(amount, orderNumber string) []string {
				return []string{
					fmt.Sprintf("Transfer exactly %s to the bank account below.", amount),
					fmt.Sprintf("Write %s in the transfer remarks.", orderNumber),
					"Upload the transaction reference and the bank receipt on the order tracking page.",
				}
			},
		}
	}
	if address := strings.TrimSpace(accounts.USDTAddress); address != "" {
		entries[enums.PaymentMethodUSDTTRC20] = entry{
			title:    "Pay with USDT (TRC-20)",
			accounts: nonEmpty(Account{"TRC-20 address", address}),
			steps: func(amount, orderNumber string) []string {
				return []string{
					fmt.Sprintf("Send the USDT equivalent of %s on the TRON (TRC-20) network only.", amount),
					"Double-check the address below before confirming.",
					fmt.Sprintf("Upload the transaction hash for order %s on the order tracking page.", orderNumber),
				}
			},
		}
	}
	btc, eth := strings.TrimSpace(accounts.CryptoBTCAddress), strings.TrimSpace(accounts.CryptoETHAddress)
	if btc != "" || eth != "" {
		entries[enums.PaymentMethodCrypto] = entry{
			title:    "Pay with crypto",
			accounts: nonEmpty(Account{"BTC address", btc}, Account{"ETH address", eth}),
			steps: func(amount, orderNumber string) []string {
				return []string{
					fmt.Sprintf("Send the equivalent of %s to one of the addresses below.", amount),
					fmt.Sprintf("Upload the transaction hash for order %s on the order tracking page.", orderNumber),
				}
			},
		}
	}
	if accounts.CODEnabled {
		entries[enums.PaymentMethodCOD] = entry{
			title: "Cash on delivery",
			steps: func(amount, orderNumber string) []string {
				return []string{
					fmt.Sprintf("Keep %s ready in cash when order %s arrives.", amount, orderNumber),
					"No payment proof is needed.",
				}
			},
		}
	}

	return &Catalog{currency: currency, entries: entries}
}

// Instructions renders the template for method with the order's total and
// number. Unknown or unconfigured methods yield ErrNoInstructions.
func (c *Catalog) Instructions(method enums.PaymentMethod, total decimal.Decimal, orderNumber string) (Instructions, error) {
	if c == nil {
		return Instructions{}, ErrNoInstructions
	}
	e, ok := c.entries[method]
	if !ok {
		return Instructions{}, ErrNoInstructions
	}
	accounts := make([]Account, len(e.accounts))
	copy(accounts, e.accounts)
	return Instructions{
		Method:        method,
		Label:         method.Label(),
		Title:         e.title,
		Steps:         e.steps(c.FormatAmount(total), orderNumber),
		Accounts:      accounts,
		RequiresProof: method.IsManual(),
	}, nil
}

// Supports reports whether method is offered at checkout.
func (c *Catalog) Supports(method enums.PaymentMethod) bool {
	if c == nil {
		return false
	}
	_, ok := c.entries[method]
	return ok
}

// Methods lists the enabled methods in display order.
func (c *Catalog) Methods() []Method {
	out := []Method{}
	for _, method := range enums.PaymentMethods() {
		if !c.Supports(method) {
			continue
		}
		out = append(out, Method{Method: method, Label: method.Label(), RequiresProof: method.IsManual()})
	}
	return out
}

// FormatAmount renders an amount with the shop currency.
func (c *Catalog) FormatAmount(amount decimal.Decimal) string {
	value := amount.StringFixed(2)
	if c == nil || c.currency == "" {
		return value
	}
	return c.currency + " " + value
}

func nonEmpty(accounts ...Account) []Account {
	out := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		a.Value = strings.TrimSpace(a.Value)
		if a.Value == "" {
			continue
		}
		out = append(out, a)
	}
	return out
}
