package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/kitsuneprints/storefront-backend/pkg/config"
	"github.com/kitsuneprints/storefront-backend/pkg/logger"
)

const addressPrefix = "whatsapp:"

var (
	errCredentialsRequired = errors.New("twilio account sid and auth token are required")
	errFromRequired        = errors.New("twilio whatsapp sender is required")

	// ErrInvalidPhone is returned when a number cannot be normalised.
	ErrInvalidPhone = errors.New("invalid phone number")
)

// Sender delivers a WhatsApp text message and returns the provider id.
type Sender interface {
	Send(ctx context.Context, phone, body string) (string, error)
}

type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// Client sends WhatsApp messages through the Twilio Messages API.
type Client struct {
	api         messageCreator
	from        string
	countryCode string
	logg        *logger.Logger
}

// NewClient builds a Twilio-backed sender. countryCode is applied to
// local numbers such as 03001234567.
func NewClient(cfg config.TwilioConfig, countryCode string, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" || strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, errCredentialsRequired
	}
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: strings.TrimSpace(cfg.AccountSID),
		Password: strings.TrimSpace(cfg.AuthToken),
	})
	return newClient(rest.Api, cfg.WhatsAppFrom, countryCode, logg)
}

func newClient(api messageCreator, from, countryCode string, logg *logger.Logger) (*Client, error) {
	from = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(from), addressPrefix))
	if from == "" {
		return nil, errFromRequired
	}
	return &Client{api: api, from: addressPrefix + from, countryCode: countryCode, logg: logg}, nil
}

// Send posts body to phone. The Twilio SDK has no context support, so ctx
// is only checked before the call.
func (c *Client) Send(ctx context.Context, phone, body string) (string, error) {
	if c == nil || c.api == nil {
		return "", errors.New("whatsapp client not initialized")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	to, err := NormalizePhone(phone, c.countryCode)
	if err != nil {
		return "", err
	}

	params := &openapi.CreateMessageParams{}
	params.SetFrom(c.from)
	params.SetTo(addressPrefix + to)
	params.SetBody(body)

	msg, err := c.api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("twilio create message: %w", err)
	}
	sid := ""
	if msg != nil && msg.Sid != nil {
		sid = *msg.Sid
	}
	if c.logg != nil {
		c.logg.Debug(c.logg.WithField(ctx, "message_sid", sid), "whatsapp message queued")
	}
	return sid, nil
}

// NormalizePhone converts a customer-entered number into E.164.
// Numbers starting with 00 or + are treated as international; a leading 0
// is replaced by countryCode.
func NormalizePhone(raw, countryCode string) (string, error) {
	var b strings.Builder
	trimmed := strings.TrimSpace(raw)
	for i, r := range trimmed {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", ErrInvalidPhone
		}
	}
	digits := b.String()
	cc := "+" + strings.TrimLeft(strings.TrimSpace(countryCode), "+")

	switch {
	case strings.HasPrefix(digits, "+"):
	case strings.HasPrefix(digits, "00"):
		digits = "+" + digits[2:]
	case strings.HasPrefix(digits, "0"):
		if cc == "+" {
			return "", ErrInvalidPhone
		}
		digits = cc + digits[1:]
	case cc != "+" && strings.HasPrefix(digits, cc[1:]):
		digits = "+" + digits
	default:
		if cc == "+" {
			return "", ErrInvalidPhone
		}
		digits = cc + digits
	}

	if n := len(digits) - 1; n < 8 || n > 15 {
		return "", ErrInvalidPhone
	}
	return digits, nil
}

// IsTransient reports whether a Twilio failure may succeed later.
func IsTransient(err error) bool {
	var restErr *twclient.TwilioRestError
	if errors.As(err, &restErr) {
		return restErr.Status == 429 || restErr.Status >= 500
	}
	return errors.Is(err, context.DeadlineExceeded)
}
