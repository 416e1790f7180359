package email

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/kitsuneprints/storefront-backend/pkg/config"
	"github.com/kitsuneprints/storefront-backend/pkg/logger"
)

var (
	errAPIKeyRequired    = errors.New("sendgrid api key is required")
	errFromRequired      = errors.New("sendgrid from address is required")
	errRecipientRequired = errors.New("email recipient is required")
	errSubjectRequired   = errors.New("email subject is required")
)

// Message is a single transactional email with plain text and HTML parts.
type Message struct {
	To         string
	ToName     string
	Subject    string
	Text       string
	HTML       string
	Categories []string
	CustomArgs map[string]string
}

// Sender delivers one email. Implementations return *DeliveryError for
// provider rejections so callers can classify retries.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type sendClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Client sends mail through the SendGrid v3 API.
type Client struct {
	sg   sendClient
	from *mail.Email
	logg *logger.Logger
}

// DeliveryError reports a non-2xx response from the provider.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 256 {
		body = body[:256]
	}
	return fmt.Sprintf("sendgrid responded %d: %s", e.StatusCode, body)
}

// Transient reports whether the provider asked us to try again later.
func (e *DeliveryError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// NewClient builds a SendGrid sender from config.
func NewClient(cfg config.SendgridConfig, logg *logger.Logger) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errAPIKeyRequired
	}
	return newClient(sendgrid.NewSendClient(key), cfg, logg)
}

func newClient(sg sendClient, cfg config.SendgridConfig, logg *logger.Logger) (*Client, error) {
	from := strings.TrimSpace(cfg.DefaultFrom)
	if from == "" {
		return nil, errFromRequired
	}
	return &Client{
		sg:   sg,
		from: mail.NewEmail(strings.TrimSpace(cfg.FromName), from),
		logg: logg,
	}, nil
}

// Send delivers msg once. Retrying is the caller's decision.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if c == nil || c.sg == nil {
		return errors.New("email client not initialized")
	}
	if strings.TrimSpace(msg.To) == "" {
		return errRecipientRequired
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return errSubjectRequired
	}

	to := mail.NewEmail(strings.TrimSpace(msg.ToName), strings.TrimSpace(msg.To))
	payload := mail.NewSingleEmail(c.from, msg.Subject, to, msg.Text, msg.HTML)
	if len(msg.Categories) > 0 {
		payload.AddCategories(msg.Categories...)
	}
	for k, v := range msg.CustomArgs {
		payload.SetCustomArg(k, v)
	}

	resp, err := c.sg.SendWithContext(ctx, payload)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp == nil {
		return &DeliveryError{StatusCode: http.StatusBadGateway, Body: "empty response"}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{StatusCode: resp.StatusCode, Body: resp.Body}
	}
	if c.logg != nil {
		logCtx := c.logg.WithFields(ctx, map[string]any{
			"provider": "sendgrid",
			"status":   resp.StatusCode,
			"subject":  msg.Subject,
		})
		c.logg.Debug(logCtx, "email accepted")
	}
	return nil
}

// IsTransient reports whether err is worth retrying: timeouts, temporary
// network failures and provider 429/5xx responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var delivery *DeliveryError
	if errors.As(err, &delivery) {
		return delivery.Transient()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}
	return false
}
