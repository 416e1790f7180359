package notifications

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/shopspring/decimal"

	"github.com/kitsuneprints/storefront-backend/internal/paymentmethods"
	"github.com/kitsuneprints/storefront-backend/pkg/config"
	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
)

// Content is one rendered notification across every channel.
type Content struct {
	Subject  string
	Text     string
	HTML     string
	WhatsApp string
}

// ItemData is one order line as shown in messages.
type ItemData struct {
	Name      string
	Size      string
	Quantity  int
	LineTotal string
}

// TemplateData is the snapshot every template renders from.
type TemplateData struct {
	ShopName      string
	SupportEmail  string
	TrackURL      string
	CustomerName  string
	OrderNumber   string
	PaymentMethod string
	OrderStatus   string
	Subtotal      string
	Shipping      string
	Discount      string
	HasDiscount   bool
	Total         string
	Items         []ItemData
	Reason        string
	Notes         string
	Instructions  *paymentmethods.Instructions
}

type templateSource struct {
	subject  string
	text     string
	html     string
	whatsapp string
}

type compiled struct {
	subject  *texttemplate.Template
	text     *texttemplate.Template
	html     *htmltemplate.Template
	whatsapp *texttemplate.Template
}

const textItems = `{{range .Items}}- {{.Name}} ({{.Size}}) x{{.Quantity}}: {{.LineTotal}}
{{end}}Subtotal: {{.Subtotal}}
Shipping protection: {{.Shipping}}
{{if .HasDiscount}}Discount: -{{.Discount}}
{{end}}Total: {{.Total}}`

const textInstructions = `{{with .Instructions}}
{{.Title}}
{{range .Steps}}* {{.}}
{{end}}{{range .Accounts}}{{.Label}}: {{.Value}}
{{end}}{{end}}`

const htmlItems = `<table>{{range .Items}}<tr><td>{{.Name}} ({{.Size}}) x{{.Quantity}}</td><td>{{.LineTotal}}</td></tr>{{end}}
<tr><td>Subtotal</td><td>{{.Subtotal}}</td></tr>
<tr><td>Shipping protection</td><td>{{.Shipping}}</td></tr>
{{if .HasDiscount}}<tr><td>Discount</td><td>-{{.Discount}}</td></tr>{{end}}
<tr><td><strong>Total</strong></td><td><strong>{{.Total}}</strong></td></tr></table>`

const htmlInstructions = `{{with .Instructions}}<h3>{{.Title}}</h3><ol>{{range .Steps}}<li>{{.}}</li>{{end}}</ol>
<ul>{{range .Accounts}}<li>{{.Label}}: <strong>{{.Value}}</strong></li>{{end}}</ul>{{end}}`

const textFooter = `

Track your order: {{.TrackURL}}
Questions? Reply to {{.SupportEmail}}.
{{.ShopName}}`

const htmlFooter = `<p><a href="{{.TrackURL}}">Track your order</a></p><p>Questions? Write to {{.SupportEmail}}.<br>{{.ShopName}}</p>`

var templateSources = map[enums.NotificationEvent]templateSource{
	enums.NotificationOrderConfirmation: {
		subject: `Order {{.OrderNumber}} received`,
		text: `Hi {{.CustomerName}},

Thanks for your order {{.OrderNumber}}. Payment method: {{.PaymentMethod}}.

` + textItems + textInstructions + textFooter,
		html: `<p>Hi {{.CustomerName}},</p><p>Thanks for your order <strong>{{.OrderNumber}}</strong>. Payment method: {{.PaymentMethod}}.</p>` +
			htmlItems + htmlInstructions + htmlFooter,
		whatsapp: `{{.ShopName}}: order {{.OrderNumber}} received. Total {{.Total}} via {{.PaymentMethod}}. Track: {{.TrackURL}}`,
	},
	enums.NotificationPaymentReceived: {
		subject: `Payment proof received for {{.OrderNumber}}`,
		text: `Hi {{.CustomerName}},

We received your payment details for order {{.OrderNumber}} ({{.Total}}). Our team will verify them shortly.` + textFooter,
		html:     `<p>Hi {{.CustomerName}},</p><p>We received your payment details for order <strong>{{.OrderNumber}}</strong> ({{.Total}}). Our team will verify them shortly.</p>` + htmlFooter,
		whatsapp: `{{.ShopName}}: payment proof for {{.OrderNumber}} received. We will confirm once verified.`,
	},
	enums.NotificationPaymentApproved: {
		subject: `Payment confirmed for {{.OrderNumber}}`,
		text: `Hi {{.CustomerName}},

Your payment of {{.Total}} for order {{.OrderNumber}} is confirmed. We are preparing your prints.{{if .Notes}}

Note from our team: {{.Notes}}{{end}}` + textFooter,
		html:     `<p>Hi {{.CustomerName}},</p><p>Your payment of {{.Total}} for order <strong>{{.OrderNumber}}</strong> is confirmed. We are preparing your prints.</p>{{if .Notes}}<p>Note from our team: {{.Notes}}</p>{{end}}` + htmlFooter,
		whatsapp: `{{.ShopName}}: payment for {{.OrderNumber}} confirmed. Your prints are being prepared.`,
	},
	enums.NotificationPaymentRejected: {
		subject: `We could not verify the payment for {{.OrderNumber}}`,
		text: `Hi {{.CustomerName}},

We could not verify the payment you submitted for order {{.OrderNumber}}.{{if .Notes}}
Reason: {{.Notes}}{{end}}
{{if eq .OrderStatus "cancelled"}}The order has been cancelled.{{else}}Please submit the correct transaction id and receipt from the tracking page.{{end}}` + textInstructions + textFooter,
		html: `<p>Hi {{.CustomerName}},</p><p>We could not verify the payment you submitted for order <strong>{{.OrderNumber}}</strong>.</p>{{if .Notes}}<p>Reason: {{.Notes}}</p>{{end}}` +
			`{{if eq .OrderStatus "cancelled"}}<p>The order has been cancelled.</p>{{else}}<p>Please submit the correct transaction id and receipt from the tracking page.</p>` + htmlInstructions + `{{end}}` + htmlFooter,
		whatsapp: `{{.ShopName}}: we could not verify the payment for {{.OrderNumber}}. Please check your email for details.`,
	},
	enums.NotificationPaymentReminder: {
		subject: `Reminder: payment pending for {{.OrderNumber}}`,
		text: `Hi {{.CustomerName}},

Your order {{.OrderNumber}} is still waiting for payment of {{.Total}}. Unpaid orders are cancelled 48 hours after checkout.` + textInstructions + textFooter,
		html:     `<p>Hi {{.CustomerName}},</p><p>Your order <strong>{{.OrderNumber}}</strong> is still waiting for payment of {{.Total}}. Unpaid orders are cancelled 48 hours after checkout.</p>` + htmlInstructions + htmlFooter,
		whatsapp: `{{.ShopName}}: order {{.OrderNumber}} is awaiting payment of {{.Total}}. It will be cancelled if unpaid within 48 hours of checkout.`,
	},
	enums.NotificationOrderExpired: {
		subject: `Order {{.OrderNumber}} cancelled`,
		text: `Hi {{.CustomerName}},

Order {{.OrderNumber}} was cancelled because we did not receive payment within 48 hours. You are welcome to place a new order any time.` + textFooter,
		html:     `<p>Hi {{.CustomerName}},</p><p>Order <strong>{{.OrderNumber}}</strong> was cancelled because we did not receive payment within 48 hours. You are welcome to place a new order any time.</p>` + htmlFooter,
		whatsapp: `{{.ShopName}}: order {{.OrderNumber}} was cancelled as payment was not received within 48 hours.`,
	},
	enums.NotificationOrderShipped: {
		subject: `Order {{.OrderNumber}} has shipped`,
		text: `Hi {{.CustomerName}},

Good news: order {{.OrderNumber}} has been handed to the courier.{{if .Notes}}
{{.Notes}}{{end}}` + textFooter,
		html:     `<p>Hi {{.CustomerName}},</p><p>Good news: order <strong>{{.OrderNumber}}</strong> has been handed to the courier.</p>{{if .Notes}}<p>{{.Notes}}</p>{{end}}` + htmlFooter,
		whatsapp: `{{.ShopName}}: order {{.OrderNumber}} has shipped.`,
	},
	enums.NotificationOrderEnroute: {
		subject: `Order {{.OrderNumber}} is out for delivery`,
		text: `Hi {{.CustomerName}},

Order {{.OrderNumber}} is on its way to you.{{if eq .PaymentMethod "Cash on Delivery"}} Please keep {{.Total}} ready for the rider.{{end}}` + textFooter,
		html:     `<p>Hi {{.CustomerName}},</p><p>Order <strong>{{.OrderNumber}}</strong> is on its way to you.{{if eq .PaymentMethod "Cash on Delivery"}} Please keep {{.Total}} ready for the rider.{{end}}</p>` + htmlFooter,
		whatsapp: `{{.ShopName}}: order {{.OrderNumber}} is out for delivery.`,
	},
	enums.NotificationOrderDelivered: {
		subject: `Order {{.OrderNumber}} delivered`,
		text: `Hi {{.CustomerName}},

Order {{.OrderNumber}} has been delivered. We hope you love your prints! Reviews help other fans find us.` + textFooter,
		html:     `<p>Hi {{.CustomerName}},</p><p>Order <strong>{{.OrderNumber}}</strong> has been delivered. We hope you love your prints! Reviews help other fans find us.</p>` + htmlFooter,
		whatsapp: `{{.ShopName}}: order {{.OrderNumber}} delivered. Enjoy your prints!`,
	},
	enums.NotificationOrderCancelled: {
		subject: `Order {{.OrderNumber}} cancelled`,
		text: `Hi {{.CustomerName}},

Order {{.OrderNumber}} has been cancelled.{{if .Reason}}
Reason: {{.Reason}}{{end}}` + textFooter,
		html:     `<p>Hi {{.CustomerName}},</p><p>Order <strong>{{.OrderNumber}}</strong> has been cancelled.</p>{{if .Reason}}<p>Reason: {{.Reason}}</p>{{end}}` + htmlFooter,
		whatsapp: `{{.ShopName}}: order {{.OrderNumber}} has been cancelled.`,
	},
}

// Renderer holds the parsed template table. It is built once at startup and
// is safe for concurrent use.
type Renderer struct {
	shop      config.ShopConfig
	templates map[enums.NotificationEvent]compiled
}

// NewRenderer parses every template and fails if any event lacks one.
func NewRenderer(shop config.ShopConfig) (*Renderer, error) {
	templates := make(map[enums.NotificationEvent]compiled, len(templateSources))
	for _, event := range enums.NotificationEvents() {
		src, ok := templateSources[event]
		if !ok {
			return nil, fmt.Errorf("no template for %s", event)
		}
		name := string(event)
		var c compiled
		var err error
		if c.subject, err = texttemplate.New(name + ".subject").Option("missingkey=error").Parse(src.subject); err != nil {
			return nil, fmt.Errorf("parse %s subject: %w", event, err)
		}
		if c.text, err = texttemplate.New(name + ".txt").Option("missingkey=error").Parse(src.text); err != nil {
			return nil, fmt.Errorf("parse %s text: %w", event, err)
		}
		if c.html, err = htmltemplate.New(name + ".html").Option("missingkey=error").Parse(src.html); err != nil {
			return nil, fmt.Errorf("parse %s html: %w", event, err)
		}
		if c.whatsapp, err = texttemplate.New(name + ".whatsapp").Option("missingkey=error").Parse(src.whatsapp); err != nil {
			return nil, fmt.Errorf("parse %s whatsapp: %w", event, err)
		}
		templates[event] = c
	}
	return &Renderer{shop: shop, templates: templates}, nil
}

// Render produces the message for event.
func (r *Renderer) Render(event enums.NotificationEvent, data TemplateData) (Content, error) {
	c, ok := r.templates[event]
	if !ok {
		return Content{}, fmt.Errorf("unknown notification event %q", event)
	}
	var out Content
	var err error
	if out.Subject, err = execText(c.subject, data); err != nil {
		return Content{}, fmt.Errorf("render %s subject: %w", event, err)
	}
	if out.Text, err = execText(c.text, data); err != nil {
		return Content{}, fmt.Errorf("render %s text: %w", event, err)
	}
	var buf bytes.Buffer
	if err := c.html.Execute(&buf, data); err != nil {
		return Content{}, fmt.Errorf("render %s html: %w", event, err)
	}
	out.HTML = buf.String()
	if out.WhatsApp, err = execText(c.whatsapp, data); err != nil {
		return Content{}, fmt.Errorf("render %s whatsapp: %w", event, err)
	}
	out.Subject = strings.Join(strings.Fields(out.Subject), " ")
	return out, nil
}

// Data builds the template snapshot for order.
func (r *Renderer) Data(order *models.Order, reason string, instructions *paymentmethods.Instructions) TemplateData {
	currency := r.shop.Currency
	if currency == "" {
		currency = "PKR"
	}
	money := func(d decimal.Decimal) string {
		return currency + " " + d.StringFixed(2)
	}
	items := make([]ItemData, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, ItemData{
			Name:      item.ProductName,
			Size:      string(item.Size),
			Quantity:  item.Quantity,
			LineTotal: money(item.LineTotal),
		})
	}
	notes := ""
	if order.PaymentNotes != nil {
		notes = *order.PaymentNotes
	}
	if reason == "" && order.CancellationReason != nil {
		reason = *order.CancellationReason
	}
	return TemplateData{
		ShopName:      r.shop.Name,
		SupportEmail:  r.shop.SupportEmail,
		TrackURL:      r.trackURL(order),
		CustomerName:  order.CustomerName,
		OrderNumber:   order.OrderNumber,
		PaymentMethod: order.PaymentMethod.Label(),
		OrderStatus:   string(order.OrderStatus),
		Subtotal:      money(order.Subtotal),
		Shipping:      money(order.ShippingCost),
		Discount:      money(order.DiscountAmount),
		HasDiscount:   order.DiscountAmount.IsPositive(),
		Total:         money(order.Total),
		Items:         items,
		Reason:        reason,
		Notes:         notes,
		Instructions:  instructions,
	}
}

func (r *Renderer) trackURL(order *models.Order) string {
	base := strings.TrimRight(strings.TrimSpace(r.shop.StorefrontURL), "/")
	return base + "/track?order=" + order.OrderNumber
}

func execText(t *texttemplate.Template, data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
