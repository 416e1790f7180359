package email

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/kitsuneprints/storefront-backend/pkg/config"
)

type fakeSendGrid struct {
	resp  *rest.Response
	err   error
	calls []*mail.SGMailV3
}

func (f *fakeSendGrid) SendWithContext(_ context.Context, m *mail.SGMailV3) (*rest.Response, error) {
	f.calls = append(f.calls, m)
	return f.resp, f.err
}

func testConfig() config.SendgridConfig {
	return config.SendgridConfig{APIKey: "key", DefaultFrom: "orders@example.com", FromName: "Shop"}
}

func TestSendBuildsBothParts(t *testing.T) {
	fake := &fakeSendGrid{resp: &rest.Response{StatusCode: 202}}
	client, err := newClient(fake, testConfig(), nil)
	if err != nil {
		t.Fatalf("newClient: %v", err)
	}

	err = client.Send(context.Background(), Message{
		To:         "buyer@example.com",
		ToName:     "Buyer",
		Subject:    "Order KP123",
		Text:       "plain",
		HTML:       "<p>html</p>",
		Categories: []string{"order_confirmation"},
		CustomArgs: map[string]string{"order_number": "KP123"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected one call, got %d", len(fake.calls))
	}
	sent := fake.calls[0]
	if sent.From.Address != "orders@example.com" || sent.From.Name != "Shop" {
		t.Fatalf("unexpected from %+v", sent.From)
	}
	if len(sent.Content) != 2 || sent.Content[0].Type != "text/plain" || sent.Content[1].Type != "text/html" {
		t.Fatalf("expected plain and html content, got %+v", sent.Content)
	}
	if sent.Personalizations[0].To[0].Address != "buyer@example.com" {
		t.Fatalf("unexpected recipient %+v", sent.Personalizations[0].To)
	}
	if len(sent.Categories) != 1 || sent.CustomArgs["order_number"] != "KP123" {
		t.Fatalf("expected categories and custom args, got %v %v", sent.Categories, sent.CustomArgs)
	}
}

func TestSendRejectsProviderError(t *testing.T) {
	fake := &fakeSendGrid{resp: &rest.Response{StatusCode: 503, Body: "busy"}}
	client, _ := newClient(fake, testConfig(), nil)

	err := client.Send(context.Background(), Message{To: "a@b.co", Subject: "s", Text: "t"})
	var delivery *DeliveryError
	if !errors.As(err, &delivery) || delivery.StatusCode != 503 {
		t.Fatalf("expected delivery error, got %v", err)
	}
	if !IsTransient(err) {
		t.Fatal("expected 503 to be transient")
	}
}

func TestSendValidatesInput(t *testing.T) {
	client, _ := newClient(&fakeSendGrid{}, testConfig(), nil)
	if err := client.Send(context.Background(), Message{Subject: "s"}); !errors.Is(err, errRecipientRequired) {
		t.Fatalf("expected recipient error, got %v", err)
	}
	if err := client.Send(context.Background(), Message{To: "a@b.co"}); !errors.Is(err, errSubjectRequired) {
		t.Fatalf("expected subject error, got %v", err)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(config.SendgridConfig{DefaultFrom: "x@y.z"}, nil); !errors.Is(err, errAPIKeyRequired) {
		t.Fatalf("expected api key error, got %v", err)
	}
	if _, err := newClient(&fakeSendGrid{}, config.SendgridConfig{}, nil); !errors.Is(err, errFromRequired) {
		t.Fatalf("expected from error, got %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", fmt.Errorf("send: %w", context.DeadlineExceeded), true},
		{"canceled", context.Canceled, false},
		{"rate limited", &DeliveryError{StatusCode: 429}, true},
		{"server error", &DeliveryError{StatusCode: 502}, true},
		{"bad request", &DeliveryError{StatusCode: 400}, false},
		{"unauthorized", &DeliveryError{StatusCode: 401}, false},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
		{"dns temporary", &net.DNSError{IsTemporary: true}, true},
		{"dns permanent", &net.DNSError{IsNotFound: true}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
