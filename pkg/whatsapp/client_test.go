package whatsapp

import (
	"context"
	"errors"
	"testing"

	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeAPI struct {
	params []*openapi.CreateMessageParams
	err    error
}

func (f *fakeAPI) CreateMessage(p *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error) {
	f.params = append(f.params, p)
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &openapi.ApiV2010Message{Sid: &sid}, nil
}

func TestSendAddressesWhatsApp(t *testing.T) {
	api := &fakeAPI{}
	client, err := newClient(api, "+14155238886", "+92", nil)
	if err != nil {
		t.Fatalf("newClient: %v", err)
	}

	sid, err := client.Send(context.Background(), "0300-1234567", "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sid != "SM123" {
		t.Fatalf("unexpected sid %q", sid)
	}
	p := api.params[0]
	if *p.From != "whatsapp:+14155238886" {
		t.Fatalf("unexpected from %q", *p.From)
	}
	if *p.To != "whatsapp:+923001234567" {
		t.Fatalf("unexpected to %q", *p.To)
	}
	if *p.Body != "hello" {
		t.Fatalf("unexpected body %q", *p.Body)
	}
}

func TestSendStopsOnCanceledContext(t *testing.T) {
	api := &fakeAPI{}
	client, _ := newClient(api, "whatsapp:+14155238886", "+92", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.Send(ctx, "+923001234567", "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if len(api.params) != 0 {
		t.Fatal("expected no provider call")
	}
}

func TestNewClientRequiresSender(t *testing.T) {
	if _, err := newClient(&fakeAPI{}, " whatsapp: ", "+92", nil); !errors.Is(err, errFromRequired) {
		t.Fatalf("expected from error, got %v", err)
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		cc   string
		want string
		err  bool
	}{
		{in: "03001234567", cc: "+92", want: "+923001234567"},
		{in: "+92 300 1234567", cc: "+92", want: "+923001234567"},
		{in: "0092-300-1234567", cc: "+92", want: "+923001234567"},
		{in: "923001234567", cc: "92", want: "+923001234567"},
		{in: "3001234567", cc: "+92", want: "+923001234567"},
		{in: "(415) 555-2671", cc: "+1", want: "+14155552671"},
		{in: "03001234567", cc: "", err: true},
		{in: "12ab", cc: "+92", err: true},
		{in: "012", cc: "+92", err: true},
	}
	for _, tc := range cases {
		got, err := NormalizePhone(tc.in, tc.cc)
		if tc.err {
			if err == nil {
				t.Fatalf("NormalizePhone(%q) expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("NormalizePhone(%q, %q) = %q, %v; want %q", tc.in, tc.cc, got, err, tc.want)
		}
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(&twclient.TwilioRestError{Status: 503}) {
		t.Fatal("expected 503 transient")
	}
	if IsTransient(&twclient.TwilioRestError{Status: 400, Code: 21211}) {
		t.Fatal("expected 400 permanent")
	}
	if IsTransient(errors.New("x")) {
		t.Fatal("expected plain error permanent")
	}
}
