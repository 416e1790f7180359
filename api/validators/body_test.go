package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/kitsuneprints/storefront-backend/pkg/errors"
)

type lineItem struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"min=1,max=10"`
}

type orderBody struct {
	Email string     `json:"email" validate:"required,email"`
	Items []lineItem `json:"items" validate:"required,min=1,dive"`
}

func decode(t *testing.T, body string) (*orderBody, error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	var dest orderBody
	err := DecodeJSONBody(req, &dest)
	return &dest, err
}

func details(t *testing.T, err error) map[string]string {
	t.Helper()
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected typed error, got %v", err)
	}
	d, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %#v", typed.Details())
	}
	return d
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	got, err := decode(t, `{"email":"aiko@example.com","items":[{"productId":"p1","quantity":2}]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Items[0].Quantity != 2 {
		t.Fatalf("unexpected decode %+v", got)
	}
}

func TestDecodeJSONBodyReportsNestedFields(t *testing.T) {
	_, err := decode(t, `{"email":"nope","items":[{"productId":"p1","quantity":0}]}`)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	d := details(t, err)
	if d["email"] != "must be a valid email" {
		t.Fatalf("unexpected email detail %q", d["email"])
	}
	if d["items[0].quantity"] != "must be at least 1" {
		t.Fatalf("unexpected nested detail: %v", d)
	}
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"empty":    ``,
		"syntax":   `{"email":`,
		"trailing": `{"email":"a@b.co","items":[{"productId":"p","quantity":1}]} {}`,
	}
	for name, body := range cases {
		if _, err := decode(t, body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestDecodeJSONBodyRejectsUnknownField(t *testing.T) {
	_, err := decode(t, `{"email":"a@b.co","items":[{"productId":"p","quantity":1}],"discount":"100"}`)
	if d := details(t, err); d["discount"] != "is not allowed" {
		t.Fatalf("unexpected details %v", d)
	}
}

func TestDecodeJSONBodyRejectsWrongType(t *testing.T) {
	_, err := decode(t, `{"email":"a@b.co","items":[{"productId":"p","quantity":"two"}]}`)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeJSONBodyRejectsOversizedBody(t *testing.T) {
	big := `{"email":"` + strings.Repeat("a", MaxJSONBodyBytes) + `@b.co","items":[]}`
	_, err := decode(t, big)
	if typed := pkgerrors.As(err); typed == nil || typed.Message() != "request body is too large" {
		t.Fatalf("expected too large error, got %v", err)
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello\x00 world \x07 ", 0); got != "hello world" {
		t.Fatalf("unexpected %q", got)
	}
	if got := SanitizeString("line one\nline two", 0); got != "line one\nline two" {
		t.Fatalf("newlines should survive, got %q", got)
	}
	if got := SanitizeString("ナルトのポスター", 3); got != "ナルト" {
		t.Fatalf("expected rune-safe truncation, got %q", got)
	}
}
