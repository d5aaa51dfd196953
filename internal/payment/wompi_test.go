package payment

import (
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/tiendaverde/catalogo/internal/domain"
)

const testOrderID = "0b4f7f93-9a53-4f0e-8f62-1c2b9a6cfb01"

func TestReference(t *testing.T) {
	ref := Reference(testOrderID)
	if ref != "PEDIDO"+testOrderID {
		t.Errorf("unexpected reference %q", ref)
	}

	orderID, err := ParseReference(ref)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if orderID != testOrderID {
		t.Errorf("expected %q, got %q", testOrderID, orderID)
	}
}

func TestParseReferenceMalformed(t *testing.T) {
	cases := []string{
		"",
		"PEDIDO",
		"ORDER" + testOrderID,
		"PEDIDOnot-a-uuid",
		testOrderID,
	}

	for _, ref := range cases {
		if _, err := ParseReference(ref); !errors.Is(err, ErrMalformedReference) {
			t.Errorf("expected ErrMalformedReference for %q, got %v", ref, err)
		}
	}
}

func TestRedirectURL(t *testing.T) {
	gateway := NewGateway("https://checkout.example.com/p/", "pub_test_123", "secret")
	order := &domain.Order{ID: testOrderID, Total: 2500}

	raw := gateway.RedirectURL(order)
	if !strings.HasPrefix(raw, "https://checkout.example.com/p/?") {
		t.Fatalf("unexpected url prefix: %s", raw)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid url: %v", err)
	}

	q := parsed.Query()
	if got := q.Get("amount-in-cents"); got != "2500" {
		t.Errorf("expected amount-in-cents 2500, got %q", got)
	}
	if got := q.Get("reference"); got != "PEDIDO"+testOrderID {
		t.Errorf("unexpected reference %q", got)
	}
	if got := q.Get("public-key"); got != "pub_test_123" {
		t.Errorf("unexpected public key %q", got)
	}
	if q.Get("signature:integrity") == "" {
		t.Error("expected integrity signature")
	}
}

func TestSignAndVerify(t *testing.T) {
	gateway := NewGateway("https://checkout.example.com/p/", "pub", "secret")
	ref := Reference(testOrderID)

	sig := gateway.Sign(ref, "APPROVED")
	if !gateway.VerifySignature(ref, "APPROVED", sig) {
		t.Error("expected signature to verify")
	}
	if gateway.VerifySignature(ref, "DECLINED", sig) {
		t.Error("signature must not verify for a different status")
	}
	if gateway.VerifySignature(ref, "APPROVED", "deadbeef") {
		t.Error("bogus signature must not verify")
	}

	other := NewGateway("https://checkout.example.com/p/", "pub", "other-secret")
	if other.VerifySignature(ref, "APPROVED", sig) {
		t.Error("signature must not verify under a different secret")
	}
}

func TestMapStatus(t *testing.T) {
	cases := []struct {
		status string
		want   domain.PaymentStatus
	}{
		{"APPROVED", domain.PaymentStatusPaid},
		{"DECLINED", domain.PaymentStatusRejected},
		{"VOIDED", domain.PaymentStatusPending},
		{"ERROR", domain.PaymentStatusPending},
		{"", domain.PaymentStatusPending},
		{"approved", domain.PaymentStatusPending},
	}

	for _, tc := range cases {
		if got := MapStatus(tc.status); got != tc.want {
			t.Errorf("MapStatus(%q) = %q, want %q", tc.status, got, tc.want)
		}
	}
}
