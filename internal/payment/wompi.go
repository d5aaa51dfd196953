// Package payment integrates the Wompi redirect checkout: an outbound
// redirect URL carrying the amount in cents and an order reference, and an
// inbound callback reporting the payment result.
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/tiendaverde/catalogo/internal/domain"
)

// MethodWompi is the payment method value that routes a checkout through the
// gateway. Any other method leaves the order pending for manual settlement
// (cash, wire transfer, card terminal).
const MethodWompi = "Wompi"

const referencePrefix = "PEDIDO"

var ErrMalformedReference = errors.New("malformed payment reference")

type Gateway struct {
	checkoutURL string
	publicKey   string
	secret      string
	currency    string
}

func NewGateway(checkoutURL, publicKey, secret string) *Gateway {
	return &Gateway{
		checkoutURL: checkoutURL,
		publicKey:   publicKey,
		secret:      secret,
		currency:    "COP",
	}
}

// Reference derives the gateway reference string from an order ID.
func Reference(orderID string) string {
	return referencePrefix + orderID
}

// ParseReference extracts the order ID out of a gateway reference.
func ParseReference(reference string) (string, error) {
	orderID, ok := strings.CutPrefix(reference, referencePrefix)
	if !ok || orderID == "" {
		return "", ErrMalformedReference
	}
	if _, err := uuid.Parse(orderID); err != nil {
		return "", ErrMalformedReference
	}
	return orderID, nil
}

// RedirectURL builds the hosted-checkout URL for an order: amount in integer
// cents, the order reference, the merchant public key, and an integrity
// signature over reference, amount and currency.
func (g *Gateway) RedirectURL(order *domain.Order) string {
	reference := Reference(order.ID)

	integrity := sha256.Sum256([]byte(fmt.Sprintf("%s%d%s%s", reference, order.Total, g.currency, g.secret)))

	params := url.Values{}
	params.Set("amount-in-cents", fmt.Sprintf("%d", order.Total))
	params.Set("currency", g.currency)
	params.Set("reference", reference)
	params.Set("public-key", g.publicKey)
	params.Set("signature:integrity", hex.EncodeToString(integrity[:]))

	return g.checkoutURL + "?" + params.Encode()
}

// Sign computes the callback signature for a reference and status. The
// gateway sends this alongside the callback; we recompute and compare before
// trusting the reported status.
func (g *Gateway) Sign(reference, status string) string {
	mac := hmac.New(sha256.New, []byte(g.secret))
	mac.Write([]byte(reference))
	mac.Write([]byte(status))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches the expected HMAC for
// reference and status.
func (g *Gateway) VerifySignature(reference, status, signature string) bool {
	expected := g.Sign(reference, status)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// MapStatus translates a gateway status code into our payment status.
// Unrecognized codes leave the payment pending.
func MapStatus(status string) domain.PaymentStatus {
	switch status {
	case "APPROVED":
		return domain.PaymentStatusPaid
	case "DECLINED":
		return domain.PaymentStatusRejected
	default:
		return domain.PaymentStatusPending
	}
}
