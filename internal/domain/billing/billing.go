package billing

import (
	"fmt"
	"strings"

	"github.com/sokodigital/storefront-payments/internal/domain/errors"
)

// RecordKind identifies which table a purchasable record lives in.
type RecordKind string

const (
	KindOrder RecordKind = "order"
	KindEvent RecordKind = "event"
)

// ParseRecordKind validates a caller-supplied kind string.
func ParseRecordKind(s string) (RecordKind, error) {
	switch RecordKind(s) {
	case KindOrder:
		return KindOrder, nil
	case KindEvent:
		return KindEvent, nil
	}
	return "", errors.ErrInvalidRecordKind
}

// EventReferencePrefix is stamped onto merchant references for event
// registrations so callbacks can be routed without a table probe.
const EventReferencePrefix = "EVT-"

// MerchantReference builds the reference string echoed back by gateways.
// Event references always carry the prefix; order references are the raw id.
func MerchantReference(kind RecordKind, id string) string {
	if kind == KindEvent {
		return EventReferencePrefix + id
	}
	return id
}

// Outcome is the shared tri-state payment result. Gateway-specific status
// codes are normalized to an Outcome before leaving the gateway package.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomePending Outcome = "pending"
)

// Terminal reports whether the outcome ends the payment attempt.
func (o Outcome) Terminal() bool {
	return o == OutcomeSuccess || o == OutcomeFailed
}

// Amount is a monetary amount in the smallest currency unit.
type Amount struct {
	ValueCents int64
	Currency   string
}

// String returns a human-readable representation of the amount.
func (a Amount) String() string {
	whole := a.ValueCents / 100
	frac := a.ValueCents % 100
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%02d %s", whole, frac, a.Currency)
}

// Validate checks that the amount is valid.
func (a Amount) Validate() error {
	if a.ValueCents <= 0 {
		return errors.NewValidationError("amount", "must be greater than 0")
	}
	if len(a.Currency) != 3 {
		return errors.NewValidationError("currency", "must be a 3-letter ISO code")
	}
	return nil
}

const (
	// countryCode is the international dialling prefix for normalized MSISDNs.
	countryCode = "254"
	// PlaceholderPhone is used when no usable phone number was supplied.
	// Guest checkout is supported, so billing details may be entirely absent.
	PlaceholderPhone = "254700000000"
	// PlaceholderEmail is used when no email was supplied.
	PlaceholderEmail = "guest@example.com"
)

// Details carries the billing information forwarded to gateways.
type Details struct {
	Email     string
	Phone     string
	FirstName string
	LastName  string
	Address   string
	City      string
}

// WithDefaults fills missing fields with guest-checkout placeholders and
// normalizes the phone number.
func (d Details) WithDefaults() Details {
	out := d
	out.Phone = NormalizePhone(d.Phone)
	if out.Email == "" {
		out.Email = PlaceholderEmail
	}
	if out.FirstName == "" {
		out.FirstName = "Guest"
	}
	if out.LastName == "" {
		out.LastName = "Customer"
	}
	return out
}

// Merge overlays non-empty fields from override onto d. The stored billing
// details of a record lose to whatever the caller supplied at initiation.
func (d Details) Merge(override Details) Details {
	out := d
	if override.Email != "" {
		out.Email = override.Email
	}
	if override.Phone != "" {
		out.Phone = override.Phone
	}
	if override.FirstName != "" {
		out.FirstName = override.FirstName
	}
	if override.LastName != "" {
		out.LastName = override.LastName
	}
	if override.Address != "" {
		out.Address = override.Address
	}
	if override.City != "" {
		out.City = override.City
	}
	return out
}

// NormalizePhone converts a customer-supplied phone number to the single
// international format gateways accept:
//
//	"0712345678"    -> "254712345678"
//	"712345678"     -> "254712345678"
//	"+254712345678" -> "254712345678"
//	"254712345678"  -> unchanged
//	""              -> PlaceholderPhone
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case digits == "":
		return PlaceholderPhone
	case strings.HasPrefix(digits, countryCode):
		return digits
	case strings.HasPrefix(digits, "0"):
		return countryCode + digits[1:]
	case len(digits) == 9:
		return countryCode + digits
	}
	return digits
}
