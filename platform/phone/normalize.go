// Package phone provides Norwegian phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"errors"
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const region = "NO"

var (
	// ErrCountryPrefix is returned when the input carries a country-code
	// prefix; directory lookups take bare 8-digit national numbers only.
	ErrCountryPrefix = errors.New("country code prefix not allowed")
	// ErrInvalid is returned when the input is not a valid Norwegian
	// subscriber number.
	ErrInvalid = errors.New("not a valid Norwegian phone number")
)

var (
	nonDigits   = regexp.MustCompile(`\D`)
	eightDigits = regexp.MustCompile(`^\d{8}$`)
	// Norwegian numbering plan: mobile 4x/9x, landline 2/3/5/6/7x.
	subscriber = regexp.MustCompile(`^[2345679]\d{7}$`)
)

// NormalizeNational reduces raw input to an 8-digit national number.
// Inputs with a country-code prefix (+47, 0047, or a bare 47 followed by 8
// digits) are rejected rather than stripped, as are foreign IDD numbers.
// Digit-count is the only shape requirement here; numbering-plan validation
// is a separate, stricter concern (IsValidSubscriber).
func NormalizeNational(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	digits := nonDigits.ReplaceAllString(trimmed, "")

	switch {
	case strings.HasPrefix(trimmed, "+"):
		return "", ErrCountryPrefix
	case strings.HasPrefix(digits, "0047"):
		return "", ErrCountryPrefix
	case strings.HasPrefix(digits, "47") && len(digits) == 10:
		return "", ErrCountryPrefix
	case strings.HasPrefix(digits, "00"):
		return "", ErrInvalid
	}

	if !eightDigits.MatchString(digits) {
		return "", ErrInvalid
	}

	return digits, nil
}

// IsValidSubscriber reports whether an 8-digit national number is assignable
// under the Norwegian numbering plan.
func IsValidSubscriber(national string) bool {
	if !subscriber.MatchString(national) {
		return false
	}
	parsed, err := phonenumbers.Parse(national, region)
	return err == nil && phonenumbers.IsValidNumber(parsed)
}

// ToE164 formats an 8-digit national number as E.164 for storage.
// If parsing fails, it returns the input unchanged.
func ToE164(national string) string {
	parsed, err := phonenumbers.Parse(national, region)
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		return national
	}
	return phonenumbers.Format(parsed, phonenumbers.E164)
}

// FormatDisplay renders an 8-digit national number in the conventional
// 3-2-3 grouping. Inputs that are not 8 digits are returned unchanged.
func FormatDisplay(national string) string {
	if len(national) != 8 {
		return national
	}
	return national[:3] + " " + national[3:5] + " " + national[5:]
}
