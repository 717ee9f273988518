package channels

import (
	"strings"

	"pawdesk/internal/types"
)

// NormalizePhone reduces a free-form phone number to digits and prefixes the
// default country code when the number arrives without one. Numbers with 12 or
// more digits are assumed to already carry a country code.
//
// "+55 (11) 99999-0000" -> "5511999990000"
// "(11) 99999-0000"     -> "5511999990000" (defaultCountryCode "55")
func NormalizePhone(raw, defaultCountryCode string) (string, error) {
	var b strings.Builder
	for _, c := range raw {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	digits := b.String()

	if len(digits) < 8 {
		return "", types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidPhone,
			"phone number has too few digits", nil,
			map[string]any{"digits": len(digits)})
	}

	// Local numbers (10-11 digits in the Brazilian format) get the default
	// country code prefixed. Anything at 12+ digits already has one.
	if len(digits) < 12 && defaultCountryCode != "" {
		digits = defaultCountryCode + digits
	}

	return digits, nil
}
