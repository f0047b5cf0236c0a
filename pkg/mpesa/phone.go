package mpesa

import (
	"fmt"
	"strings"
)

// NormalizePhone converts Kenyan mobile numbers into the 2547XXXXXXXX /
// 2541XXXXXXXX form Daraja expects. Spaces, dashes and a leading + are ignored.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0, r == ' ', r == '-', r == '(', r == ')':
		default:
			return "", fmt.Errorf("phone number %q contains invalid characters", raw)
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, "254") && len(digits) == 12:
		digits = digits[3:]
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		digits = digits[1:]
	case len(digits) == 9:
	default:
		return "", fmt.Errorf("phone number %q is not a Kenyan mobile number", raw)
	}
	if digits[0] != '7' && digits[0] != '1' {
		return "", fmt.Errorf("phone number %q is not a Kenyan mobile number", raw)
	}
	return "254" + digits, nil
}
