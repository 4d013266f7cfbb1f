// Package subscriber canonicalizes subscriber ids and routes them to a provider.
package subscriber

import (
	"strings"
	"unicode"

	"github.com/mcqkaramu/server/internal/model"
)

// CanonicalLength is the length of a canonical subscriber id (94 + 9 digits)
const CanonicalLength = 11

const countryCode = "94"

type prefixRule struct {
	prefix string
	apply  func(digits string) string
}

// prefixRules are evaluated in order; the first matching prefix wins.
var prefixRules = []prefixRule{
	{prefix: countryCode, apply: func(d string) string { return d }},
	{prefix: "0", apply: func(d string) string { return countryCode + d[1:] }},
	{prefix: "7", apply: func(d string) string { return countryCode + d }},
}

// Normalize turns free-form phone input into the canonical 94XXXXXXXXX form.
func Normalize(raw string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)

	if digits == "" {
		return "", model.NewValidationError("subscriberId is required")
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", model.NewValidationError("Invalid subscriberId")
		}
	}

	var canonical string
	for _, rule := range prefixRules {
		if strings.HasPrefix(digits, rule.prefix) {
			canonical = rule.apply(digits)
			break
		}
	}

	if len(canonical) != CanonicalLength {
		return "", model.NewValidationError("Invalid subscriberId")
	}
	return canonical, nil
}

// MaskForLog keeps the first and last two characters of an id, e.g. 94*******67
func MaskForLog(id string) string {
	if len(id) <= 4 {
		return "****"
	}
	return id[:2] + strings.Repeat("*", len(id)-4) + id[len(id)-2:]
}
