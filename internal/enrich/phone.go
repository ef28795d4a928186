package enrich

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// NormalizePhone parses raw in the context of region (ISO 3166 alpha-2) and
// returns it in E.164. ok is false when raw is not a valid number.
func NormalizePhone(raw, region string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	if region == "" {
		region = "IN"
	}

	number, err := phonenumbers.Parse(trimmed, strings.ToUpper(region))
	if err != nil {
		return "", false
	}
	if !phonenumbers.IsValidNumber(number) {
		return "", false
	}
	return phonenumbers.Format(number, phonenumbers.E164), true
}
