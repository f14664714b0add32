package extractor

import (
	"regexp"
	"strings"
	"time"
)

var usdPattern = regexp.MustCompile(`(?i)\bUSD\b`)

// DetectCurrency classifies the email body's currency. Indian bank alerts
// default to INR unless USD is mentioned explicitly.
func DetectCurrency(body string) string {
	if usdPattern.MatchString(body) {
		return "USD"
	}
	return "INR"
}

// cleanBody strips quoted-printable artifacts common in bank notification
// emails before the text reaches the LLM.
func cleanBody(body string) string {
	cleaned := strings.ReplaceAll(body, "=\n", "")
	cleaned = strings.ReplaceAll(cleaned, "=\r\n", "")
	cleaned = strings.ReplaceAll(cleaned, "=20", " ")
	cleaned = strings.ReplaceAll(cleaned, "=A0", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", "")
	return cleaned
}

// Date layouts banks actually use in notification emails.
var dateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"2-1-2006",
	"02/01/2006",
	"2/1/2006",
	"02-01-06",
	"02/01/06",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"2-Jan-2006",
}

// StandardizeDate normalizes an extracted date to DD-MM-YYYY. Dates that
// match no known layout are returned unchanged.
func StandardizeDate(dateStr string) string {
	trimmed := strings.TrimSpace(dateStr)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format("02-01-2006")
		}
	}
	return dateStr
}
