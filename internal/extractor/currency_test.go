package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectCurrency(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{"Your card was used for USD 16.52 at SQSP", "USD"},
		{"debited for usd 5.00", "USD"},
		{"Rs.2,500.00 at AMAZON RETAIL INDIA", "INR"},
		{"INR 1,200 debited", "INR"},
		{"payment to USDC exchange", "INR"}, // no word boundary match
		{"", "INR"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, DetectCurrency(tc.body), "body: %q", tc.body)
	}
}

func TestStandardizeDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2024-01-15", "15-01-2024"},
		{"12-Mar-2024", "12-03-2024"},
		{"22 Apr 2024", "22-04-2024"},
		{"May 11, 2025", "11-05-2025"},
		{"02/01/2006", "02-01-2006"},
		{" 2024-01-15 ", "15-01-2024"},
		{"Unknown", "Unknown"},
		{"yesterday", "yesterday"},
		{"", ""},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, StandardizeDate(tc.in), "input: %q", tc.in)
	}
}

func TestCleanBody(t *testing.T) {
	in := "Rs.2,500.00=20debited =\r\nfrom your=A0account\r\n"
	assert.Equal(t, "Rs.2,500.00 debited from your account\n", cleanBody(in))
}
