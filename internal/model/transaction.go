package model

// Sentinel value the extractor uses for fields it could not determine with
// confidence. Distinct from an empty string: "Unknown" means the model
// looked and found nothing.
const Unknown = "Unknown"

// TransactionCandidate is the structured result of extracting one bank
// notification email, plus provenance metadata. It lives only for the span
// of a single post to the ledger API.
type TransactionCandidate struct {
	Amount          string `json:"amount"`
	Date            string `json:"date"`
	TransactionTime string `json:"transaction_time"`
	AccountNumber   string `json:"account_number"`
	Recipient       string `json:"recipient"`
	Currency        string `json:"currency,omitempty"`

	EmailID      string `json:"email_id"`
	EmailSubject string `json:"email_subject"`
	EmailFrom    string `json:"email_from"`
	EmailDate    string `json:"email_date,omitempty"`
}

// Actionable reports whether the candidate carries enough data to post.
// An Unknown amount means the email held no usable transaction.
func (t *TransactionCandidate) Actionable() bool {
	return t != nil && t.Amount != Unknown && t.Amount != ""
}
