package model

import (
	"encoding/json"
	"time"
)

// EmailConfiguration is one user's email automation settings, stored in the
// user_email_configurations table. The automation core only ever mutates
// LastCheckTime; everything else is owned by the settings API.
type EmailConfiguration struct {
	ID           int
	UserID       int
	IsEnabled    bool
	IMAPServer   string
	IMAPPort     int
	EmailAddress string
	// AppPassword is stored encrypted and only decrypted at processing time.
	AppPassword string
	// PollingInterval is "hourly" or "daily". NULL means the interval was
	// never set, which the scheduler reports as an error for that user.
	PollingInterval *string
	// LastCheckTime is the processing checkpoint. NULL means never checked.
	LastCheckTime *time.Time
	// SampleEmails is a JSON array of example emails used to few-shot the
	// extractor. Invalid JSON degrades to no samples.
	SampleEmails *string
}

// SampleEmail is one few-shot example attached to a configuration.
type SampleEmail struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	From    string `json:"from"`
}

// ParseSampleEmails decodes the stored sample_emails JSON. A NULL column
// yields no samples; malformed JSON is returned as an error so callers can
// log it and continue with none.
func (c *EmailConfiguration) ParseSampleEmails() ([]SampleEmail, error) {
	if c.SampleEmails == nil || *c.SampleEmails == "" {
		return nil, nil
	}

	var samples []SampleEmail
	if err := json.Unmarshal([]byte(*c.SampleEmails), &samples); err != nil {
		return nil, err
	}
	return samples, nil
}

// BankAddresses returns the sender addresses to poll for, harvested from
// the samples' from fields. Falls back to the default alert address when
// the samples carry none.
func (c *EmailConfiguration) BankAddresses(samples []SampleEmail) []string {
	seen := make(map[string]struct{})
	var addrs []string
	for _, s := range samples {
		if s.From == "" {
			continue
		}
		if _, ok := seen[s.From]; ok {
			continue
		}
		seen[s.From] = struct{}{}
		addrs = append(addrs, s.From)
	}
	if len(addrs) == 0 {
		return []string{DefaultBankAddress}
	}
	return addrs
}

// DefaultBankAddress is polled when a configuration carries no sample
// senders.
const DefaultBankAddress = "alerts@axisbank.com"
