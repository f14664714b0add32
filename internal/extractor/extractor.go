// Package extractor turns raw bank notification emails into structured
// transaction fields using an LLM, with few-shot examples taken from the
// user's configuration.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"bankmail/internal/model"
	"bankmail/pkg/config"
	"bankmail/pkg/metrics"
)

// GeminiExtractor calls the Gemini generateContent REST endpoint. It
// converts USD amounts to INR after extraction so every posted candidate
// is ledger-currency.
type GeminiExtractor struct {
	baseURL    string
	model      string
	keys       KeyProvider
	rates      *RateCache
	httpClient *http.Client
	logger     *zap.Logger
}

func NewGeminiExtractor(cfg config.ExtractorConfig, keys KeyProvider, rates *RateCache, logger *zap.Logger) *GeminiExtractor {
	return &GeminiExtractor{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		keys:    keys,
		rates:   rates,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Extract runs one email body through the model. Fields the model cannot
// determine come back as the Unknown sentinel; a candidate is always
// returned unless the call itself fails.
func (e *GeminiExtractor) Extract(ctx context.Context, body string, samples []model.SampleEmail) (*model.TransactionCandidate, error) {
	cleaned := cleanBody(body)
	prompt := buildPrompt(cleaned, samples)

	key, err := e.keys.APIKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve extractor API key: %w", err)
	}

	start := time.Now()
	text, err := e.generateContent(ctx, key, prompt)
	if err != nil {
		metrics.RecordExtractorCallLatency("error", time.Since(start))
		return nil, err
	}
	metrics.RecordExtractorCallLatency("ok", time.Since(start))

	candidate := parseCandidate(text)

	candidate.Currency = DetectCurrency(cleaned)
	if candidate.Amount != model.Unknown {
		candidate.Amount = strings.ReplaceAll(candidate.Amount, ",", "")
	}
	if candidate.Date != model.Unknown {
		candidate.Date = StandardizeDate(candidate.Date)
	}
	if candidate.Currency == "USD" && candidate.Amount != model.Unknown {
		candidate.Amount = e.rates.Convert(ctx, candidate.Amount, "USD", "INR")
		candidate.Currency = "INR"
	}

	return candidate, nil
}

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"topP"`
	ResponseMimeType string  `json:"responseMimeType"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (e *GeminiExtractor) generateContent(ctx context.Context, key, prompt string) (string, error) {
	payload := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: generationConfig{
			Temperature:      0.2,
			TopP:             0.9,
			ResponseMimeType: "application/json",
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", e.baseURL, e.model, key)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call extraction model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("extraction model returned status %d", resp.StatusCode)
	}

	var decoded geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode model response: %w", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("model response carried no candidates")
	}
	return decoded.Candidates[0].Content.Parts[0].Text, nil
}

// parseCandidate decodes the model's JSON answer, substituting Unknown
// for any missing or non-string field. A completely unparseable answer
// yields an all-Unknown candidate rather than an error: the caller's
// Unknown-amount rule then skips the email.
func parseCandidate(text string) *model.TransactionCandidate {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var raw map[string]any
	_ = json.Unmarshal([]byte(cleaned), &raw)

	field := func(name string) string {
		if v, ok := raw[name].(string); ok && v != "" {
			return v
		}
		return model.Unknown
	}

	return &model.TransactionCandidate{
		Amount:          field("amount"),
		Date:            field("date"),
		TransactionTime: field("transaction_time"),
		AccountNumber:   field("account_number"),
		Recipient:       field("recipient"),
	}
}

type fewShotExample struct {
	email      string
	extraction map[string]string
}

// Built-in examples covering the common Indian bank alert formats; user
// samples are appended after these.
var builtinExamples = []fewShotExample{
	{
		email: `Your HDFC Bank Credit Card ending 1234 was used for Rs.2,500.00 at AMAZON RETAIL INDIA on 2024-01-15 17:45:32. If not done by you, call 18002586161.`,
		extraction: map[string]string{
			"amount":           "2500.00",
			"date":             "2024-01-15",
			"transaction_time": "17:45:32",
			"account_number":   "XX1234",
			"recipient":        "AMAZON RETAIL INDIA",
		},
	},
	{
		email: `SBI Transaction Alert: Your account XX7890 has been debited by INR 1,200 on 12-Mar-2024 at 09:30:45 for payment to FLIPKART PVT LTD.`,
		extraction: map[string]string{
			"amount":           "1200",
			"date":             "12-Mar-2024",
			"transaction_time": "09:30:45",
			"account_number":   "XX7890",
			"recipient":        "FLIPKART PVT LTD",
		},
	},
	{
		email: `ICICI Bank: Rs 350.75 debited from your a/c XX5678 on 22 Apr 2024 for POS tx at SWIGGY. Avl Bal: Rs.12,456.80`,
		extraction: map[string]string{
			"amount":           "350.75",
			"date":             "22 Apr 2024",
			"transaction_time": "Unknown",
			"account_number":   "XX5678",
			"recipient":        "SWIGGY",
		},
	},
	{
		email: `Your ICICI Bank Credit Card XX9005 has been used for a transaction of USD 16.52 on May 11, 2025 at 12:00:54. Info: SQSP* INV181442393.`,
		extraction: map[string]string{
			"amount":           "16.52",
			"date":             "May 11, 2025",
			"transaction_time": "12:00:54",
			"account_number":   "XX9005",
			"recipient":        "SQSP* INV181442393",
		},
	},
}

func buildPrompt(body string, samples []model.SampleEmail) string {
	var sb strings.Builder

	sb.WriteString(`You are a specialized financial email parser. Extract transaction details from bank notification emails.

Extract the following details from bank transaction emails:
- Amount (in INR/Rs or USD format, return only the number)
- Date (in any format)
- Transaction time (in HH:MM:SS format if available)
- Account number (masked as XXnnnn)
- Recipient/merchant name

Here are some examples of how to extract this information correctly:`)

	n := 0
	for _, ex := range builtinExamples {
		n++
		extraction, _ := json.MarshalIndent(ex.extraction, "", "  ")
		fmt.Fprintf(&sb, "\nExample %d:\nEmail: %s\nExtraction: %s\n", n, ex.email, extraction)
	}
	for _, s := range samples {
		if s.Body == "" {
			continue
		}
		n++
		fmt.Fprintf(&sb, "\nExample %d:\nEmail: %s\n", n, s.Body)
	}

	fmt.Fprintf(&sb, `
Now extract details from this new email:
%s

Return ONLY a valid JSON object with these fields: "amount", "date", "transaction_time", "account_number", "recipient"

If any field cannot be found with high confidence, use "Unknown" as its value.

Follow these rules strictly:
1. Extract only the requested fields.
2. Return values EXACTLY as they appear in the email, following the format shown in the examples.
3. For amount, extract only the numeric value without currency symbols or commas.
4. DO NOT make up or infer values not clearly stated in the email.`, body)

	return sb.String()
}
