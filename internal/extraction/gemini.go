package extraction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// visionPrompt instructs the model on the fields to extract. The usage
// instructions are a business rule: electricity bills report the daily
// average consumption, water/gas bills report the total consumption. The
// "Last Payment Date" preference over the bill date matches Turkish billing
// conventions and is kept as-is.
const visionPrompt = `Analyze this image. It is likely a utility bill (electricity, water, gas, etc.) or a receipt.
Extract the following information in JSON format:
{
  "text": "The full text content of the bill",
  "merchant": "The merchant or provider name",
  "date": "The 'Last Payment Date' (Son Ödeme Tarihi) of the bill in YYYY-MM-DD format. If not found, use the bill date.",
  "total": 0.00,
  "billType": "electricity" | "water" | "gas" | "internet" | "other",
  "usage": 0.00,
  "usageUnit": "kWh" | "m3" | null,
  "items": "A brief list or summary of items purchased (e.g. 'Süt, Ekmek, Yumurta' or 'İki kişilik akşam yemeği'). If it's a utility bill, describe the service period. MUST BE IN TURKISH.",
  "description": "A short description of the expense (e.g. 'Market alışverişi', 'Restoranda yemek', 'Elektrik Faturası'). MUST BE IN TURKISH."
}

Specific instructions for 'usage':
- For ELECTRICITY bills: Extract the 'Average Daily Consumption' (Günlük Ortalama Tüketim) value. Do NOT extract the total monthly consumption.
- For WATER/GAS bills: Continue to extract the 'Total Consumption' (Toplam Tüketim/Sarfiyat).
- Look for values associated with 'kWh', 'm3', 'Günlük Ortalama', 'Daily Average'.
- Return the number as a float (e.g. 120.50). Handle Turkish number formatting (1.234,56 -> 1234.56) correctly.

If a field is not found, use null. Return ONLY the JSON string, no markdown formatting. Ensure all text fields (items, description) are in TURKISH language.`

// geminiConfidence is the reliability assigned to vision-extracted fields.
const geminiConfidence = 0.9

// Gemini implements the Extractor interface using Google Gemini
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a new Gemini Extractor instance
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.0-flash-lite"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)

	return &Gemini{
		client: client,
		model:  model,
	}, nil
}

// Extract analyzes a bill/receipt image and extracts structured fields.
// The image data is expected as PNG; the Engine normalizes formats before
// selecting a strategy.
func (g *Gemini) Extract(ctx context.Context, imageData []byte, contentType string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	parts := []genai.Part{
		genai.ImageData("png", imageData),
		genai.Text(visionPrompt),
	}

	var resp *genai.GenerateContentResponse
	err := retry.Do(
		func() error {
			var genErr error
			resp, genErr = g.model.GenerateContent(ctx, parts...)
			return genErr
		},
		retry.Attempts(2),
		retry.Delay(2*time.Second),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	raw := strings.TrimSpace(responseText.String())
	payload, err := parseVisionJSON(raw)
	if err != nil {
		// Hand the unparseable text back so the fallback patterns can still
		// run over it.
		return nil, &ResponseParseError{RawText: raw, Err: err}
	}

	return payloadToResult(payload, raw), nil
}

// payloadToResult maps the model's JSON payload into a Result. The "other"
// bill type is treated as "no bill type": receipts carry no usage figure.
func payloadToResult(payload *visionPayload, raw string) *Result {
	rawText := payload.Text
	if rawText == "" {
		rawText = raw
	}

	result := &Result{
		RawText:    rawText,
		Confidence: geminiConfidence,
		Fields: CandidateFields{
			Merchant: payload.Merchant,
			Date:     parseDocumentDate(payload.Date),
			Amount:   payload.Total.value(),
		},
		Bill: BillFields{
			Usage:       payload.Usage.value(),
			Cost:        payload.Total.value(),
			Items:       payload.Items,
			Description: payload.Description,
		},
	}
	if payload.BillType != "" && payload.BillType != "other" {
		result.Bill.Type = payload.BillType
	}
	return result
}

// ResponseParseError reports an unparseable model response while preserving
// the raw text for fallback extraction.
type ResponseParseError struct {
	RawText string
	Err     error
}

func (e *ResponseParseError) Error() string {
	return fmt.Sprintf("parsing vision response: %v", e.Err)
}

func (e *ResponseParseError) Unwrap() error {
	return e.Err
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
