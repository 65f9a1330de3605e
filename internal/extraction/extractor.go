package extraction

import (
	"context"
	"time"
)

// CandidateFields holds the structured guesses that apply to any document,
// independent of the bill type.
type CandidateFields struct {
	Merchant string     `json:"merchant,omitempty"`
	Date     *time.Time `json:"date,omitempty"`
	Amount   *float64   `json:"amount,omitempty"`
}

// BillFields holds the bill-type-specific guesses.
type BillFields struct {
	Type        string   `json:"type,omitempty"`
	Usage       *float64 `json:"usage,omitempty"`
	Cost        *float64 `json:"cost,omitempty"`
	Items       string   `json:"items,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Result contains the extracted information from a bill or receipt image.
// Empty structured fields mean the user has to fill them in manually; RawText
// is always populated with whatever text the strategy produced.
type Result struct {
	RawText    string          `json:"raw_text"`
	Confidence float64         `json:"confidence"`
	Fields     CandidateFields `json:"fields"`
	Bill       BillFields      `json:"bill"`
}

// Extractor defines the interface for bill/receipt extraction strategies
type Extractor interface {
	// Extract analyzes a bill/receipt image and extracts structured fields
	Extract(ctx context.Context, imageData []byte, contentType string) (*Result, error)
	// Close closes the extractor and releases resources
	Close() error
}
