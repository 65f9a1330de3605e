package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// fallbackConfidence is the reliability assigned to pattern-extracted
// fields. Higher than the vision call: the patterns are exact when they
// match at all.
const fallbackConfidence = 0.98

// Engine runs the configured primary strategy and backfills missing fields
// with the deterministic pattern extractor. It never fails for readable
// image bytes; when every strategy comes up empty the caller gets the raw
// text with nil structured fields and the user fills them in manually.
type Engine struct {
	primary Extractor
}

// NewEngine creates an Engine around a primary extraction strategy. Strategy
// selection (vision vs. mock) happens once per deployment based on
// credential presence, not per call.
func NewEngine(primary Extractor) *Engine {
	return &Engine{primary: primary}
}

// Extract produces the best available structured guess for a bill/receipt
// image. The only error it returns is for image bytes that cannot be read
// at all; every strategy failure degrades instead.
func (e *Engine) Extract(ctx context.Context, imageData []byte, contentType string) (*Result, error) {
	pngData, mimeType, _, err := prepareImageData(imageData, contentType)
	if err != nil {
		return nil, fmt.Errorf("preparing image: %w", err)
	}

	result, err := e.primary.Extract(ctx, pngData, mimeType)
	if err != nil {
		raw := ""
		var parseErr *ResponseParseError
		if errors.As(err, &parseErr) {
			raw = parseErr.RawText
		}
		slog.Warn("Vision extraction failed, using pattern fallback", "error", err)
		return e.patternOnly(raw), nil
	}

	// Backfill exactly the missing usage/cost fields from the raw text.
	// Fields the primary strategy populated are never overwritten.
	if result.Bill.Usage == nil || result.Bill.Cost == nil {
		billType := result.Bill.Type
		if billType == "" {
			billType = "electricity"
		}
		usage, cost := ExtractBillData(result.RawText, billType)
		if result.Bill.Usage == nil && usage != nil {
			slog.Debug("Primary strategy missed usage, using fallback", "usage", *usage)
			result.Bill.Usage = usage
		}
		if result.Bill.Cost == nil && cost != nil {
			slog.Debug("Primary strategy missed cost, using fallback", "cost", *cost)
			result.Bill.Cost = cost
			if result.Fields.Amount == nil {
				result.Fields.Amount = cost
			}
		}
	}

	result.Bill.Type = NormalizeBillType(result.Bill.Type)
	return result, nil
}

// patternOnly builds a Result from the deterministic extractor alone.
func (e *Engine) patternOnly(rawText string) *Result {
	result := &Result{RawText: rawText}
	if rawText == "" {
		return result
	}

	billType := DetectBillType(rawText)
	usage, cost := ExtractBillData(rawText, billType)

	result.Confidence = fallbackConfidence
	result.Bill = BillFields{
		Type:  NormalizeBillType(billType),
		Usage: usage,
		Cost:  cost,
	}
	result.Fields.Amount = cost
	return result
}

// NormalizeBillType maps the legacy "gas" synonym to "naturalGas". The
// synonym must not propagate past the extraction boundary.
func NormalizeBillType(billType string) string {
	if billType == "gas" {
		return "naturalGas"
	}
	return billType
}

// Close closes the primary extractor
func (e *Engine) Close() error {
	return e.primary.Close()
}
