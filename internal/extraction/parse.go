package extraction

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// visionPayload is the JSON object the vision model is instructed to return.
type visionPayload struct {
	Text        string      `json:"text"`
	Merchant    string      `json:"merchant"`
	Date        string      `json:"date"`
	Total       *flexNumber `json:"total"`
	BillType    string      `json:"billType"`
	Usage       *flexNumber `json:"usage"`
	UsageUnit   string      `json:"usageUnit"`
	Items       string      `json:"items"`
	Description string      `json:"description"`
}

// flexNumber accepts either a JSON number or a Turkish-formatted numeric
// string ("1.234,56"), since the model does not always follow the "return a
// float" instruction.
type flexNumber float64

func (f *flexNumber) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		n, ok := ParseTurkishNumber(str)
		if !ok {
			return fmt.Errorf("invalid numeric string: %q", str)
		}
		*f = flexNumber(n)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexNumber(n)
	return nil
}

func (f *flexNumber) value() *float64 {
	if f == nil {
		return nil
	}
	v := float64(*f)
	return &v
}

// parseVisionJSON parses the JSON response from the vision model
func parseVisionJSON(text string) (*visionPayload, error) {
	text = strings.TrimSpace(text)

	// Remove markdown code blocks if present
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	text = text[startIdx : endIdx+1]

	var payload visionPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	payload.Merchant = strings.TrimSpace(payload.Merchant)
	payload.BillType = strings.TrimSpace(payload.BillType)

	return &payload, nil
}

// parseDocumentDate parses the due date the model extracted. ISO 8601 is the
// instructed format; a few other common layouts are tried before giving up.
func parseDocumentDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	formats := []string{
		"2006-01-02",
		"2006/01/02",
		"02.01.2006",
		"02/01/2006",
	}
	for _, format := range formats {
		if d, err := time.Parse(format, value); err == nil {
			return &d
		}
	}
	return nil
}
