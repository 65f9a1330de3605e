package extraction

import (
	"regexp"
	"strconv"
	"strings"
)

// ParseTurkishNumber parses a numeric string using the Turkish convention:
// "." is a thousands separator and "," is the decimal separator, so
// "1.234,56" parses to 1234.56. Plain "." decimals are not expected on
// Turkish bills; the dots are always stripped.
func ParseTurkishNumber(value string) (float64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	clean := strings.ReplaceAll(value, ".", "")
	clean = strings.Replace(clean, ",", ".", 1)
	n, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Bill type keyword lists for DetectBillType. First matching category wins.
var (
	electricityKeywords = []string{"electricity", "kwh", "energy"}
	waterKeywords       = []string{"water", "m3", "sewer"}
	gasKeywords         = []string{"gas", "natural gas"}
)

// DetectBillType classifies a text dump by case-insensitive keyword search.
// Returns "" when no category matches; the caller defaults to "other".
func DetectBillType(text string) string {
	lower := strings.ToLower(text)

	for _, kw := range electricityKeywords {
		if strings.Contains(lower, kw) {
			return "electricity"
		}
	}
	for _, kw := range waterKeywords {
		if strings.Contains(lower, kw) {
			return "water"
		}
	}
	for _, kw := range gasKeywords {
		if strings.Contains(lower, kw) {
			return "gas"
		}
	}
	return ""
}

// Cost patterns cover Turkish and English total/amount-due phrasings, in
// priority order.
var costPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)odenecek tutar[:\s]*([\d.,]+)`),
	regexp.MustCompile(`(?i)ödenecek tutar[:\s]*([\d.,]+)`),
	regexp.MustCompile(`(?i)toplam tutar[:\s]*([\d.,]+)`),
	regexp.MustCompile(`(?i)genel toplam[:\s]*([\d.,]+)`),
	regexp.MustCompile(`(?i)total[:\s]*\$?([\d.,]+)`),
	regexp.MustCompile(`(?i)amount due[:\s]*\$?([\d.,]+)`),
	regexp.MustCompile(`\$([\d.,]+)`),
}

// Electricity bills report usage as the daily average consumption figure,
// not the monthly total. Water and gas bills report the total consumption.
// The asymmetry mirrors the vision prompt's instructions.
var electricityUsagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)gunluk\s*ortalama\s*tuketim[:\s]*([\d.,]+)`),
	regexp.MustCompile(`(?i)günlük\s*ortalama\s*tüketim[:\s]*([\d.,]+)`),
	regexp.MustCompile(`(?i)ort\.\s*tuketim[:\s]*([\d.,]+)`),
	regexp.MustCompile(`(?i)ort\.\s*tüketim[:\s]*([\d.,]+)`),
	regexp.MustCompile(`(?i)gunluk\s*ort\.[:\s]*([\d.,]+)`),
	regexp.MustCompile(`(?i)günlük\s*ort\.[:\s]*([\d.,]+)`),
	regexp.MustCompile(`(?i)daily\s*average[:\s]*([\d.,]+)`),
}

var volumeUsagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)toplam\s*tuketim[:\s]*([\d.,]+)`),
	regexp.MustCompile(`(?i)toplam\s*tüketim[:\s]*([\d.,]+)`),
	regexp.MustCompile(`(?i)sarfiyat[:\s]*([\d.,]+)`),
	regexp.MustCompile(`(?i)tuketim[:\s]*([\d.,]+)`),
	regexp.MustCompile(`(?i)tüketim[:\s]*([\d.,]+)`),
	regexp.MustCompile(`(?i)([\d.,]+)\s*m3`),
}

// firstMatch applies an ordered pattern list and returns the first capture
// that parses as a Turkish-formatted number.
func firstMatch(patterns []*regexp.Regexp, text string) *float64 {
	for _, pattern := range patterns {
		match := pattern.FindStringSubmatch(text)
		if len(match) < 2 || match[1] == "" {
			continue
		}
		if n, ok := ParseTurkishNumber(match[1]); ok {
			return &n
		}
	}
	return nil
}

// ExtractBillData applies the deterministic pattern extraction against a raw
// text dump. It never fails; unmatched fields are simply left nil.
func ExtractBillData(text string, billType string) (usage, cost *float64) {
	cost = firstMatch(costPatterns, text)

	switch billType {
	case "electricity":
		usage = firstMatch(electricityUsagePatterns, text)
	case "water", "gas", "naturalGas":
		usage = firstMatch(volumeUsagePatterns, text)
	}

	return usage, cost
}
