package reminder

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/bkoseoglu/faturalog/internal/bill"
)

// Content is the user-visible payload of a scheduled notification
type Content struct {
	Title string
	Body  string
}

// billTypeNames maps bill types to their display names per notification
// language.
var billTypeNames = map[bill.Type]struct{ TR, EN string }{
	bill.TypeElectricity: {TR: "Elektrik", EN: "Electricity"},
	bill.TypeWater:       {TR: "Su", EN: "Water"},
	bill.TypeNaturalGas:  {TR: "Doğalgaz", EN: "Natural Gas"},
	bill.TypeInternet:    {TR: "İnternet", EN: "Internet"},
	bill.TypeOther:       {TR: "Diğer Fatura", EN: "Other Bill"},
}

// amountPrinter renders amounts with Turkish digit grouping. Bills are in
// TRY regardless of notification language, so the currency text is always
// tr-TR formatted.
var amountPrinter = message.NewPrinter(language.Turkish)

// formatAmount renders a TRY amount, e.g. 1234.5 -> "₺1.234,50"
func formatAmount(amount float64) string {
	return amountPrinter.Sprintf("₺%v", number.Decimal(amount, number.Scale(2)))
}

// generateContent builds the localized title and body for a bill reminder.
// There are three phrasings: due today, due tomorrow and due in N days.
func generateContent(billType bill.Type, amount float64, daysUntilDue int, merchant, lang string) Content {
	names, ok := billTypeNames[billType]
	if !ok {
		names = billTypeNames[bill.TypeOther]
	}
	formattedAmount := formatAmount(amount)

	if lang == "tr" {
		switch {
		case daysUntilDue == 0:
			return Content{
				Title: fmt.Sprintf("⚠️ %s Faturası Bugün Son Gün!", names.TR),
				Body:  withMerchant(merchant, fmt.Sprintf("%s tutarındaki faturanızın son ödeme tarihi bugün!", formattedAmount)),
			}
		case daysUntilDue == 1:
			return Content{
				Title: fmt.Sprintf("🔔 %s Faturası Yarın Son Gün", names.TR),
				Body:  withMerchant(merchant, fmt.Sprintf("%s tutarındaki faturanızın son ödeme tarihi yarın.", formattedAmount)),
			}
		default:
			return Content{
				Title: fmt.Sprintf("📋 %s Faturası Hatırlatması", names.TR),
				Body:  withMerchant(merchant, fmt.Sprintf("%s tutarındaki faturanızın son ödeme tarihine %d gün kaldı.", formattedAmount, daysUntilDue)),
			}
		}
	}

	switch {
	case daysUntilDue == 0:
		return Content{
			Title: fmt.Sprintf("⚠️ %s Bill Due Today!", names.EN),
			Body:  withMerchant(merchant, fmt.Sprintf("Your %s bill is due today!", formattedAmount)),
		}
	case daysUntilDue == 1:
		return Content{
			Title: fmt.Sprintf("🔔 %s Bill Due Tomorrow", names.EN),
			Body:  withMerchant(merchant, fmt.Sprintf("Your %s bill is due tomorrow.", formattedAmount)),
		}
	default:
		return Content{
			Title: fmt.Sprintf("📋 %s Bill Reminder", names.EN),
			Body:  withMerchant(merchant, fmt.Sprintf("Your %s bill is due in %d days.", formattedAmount, daysUntilDue)),
		}
	}
}

// withMerchant prefixes the body with the merchant name when one is known
func withMerchant(merchant, body string) string {
	if merchant == "" {
		return body
	}
	return fmt.Sprintf("%s - %s", merchant, body)
}
