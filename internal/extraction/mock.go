package extraction

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Mock implements the Extractor interface with canned results for
// development and tests when no vision credential is configured. The choice
// between the two canned documents is pluggable so tests can force either.
type Mock struct {
	chooseElectricity func() bool
	delay             time.Duration
	now               func() time.Time
}

// NewMock creates a Mock extractor with ambient randomness and a short
// artificial delay to mimic a network call.
func NewMock() *Mock {
	return &Mock{
		chooseElectricity: func() bool { return rand.Intn(2) == 0 },
		delay:             1 * time.Second,
		now:               time.Now,
	}
}

// NewMockWithDeps creates a Mock extractor with injected choice, delay and
// clock for deterministic tests.
func NewMockWithDeps(chooseElectricity func() bool, delay time.Duration, now func() time.Time) *Mock {
	return &Mock{
		chooseElectricity: chooseElectricity,
		delay:             delay,
		now:               now,
	}
}

// Extract returns one of two canned results: an ENERJISA electricity bill or
// a grocery receipt.
func (m *Mock) Extract(ctx context.Context, imageData []byte, contentType string) (*Result, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.chooseElectricity() {
		return m.electricityBill(), nil
	}
	return m.groceryReceipt(), nil
}

func (m *Mock) electricityBill() *Result {
	now := m.now()
	dueDate := now.AddDate(0, 0, 10)

	rawText := fmt.Sprintf(`ENERJISA
Musteri Hizmetleri: 444 4 372

Fatura Tarihi: %s
Son Odeme Tarihi: %s

Tuketim Detayi:
Ilk Endeks: 12500.000 kWh
Son Endeks: 12750.000 kWh
Tuketim: 250.000 kWh

Bedeller:
Enerji Bedeli: 450.00 TL
Dagitim Bedeli: 150.00 TL
Vergiler: 100.00 TL

ODENECEK TUTAR: 700,00 TL

Tesekkurler.`, now.Format("02.01.2006"), dueDate.Format("02.01.2006"))

	amount := 700.00
	usage := 250.00

	return &Result{
		RawText:    rawText,
		Confidence: 0.99,
		Fields: CandidateFields{
			Merchant: "ENERJISA",
			Date:     &dueDate,
			Amount:   &amount,
		},
		Bill: BillFields{
			Type:        "electricity",
			Usage:       &usage,
			Cost:        &amount,
			Items:       "Aylık elektrik tüketimi: 250 kWh",
			Description: "Elektrik Faturası",
		},
	}
}

func (m *Mock) groceryReceipt() *Result {
	now := m.now()

	rawText := fmt.Sprintf(`GROCERY STORE
123 Main Street
City, State 12345

Date: %s
Time: %s

Items:
Milk                $3.99
Bread               $2.49
Eggs                $4.99
Coffee              $8.99

Subtotal:          $20.46
Tax:                $1.84
Total:             $22.30

Payment: Credit Card
Card ending in 1234

Thank you for shopping!`, now.Format("01/02/2006"), now.Format("15:04:05"))

	amount := 22.30

	return &Result{
		RawText:    rawText,
		Confidence: 0.98,
		Fields: CandidateFields{
			Merchant: "GROCERY STORE",
			Date:     &now,
			Amount:   &amount,
		},
		Bill: BillFields{
			Cost:        &amount,
			Items:       "Süt, Ekmek, Yumurta, Kahve",
			Description: "Market alışverişi",
		},
	}
}

// Close closes the mock extractor (no-op)
func (m *Mock) Close() error {
	return nil
}
