package bill

import "time"

// Type is the closed bill type enumeration. The legacy "gas" synonym found
// in old documents is normalized to TypeNaturalGas on every read and write
// boundary; it never propagates internally.
type Type string

const (
	TypeElectricity Type = "electricity"
	TypeWater       Type = "water"
	TypeNaturalGas  Type = "naturalGas"
	TypeInternet    Type = "internet"
	TypeOther       Type = "other"
)

// legacyGas appears in documents written before the rename
const legacyGas = "gas"

// NormalizeType maps a stored or extracted type string onto the canonical
// enumeration, defaulting unknown values to TypeOther.
func NormalizeType(value string) Type {
	switch value {
	case string(TypeElectricity):
		return TypeElectricity
	case string(TypeWater):
		return TypeWater
	case string(TypeNaturalGas), legacyGas:
		return TypeNaturalGas
	case string(TypeInternet):
		return TypeInternet
	default:
		return TypeOther
	}
}

// AllTypes lists every canonical bill type
func AllTypes() []Type {
	return []Type{TypeElectricity, TypeWater, TypeNaturalGas, TypeInternet, TypeOther}
}

// Bill represents one utility/retail bill or receipt. Usage is absent for
// generic receipts; DueDate is absent for purely historical records and such
// records never enter reminder scheduling.
type Bill struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Type        Type       `json:"type"`
	Usage       *float64   `json:"usage,omitempty"` // kWh for electricity, m3 for water/gas
	Cost        float64    `json:"cost"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Merchant    string     `json:"merchant,omitempty"`
	Description string     `json:"description,omitempty"`
	Items       string     `json:"items,omitempty"`
	ImageSource string     `json:"image_source,omitempty"`
	RawText     string     `json:"raw_text,omitempty"`
	Confidence  float64    `json:"confidence,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
