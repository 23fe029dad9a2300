// Package draft holds the in-memory model for one patient's unsaved
// prescription draft: medicine line items, the complete form-field set and
// the slot keys that identify drafts within a multi-patient session.
package draft

import (
	"github.com/google/uuid"

	"github.com/clinidesk/go-rxpad/internal/domain/dosage"
)

// Source classifies where a medicine line came from.
type Source string

const (
	// SourceInventory lines are linked to a stock record.
	SourceInventory Source = "inventory"
	// SourceWritten lines are free text with no stock link.
	SourceWritten Source = "written"
)

// Medicine is one prescribed drug entry.
type Medicine struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	GenericName string  `json:"generic_name,omitempty"`
	TradeName   string  `json:"trade_name,omitempty"`
	Source      Source  `json:"source"`
	Dose        string  `json:"dose"`
	CustomML    float64 `json:"custom_ml,omitempty"`
	Frequency   string  `json:"frequency"`
	Days        int     `json:"days"`
	Quantity    int     `json:"quantity"`
	TotalML     int     `json:"total_ml,omitempty"`
	HasTotalML  bool    `json:"has_total_ml,omitempty"`
	Instruction string  `json:"instruction,omitempty"`
	StockItemID string  `json:"stock_item_id,omitempty"`

	// QuantityManual is set once a human has entered the quantity directly.
	// It guards stat/sos re-derivations from overwriting that value.
	QuantityManual bool `json:"quantity_manual,omitempty"`
}

// NewMedicine creates a blank line with the documented defaults:
// 1 tab twice a day for 4 days, quantity 8.
func NewMedicine(source Source) Medicine {
	m := Medicine{
		ID:        uuid.New().String(),
		Source:    source,
		Dose:      dosage.DefaultDose,
		Frequency: dosage.DefaultFrequency,
		Days:      dosage.DefaultDays,
	}
	m.Recalculate()
	return m
}

// Recalculate rewrites the derived quantity and total-volume fields from the
// current dose, frequency, days and custom volume. For manual frequencies
// (stat, sos) a human-entered quantity is preserved; otherwise the quantity
// is initialized to zero and the total volume cleared.
func (m *Medicine) Recalculate() {
	d := dosage.Derive(m.Dose, m.Frequency, m.Days, m.CustomML)
	if d.Manual {
		if !m.QuantityManual {
			m.Quantity = 0
		}
		m.TotalML = 0
		m.HasTotalML = false
		return
	}
	m.Quantity = d.Quantity
	m.TotalML = d.TotalML
	m.HasTotalML = d.HasTotalML
	m.QuantityManual = false
}

// SetQuantity records a human-entered quantity. Negative values clamp to 0.
func (m *Medicine) SetQuantity(q int) {
	if q < 0 {
		q = 0
	}
	m.Quantity = q
	m.QuantityManual = true
}
