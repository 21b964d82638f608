package rates

import (
	"fmt"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// taxChangePayload mirrors the YAML body of a CorpTaxChangeMsg notification.
// Rates arrive on the 0-100 percentage scale.
type taxChangePayload struct {
	CorpID     int64   `yaml:"corpID"`
	NewTaxRate float64 `yaml:"newTaxRate"`
	OldTaxRate float64 `yaml:"oldTaxRate"`
}

func parseTaxChange(text string) (taxChangePayload, error) {
	var payload taxChangePayload
	if err := yaml.Unmarshal([]byte(text), &payload); err != nil {
		return taxChangePayload{}, fmt.Errorf("rates: parse notification: %w", err)
	}
	return payload, nil
}

func (p taxChangePayload) rate() decimal.Decimal {
	return decimal.NewFromFloat(p.NewTaxRate).Round(2)
}
