package policy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/pradiptya/memberkit/internal/models"
)

// ResolveCommission computes the commission for a sale in integer rupiah.
// PERCENTAGE policies take rate as a percentage of the sale amount, rounded
// to the nearest unit. FLAT policies take rate as an absolute amount, capped
// at the sale amount so a commission can never exceed the sale itself.
func ResolveCommission(commissionType string, rate float64, amount int64) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("negative sale amount %d", amount)
	}
	if rate < 0 {
		return 0, fmt.Errorf("negative commission rate %v", rate)
	}

	switch commissionType {
	case models.CommissionPercentage:
		commission := decimal.NewFromInt(amount).
			Mul(decimal.NewFromFloat(rate)).
			Div(decimal.NewFromInt(100)).
			Round(0)
		return commission.IntPart(), nil
	case models.CommissionFlat:
		flat := decimal.NewFromFloat(rate).Round(0).IntPart()
		if flat > amount {
			return amount, nil
		}
		return flat, nil
	default:
		return 0, fmt.Errorf("unknown commission type %q", commissionType)
	}
}
