package models

import "github.com/shopspring/decimal"

// FeeRange is one tier of the admin-configured transaction charge schedule.
// Active ranges are ordered by MinAmount; the percentage tier is the open-ended top tier.
type FeeRange struct {
	ID             int64           `json:"id" yaml:"-"`
	MinAmount      decimal.Decimal `json:"min_amount" yaml:"min_amount"`
	MaxAmount      decimal.Decimal `json:"max_amount" yaml:"max_amount"`
	FixedCharge    decimal.Decimal `json:"fixed_charge" yaml:"fixed_charge"`
	IsPercentage   bool            `json:"is_percentage" yaml:"is_percentage"`
	PercentageRate decimal.Decimal `json:"percentage_rate" yaml:"percentage_rate"`
	AdditionalFee  decimal.Decimal `json:"additional_fee" yaml:"additional_fee"`
	IsActive       bool            `json:"is_active" yaml:"is_active"`
}

// Contains reports whether MinAmount <= amount <= MaxAmount.
func (r FeeRange) Contains(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(r.MinAmount) && amount.LessThanOrEqual(r.MaxAmount)
}

// FeeSchedule is the on-disk (YAML) representation of the charge table.
type FeeSchedule struct {
	Ranges []FeeRange `yaml:"ranges"`
}
