// Package fees evaluates the admin-configured transaction charge schedule in both
// directions: the charge owed on a net amount, and the net/charge split of a gross payment.
package fees

import (
	"context"

	"ecobridge/internal/logging"
	"ecobridge/internal/models"
	"ecobridge/internal/repository"

	"github.com/shopspring/decimal"
)

var (
	// DefaultRate and DefaultAdditionalFee apply when no configured range accepts a gross amount.
	DefaultRate          = decimal.NewFromInt(10)
	DefaultAdditionalFee = decimal.RequireFromString("0.90")

	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Evaluator computes charges from the active fee ranges.
type Evaluator struct {
	ranges repository.FeeRangeRepository
	logger logging.Logger
}

// NewEvaluator creates an Evaluator reading ranges from repo.
func NewEvaluator(repo repository.FeeRangeRepository, logger logging.Logger) *Evaluator {
	return &Evaluator{
		ranges: repo,
		logger: logging.OrDefault(logger),
	}
}

// ChargeFor returns the charge owed on amount. It never fails: a repository error is
// logged and yields zero.
func (e *Evaluator) ChargeFor(ctx context.Context, amount decimal.Decimal) decimal.Decimal {
	ranges, err := e.ranges.ActiveFeeRanges(ctx)
	if err != nil {
		e.logger.WithError(err).Error("Failed to load fee ranges",
			logging.F(logging.FieldAmount, amount.String()))
		return decimal.Zero
	}

	for _, r := range ranges {
		if r.Contains(amount) {
			return chargeIn(r, amount)
		}
	}

	// Outside the configured table: the highest percentage tier applies, active or not.
	if top, ok := topPercentageTier(ranges); ok {
		return chargeIn(top, amount)
	}
	tiers, err := e.ranges.PercentageFeeRanges(ctx)
	if err != nil {
		e.logger.WithError(err).Error("Failed to load percentage fee tiers",
			logging.F(logging.FieldAmount, amount.String()))
		return decimal.Zero
	}
	if top, ok := topPercentageTier(tiers); ok {
		e.logger.Debug("Charging inactive percentage tier",
			logging.F(logging.FieldAmount, amount.String()),
			logging.F("tier_min", top.MinAmount.String()))
		return chargeIn(top, amount)
	}

	e.logger.Warn("No fee range matches amount",
		logging.F(logging.FieldAmount, amount.String()))
	return decimal.Zero
}

// NetAndChargeForGross splits a gross payment into the net amount credited and the charge.
// The split always satisfies net + charge == total.
func (e *Evaluator) NetAndChargeForGross(ctx context.Context, total decimal.Decimal) (net, charge decimal.Decimal) {
	total = models.Quantize(total)

	ranges, err := e.ranges.ActiveFeeRanges(ctx)
	if err != nil {
		e.logger.WithError(err).Error("Failed to load fee ranges, using default charge",
			logging.F(logging.FieldAmount, total.String()))
		ranges = nil
	}

	for _, r := range ranges {
		candidate := netIn(r, total)
		if r.Contains(candidate) {
			return split(total, candidate)
		}
	}

	return split(total, netForPercentage(total, DefaultRate, DefaultAdditionalFee))
}

// GrossForNet returns the gross amount a payer must send for net to be credited.
func (e *Evaluator) GrossForNet(ctx context.Context, net decimal.Decimal) (gross, charge decimal.Decimal) {
	net = models.Quantize(net)
	charge = e.ChargeFor(ctx, net)
	return net.Add(charge), charge
}

func chargeIn(r models.FeeRange, amount decimal.Decimal) decimal.Decimal {
	if r.IsPercentage {
		return models.Quantize(models.Percent(amount, r.PercentageRate).Add(r.AdditionalFee))
	}
	return models.Quantize(r.FixedCharge)
}

func netIn(r models.FeeRange, total decimal.Decimal) decimal.Decimal {
	if r.IsPercentage {
		return netForPercentage(total, r.PercentageRate, r.AdditionalFee)
	}
	return models.Quantize(total.Sub(r.FixedCharge))
}

func netForPercentage(total, rate, additional decimal.Decimal) decimal.Decimal {
	return models.Quantize(total.Sub(additional).Div(one.Add(rate.Div(hundred))))
}

func split(total, net decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if net.IsNegative() {
		net = decimal.Zero
	}
	return net, total.Sub(net)
}

func topPercentageTier(ranges []models.FeeRange) (models.FeeRange, bool) {
	var (
		top   models.FeeRange
		found bool
	)
	for _, r := range ranges {
		if !r.IsPercentage {
			continue
		}
		if !found || r.MinAmount.GreaterThan(top.MinAmount) {
			top, found = r, true
		}
	}
	return top, found
}
