package fees

import (
	"time"

	"github.com/shopspring/decimal"
)

// Plan is a purchasable subscription plan
type Plan struct {
	Name     string
	Type     string
	Price    decimal.Decimal
	Duration time.Duration
	Features []string
	BidLimit int
}

// Pricing is the fee table. It is injected into the Resolver and the
// settlement effects so tests can vary it freely.
type Pricing struct {
	Currency               string
	BidFee                 decimal.Decimal
	SubscriberBidFee       decimal.Decimal
	FreeBidAllowance       int
	ListingFee             decimal.Decimal
	WithdrawalFeePercent   decimal.Decimal
	WithdrawalFeeMin       decimal.Decimal
	BonusFundingFeePercent decimal.Decimal
	Plans                  map[string]Plan
}

const day = 24 * time.Hour

// DefaultPricing returns the marketplace's standard fee table
func DefaultPricing() Pricing {
	return Pricing{
		Currency:               "USD",
		BidFee:                 decimal.NewFromInt(9),
		SubscriberBidFee:       decimal.NewFromInt(3),
		FreeBidAllowance:       3,
		ListingFee:             decimal.NewFromInt(5),
		WithdrawalFeePercent:   decimal.NewFromInt(1),
		WithdrawalFeeMin:       decimal.NewFromInt(1),
		BonusFundingFeePercent: decimal.Zero,
		Plans: map[string]Plan{
			"pro-monthly": {
				Name:     "pro-monthly",
				Type:     "monthly",
				Price:    decimal.NewFromInt(19),
				Duration: 30 * day,
				Features: []string{"discounted_bids", "priority_listing"},
				BidLimit: 100,
			},
			"pro-yearly": {
				Name:     "pro-yearly",
				Type:     "yearly",
				Price:    decimal.NewFromInt(190),
				Duration: 365 * day,
				Features: []string{"discounted_bids", "priority_listing"},
				BidLimit: 1500,
			},
		},
	}
}

// Plan looks up a plan by name
func (p Pricing) Plan(name string) (Plan, bool) {
	plan, ok := p.Plans[name]
	return plan, ok
}

// WithdrawalFee is max(min, amount * percent / 100), in cents.
func (p Pricing) WithdrawalFee(amount decimal.Decimal) decimal.Decimal {
	fee := amount.Mul(p.WithdrawalFeePercent).Div(decimal.NewFromInt(100)).Round(2)
	return decimal.Max(fee, p.WithdrawalFeeMin)
}

// BonusFundingCharge is the pool amount plus the funding fee.
func (p Pricing) BonusFundingCharge(amount decimal.Decimal) decimal.Decimal {
	fee := amount.Mul(p.BonusFundingFeePercent).Div(decimal.NewFromInt(100)).Round(2)
	return amount.Add(fee)
}
