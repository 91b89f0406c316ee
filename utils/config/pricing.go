package config

import (
	"fmt"
	"os"
	"time"

	"gigpay-bend/utils/fees"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// pricingFile mirrors the YAML layout. Absent fields keep their defaults.
type pricingFile struct {
	Currency               string     `yaml:"currency"`
	BidFee                 *float64   `yaml:"bid_fee"`
	SubscriberBidFee       *float64   `yaml:"subscriber_bid_fee"`
	FreeBidAllowance       *int       `yaml:"free_bid_allowance"`
	ListingFee             *float64   `yaml:"listing_fee"`
	WithdrawalFeePercent   *float64   `yaml:"withdrawal_fee_percent"`
	WithdrawalFeeMin       *float64   `yaml:"withdrawal_fee_min"`
	BonusFundingFeePercent *float64   `yaml:"bonus_funding_fee_percent"`
	Plans                  []planFile `yaml:"plans"`
}

type planFile struct {
	Name         string   `yaml:"name"`
	Type         string   `yaml:"type"`
	Price        float64  `yaml:"price"`
	DurationDays int      `yaml:"duration_days"`
	Features     []string `yaml:"features"`
	BidLimit     int      `yaml:"bid_limit"`
}

// LoadPricing reads a YAML fee table on top of fees.DefaultPricing
func LoadPricing(path string) (fees.Pricing, error) {
	p := fees.DefaultPricing()

	b, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read pricing file: %w", err)
	}

	var f pricingFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return p, fmt.Errorf("parse pricing file: %w", err)
	}

	if f.Currency != "" {
		p.Currency = f.Currency
	}
	setAmount(&p.BidFee, f.BidFee)
	setAmount(&p.SubscriberBidFee, f.SubscriberBidFee)
	setAmount(&p.ListingFee, f.ListingFee)
	setAmount(&p.WithdrawalFeePercent, f.WithdrawalFeePercent)
	setAmount(&p.WithdrawalFeeMin, f.WithdrawalFeeMin)
	setAmount(&p.BonusFundingFeePercent, f.BonusFundingFeePercent)
	if f.FreeBidAllowance != nil {
		p.FreeBidAllowance = *f.FreeBidAllowance
	}

	if len(f.Plans) > 0 {
		p.Plans = make(map[string]fees.Plan, len(f.Plans))
		for _, pl := range f.Plans {
			if pl.Name == "" || pl.DurationDays <= 0 || pl.Price <= 0 {
				return p, fmt.Errorf("pricing file: plan %q needs a name, a positive price and duration", pl.Name)
			}
			p.Plans[pl.Name] = fees.Plan{
				Name:     pl.Name,
				Type:     pl.Type,
				Price:    decimal.NewFromFloat(pl.Price),
				Duration: time.Duration(pl.DurationDays) * 24 * time.Hour,
				Features: pl.Features,
				BidLimit: pl.BidLimit,
			}
		}
	}
	return p, nil
}

func setAmount(dst *decimal.Decimal, v *float64) {
	if v != nil {
		*dst = decimal.NewFromFloat(*v)
	}
}
