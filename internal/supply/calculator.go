package supply

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidHeight is returned for heights the calculator cannot evaluate.
var ErrInvalidHeight = errors.New("invalid height")

// FractionDigits is the number of decimals in Result.Formatted.
const FractionDigits = 8

// divisionPrecision is used for bonus divisors with a prime factor other than
// 2 or 5, whose quotients do not terminate.
const divisionPrecision = 80

var half = decimal.New(5, -1)

// Result is the supply at one height.
type Result struct {
	Height    int64
	Halvings  int64
	Total     decimal.Decimal
	Rounded   int64
	Formatted string
}

// Calculator evaluates a Schedule. It holds no mutable state and is safe for
// concurrent use.
type Calculator struct {
	schedule Schedule
	premined decimal.Decimal
	rates    []bonusRate // parallel to schedule.MiningBonusEvents
}

// bonusRate applies a mining bonus divisor. When the divisor only has the
// prime factors 2 and 5 its reciprocal is a finite decimal and the bonus is
// an exact multiplication.
type bonusRate struct {
	factor  decimal.Decimal
	exact   bool
	divisor decimal.Decimal
}

func newBonusRate(divisor int64) bonusRate {
	factor, exact := exactReciprocal(divisor)
	return bonusRate{factor: factor, exact: exact, divisor: decimal.NewFromInt(divisor)}
}

func (r bonusRate) apply(v decimal.Decimal) decimal.Decimal {
	if r.exact {
		return v.Mul(r.factor)
	}
	return v.DivRound(r.divisor, divisionPrecision)
}

// exactReciprocal returns 1/d when it has a finite decimal expansion.
// d = 2^a * 5^b gives 1/d = 2^(n-a) * 5^(n-b) * 10^-n with n = max(a, b).
func exactReciprocal(d int64) (decimal.Decimal, bool) {
	if d <= 0 {
		return decimal.Zero, false
	}
	var twos, fives int64
	for d%2 == 0 {
		d /= 2
		twos++
	}
	for d%5 == 0 {
		d /= 5
		fives++
	}
	if d != 1 {
		return decimal.Zero, false
	}
	n := max(twos, fives)
	r := decimal.NewFromInt(1)
	for i := twos; i < n; i++ {
		r = r.Mul(decimal.NewFromInt(2))
	}
	for i := fives; i < n; i++ {
		r = r.Mul(decimal.NewFromInt(5))
	}
	return r.Shift(int32(-n)), true
}

// NewCalculator validates s and returns a calculator over a private copy.
func NewCalculator(s Schedule) (*Calculator, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("emission schedule: %w", err)
	}
	s = s.clone()
	rates := make([]bonusRate, len(s.MiningBonusEvents))
	for i, b := range s.MiningBonusEvents {
		rates[i] = newBonusRate(b.Divisor)
	}
	return &Calculator{schedule: s, premined: s.Premined(), rates: rates}, nil
}

// Schedule returns a copy of the schedule the calculator was built with.
func (c *Calculator) Schedule() Schedule {
	return c.schedule.clone()
}

// Halvings returns floor((height - offset) / interval). The result is
// negative below the offset.
func (c *Calculator) Halvings(height int64) int64 {
	return floorDiv(height-c.schedule.HalvingOffset, c.schedule.HalvingInterval)
}

// Subsidy returns the per-block reward for the epoch height belongs to.
func (c *Calculator) Subsidy(height int64) decimal.Decimal {
	h := c.Halvings(height)
	if h < 0 {
		h = 0
	}
	if h >= c.schedule.MaxHalvings {
		return decimal.Zero
	}
	subsidy := c.schedule.GenesisSubsidy
	for i := int64(0); i < h; i++ {
		subsidy = subsidy.Mul(half)
	}
	return subsidy
}

// Compute returns the circulating supply at height.
//
// Completed epochs contribute their full reward. The open epoch contributes
// the blocks mined so far plus every active mining bonus, both at the open
// epoch's subsidy. Epochs from MaxHalvings on contribute nothing.
func (c *Calculator) Compute(height int64) (Result, error) {
	if height < 0 {
		return Result{}, fmt.Errorf("%w: %d is negative", ErrInvalidHeight, height)
	}
	s := &c.schedule

	coins := c.premined
	for _, e := range s.SnapshotEvents {
		if height > e.TriggerHeight {
			coins = coins.Add(e.Credit)
		}
	}

	halvings := c.Halvings(height)
	interval := decimal.NewFromInt(s.HalvingInterval)
	subsidy := s.GenesisSubsidy

	for i := int64(1); i <= halvings; i++ {
		if i >= s.MaxHalvings {
			// Every later epoch is zero as well.
			break
		}
		subsidy = subsidy.Mul(half)

		if i < halvings {
			coins = coins.Add(interval.Mul(subsidy))
			continue
		}

		mined := height - s.SubsidyStartHeight - (i-1)*s.HalvingInterval
		coins = coins.Add(decimal.NewFromInt(mined).Mul(subsidy))

		for _, b := range s.MiningBonusEvents {
			if height > b.ReleaseHeight {
				bonus := decimal.NewFromInt(height - b.MiningStartHeight).Mul(subsidy)
				coins = coins.Add(bonus.DivRound(decimal.NewFromInt(b.Divisor), divisionPrecision))
			}
		}
	}

	return Result{
		Height:    height,
		Halvings:  halvings,
		Total:     coins,
		Rounded:   coins.Round(0).IntPart(),
		Formatted: coins.StringFixed(FractionDigits),
	}, nil
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
