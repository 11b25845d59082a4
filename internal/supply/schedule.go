// Package supply computes the circulating coin supply at a given chain
// height from a fixed emission schedule.
package supply

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Allocation is a fixed amount present in the supply from genesis.
type Allocation struct {
	Name   string
	Amount decimal.Decimal
}

// SnapshotEvent is a one-time credit unlocked once the chain height is
// strictly greater than TriggerHeight.
type SnapshotEvent struct {
	Chain         string
	TriggerHeight int64
	Credit        decimal.Decimal
}

// MiningBonusEvent is supplemental issuance for a parallel-asset chain. Once
// the height passes ReleaseHeight it accrues
// (height - MiningStartHeight) * subsidy / Divisor, using the subsidy of the
// epoch the height falls in.
type MiningBonusEvent struct {
	Chain             string
	ReleaseHeight     int64
	MiningStartHeight int64
	Divisor           int64
}

// Schedule describes the full emission of the chain. A Schedule handed to
// NewCalculator is copied; later changes to the caller's value have no effect.
type Schedule struct {
	GenesisSubsidy     decimal.Decimal
	HalvingInterval    int64
	HalvingOffset      int64 // halvings = floor((height - HalvingOffset) / HalvingInterval)
	SubsidyStartHeight int64
	MaxHalvings        int64 // epochs at or past this index emit nothing

	Allocations       []Allocation
	SnapshotEvents    []SnapshotEvent
	MiningBonusEvents []MiningBonusEvent
}

// Mainnet emission constants.
const (
	MainnetHalvingInterval    = 655_350
	MainnetHalvingOffset      = 2_500
	MainnetSubsidyStartHeight = 657_850
	MainnetSlowStartEnd       = 5_000
	MainnetMaxHalvings        = 64

	// Parallel-asset heights.
	kdaMiningHeight = 825_000
	ethBscHeight    = 883_000
	solTrxHeight    = 969_500
	avaxHeight      = 1_170_000
	atomHeight      = 2_170_000

	bonusDivisor = 10
)

var (
	mainnetGenesisSubsidy = decimal.NewFromInt(150)

	// Every parallel asset launches with a 1M dev/exchange fund plus the
	// snapshot distribution.
	parallelAssetFund     = decimal.NewFromInt(1_000_000)
	parallelAssetSnapshot = decimal.RequireFromString("12313785.94991485")
)

// MainnetSchedule returns the emission schedule of the Flux main chain and
// its parallel assets.
func MainnetSchedule() Schedule {
	slowStart := decimal.NewFromInt(MainnetSubsidyStartHeight - MainnetSlowStartEnd).Mul(mainnetGenesisSubsidy)
	credit := parallelAssetFund.Add(parallelAssetSnapshot)

	return Schedule{
		GenesisSubsidy:     mainnetGenesisSubsidy,
		HalvingInterval:    MainnetHalvingInterval,
		HalvingOffset:      MainnetHalvingOffset,
		SubsidyStartHeight: MainnetSubsidyStartHeight,
		MaxHalvings:        MainnetMaxHalvings,
		Allocations: []Allocation{
			{Name: "slowstart", Amount: slowStart},
			{Name: "premine", Amount: decimal.NewFromInt(375_000)},
			{Name: "devfund", Amount: decimal.NewFromInt(13_020_000)},
			{Name: "exchangefund", Amount: decimal.NewFromInt(10_000_000)},
			{Name: "kda-fund", Amount: parallelAssetFund},
			{Name: "kda-snapshot", Amount: parallelAssetSnapshot},
		},
		// bsc/eth and sol/trx share activation heights; each still credits.
		SnapshotEvents: []SnapshotEvent{
			{Chain: "bsc", TriggerHeight: ethBscHeight, Credit: credit},
			{Chain: "eth", TriggerHeight: ethBscHeight, Credit: credit},
			{Chain: "sol", TriggerHeight: solTrxHeight, Credit: credit},
			{Chain: "trx", TriggerHeight: solTrxHeight, Credit: credit},
			{Chain: "avax", TriggerHeight: avaxHeight, Credit: credit},
			{Chain: "atom", TriggerHeight: atomHeight, Credit: credit},
		},
		MiningBonusEvents: []MiningBonusEvent{
			{Chain: "kda", ReleaseHeight: kdaMiningHeight, MiningStartHeight: kdaMiningHeight, Divisor: bonusDivisor},
			{Chain: "eth", ReleaseHeight: ethBscHeight, MiningStartHeight: kdaMiningHeight, Divisor: bonusDivisor},
			{Chain: "bsc", ReleaseHeight: ethBscHeight, MiningStartHeight: kdaMiningHeight, Divisor: bonusDivisor},
			{Chain: "sol", ReleaseHeight: solTrxHeight, MiningStartHeight: kdaMiningHeight, Divisor: bonusDivisor},
			{Chain: "trx", ReleaseHeight: solTrxHeight, MiningStartHeight: kdaMiningHeight, Divisor: bonusDivisor},
			{Chain: "avax", ReleaseHeight: avaxHeight, MiningStartHeight: kdaMiningHeight, Divisor: bonusDivisor},
			{Chain: "atom", ReleaseHeight: atomHeight, MiningStartHeight: kdaMiningHeight, Divisor: bonusDivisor},
		},
	}
}

// Premined returns the sum of all genesis allocations.
func (s Schedule) Premined() decimal.Decimal {
	total := decimal.Zero
	for _, a := range s.Allocations {
		total = total.Add(a.Amount)
	}
	return total
}

// Validate checks the schedule for values the calculator cannot use.
func (s Schedule) Validate() error {
	if s.GenesisSubsidy.Sign() < 0 {
		return errors.New("genesis subsidy must not be negative")
	}
	if s.HalvingInterval <= 0 {
		return errors.New("halving interval must be positive")
	}
	if s.MaxHalvings <= 0 {
		return errors.New("max halvings must be positive")
	}
	for i, a := range s.Allocations {
		if a.Amount.Sign() < 0 {
			return fmt.Errorf("allocation %d (%s): amount must not be negative", i, a.Name)
		}
	}
	for i, e := range s.SnapshotEvents {
		if e.Credit.Sign() < 0 {
			return fmt.Errorf("snapshot event %d (%s): credit must not be negative", i, e.Chain)
		}
	}
	for i, e := range s.MiningBonusEvents {
		if e.Divisor <= 0 {
			return fmt.Errorf("mining bonus %d (%s): divisor must be positive", i, e.Chain)
		}
		if e.MiningStartHeight > e.ReleaseHeight {
			return fmt.Errorf("mining bonus %d (%s): mining start %d is after release %d",
				i, e.Chain, e.MiningStartHeight, e.ReleaseHeight)
		}
	}
	return nil
}

// clone returns a deep copy of s.
func (s Schedule) clone() Schedule {
	out := s
	out.Allocations = append([]Allocation(nil), s.Allocations...)
	out.SnapshotEvents = append([]SnapshotEvent(nil), s.SnapshotEvents...)
	out.MiningBonusEvents = append([]MiningBonusEvent(nil), s.MiningBonusEvents...)
	return out
}
