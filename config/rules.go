package config

import (
	"fmt"
	"time"

	"github.com/Klingon-tech/truthstamp/pkg/types"
)

// Denomination. All engine amounts are integer base units.
const (
	Decimals = 2
	Coin     = 100 // base units per whole TST
)

// TierRule holds the economics of one expert tier.
type TierRule struct {
	MinStake uint64 `yaml:"min_stake" json:"min_stake"`
	// WeightTenths is the vote weight multiplier in tenths (10 = 1.0x).
	WeightTenths uint64 `yaml:"weight_tenths" json:"weight_tenths"`
	// RewardSharePct is the share of an apportioned reward paid to the
	// expert; the rest goes to the insurance pool.
	RewardSharePct uint64 `yaml:"reward_share_pct" json:"reward_share_pct"`
}

// Rules are the protocol economics of the engine.
type Rules struct {
	General      TierRule `yaml:"general" json:"general"`
	Specialized  TierRule `yaml:"specialized" json:"specialized"`
	Professional TierRule `yaml:"professional" json:"professional"`

	// Quorum is the minimum number of reviews before a claim may finalize.
	Quorum uint32 `yaml:"quorum" json:"quorum"`
	// MaxTextLength bounds claim text, in characters.
	MaxTextLength int `yaml:"max_text_length" json:"max_text_length"`
	// ClaimFee is the minimum fee a submitter pays into the claim pool.
	ClaimFee uint64 `yaml:"claim_fee" json:"claim_fee"`
	// SlashPct of a losing stake moves to the insurance pool.
	SlashPct uint64 `yaml:"slash_pct" json:"slash_pct"`
	// FeeRewardPct of the claim fee funds winner rewards; the rest is
	// paid to the insurance pool at settlement.
	FeeRewardPct uint64 `yaml:"fee_reward_pct" json:"fee_reward_pct"`
	// ReputationDivisor turns stake x confidence into reputation points.
	ReputationDivisor uint64 `yaml:"reputation_divisor" json:"reputation_divisor"`

	AppealWindow      time.Duration `yaml:"appeal_window" json:"appeal_window"`
	ArbitrationWindow time.Duration `yaml:"arbitration_window" json:"arbitration_window"`
	// AppealPayoutPct of the bond is paid to a successful appellant.
	AppealPayoutPct uint64 `yaml:"appeal_payout_pct" json:"appeal_payout_pct"`
	MinAppealBond   uint64 `yaml:"min_appeal_bond" json:"min_appeal_bond"`
}

// DefaultRules returns the standard protocol economics.
func DefaultRules() Rules {
	return Rules{
		General:           TierRule{MinStake: 100, WeightTenths: 10, RewardSharePct: 70},
		Specialized:       TierRule{MinStake: 500, WeightTenths: 10, RewardSharePct: 80},
		Professional:      TierRule{MinStake: 1000, WeightTenths: 20, RewardSharePct: 90},
		Quorum:            3,
		MaxTextLength:     1000,
		ClaimFee:          50,
		SlashPct:          10,
		FeeRewardPct:      80,
		ReputationDivisor: 10_000,
		AppealWindow:      30 * 24 * time.Hour,
		ArbitrationWindow: 7 * 24 * time.Hour,
		AppealPayoutPct:   150,
		MinAppealBond:     100,
	}
}

// Tier returns the rule for t. Unknown tiers get a zero rule, which no
// stake satisfies because Validate rejects zero multipliers.
func (r Rules) Tier(t types.Tier) TierRule {
	switch t {
	case types.TierGeneral:
		return r.General
	case types.TierSpecialized:
		return r.Specialized
	case types.TierProfessional:
		return r.Professional
	}
	return TierRule{}
}

// Validate checks the rules for values that would break settlement.
func (r Rules) Validate() error {
	tiers := []struct {
		name string
		rule TierRule
	}{
		{"general", r.General},
		{"specialized", r.Specialized},
		{"professional", r.Professional},
	}
	for _, t := range tiers {
		if t.rule.MinStake == 0 {
			return fmt.Errorf("rules: %s.min_stake must be positive", t.name)
		}
		if t.rule.WeightTenths == 0 {
			return fmt.Errorf("rules: %s.weight_tenths must be positive", t.name)
		}
		if t.rule.RewardSharePct > 100 {
			return fmt.Errorf("rules: %s.reward_share_pct must be at most 100", t.name)
		}
	}
	switch {
	case r.Quorum == 0:
		return fmt.Errorf("rules: quorum must be at least 1")
	case r.MaxTextLength <= 0:
		return fmt.Errorf("rules: max_text_length must be positive")
	case r.SlashPct > 100:
		return fmt.Errorf("rules: slash_pct must be at most 100")
	case r.FeeRewardPct > 100:
		return fmt.Errorf("rules: fee_reward_pct must be at most 100")
	case r.ReputationDivisor == 0:
		return fmt.Errorf("rules: reputation_divisor must be positive")
	case r.AppealWindow <= 0 || r.ArbitrationWindow <= 0:
		return fmt.Errorf("rules: appeal and arbitration windows must be positive")
	case r.MinAppealBond == 0:
		return fmt.Errorf("rules: min_appeal_bond must be positive")
	}
	return nil
}
