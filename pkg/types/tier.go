package types

import "fmt"

// Tier is an expert's qualification level. It selects the minimum stake,
// the vote weight multiplier and the share of rewards the expert keeps.
type Tier string

const (
	TierGeneral      Tier = "general"
	TierSpecialized  Tier = "specialized"
	TierProfessional Tier = "professional"
)

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierGeneral, TierSpecialized, TierProfessional:
		return true
	}
	return false
}

// ParseTier accepts the lowercase tier names and their first letter.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "general", "g", "General":
		return TierGeneral, nil
	case "specialized", "s", "Specialized":
		return TierSpecialized, nil
	case "professional", "p", "Professional":
		return TierProfessional, nil
	}
	return "", fmt.Errorf("unknown tier %q", s)
}

// Verdict is a reviewer's judgement of a claim.
type Verdict string

const (
	VerdictTrue  Verdict = "true"
	VerdictFalse Verdict = "false"
)

// Valid reports whether v is True or False.
func (v Verdict) Valid() bool {
	return v == VerdictTrue || v == VerdictFalse
}

// Flip returns the opposite verdict.
func (v Verdict) Flip() Verdict {
	if v == VerdictTrue {
		return VerdictFalse
	}
	return VerdictTrue
}

// ParseVerdict accepts true/false and the usual aliases.
func ParseVerdict(s string) (Verdict, error) {
	switch s {
	case "true", "t", "yes", "True":
		return VerdictTrue, nil
	case "false", "f", "no", "False":
		return VerdictFalse, nil
	}
	return "", fmt.Errorf("unknown verdict %q", s)
}
