package enlistment

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Duration is a time.Duration that reads and writes as a Go duration string
// ("72h") in policy files.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// TreasuryBand scales wages by how rich the lord is.
type TreasuryBand struct {
	MinGold int     `json:"min_gold"`
	Factor  float64 `json:"factor"`
}

// Policy holds the balance values. They are designer-tunable lookups rather
// than formulas so the numbers stay explicit.
type Policy struct {
	Name        string `json:"name"`
	MaxTier     int    `json:"max_tier"`
	OfficerTier int    `json:"officer_tier"` // first tier that receives any loot

	// LootShare[i] is the loot fraction at tier i+1.
	LootShare []float64 `json:"loot_share"`
	// WageByTier[i] is the base daily wage at tier i+1.
	WageByTier []int          `json:"wage_by_tier"`
	Treasury   []TreasuryBand `json:"treasury"`

	GraceProtection     Duration `json:"grace_protection"`
	RetentionWindow     Duration `json:"retention_window"`
	GracePeriodDuration Duration `json:"grace_period_duration"`
}

// DefaultPolicy returns the stock balance values.
func DefaultPolicy() *Policy {
	return &Policy{
		Name:        "default",
		MaxTier:     6,
		OfficerTier: 4,
		LootShare:   []float64{0, 0, 0, 0.25, 0.35, 0.5},
		WageByTier:  []int{12, 18, 25, 34, 45, 60},
		Treasury: []TreasuryBand{
			{MinGold: 50000, Factor: 1.2},
			{MinGold: 10000, Factor: 1.0},
			{MinGold: 2000, Factor: 0.75},
			{MinGold: 0, Factor: 0.5},
		},
		GraceProtection:     Duration(6 * time.Hour),
		RetentionWindow:     Duration(14 * 24 * time.Hour),
		GracePeriodDuration: Duration(14 * 24 * time.Hour),
	}
}

// Validate checks that the tables cover every tier and stay in range.
func (p *Policy) Validate() error {
	var problems []string
	if p.MaxTier < 1 {
		problems = append(problems, "max_tier must be at least 1")
	}
	if p.OfficerTier < 1 || p.OfficerTier > p.MaxTier {
		problems = append(problems, fmt.Sprintf("officer_tier must be between 1 and %d", p.MaxTier))
	}
	if len(p.LootShare) != p.MaxTier {
		problems = append(problems, fmt.Sprintf("loot_share has %d entries, want %d", len(p.LootShare), p.MaxTier))
	}
	for i, share := range p.LootShare {
		tier := i + 1
		switch {
		case share < 0 || share >= 1:
			problems = append(problems, fmt.Sprintf("loot_share for tier %d must be in [0, 1)", tier))
		case tier < p.OfficerTier && share != 0:
			problems = append(problems, fmt.Sprintf("loot_share for tier %d must be 0 below officer_tier", tier))
		case tier >= p.OfficerTier && share == 0:
			problems = append(problems, fmt.Sprintf("loot_share for tier %d must be above 0 from officer_tier", tier))
		}
		if i > 0 && share < p.LootShare[i-1] {
			problems = append(problems, fmt.Sprintf("loot_share for tier %d is lower than tier %d", tier, tier-1))
		}
	}
	if len(p.WageByTier) != p.MaxTier {
		problems = append(problems, fmt.Sprintf("wage_by_tier has %d entries, want %d", len(p.WageByTier), p.MaxTier))
	}
	for i, w := range p.WageByTier {
		if w < 0 {
			problems = append(problems, fmt.Sprintf("wage_by_tier for tier %d is negative", i+1))
		}
	}
	for i, band := range p.Treasury {
		if band.Factor < 0 {
			problems = append(problems, fmt.Sprintf("treasury band %d has a negative factor", i))
		}
	}
	if p.GraceProtection <= 0 {
		problems = append(problems, "grace_protection must be positive")
	}
	if p.RetentionWindow < 0 {
		problems = append(problems, "retention_window must not be negative")
	}
	if p.GracePeriodDuration <= 0 {
		problems = append(problems, "grace_period_duration must be positive")
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("invalid policy %q: %s", p.Name, strings.Join(problems, "; "))
}

// ClampTier bounds a tier to 1..MaxTier.
func (p *Policy) ClampTier(tier int) int {
	return max(1, min(tier, p.MaxTier))
}

// LootShareFor returns the loot fraction for a tier. Tiers below the officer
// threshold get nothing.
func (p *Policy) LootShareFor(tier int) float64 {
	if tier < p.OfficerTier || tier < 1 || len(p.LootShare) == 0 {
		return 0
	}
	idx := min(tier, len(p.LootShare)) - 1
	return p.LootShare[idx]
}

// TreasuryFactor returns the wage multiplier for a lord holding gold. A
// negative amount means the treasury is unknown and yields a factor of 1.
func (p *Policy) TreasuryFactor(gold int) float64 {
	if gold < 0 || len(p.Treasury) == 0 {
		return 1
	}
	bands := make([]TreasuryBand, len(p.Treasury))
	copy(bands, p.Treasury)
	sort.Slice(bands, func(i, j int) bool { return bands[i].MinGold > bands[j].MinGold })
	for _, b := range bands {
		if gold >= b.MinGold {
			return b.Factor
		}
	}
	return bands[len(bands)-1].Factor
}

// Wage returns the daily wage for a tier under a lord holding gold.
func (p *Policy) Wage(tier, gold int) int {
	if tier < 1 || len(p.WageByTier) == 0 {
		return 0
	}
	base := float64(p.WageByTier[min(tier, len(p.WageByTier))-1])
	return int(math.Max(0, math.Floor(base*p.TreasuryFactor(gold))))
}
