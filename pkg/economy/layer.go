// Package economy keeps an embedded player's party economically transparent
// to the lord's logistics: wages replace native pay, the lord feeds the party,
// the party costs nothing to maintain and loot is shared by rank.
package economy

import (
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/jwebster45206/enlisted/pkg/enlistment"
)

// Line is an income line item shown in the host's daily finances.
type Line struct {
	Label  string `json:"label"`
	Amount int    `json:"amount"`
}

// Report lists which host economy values are replaced right now. A false
// field means the host default applies unchanged.
type Report struct {
	Wage       int     `json:"wage"`
	NativePay  bool    `json:"native_pay_suppressed"`
	Loot       bool    `json:"loot_isolated"`
	LootShare  float64 `json:"loot_share"`
	Food       bool    `json:"food_isolated"`
	FoodSource string  `json:"food_source,omitempty"`
	Expense    bool    `json:"expense_isolated"`
}

// Layer answers the host's economy hooks from the engine's record.
type Layer struct {
	engine *enlistment.Engine
	logger *slog.Logger
}

// NewLayer creates an isolation layer reading from engine.
func NewLayer(engine *enlistment.Engine, logger *slog.Logger) *Layer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Layer{engine: engine, logger: logger}
}

// DailyWage is the wage for today at the current tier.
func (l *Layer) DailyWage() int {
	return l.engine.ProjectedDailyWage()
}

// IncomeLines returns the line items to add to the player's income.
func (l *Layer) IncomeLines() []Line {
	wage := l.DailyWage()
	if wage <= 0 {
		return nil
	}
	label := "Service wage"
	if lord := l.engine.CurrentLord(); lord != nil && lord.Name != "" {
		label = fmt.Sprintf("Service wage (%s)", lord.Name)
	}
	return []Line{{Label: label, Amount: wage}}
}

// SuppressNativePay reports whether the host's mercenary payment should be
// skipped because the wage line already pays the player.
func (l *Layer) SuppressNativePay() bool {
	return l.engine.IsActive()
}

// PartyExpense returns the expense to charge the player's party.
func (l *Layer) PartyExpense(native float64) float64 {
	if l.engine.IsEmbeddedWithLord() {
		return 0
	}
	return native
}

// FoodSupply returns the food the player's party should report as its own.
// While embedded this reads through to the lord's party, or the army
// leader's when the lord marches in an army. An empty larder is passed on.
func (l *Layer) FoodSupply(native float64) float64 {
	food, _, ok := l.lordFood()
	if !ok {
		return native
	}
	return food
}

func (l *Layer) lordFood() (float64, string, bool) {
	if !l.engine.IsEmbeddedWithLord() {
		return 0, "", false
	}
	lord, ok := l.engine.Lord()
	if !ok {
		return 0, "", false
	}
	if lord.ArmyLeaderID != "" && lord.ArmyLeaderID != lord.ID {
		if leader, ok := l.engine.World().Lord(lord.ArmyLeaderID); ok && leader.HasParty() {
			return math.Max(leader.Food, 0), leader.ID, true
		}
	}
	return math.Max(lord.Food, 0), lord.ID, true
}

// lootIsolated reports whether loot rules apply at all. Only active service
// counts; leave and grace period fall back to the host.
func (l *Layer) lootIsolated() bool {
	return l.engine.IsActive()
}

// LootShare is the fraction of the native loot the player keeps. It is 1
// when the host default applies.
func (l *Layer) LootShare() float64 {
	if !l.lootIsolated() {
		return 1
	}
	return l.engine.Policy().LootShareFor(l.engine.Tier())
}

// ScaleLoot applies the loot share to a baseline amount.
func (l *Layer) ScaleLoot(baseline float64) int {
	return Scale(baseline, l.LootShare())
}

// LootSink returns where loot for the player's party should be collected.
// Below the officer tier loot goes to a Discard sink. The result is never nil.
func (l *Layer) LootSink(native Sink) Sink {
	if native == nil || (l.lootIsolated() && l.LootShare() == 0) {
		return Discard{}
	}
	return native
}

// Report describes the current isolation.
func (l *Layer) Report() Report {
	r := Report{
		Wage:      l.DailyWage(),
		NativePay: l.SuppressNativePay(),
		Loot:      l.lootIsolated(),
		LootShare: l.LootShare(),
		Expense:   l.engine.IsEmbeddedWithLord(),
	}
	if _, source, ok := l.lordFood(); ok {
		r.Food = true
		r.FoodSource = source
	}
	return r
}

// Scale multiplies baseline by factor, floors the result and clamps it at zero.
func Scale(baseline, factor float64) int {
	v := math.Floor(baseline * factor)
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return int(v)
}
