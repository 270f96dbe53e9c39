package menu

// ID names a top-level host menu.
type ID string

// Menus owned by the embedded-service layer.
const (
	Status     ID = "enlisted_status"
	BattleWait ID = "enlisted_battle_wait"
)

// Host menus the router reasons about.
const (
	Encounter        ID = "encounter"      // standard battle-choice menu
	JoinEncounter    ID = "join_encounter" // help/ignore chooser
	ArmyWait         ID = "army_wait"
	ArmyWaitAtSettle ID = "army_wait_at_settlement"
	TownOutside      ID = "town_outside"
	TownInside       ID = "town"
	CastleOutside    ID = "castle_outside"
	CastleInside     ID = "castle"
	VillageOutside   ID = "village_outside"
	Village          ID = "village"
	SiegeStrategies  ID = "menu_siege_strategies"
	SiegeAssault     ID = "encounter_siege"
	CaptivityWait    ID = "prisoner_wait"
	CaptivityCastle  ID = "settlement_wait"
	BattleAftermath  ID = "encounter_meeting"
)

var combatMenus = map[ID]bool{
	Encounter:       true,
	JoinEncounter:   true,
	SiegeStrategies: true,
	SiegeAssault:    true,
	BattleAftermath: true,
}

var siegeMenus = map[ID]bool{
	SiegeStrategies: true,
	SiegeAssault:    true,
}

var independentMenus = map[ID]bool{
	ArmyWait:         true,
	ArmyWaitAtSettle: true,
	TownOutside:      true,
	TownInside:       true,
	CastleOutside:    true,
	CastleInside:     true,
	VillageOutside:   true,
	Village:          true,
}

var captivityMenus = map[ID]bool{
	CaptivityWait:   true,
	CaptivityCastle: true,
}

// IsCombat reports whether id is a battle or siege menu.
func (id ID) IsCombat() bool { return combatMenus[id] }

// IsSiege reports whether id belongs to a siege.
func (id ID) IsSiege() bool { return siegeMenus[id] }

// IsIndependent reports whether id is a menu meant for a party acting on its
// own: army waits and settlement menus.
func (id ID) IsIndependent() bool { return independentMenus[id] }

// IsCaptivity reports whether id is a prisoner menu.
func (id ID) IsCaptivity() bool { return captivityMenus[id] }
