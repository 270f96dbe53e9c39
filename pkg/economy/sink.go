package economy

// Sink receives loot collected for a party.
type Sink interface {
	Add(itemID string, count int)
	Gold(amount int)
}

// Discard is a sink that drops everything.
type Discard struct{}

func (Discard) Add(string, int) {}
func (Discard) Gold(int) {}

// Pile is a sink that keeps what it receives.
type Pile struct {
	Items map[string]int `json:"items,omitempty"`
	Coins int            `json:"gold,omitempty"`
}

func (p *Pile) Add(itemID string, count int) {
	if count <= 0 {
		return
	}
	if p.Items == nil {
		p.Items = make(map[string]int)
	}
	p.Items[itemID] += count
}

func (p *Pile) Gold(amount int) {
	if amount > 0 {
		p.Coins += amount
	}
}
