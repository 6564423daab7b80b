package ricochet

import (
	"math/rand/v2"

	"ricochet-server/internal/grid"
)

// TargetDeck deals targets without replacement. When every card has been
// dealt the deck is reshuffled and dealing starts over.
type TargetDeck struct {
	cards  []grid.Target
	cursor int
	rng    *rand.Rand
}

func NewTargetDeck(targets []grid.Target, rng *rand.Rand) *TargetDeck {
	d := &TargetDeck{cards: append([]grid.Target(nil), targets...), rng: rng}
	d.shuffle()
	return d
}

func (d *TargetDeck) shuffle() {
	d.rng.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
	d.cursor = 0
}

// Remaining is the number of cards left before the next reshuffle.
func (d *TargetDeck) Remaining() int { return len(d.cards) - d.cursor }

// Draw deals the next card for which skip returns false. Skipped cards stay
// in the undealt part of the deck. It returns false only when no card in the
// whole deck is acceptable.
func (d *TargetDeck) Draw(skip func(grid.Target) bool) (grid.Target, bool) {
	if len(d.cards) == 0 {
		return grid.Target{}, false
	}
	for pass := 0; pass < 2; pass++ {
		if d.cursor == len(d.cards) {
			d.shuffle()
		}
		for i := d.cursor; i < len(d.cards); i++ {
			if skip != nil && skip(d.cards[i]) {
				continue
			}
			d.cards[d.cursor], d.cards[i] = d.cards[i], d.cards[d.cursor]
			t := d.cards[d.cursor]
			d.cursor++
			return t, true
		}
		// Everything left in this cycle is skipped; start a fresh cycle.
		d.cursor = len(d.cards)
	}
	return grid.Target{}, false
}
