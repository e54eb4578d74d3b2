// internal/games/deck.go
package games

import (
	"math/rand"

	"beccaccino/internal/protocol"
)

// Suits of the 40-card Italian deck, in listing order.
var Suits = []string{"Bastoni", "Coppe", "Denari", "Spade"}

// Seats is the number of players in a match; every lobby fills to exactly
// this size before a game starts.
const Seats = 4

// HandSize is the number of cards each seat is dealt.
const HandSize = 10

// trickStrength orders ranks within a suit for trick resolution. Higher
// wins. Ace and three dominate, then the figures, per the beccaccino family
// of games. Point scoring is intentionally absent.
var trickStrength = map[int]int{
	1: 10, 3: 9, 10: 8, 9: 7, 8: 6, 7: 5, 6: 4, 5: 3, 4: 2, 2: 1,
}

// NewDeck builds the full 40-card deck in a deterministic order.
func NewDeck() []protocol.Card {
	deck := make([]protocol.Card, 0, len(Suits)*HandSize)
	for _, s := range Suits {
		for r := 1; r <= 10; r++ {
			deck = append(deck, protocol.Card{Suit: s, Rank: r})
		}
	}
	return deck
}

// Deal shuffles a fresh deck with rng and splits it into Seats hands of
// HandSize cards each.
func Deal(rng *rand.Rand) [Seats][]protocol.Card {
	deck := NewDeck()
	rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})

	var hands [Seats][]protocol.Card
	for i := 0; i < Seats; i++ {
		hands[i] = append([]protocol.Card(nil), deck[i*HandSize:(i+1)*HandSize]...)
	}
	return hands
}

// ValidBriscola reports whether suit is a legal trump choice.
func ValidBriscola(suit string) bool {
	for _, s := range Suits {
		if s == suit {
			return true
		}
	}
	return false
}

// ContainsCard reports whether hand holds card.
func ContainsCard(hand []protocol.Card, card protocol.Card) bool {
	for _, c := range hand {
		if c == card {
			return true
		}
	}
	return false
}

// RemoveCard returns hand without the first occurrence of card.
func RemoveCard(hand []protocol.Card, card protocol.Card) []protocol.Card {
	out := make([]protocol.Card, 0, len(hand))
	removed := false
	for _, c := range hand {
		if !removed && c == card {
			removed = true
			continue
		}
		out = append(out, c)
	}
	return out
}

// TrickWinner returns the index within field of the winning card: the
// strongest trump if any was played, otherwise the strongest card of the
// led suit. field is in play order and must be non-empty.
func TrickWinner(field []protocol.Card, briscola string) int {
	win := 0
	for i := 1; i < len(field); i++ {
		if beats(field[i], field[win], briscola) {
			win = i
		}
	}
	return win
}

func beats(c, against protocol.Card, briscola string) bool {
	if c.Suit == against.Suit {
		return trickStrength[c.Rank] > trickStrength[against.Rank]
	}
	if c.Suit == briscola {
		return true
	}
	// Off-suit, off-trump cards never take the trick.
	return false
}
