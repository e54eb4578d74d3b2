// internal/ui/terminal_test.go
package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"beccaccino/internal/protocol"
)

func TestLobbyLabel(t *testing.T) {
	summary := protocol.LobbySummary{
		ID: protocol.LobbyID{
			Seq:   7,
			Owner: "alice",
			Game:  protocol.GameID{Name: "Beccaccino"},
		},
		Members: []protocol.UserID{
			{Seq: 1, Name: "alice"},
			{Seq: 2, Name: "bob"},
		},
	}
	assert.Equal(t, "#7 Beccaccino by alice (2 players)", lobbyLabel(summary))
}

func TestFormatCard(t *testing.T) {
	assert.Equal(t, "1 of Coppe", FormatCard(protocol.Card{Suit: "Coppe", Rank: 1}))
	assert.Equal(t, "10 of Spade", FormatCard(protocol.Card{Suit: "Spade", Rank: 10}))
}
