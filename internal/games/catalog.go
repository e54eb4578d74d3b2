// internal/games/catalog.go
package games

import (
	"strings"

	"beccaccino/internal/protocol"
)

// Catalog is the rule validator's answer to "does this game definition
// exist". The set is static for the life of the process.
type Catalog struct {
	known []protocol.GameID
}

// NewCatalog returns the catalog of playable game definitions.
func NewCatalog() *Catalog {
	return &Catalog{
		known: []protocol.GameID{
			{Name: "Beccaccino"},
			{Name: "Briscola"},
			{Name: "Marafone"},
		},
	}
}

// Exists reports whether the given game definition is known. Matching is
// case-insensitive so clients may send "beccaccino" for "Beccaccino".
func (c *Catalog) Exists(g protocol.GameID) bool {
	for _, k := range c.known {
		if strings.EqualFold(k.Name, g.Name) {
			return true
		}
	}
	return false
}

// All returns every known game definition.
func (c *Catalog) All() []protocol.GameID {
	out := make([]protocol.GameID, len(c.known))
	copy(out, c.known)
	return out
}
