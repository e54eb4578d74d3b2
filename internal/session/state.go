// internal/session/state.go
package session

import "beccaccino/internal/protocol"

// State is the closed set of phases a client session moves through.
// Exactly one is active per controller at any time.
type State interface{ isState() }

// Connecting: no transport yet, or the previous connection died.
type Connecting struct{}

// Authenticating: connected, waiting for a username choice or the Logged
// reply for one already sent.
type Authenticating struct{}

// LoggedIdle: authenticated and at the main menu.
type LoggedIdle struct {
	User protocol.UserID
}

// CreatingLobby: browsing game definitions or waiting for LobbyCreated.
type CreatingLobby struct {
	User  protocol.UserID
	Games []protocol.GameID
}

// SearchingLobby: browsing the available-lobby list.
type SearchingLobby struct {
	User protocol.UserID
}

// WaitingJoin: a JoinLobby is in flight.
type WaitingJoin struct {
	User protocol.UserID
}

// InLobby: member of a lobby that has not started.
type InLobby struct {
	User    protocol.UserID
	Lobby   protocol.LobbyID
	Members []protocol.UserID
}

// InGame: a match is running and it is not our turn.
type InGame struct {
	User  protocol.UserID
	Lobby protocol.LobbyID
}

// ChoosingBriscola: prompted for the trump suit, timer running.
type ChoosingBriscola struct {
	User       protocol.UserID
	Lobby      protocol.LobbyID
	Options    []string
	TimeoutSec int
}

// WaitingBriscolaAck: a Briscola choice is in flight. Options and timeout
// are kept so a rejection can re-prompt with a fresh timer.
type WaitingBriscolaAck struct {
	User       protocol.UserID
	Lobby      protocol.LobbyID
	Options    []string
	TimeoutSec int
}

// MyTurn: prompted to play a card, timer running.
type MyTurn struct {
	User       protocol.UserID
	Lobby      protocol.LobbyID
	Hand       []protocol.Card
	Field      []protocol.Card
	TimeoutSec int
}

// WaitingMoveAck: a Play is in flight. Hand and field are kept so a
// rejection can re-prompt with a fresh timer.
type WaitingMoveAck struct {
	User       protocol.UserID
	Lobby      protocol.LobbyID
	Hand       []protocol.Card
	Field      []protocol.Card
	TimeoutSec int
}

func (Connecting) isState()         {}
func (Authenticating) isState()     {}
func (LoggedIdle) isState()         {}
func (CreatingLobby) isState()      {}
func (SearchingLobby) isState()     {}
func (WaitingJoin) isState()        {}
func (InLobby) isState()            {}
func (InGame) isState()             {}
func (ChoosingBriscola) isState()   {}
func (WaitingBriscolaAck) isState() {}
func (MyTurn) isState()             {}
func (WaitingMoveAck) isState()     {}

// CanGoBack reports whether a back-to-menu action is legal in s. An active
// hand cannot be abandoned mid-turn, and there is no menu to go back to
// before authentication completes.
func CanGoBack(s State) bool {
	switch s.(type) {
	case LoggedIdle, CreatingLobby, SearchingLobby, WaitingJoin, InLobby:
		return true
	default:
		return false
	}
}
