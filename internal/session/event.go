// internal/session/event.go
package session

import "beccaccino/internal/protocol"

// Event is anything that can move the session state machine: transport
// lifecycle, decoded server messages, user intents, and timer expiry.
type Event interface{ isEvent() }

// Transport lifecycle.

type Connected struct{}

type ConnectionFailed struct{}

type ConnectionLost struct{}

// SendFailed reports that the transport could not write Msg.
type SendFailed struct {
	Msg protocol.Message
}

// ServerMessage carries one decoded message from the server.
type ServerMessage struct {
	Msg protocol.Message
}

// User intents, posted by the presentation layer.

type UsernameChosen struct {
	Name string
}

type CreateLobbyIntent struct{}

type ListLobbiesIntent struct{}

// JoinByIDIntent carries the raw lobby id text as typed; parsing happens
// in the transition so a bad id never reaches the wire.
type JoinByIDIntent struct {
	Raw string
}

type GameChosen struct {
	Game protocol.GameID
}

type LobbyChosen struct {
	Lobby protocol.LobbyID
}

type ExitLobbyIntent struct{}

type BriscolaChosen struct {
	Suit string
}

type CardChosen struct {
	Card protocol.Card
}

// TimerExpired is posted by the controller's own timer. Gen is compared
// against the current timer generation; stale firings are dropped before
// they reach the transition function.
type TimerExpired struct {
	Gen uint64
}

func (Connected) isEvent()         {}
func (ConnectionFailed) isEvent()  {}
func (ConnectionLost) isEvent()    {}
func (SendFailed) isEvent()        {}
func (ServerMessage) isEvent()     {}
func (UsernameChosen) isEvent()    {}
func (CreateLobbyIntent) isEvent() {}
func (ListLobbiesIntent) isEvent() {}
func (JoinByIDIntent) isEvent()    {}
func (GameChosen) isEvent()        {}
func (LobbyChosen) isEvent()       {}
func (ExitLobbyIntent) isEvent()   {}
func (BriscolaChosen) isEvent()    {}
func (CardChosen) isEvent()        {}
func (TimerExpired) isEvent()      {}
