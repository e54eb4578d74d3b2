// internal/session/effect.go
package session

import "beccaccino/internal/protocol"

// Effect is an action the controller runtime performs after a transition.
// Effects are executed in order; the transition itself stays pure.
type Effect interface{ isEffect() }

// Send writes one message to the server.
type Send struct {
	Msg protocol.Message
}

// ArmTimer starts (or restarts) the turn timer for Seconds. Arming bumps
// the timer generation, invalidating any timer still in flight.
type ArmTimer struct {
	Seconds int
}

// CancelTimer invalidates the running timer without arming a new one.
type CancelTimer struct{}

// RequestConnect asks the transport to (re)establish the connection.
type RequestConnect struct{}

// Terminate stops the controller loop.
type Terminate struct{}

// Presentation effects, one per Presenter method.

type AskUsername struct{}

type ShowMenu struct {
	User protocol.UserID
}

type ShowError struct {
	Code protocol.Code
}

type ShowGames struct {
	Games []protocol.GameID
}

type ShowLobbies struct {
	Lobbies []protocol.LobbySummary
}

type ShowLobby struct {
	Lobby   protocol.LobbyID
	Members []protocol.UserID
}

type ShowGameStarted struct {
	Players []protocol.UserID
}

type PromptBriscola struct {
	Options []string
	Seconds int
}

type PromptTurn struct {
	Hand    []protocol.Card
	Field   []protocol.Card
	Seconds int
}

type ShowInfo struct {
	Text  string
	Field []protocol.Card
}

type ShowPlayed struct {
	User protocol.UserID
	Card protocol.Card
}

type ShowHandWinner struct {
	User protocol.UserID
}

type ShowMatchWinner struct {
	Players []protocol.UserID
}

type ShowGameWinner struct {
	Players []protocol.UserID
}

type ShowBriscolaAccepted struct{}

type ShowTimeExceeded struct{}

type ShowUnknown struct {
	Type string
}

func (Send) isEffect()                 {}
func (ArmTimer) isEffect()             {}
func (CancelTimer) isEffect()          {}
func (RequestConnect) isEffect()       {}
func (Terminate) isEffect()            {}
func (AskUsername) isEffect()          {}
func (ShowMenu) isEffect()             {}
func (ShowError) isEffect()            {}
func (ShowGames) isEffect()            {}
func (ShowLobbies) isEffect()          {}
func (ShowLobby) isEffect()            {}
func (ShowGameStarted) isEffect()      {}
func (PromptBriscola) isEffect()       {}
func (PromptTurn) isEffect()           {}
func (ShowInfo) isEffect()             {}
func (ShowPlayed) isEffect()           {}
func (ShowHandWinner) isEffect()       {}
func (ShowMatchWinner) isEffect()      {}
func (ShowGameWinner) isEffect()       {}
func (ShowBriscolaAccepted) isEffect() {}
func (ShowTimeExceeded) isEffect()     {}
func (ShowUnknown) isEffect()          {}
