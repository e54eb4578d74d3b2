// internal/protocol/errors.go
package protocol

// Code is the closed set of recoverable failure reasons exchanged between
// client and server. Codes are matched structurally, never by parsing an
// error's textual form.
type Code string

const (
	CannotConnect         Code = "CANNOT_CONNECT"
	ConnectionLost        Code = "CONNECTION_LOST"
	MessageSendingFailed  Code = "MESSAGE_SENDING_FAILED"
	UserAlreadyPresent    Code = "USER_ALREADY_PRESENT"
	UserNotLogged         Code = "USER_NOT_LOGGED"
	GameNotExisting       Code = "GAME_NOT_EXISTING"
	LobbyNotExisting      Code = "LOBBY_NOT_EXISTING"
	UserAlreadyInALobby   Code = "USER_ALREADY_IN_A_LOBBY"
	LobbyFull             Code = "LOBBY_FULL"
	SelectionNotAvailable Code = "SELECTION_NOT_AVAILABLE"
	BriscolaNotValid      Code = "BRISCOLA_NOT_VALID"
	CardNotValid          Code = "CARD_NOT_VALID"
)

// Error wraps a Code as a Go error so server-side call sites can return it
// through normal error plumbing and still hand the structured code back to
// the wire layer.
type Error struct {
	Code Code
}

func (e *Error) Error() string { return string(e.Code) }

// Errf builds a protocol error for the given code.
func Errf(code Code) *Error { return &Error{Code: code} }
