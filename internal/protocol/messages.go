// internal/protocol/messages.go
package protocol

import (
	"encoding/json"
	"fmt"
)

// UserID identifies one active login. Seq disambiguates repeated usernames
// across reconnects within a single server lifetime.
type UserID struct {
	Seq  int    `json:"seq"`
	Name string `json:"name"`
}

// GameID names a game definition known to the rule catalog.
type GameID struct {
	Name string `json:"name"`
}

// LobbyID identifies a lobby. Seq is allocated by the registry and is
// strictly increasing for the life of the process.
type LobbyID struct {
	Seq   int    `json:"seq"`
	Owner string `json:"owner"`
	Game  GameID `json:"game"`
}

// Card is an opaque suit/rank pair; its semantics belong to the rule
// validator.
type Card struct {
	Suit string `json:"suit"`
	Rank int    `json:"rank"`
}

// LobbySummary pairs a lobby with its current membership for listings.
type LobbySummary struct {
	ID      LobbyID  `json:"id"`
	Members []UserID `json:"members"`
}

// Message is the closed sum of every envelope exchanged over the transport.
// Each state of the session controller switches exhaustively over these
// variants, so adding a message type is a compile-visible change.
type Message interface{ isMessage() }

// --- client -> server requests ---

type LogIn struct {
	Username string `json:"username"`
	// Token, when present, lets the server log out the identity of a
	// half-dead previous session before accepting this one.
	Token string `json:"token,omitempty"`
}

type LogOut struct {
	Username string `json:"username"`
}

type RetrieveAvailableGames struct{}

type CreateLobby struct {
	Game GameID `json:"game"`
}

type RetrieveAvailableLobbies struct {
	Game  string `json:"game,omitempty"`
	Owner string `json:"owner,omitempty"`
}

type JoinLobby struct {
	Lobby LobbyID `json:"lobby"`
}

// OutOfLobby doubles as the exit request, its echo to the leaving user, and
// the stale broadcast a client may observe for a lobby it already left.
type OutOfLobby struct {
	Lobby LobbyID `json:"lobby"`
}

type Briscola struct {
	Suit string `json:"suit"`
}

type Play struct {
	Card Card `json:"card"`
}

type TimeoutExceeded struct{}

// --- server -> client replies and broadcasts ---

type Logged struct {
	User  UserID `json:"user"`
	Token string `json:"token,omitempty"`
}

type AvailableGames struct {
	Games []GameID `json:"games"`
}

type LobbyCreated struct {
	Lobby   LobbyID  `json:"lobby"`
	Members []UserID `json:"members"`
}

type AvailableLobbies struct {
	Lobbies []LobbySummary `json:"lobbies"`
}

type LobbyJoined struct {
	Lobby   LobbyID  `json:"lobby"`
	Members []UserID `json:"members"`
}

type LobbyUpdate struct {
	Lobby   LobbyID  `json:"lobby"`
	Members []UserID `json:"members"`
}

type GameStarted struct {
	Lobby   LobbyID  `json:"lobby"`
	Players []UserID `json:"players"`
}

type ChooseBriscola struct {
	Options    []string `json:"options"`
	TimeoutSec int      `json:"timeoutSec"`
}

type CorrectBriscola struct {
	Suit string `json:"suit"`
}

type Turn struct {
	Hand       []Card `json:"hand"`
	Field      []Card `json:"field"`
	TimeoutSec int    `json:"timeoutSec"`
}

type Played struct {
	User UserID `json:"user"`
	Card Card   `json:"card"`
}

type Information struct {
	Text  string `json:"text"`
	Field []Card `json:"field,omitempty"`
}

type HandWinner struct {
	User UserID `json:"user"`
}

type MatchWinner struct {
	Players []UserID `json:"players"`
}

type GameWinner struct {
	Players []UserID `json:"players"`
}

// ErrorOccurred reports a failure code. Failed carries the undeliverable
// message for MESSAGE_SENDING_FAILED; it is produced by the client
// transport adapter and never crosses the wire.
type ErrorOccurred struct {
	Code   Code    `json:"code"`
	Failed Message `json:"-"`
}

// Unknown stands in for an envelope whose type is not in the registry.
// It is surfaced to the presentation layer rather than silently dropped.
type Unknown struct {
	Type string `json:"-"`
}

func (LogIn) isMessage()                    {}
func (LogOut) isMessage()                   {}
func (RetrieveAvailableGames) isMessage()   {}
func (CreateLobby) isMessage()              {}
func (RetrieveAvailableLobbies) isMessage() {}
func (JoinLobby) isMessage()                {}
func (OutOfLobby) isMessage()               {}
func (Briscola) isMessage()                 {}
func (Play) isMessage()                     {}
func (TimeoutExceeded) isMessage()          {}
func (Logged) isMessage()                   {}
func (AvailableGames) isMessage()           {}
func (LobbyCreated) isMessage()             {}
func (AvailableLobbies) isMessage()         {}
func (LobbyJoined) isMessage()              {}
func (LobbyUpdate) isMessage()              {}
func (GameStarted) isMessage()              {}
func (ChooseBriscola) isMessage()           {}
func (CorrectBriscola) isMessage()          {}
func (Turn) isMessage()                     {}
func (Played) isMessage()                   {}
func (Information) isMessage()              {}
func (HandWinner) isMessage()               {}
func (MatchWinner) isMessage()              {}
func (GameWinner) isMessage()               {}
func (ErrorOccurred) isMessage()            {}
func (Unknown) isMessage()                  {}

// envelope is the wire frame: a type tag plus the message body.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	typeLogIn            = "login"
	typeLogOut           = "logout"
	typeGamesRequest     = "games_request"
	typeCreateLobby      = "create_lobby"
	typeLobbiesRequest   = "lobbies_request"
	typeJoinLobby        = "join_lobby"
	typeOutOfLobby       = "out_of_lobby"
	typeBriscola         = "briscola"
	typePlay             = "play"
	typeTimeoutExceeded  = "timeout_exceeded"
	typeLogged           = "logged"
	typeAvailableGames   = "available_games"
	typeLobbyCreated     = "lobby_created"
	typeAvailableLobbies = "available_lobbies"
	typeLobbyJoined      = "lobby_joined"
	typeLobbyUpdate      = "lobby_update"
	typeGameStarted      = "game_started"
	typeChooseBriscola   = "choose_briscola"
	typeCorrectBriscola  = "correct_briscola"
	typeTurn             = "turn"
	typePlayed           = "played"
	typeInformation      = "information"
	typeHandWinner       = "hand_winner"
	typeMatchWinner      = "match_winner"
	typeGameWinner       = "game_winner"
	typeError            = "error"
)

func typeOf(m Message) (string, error) {
	switch m.(type) {
	case LogIn:
		return typeLogIn, nil
	case LogOut:
		return typeLogOut, nil
	case RetrieveAvailableGames:
		return typeGamesRequest, nil
	case CreateLobby:
		return typeCreateLobby, nil
	case RetrieveAvailableLobbies:
		return typeLobbiesRequest, nil
	case JoinLobby:
		return typeJoinLobby, nil
	case OutOfLobby:
		return typeOutOfLobby, nil
	case Briscola:
		return typeBriscola, nil
	case Play:
		return typePlay, nil
	case TimeoutExceeded:
		return typeTimeoutExceeded, nil
	case Logged:
		return typeLogged, nil
	case AvailableGames:
		return typeAvailableGames, nil
	case LobbyCreated:
		return typeLobbyCreated, nil
	case AvailableLobbies:
		return typeAvailableLobbies, nil
	case LobbyJoined:
		return typeLobbyJoined, nil
	case LobbyUpdate:
		return typeLobbyUpdate, nil
	case GameStarted:
		return typeGameStarted, nil
	case ChooseBriscola:
		return typeChooseBriscola, nil
	case CorrectBriscola:
		return typeCorrectBriscola, nil
	case Turn:
		return typeTurn, nil
	case Played:
		return typePlayed, nil
	case Information:
		return typeInformation, nil
	case HandWinner:
		return typeHandWinner, nil
	case MatchWinner:
		return typeMatchWinner, nil
	case GameWinner:
		return typeGameWinner, nil
	case ErrorOccurred:
		return typeError, nil
	default:
		return "", fmt.Errorf("protocol: message %T is not encodable", m)
	}
}

// Encode frames m as a JSON envelope.
func Encode(m Message) ([]byte, error) {
	typ, err := typeOf(m)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %s: %w", typ, err)
	}
	return json.Marshal(envelope{Type: typ, Data: data})
}

// Decode parses a JSON envelope into its concrete message. Envelopes whose
// type tag is not registered decode to Unknown so the receiver can surface
// them instead of failing the connection.
func Decode(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("protocol: bad envelope: %w", err)
	}

	var (
		m   Message
		err error
	)
	switch env.Type {
	case typeLogIn:
		m, err = unmarshalAs[LogIn](env.Data)
	case typeLogOut:
		m, err = unmarshalAs[LogOut](env.Data)
	case typeGamesRequest:
		m, err = unmarshalAs[RetrieveAvailableGames](env.Data)
	case typeCreateLobby:
		m, err = unmarshalAs[CreateLobby](env.Data)
	case typeLobbiesRequest:
		m, err = unmarshalAs[RetrieveAvailableLobbies](env.Data)
	case typeJoinLobby:
		m, err = unmarshalAs[JoinLobby](env.Data)
	case typeOutOfLobby:
		m, err = unmarshalAs[OutOfLobby](env.Data)
	case typeBriscola:
		m, err = unmarshalAs[Briscola](env.Data)
	case typePlay:
		m, err = unmarshalAs[Play](env.Data)
	case typeTimeoutExceeded:
		m, err = unmarshalAs[TimeoutExceeded](env.Data)
	case typeLogged:
		m, err = unmarshalAs[Logged](env.Data)
	case typeAvailableGames:
		m, err = unmarshalAs[AvailableGames](env.Data)
	case typeLobbyCreated:
		m, err = unmarshalAs[LobbyCreated](env.Data)
	case typeAvailableLobbies:
		m, err = unmarshalAs[AvailableLobbies](env.Data)
	case typeLobbyJoined:
		m, err = unmarshalAs[LobbyJoined](env.Data)
	case typeLobbyUpdate:
		m, err = unmarshalAs[LobbyUpdate](env.Data)
	case typeGameStarted:
		m, err = unmarshalAs[GameStarted](env.Data)
	case typeChooseBriscola:
		m, err = unmarshalAs[ChooseBriscola](env.Data)
	case typeCorrectBriscola:
		m, err = unmarshalAs[CorrectBriscola](env.Data)
	case typeTurn:
		m, err = unmarshalAs[Turn](env.Data)
	case typePlayed:
		m, err = unmarshalAs[Played](env.Data)
	case typeInformation:
		m, err = unmarshalAs[Information](env.Data)
	case typeHandWinner:
		m, err = unmarshalAs[HandWinner](env.Data)
	case typeMatchWinner:
		m, err = unmarshalAs[MatchWinner](env.Data)
	case typeGameWinner:
		m, err = unmarshalAs[GameWinner](env.Data)
	case typeError:
		m, err = unmarshalAs[ErrorOccurred](env.Data)
	default:
		return Unknown{Type: env.Type}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("protocol: decode %s: %w", env.Type, err)
	}
	return m, nil
}

func unmarshalAs[T Message](data json.RawMessage) (Message, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
