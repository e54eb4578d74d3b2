// internal/session/transition.go
package session

import (
	"strconv"
	"strings"

	"beccaccino/internal/protocol"
)

// Transition computes the next state and the effects to run for one event.
// It is a pure function; the controller runtime owns timers, resends and
// the transport.
func Transition(s State, e Event) (State, []Effect) {
	// Connection teardown wins over everything state-specific. The timer
	// is cancelled so a match timer cannot fire into a dead session.
	switch e.(type) {
	case ConnectionLost:
		return Connecting{}, []Effect{CancelTimer{}, ShowError{Code: protocol.ConnectionLost}, RequestConnect{}}
	case ConnectionFailed:
		return Connecting{}, []Effect{ShowError{Code: protocol.CannotConnect}, RequestConnect{}}
	}
	if sm, ok := e.(ServerMessage); ok {
		if err, ok := sm.Msg.(protocol.ErrorOccurred); ok && err.Code == protocol.ConnectionLost {
			return Connecting{}, []Effect{CancelTimer{}, ShowError{Code: protocol.ConnectionLost}, RequestConnect{}}
		}
	}

	switch st := s.(type) {
	case Connecting:
		return connecting(st, e)
	case Authenticating:
		return authenticating(st, e)
	case LoggedIdle:
		return loggedIdle(st, e)
	case CreatingLobby:
		return creatingLobby(st, e)
	case SearchingLobby:
		return searchingLobby(st, e)
	case WaitingJoin:
		return waitingJoin(st, e)
	case InLobby:
		return inLobby(st, e)
	case InGame:
		return inGame(st, e)
	case ChoosingBriscola:
		return choosingBriscola(st, e)
	case WaitingBriscolaAck:
		return waitingBriscolaAck(st, e)
	case MyTurn:
		return myTurn(st, e)
	case WaitingMoveAck:
		return waitingMoveAck(st, e)
	}
	return s, nil
}

func connecting(s Connecting, e Event) (State, []Effect) {
	if _, ok := e.(Connected); ok {
		return Authenticating{}, []Effect{AskUsername{}}
	}
	return fallback(s, e)
}

func authenticating(s Authenticating, e Event) (State, []Effect) {
	switch ev := e.(type) {
	case UsernameChosen:
		name := strings.TrimSpace(ev.Name)
		if name == "" {
			return s, []Effect{AskUsername{}}
		}
		return s, []Effect{Send{Msg: protocol.LogIn{Username: name}}}
	case ServerMessage:
		switch msg := ev.Msg.(type) {
		case protocol.Logged:
			return LoggedIdle{User: msg.User}, []Effect{ShowMenu{User: msg.User}}
		case protocol.ErrorOccurred:
			// Name taken or rejected: surface it and ask again.
			return s, []Effect{ShowError{Code: msg.Code}, AskUsername{}}
		}
	}
	return fallback(s, e)
}

func loggedIdle(s LoggedIdle, e Event) (State, []Effect) {
	switch ev := e.(type) {
	case CreateLobbyIntent:
		return CreatingLobby{User: s.User}, []Effect{Send{Msg: protocol.RetrieveAvailableGames{}}}
	case ListLobbiesIntent:
		return SearchingLobby{User: s.User}, []Effect{Send{Msg: protocol.RetrieveAvailableLobbies{}}}
	case JoinByIDIntent:
		seq, err := strconv.Atoi(strings.TrimSpace(ev.Raw))
		if err != nil || seq <= 0 {
			// Never send a request we already know is malformed.
			return s, []Effect{ShowError{Code: protocol.SelectionNotAvailable}, ShowMenu{User: s.User}}
		}
		return WaitingJoin{User: s.User}, []Effect{Send{Msg: protocol.JoinLobby{Lobby: protocol.LobbyID{Seq: seq}}}}
	case ServerMessage:
		if msg, ok := ev.Msg.(protocol.ErrorOccurred); ok {
			return s, []Effect{ShowError{Code: msg.Code}, ShowMenu{User: s.User}}
		}
	}
	return fallback(s, e)
}

func creatingLobby(s CreatingLobby, e Event) (State, []Effect) {
	switch ev := e.(type) {
	case ServerMessage:
		switch msg := ev.Msg.(type) {
		case protocol.AvailableGames:
			s.Games = msg.Games
			return s, []Effect{ShowGames{Games: msg.Games}}
		case protocol.LobbyCreated:
			next := InLobby{User: s.User, Lobby: msg.Lobby, Members: []protocol.UserID{s.User}}
			return next, []Effect{ShowLobby{Lobby: next.Lobby, Members: next.Members}}
		case protocol.ErrorOccurred:
			return LoggedIdle{User: s.User}, []Effect{ShowError{Code: msg.Code}, ShowMenu{User: s.User}}
		}
	case GameChosen:
		return s, []Effect{Send{Msg: protocol.CreateLobby{Game: ev.Game}}}
	case ExitLobbyIntent:
		return LoggedIdle{User: s.User}, []Effect{ShowMenu{User: s.User}}
	}
	return fallback(s, e)
}

func searchingLobby(s SearchingLobby, e Event) (State, []Effect) {
	switch ev := e.(type) {
	case ServerMessage:
		switch msg := ev.Msg.(type) {
		case protocol.AvailableLobbies:
			return s, []Effect{ShowLobbies{Lobbies: msg.Lobbies}}
		case protocol.ErrorOccurred:
			return LoggedIdle{User: s.User}, []Effect{ShowError{Code: msg.Code}, ShowMenu{User: s.User}}
		}
	case LobbyChosen:
		return WaitingJoin{User: s.User}, []Effect{Send{Msg: protocol.JoinLobby{Lobby: ev.Lobby}}}
	case ExitLobbyIntent:
		return LoggedIdle{User: s.User}, []Effect{ShowMenu{User: s.User}}
	}
	return fallback(s, e)
}

func waitingJoin(s WaitingJoin, e Event) (State, []Effect) {
	if ev, ok := e.(ServerMessage); ok {
		switch msg := ev.Msg.(type) {
		case protocol.LobbyJoined:
			next := InLobby{User: s.User, Lobby: msg.Lobby, Members: msg.Members}
			return next, []Effect{ShowLobby{Lobby: next.Lobby, Members: next.Members}}
		case protocol.ErrorOccurred:
			// Full, gone, or already a member elsewhere: back to the menu.
			return LoggedIdle{User: s.User}, []Effect{ShowError{Code: msg.Code}, ShowMenu{User: s.User}}
		}
	}
	return fallback(s, e)
}

func inLobby(s InLobby, e Event) (State, []Effect) {
	switch ev := e.(type) {
	case ExitLobbyIntent:
		return s, []Effect{Send{Msg: protocol.OutOfLobby{Lobby: s.Lobby}}}
	case ServerMessage:
		switch msg := ev.Msg.(type) {
		case protocol.LobbyUpdate:
			if msg.Lobby.Seq != s.Lobby.Seq {
				return s, nil
			}
			s.Members = msg.Members
			return s, []Effect{ShowLobby{Lobby: s.Lobby, Members: s.Members}}
		case protocol.OutOfLobby:
			if msg.Lobby.Seq != s.Lobby.Seq {
				return s, nil
			}
			return LoggedIdle{User: s.User}, []Effect{ShowMenu{User: s.User}}
		case protocol.GameStarted:
			if msg.Lobby.Seq != s.Lobby.Seq {
				return s, nil
			}
			return InGame{User: s.User, Lobby: s.Lobby}, []Effect{ShowGameStarted{Players: msg.Players}}
		case protocol.ErrorOccurred:
			return s, []Effect{ShowError{Code: msg.Code}}
		}
	}
	return fallback(s, e)
}

// gamePlayEvent handles the server messages common to every in-match state.
// The server is authoritative: a Turn or ChooseBriscola addressed to us is
// honored even while a previous request is still unacknowledged.
func gamePlayEvent(user protocol.UserID, lobby protocol.LobbyID, msg protocol.Message) (State, []Effect, bool) {
	switch m := msg.(type) {
	case protocol.ChooseBriscola:
		next := ChoosingBriscola{User: user, Lobby: lobby, Options: m.Options, TimeoutSec: m.TimeoutSec}
		return next, []Effect{PromptBriscola{Options: m.Options, Seconds: m.TimeoutSec}, ArmTimer{Seconds: m.TimeoutSec}}, true
	case protocol.Turn:
		next := MyTurn{User: user, Lobby: lobby, Hand: m.Hand, Field: m.Field, TimeoutSec: m.TimeoutSec}
		return next, []Effect{PromptTurn{Hand: m.Hand, Field: m.Field, Seconds: m.TimeoutSec}, ArmTimer{Seconds: m.TimeoutSec}}, true
	case protocol.Information:
		return nil, []Effect{ShowInfo{Text: m.Text, Field: m.Field}}, true
	case protocol.Played:
		return nil, []Effect{ShowPlayed{User: m.User, Card: m.Card}}, true
	case protocol.HandWinner:
		return nil, []Effect{ShowHandWinner{User: m.User}}, true
	case protocol.MatchWinner:
		return nil, []Effect{ShowMatchWinner{Players: m.Players}}, true
	case protocol.GameWinner:
		return nil, []Effect{ShowGameWinner{Players: m.Players}}, true
	case protocol.OutOfLobby:
		if m.Lobby.Seq == lobby.Seq {
			return LoggedIdle{User: user}, []Effect{CancelTimer{}, ShowMenu{User: user}}, true
		}
		return nil, nil, true
	}
	return nil, nil, false
}

func inGame(s InGame, e Event) (State, []Effect) {
	if ev, ok := e.(ServerMessage); ok {
		if next, effects, handled := gamePlayEvent(s.User, s.Lobby, ev.Msg); handled {
			if next == nil {
				return s, effects
			}
			return next, effects
		}
		if msg, ok := ev.Msg.(protocol.ErrorOccurred); ok {
			return s, []Effect{ShowError{Code: msg.Code}}
		}
	}
	return fallback(s, e)
}

func choosingBriscola(s ChoosingBriscola, e Event) (State, []Effect) {
	switch ev := e.(type) {
	case BriscolaChosen:
		next := WaitingBriscolaAck{User: s.User, Lobby: s.Lobby, Options: s.Options, TimeoutSec: s.TimeoutSec}
		return next, []Effect{CancelTimer{}, Send{Msg: protocol.Briscola{Suit: ev.Suit}}}
	case TimerExpired:
		// The deadline passed locally. Tell the server once and wait for
		// its authoritative resolution; the timer is not re-armed.
		return InGame{User: s.User, Lobby: s.Lobby}, []Effect{ShowTimeExceeded{}, Send{Msg: protocol.TimeoutExceeded{}}}
	case ServerMessage:
		if next, effects, handled := gamePlayEvent(s.User, s.Lobby, ev.Msg); handled {
			if next == nil {
				return s, effects
			}
			return next, effects
		}
		if msg, ok := ev.Msg.(protocol.ErrorOccurred); ok {
			return s, []Effect{ShowError{Code: msg.Code}}
		}
	}
	return fallback(s, e)
}

func waitingBriscolaAck(s WaitingBriscolaAck, e Event) (State, []Effect) {
	if ev, ok := e.(ServerMessage); ok {
		switch msg := ev.Msg.(type) {
		case protocol.CorrectBriscola:
			return InGame{User: s.User, Lobby: s.Lobby}, []Effect{ShowBriscolaAccepted{}}
		case protocol.ErrorOccurred:
			// Rejected choice: prompt again under a fresh timer.
			next := ChoosingBriscola{User: s.User, Lobby: s.Lobby, Options: s.Options, TimeoutSec: s.TimeoutSec}
			return next, []Effect{ShowError{Code: msg.Code}, PromptBriscola{Options: s.Options, Seconds: s.TimeoutSec}, ArmTimer{Seconds: s.TimeoutSec}}
		}
		if next, effects, handled := gamePlayEvent(s.User, s.Lobby, ev.Msg); handled {
			if next == nil {
				return s, effects
			}
			return next, effects
		}
	}
	return fallback(s, e)
}

func myTurn(s MyTurn, e Event) (State, []Effect) {
	switch ev := e.(type) {
	case CardChosen:
		next := WaitingMoveAck{User: s.User, Lobby: s.Lobby, Hand: s.Hand, Field: s.Field, TimeoutSec: s.TimeoutSec}
		return next, []Effect{CancelTimer{}, Send{Msg: protocol.Play{Card: ev.Card}}}
	case TimerExpired:
		return InGame{User: s.User, Lobby: s.Lobby}, []Effect{ShowTimeExceeded{}, Send{Msg: protocol.TimeoutExceeded{}}}
	case ServerMessage:
		if next, effects, handled := gamePlayEvent(s.User, s.Lobby, ev.Msg); handled {
			if next == nil {
				return s, effects
			}
			return next, effects
		}
		if msg, ok := ev.Msg.(protocol.ErrorOccurred); ok {
			return s, []Effect{ShowError{Code: msg.Code}}
		}
	}
	return fallback(s, e)
}

func waitingMoveAck(s WaitingMoveAck, e Event) (State, []Effect) {
	if ev, ok := e.(ServerMessage); ok {
		switch msg := ev.Msg.(type) {
		case protocol.Played:
			if msg.User.Seq == s.User.Seq {
				return InGame{User: s.User, Lobby: s.Lobby}, []Effect{ShowPlayed{User: msg.User, Card: msg.Card}}
			}
			return s, []Effect{ShowPlayed{User: msg.User, Card: msg.Card}}
		case protocol.ErrorOccurred:
			next := MyTurn{User: s.User, Lobby: s.Lobby, Hand: s.Hand, Field: s.Field, TimeoutSec: s.TimeoutSec}
			return next, []Effect{ShowError{Code: msg.Code}, PromptTurn{Hand: s.Hand, Field: s.Field, Seconds: s.TimeoutSec}, ArmTimer{Seconds: s.TimeoutSec}}
		}
		if next, effects, handled := gamePlayEvent(s.User, s.Lobby, ev.Msg); handled {
			if next == nil {
				return s, effects
			}
			return next, effects
		}
	}
	return fallback(s, e)
}

// fallback covers events no state-specific rule claims: unknown envelopes
// are surfaced, stray errors are shown, everything else is ignored.
func fallback(s State, e Event) (State, []Effect) {
	if ev, ok := e.(ServerMessage); ok {
		switch msg := ev.Msg.(type) {
		case protocol.Unknown:
			return s, []Effect{ShowUnknown{Type: msg.Type}}
		case protocol.ErrorOccurred:
			return s, []Effect{ShowError{Code: msg.Code}}
		}
	}
	return s, nil
}
