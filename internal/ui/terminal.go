// internal/ui/terminal.go

// Package ui renders the session on a terminal with pterm. Interactive
// prompts run on their own goroutines and answer by posting intent events
// back to the session controller.
package ui

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"

	"beccaccino/internal/protocol"
	"beccaccino/internal/session"
)

const (
	menuCreate = "Create a lobby"
	menuSearch = "Search for lobbies"
	menuJoin   = "Join a lobby by id"

	lobbyWait  = "Wait for players"
	lobbyLeave = "Leave the lobby"

	optionBack    = "Back"
	optionRefresh = "Refresh"
)

// Terminal implements session.Presenter. promptMu serializes interactive
// prompts so two of them never fight over stdin.
type Terminal struct {
	post func(session.Event)

	promptMu sync.Mutex

	// Only one lobby prompt may be outstanding; membership updates
	// re-render the panel without stacking another prompt.
	lobbyPromptOpen atomic.Bool
}

var _ session.Presenter = (*Terminal)(nil)

func NewTerminal(post func(session.Event)) *Terminal {
	return &Terminal{post: post}
}

// Banner prints the startup header.
func (t *Terminal) Banner() {
	pterm.DefaultBigText.WithLetters(
		putils.LettersFromStringWithStyle("becca", pterm.FgLightGreen.ToStyle()),
		putils.LettersFromStringWithStyle("ccino", pterm.FgLightYellow.ToStyle()),
	).Render()
	pterm.Println(pterm.LightCyan("A terminal client for the beccaccino card game."))
}

func (t *Terminal) AskUsername() {
	go func() {
		t.promptMu.Lock()
		defer t.promptMu.Unlock()
		name, _ := pterm.DefaultInteractiveTextInput.WithDefaultText("Choose a username").Show()
		t.post(session.UsernameChosen{Name: name})
	}()
}

func (t *Terminal) ShowMenu(user protocol.UserID) {
	go func() {
		t.promptMu.Lock()
		defer t.promptMu.Unlock()
		choice, _ := pterm.DefaultInteractiveSelect.
			WithDefaultText(fmt.Sprintf("What next, %s?", user.Name)).
			WithOptions([]string{menuCreate, menuSearch, menuJoin}).
			Show()
		switch choice {
		case menuCreate:
			t.post(session.CreateLobbyIntent{})
		case menuSearch:
			t.post(session.ListLobbiesIntent{})
		case menuJoin:
			raw, _ := pterm.DefaultInteractiveTextInput.WithDefaultText("Lobby id").Show()
			t.post(session.JoinByIDIntent{Raw: raw})
		}
	}()
}

func (t *Terminal) ShowError(code protocol.Code) {
	pterm.Error.Println(string(code))
}

func (t *Terminal) ShowGames(games []protocol.GameID) {
	go func() {
		t.promptMu.Lock()
		defer t.promptMu.Unlock()
		options := make([]string, 0, len(games)+1)
		for _, g := range games {
			options = append(options, g.Name)
		}
		options = append(options, optionBack)
		choice, _ := pterm.DefaultInteractiveSelect.
			WithDefaultText("Pick a game").
			WithOptions(options).
			Show()
		if choice == optionBack {
			t.post(session.ExitLobbyIntent{})
			return
		}
		t.post(session.GameChosen{Game: protocol.GameID{Name: choice}})
	}()
}

func (t *Terminal) ShowLobbies(lobbies []protocol.LobbySummary) {
	go func() {
		t.promptMu.Lock()
		defer t.promptMu.Unlock()
		options := make([]string, 0, len(lobbies)+2)
		byLabel := make(map[string]protocol.LobbyID, len(lobbies))
		for _, l := range lobbies {
			label := lobbyLabel(l)
			byLabel[label] = l.ID
			options = append(options, label)
		}
		options = append(options, optionRefresh, optionBack)
		choice, _ := pterm.DefaultInteractiveSelect.
			WithDefaultText("Pick a lobby").
			WithOptions(options).
			Show()
		switch choice {
		case optionRefresh:
			t.post(session.ListLobbiesIntent{})
		case optionBack:
			t.post(session.ExitLobbyIntent{})
		default:
			t.post(session.LobbyChosen{Lobby: byLabel[choice]})
		}
	}()
}

func (t *Terminal) ShowLobby(lobby protocol.LobbyID, members []protocol.UserID) {
	box := pterm.DefaultBox.WithLeftPadding(4).WithRightPadding(4).WithTopPadding(1).WithBottomPadding(1)
	body := ""
	for _, m := range members {
		body += pterm.Sprintfln("%s", pterm.LightCyan(m.Name))
	}
	title := pterm.LightYellow(fmt.Sprintf("|LOBBY #%d %s|", lobby.Seq, lobby.Game.Name))
	pterm.Println(box.WithTitle(title).WithTitleTopCenter().Sprint(body))

	if !t.lobbyPromptOpen.CompareAndSwap(false, true) {
		return
	}
	go func() {
		t.promptMu.Lock()
		defer t.promptMu.Unlock()
		defer t.lobbyPromptOpen.Store(false)
		choice, _ := pterm.DefaultInteractiveSelect.
			WithDefaultText("Waiting for the lobby to fill").
			WithOptions([]string{lobbyWait, lobbyLeave}).
			Show()
		if choice == lobbyLeave {
			t.post(session.ExitLobbyIntent{})
		}
	}()
}

func (t *Terminal) ShowGameStarted(players []protocol.UserID) {
	names := ""
	for i, p := range players {
		if i > 0 {
			names += ", "
		}
		names += p.Name
	}
	pterm.Success.Printfln("The game begins! Players: %s", names)
}

func (t *Terminal) PromptBriscola(options []string, seconds int) {
	go func() {
		t.promptMu.Lock()
		defer t.promptMu.Unlock()
		choice, _ := pterm.DefaultInteractiveSelect.
			WithDefaultText(fmt.Sprintf("Choose the briscola (%d seconds)", seconds)).
			WithOptions(options).
			Show()
		t.post(session.BriscolaChosen{Suit: choice})
	}()
}

func (t *Terminal) PromptTurn(hand, field []protocol.Card, seconds int) {
	renderField(field)
	go func() {
		t.promptMu.Lock()
		defer t.promptMu.Unlock()
		options := make([]string, 0, len(hand))
		byLabel := make(map[string]protocol.Card, len(hand))
		for _, c := range hand {
			label := FormatCard(c)
			byLabel[label] = c
			options = append(options, label)
		}
		choice, _ := pterm.DefaultInteractiveSelect.
			WithDefaultText(fmt.Sprintf("Your turn, pick a card (%d seconds)", seconds)).
			WithOptions(options).
			Show()
		t.post(session.CardChosen{Card: byLabel[choice]})
	}()
}

func (t *Terminal) ShowInfo(text string, field []protocol.Card) {
	pterm.Info.Println(text)
	renderField(field)
}

func (t *Terminal) ShowPlayed(user protocol.UserID, card protocol.Card) {
	pterm.Info.Printfln("%s played %s", pterm.LightCyan(user.Name), FormatCard(card))
}

func (t *Terminal) ShowHandWinner(user protocol.UserID) {
	pterm.Success.Printfln("%s takes the trick", pterm.LightCyan(user.Name))
}

func (t *Terminal) ShowMatchWinner(players []protocol.UserID) {
	t.winnerPanel("|MATCH|", players)
}

func (t *Terminal) ShowGameWinner(players []protocol.UserID) {
	t.winnerPanel("|GAME|", players)
}

func (t *Terminal) winnerPanel(title string, players []protocol.UserID) {
	box := pterm.DefaultBox.WithLeftPadding(4).WithRightPadding(4).WithTopPadding(1).WithBottomPadding(1)
	body := ""
	for _, p := range players {
		body += pterm.Sprintfln("%s", pterm.LightGreen(p.Name))
	}
	pterm.Println(box.WithTitle(pterm.LightGreen(title + " WINNERS")).WithTitleTopCenter().Sprint(body))
}

func (t *Terminal) ShowBriscolaAccepted() {
	pterm.Success.Println("Briscola accepted")
}

func (t *Terminal) ShowTimeExceeded() {
	pterm.Warning.Println("Time is up, the server will move for you")
}

func (t *Terminal) ShowUnknown(messageType string) {
	pterm.Warning.Printfln("Ignoring unexpected message %q", messageType)
}

func renderField(field []protocol.Card) {
	if len(field) == 0 {
		return
	}
	body := ""
	for _, c := range field {
		body += " " + pterm.BgGreen.Sprint(FormatCard(c)) + " "
	}
	box := pterm.DefaultBox.WithLeftPadding(2).WithRightPadding(2)
	pterm.Println(box.WithTitle("On the table").WithTitleTopLeft().Sprint(body))
}

// lobbyLabel renders one selectable line of the lobby listing.
func lobbyLabel(l protocol.LobbySummary) string {
	return fmt.Sprintf("#%d %s by %s (%d players)", l.ID.Seq, l.ID.Game.Name, l.ID.Owner, len(l.Members))
}

// FormatCard renders a card as "<rank> of <suit>".
func FormatCard(c protocol.Card) string {
	return strconv.Itoa(c.Rank) + " of " + c.Suit
}
