// internal/server/match.go
package server

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"beccaccino/internal/games"
	"beccaccino/internal/protocol"
)

type matchPhase int

const (
	phaseBriscola matchPhase = iota
	phasePlay
	phaseDone
)

// Match drives one game for a filled lobby: dealing, the briscola choice,
// turn rotation with server-side timers, trick resolution and the final
// winner announcements. It is the authority on turn advancement; clients
// only report their own timeouts.
type Match struct {
	mu sync.Mutex

	lobby   protocol.LobbyID
	players []protocol.UserID // seat order = join order
	hands   [][]protocol.Card
	field   []protocol.Card
	seats   []int // seat that played each field card
	trump   string
	phase   matchPhase
	turn    int
	tricks  [2]int // seats 0/2 vs seats 1/3

	// turnID increments whenever the turn advances; a timer that fires
	// with a stale turnID is ignored.
	turnID  int
	timer   *time.Timer
	timeout time.Duration

	send      func(user protocol.UserID, msg protocol.Message)
	broadcast func(msg protocol.Message)
	onEnd     func(lobby protocol.LobbyID)
	log       *logrus.Entry
}

func newMatch(lobby protocol.LobbyID, players []protocol.UserID, timeout time.Duration, logger *logrus.Logger) *Match {
	return &Match{
		lobby:   lobby,
		players: players,
		timeout: timeout,
		log:     logger.WithField("lobby", lobby.Seq),
	}
}

// Start deals the hands and prompts the first seat for the briscola.
func (m *Match) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	dealt := games.Deal(rng)
	m.hands = dealt[:]

	m.broadcast(protocol.GameStarted{Lobby: m.lobby, Players: m.players})
	for seat, p := range m.players {
		m.send(p, protocol.Information{Text: "your hand", Field: m.hands[seat]})
	}

	m.phase = phaseBriscola
	m.turn = 0
	m.turnID++
	m.send(m.players[0], protocol.ChooseBriscola{Options: games.Suits, TimeoutSec: int(m.timeout.Seconds())})
	m.armTimerLocked()
	m.log.Info("match started")
}

// HandleBriscola applies a player's trump choice.
func (m *Match) HandleBriscola(user protocol.UserID, suit string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seat := m.seatOf(user)
	if m.phase != phaseBriscola || seat != m.turn {
		m.send(user, protocol.ErrorOccurred{Code: protocol.SelectionNotAvailable})
		return
	}
	if !games.ValidBriscola(suit) {
		m.send(user, protocol.ErrorOccurred{Code: protocol.BriscolaNotValid})
		return
	}

	m.stopTimerLocked()
	m.trump = suit
	m.send(user, protocol.CorrectBriscola{Suit: suit})
	m.broadcast(protocol.Information{Text: fmt.Sprintf("briscola is %s", suit)})

	m.phase = phasePlay
	m.turn = 0
	m.startTurnLocked()
}

// HandlePlay applies a played card.
func (m *Match) HandlePlay(user protocol.UserID, card protocol.Card) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seat := m.seatOf(user)
	if m.phase != phasePlay || seat != m.turn {
		m.send(user, protocol.ErrorOccurred{Code: protocol.SelectionNotAvailable})
		return
	}
	if !games.ContainsCard(m.hands[seat], card) {
		m.send(user, protocol.ErrorOccurred{Code: protocol.CardNotValid})
		return
	}

	m.stopTimerLocked()
	m.playCardLocked(seat, card)
	m.send(user, protocol.Played{User: user, Card: card})
	m.afterPlayLocked(seat, card)
}

// HandleTimeout processes a client's own timeout notification. The server
// timer usually fires first; whichever arrives with the live turnID wins
// and the other is a no-op.
func (m *Match) HandleTimeout(user protocol.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seat := m.seatOf(user)
	if m.phase == phaseDone || seat != m.turn {
		return
	}
	m.stopTimerLocked()
	m.timeoutLocked(seat)
}

func (m *Match) playCardLocked(seat int, card protocol.Card) {
	m.hands[seat] = games.RemoveCard(m.hands[seat], card)
	m.field = append(m.field, card)
	m.seats = append(m.seats, seat)
}

// afterPlayLocked announces the play, resolves a completed trick and hands
// the turn to the next seat.
func (m *Match) afterPlayLocked(seat int, card protocol.Card) {
	played := m.players[seat]
	for _, p := range m.players {
		if p == played {
			continue
		}
		m.send(p, protocol.Information{
			Text:  fmt.Sprintf("%s played %s %d", played.Name, card.Suit, card.Rank),
			Field: m.field,
		})
	}

	if len(m.field) == games.Seats {
		winSeat := m.seats[games.TrickWinner(m.field, m.trump)]
		m.tricks[winSeat%2]++
		m.broadcast(protocol.HandWinner{User: m.players[winSeat]})
		m.field = nil
		m.seats = nil
		m.turn = winSeat

		if len(m.hands[winSeat]) == 0 {
			m.finishLocked()
			return
		}
	} else {
		m.turn = (m.turn + 1) % games.Seats
	}
	m.startTurnLocked()
}

func (m *Match) startTurnLocked() {
	m.turnID++
	p := m.players[m.turn]
	m.send(p, protocol.Turn{
		Hand:       m.hands[m.turn],
		Field:      m.field,
		TimeoutSec: int(m.timeout.Seconds()),
	})
	m.armTimerLocked()
}

// armTimerLocked schedules the turn timer, invalidating any previous one.
// The callback re-checks turnID under the lock so a stale firing is a no-op.
func (m *Match) armTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
	}
	turnID := m.turnID
	m.timer = time.AfterFunc(m.timeout, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.phase == phaseDone || m.turnID != turnID {
			m.log.WithField("turnID", turnID).Debug("stale turn timer fired, ignoring")
			return
		}
		m.timeoutLocked(m.turn)
	})
}

func (m *Match) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// timeoutLocked advances the turn on behalf of a player who ran out of
// time: a random briscola during the choice phase, the first card in hand
// during play.
func (m *Match) timeoutLocked(seat int) {
	timedOut := m.players[seat]
	m.log.WithField("user", timedOut.Name).Info("turn timed out")
	m.broadcast(protocol.Information{Text: fmt.Sprintf("%s ran out of time", timedOut.Name)})

	switch m.phase {
	case phaseBriscola:
		m.trump = games.Suits[rand.Intn(len(games.Suits))]
		m.broadcast(protocol.Information{Text: fmt.Sprintf("briscola is %s", m.trump)})
		m.phase = phasePlay
		m.turn = 0
		m.startTurnLocked()
	case phasePlay:
		card := m.hands[seat][0]
		m.playCardLocked(seat, card)
		m.afterPlayLocked(seat, card)
	}
}

func (m *Match) finishLocked() {
	m.phase = phaseDone
	m.stopTimerLocked()

	winners := m.teamSeats(0)
	if m.tricks[1] > m.tricks[0] {
		winners = m.teamSeats(1)
	}
	m.broadcast(protocol.MatchWinner{Players: winners})
	m.broadcast(protocol.GameWinner{Players: winners})
	m.log.WithField("tricks", m.tricks).Info("match finished")

	if m.onEnd != nil {
		go m.onEnd(m.lobby)
	}
}

func (m *Match) teamSeats(team int) []protocol.UserID {
	var out []protocol.UserID
	for seat, p := range m.players {
		if seat%2 == team {
			out = append(out, p)
		}
	}
	return out
}

func (m *Match) seatOf(user protocol.UserID) int {
	for seat, p := range m.players {
		if p == user {
			return seat
		}
	}
	return -1
}
