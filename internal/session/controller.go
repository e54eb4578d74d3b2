// internal/session/controller.go
package session

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"beccaccino/internal/protocol"
)

// Transport is the outbound half of the wire connection. Connect and Send
// must not block the caller; failures come back as events through Post.
type Transport interface {
	Connect()
	Send(protocol.Message)
}

// Presenter renders session output. Implementations run prompts on their
// own goroutines and answer by posting intent events to the controller.
type Presenter interface {
	AskUsername()
	ShowMenu(user protocol.UserID)
	ShowError(code protocol.Code)
	ShowGames(games []protocol.GameID)
	ShowLobbies(lobbies []protocol.LobbySummary)
	ShowLobby(lobby protocol.LobbyID, members []protocol.UserID)
	ShowGameStarted(players []protocol.UserID)
	PromptBriscola(options []string, seconds int)
	PromptTurn(hand, field []protocol.Card, seconds int)
	ShowInfo(text string, field []protocol.Card)
	ShowPlayed(user protocol.UserID, card protocol.Card)
	ShowHandWinner(user protocol.UserID)
	ShowMatchWinner(players []protocol.UserID)
	ShowGameWinner(players []protocol.UserID)
	ShowBriscolaAccepted()
	ShowTimeExceeded()
	ShowUnknown(messageType string)
}

// Controller drives the session state machine. All transitions happen on
// the Run goroutine; transport, presenter and timer callbacks feed it
// through Post.
type Controller struct {
	events    chan Event
	transport Transport
	presenter Presenter
	log       *logrus.Entry

	state     State
	canGoBack atomic.Bool

	timerMu  sync.Mutex
	timerGen uint64
	timer    *time.Timer

	token string

	// pending is a message the transport failed to write, held until the
	// transport reports ready again. It is re-sent exactly once; a second
	// failure of the same message terminates the session instead of
	// looping.
	pending     protocol.Message
	pendingSent bool
}

func New(transport Transport, presenter Presenter, logger *logrus.Logger) *Controller {
	return &Controller{
		events:    make(chan Event, 64),
		transport: transport,
		presenter: presenter,
		log:       logger.WithField("component", "session"),
		state:     Connecting{},
	}
}

// Post hands an event to the controller. It never blocks; if the loop has
// fallen far enough behind to fill the buffer the event is dropped.
func (c *Controller) Post(e Event) {
	select {
	case c.events <- e:
	default:
		c.log.WithField("event", reflect.TypeOf(e).Name()).Warn("event queue full, dropping")
	}
}

// CanGoBack reports whether the current state allows returning to the
// menu. Safe to call from the presenter goroutine.
func (c *Controller) CanGoBack() bool {
	return c.canGoBack.Load()
}

// Run owns the state machine until ctx is cancelled or a Terminate effect
// fires. It starts by asking the transport to connect.
func (c *Controller) Run(ctx context.Context) {
	c.canGoBack.Store(CanGoBack(c.state))
	c.transport.Connect()
	defer c.stopTimer()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-c.events:
			if !c.step(e) {
				return
			}
		}
	}
}

func (c *Controller) step(e Event) bool {
	if te, ok := e.(TimerExpired); ok && !c.timerLive(te.Gen) {
		c.log.Debug("stale timer fire ignored")
		return true
	}
	if sf, ok := e.(SendFailed); ok {
		return c.handleSendFailed(sf)
	}

	if sm, ok := e.(ServerMessage); ok {
		// Traffic from the server proves the wire works; a held message
		// that never got its resend is moot by now.
		c.pending = nil
		c.pendingSent = false
		if logged, ok := sm.Msg.(protocol.Logged); ok {
			c.token = logged.Token
		}
	}

	next, effects := Transition(c.state, e)
	c.state = next
	c.canGoBack.Store(CanGoBack(next))
	for _, eff := range effects {
		if !c.apply(eff) {
			return false
		}
	}

	if _, ok := e.(Connected); ok {
		c.resendPending()
	}
	return true
}

// handleSendFailed holds the failed message for one resend when the
// transport reports ready. State is not touched; the server's eventual
// reply (or a repeated failure) decides what happens next.
func (c *Controller) handleSendFailed(sf SendFailed) bool {
	if c.pendingSent && reflect.DeepEqual(sf.Msg, c.pending) {
		c.log.Error("resend failed, terminating session")
		c.presenter.ShowError(protocol.MessageSendingFailed)
		return false
	}
	c.log.Warn("send failed, holding for resend")
	c.pending = sf.Msg
	c.pendingSent = false
	return true
}

func (c *Controller) resendPending() {
	if c.pending == nil || c.pendingSent {
		return
	}
	c.pendingSent = true
	c.transport.Send(c.pending)
}

func (c *Controller) apply(eff Effect) bool {
	switch ef := eff.(type) {
	case Send:
		msg := ef.Msg
		if login, ok := msg.(protocol.LogIn); ok && c.token != "" {
			// Replaying the token lets the server evict a session this
			// user abandoned without logging out.
			login.Token = c.token
			msg = login
		}
		c.transport.Send(msg)
	case ArmTimer:
		c.armTimer(time.Duration(ef.Seconds) * time.Second)
	case CancelTimer:
		c.stopTimer()
	case RequestConnect:
		c.transport.Connect()
	case Terminate:
		return false
	case AskUsername:
		c.presenter.AskUsername()
	case ShowMenu:
		c.presenter.ShowMenu(ef.User)
	case ShowError:
		c.presenter.ShowError(ef.Code)
	case ShowGames:
		c.presenter.ShowGames(ef.Games)
	case ShowLobbies:
		c.presenter.ShowLobbies(ef.Lobbies)
	case ShowLobby:
		c.presenter.ShowLobby(ef.Lobby, ef.Members)
	case ShowGameStarted:
		c.presenter.ShowGameStarted(ef.Players)
	case PromptBriscola:
		c.presenter.PromptBriscola(ef.Options, ef.Seconds)
	case PromptTurn:
		c.presenter.PromptTurn(ef.Hand, ef.Field, ef.Seconds)
	case ShowInfo:
		c.presenter.ShowInfo(ef.Text, ef.Field)
	case ShowPlayed:
		c.presenter.ShowPlayed(ef.User, ef.Card)
	case ShowHandWinner:
		c.presenter.ShowHandWinner(ef.User)
	case ShowMatchWinner:
		c.presenter.ShowMatchWinner(ef.Players)
	case ShowGameWinner:
		c.presenter.ShowGameWinner(ef.Players)
	case ShowBriscolaAccepted:
		c.presenter.ShowBriscolaAccepted()
	case ShowTimeExceeded:
		c.presenter.ShowTimeExceeded()
	case ShowUnknown:
		c.presenter.ShowUnknown(ef.Type)
	}
	return true
}

func (c *Controller) armTimer(d time.Duration) {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	c.timerGen++
	gen := c.timerGen
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(d, func() {
		c.Post(TimerExpired{Gen: gen})
	})
}

func (c *Controller) stopTimer() {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	c.timerGen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) timerLive(gen uint64) bool {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	return gen == c.timerGen
}
