// internal/session/controller_test.go
package session

import (
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beccaccino/internal/protocol"
)

type mockTransport struct {
	mu       sync.Mutex
	sent     []protocol.Message
	connects int
}

func (m *mockTransport) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
}

func (m *mockTransport) Send(msg protocol.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
}

func (m *mockTransport) allSent() []protocol.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]protocol.Message, len(m.sent))
	copy(out, m.sent)
	return out
}

// nopPresenter records only the error codes; everything else is a no-op.
type nopPresenter struct {
	mu     sync.Mutex
	errors []protocol.Code
}

func (p *nopPresenter) AskUsername()                                  {}
func (p *nopPresenter) ShowMenu(protocol.UserID)                      {}
func (p *nopPresenter) ShowGames([]protocol.GameID)                   {}
func (p *nopPresenter) ShowLobbies([]protocol.LobbySummary)           {}
func (p *nopPresenter) ShowLobby(protocol.LobbyID, []protocol.UserID) {}
func (p *nopPresenter) ShowGameStarted([]protocol.UserID)             {}
func (p *nopPresenter) PromptBriscola([]string, int)                  {}
func (p *nopPresenter) PromptTurn(_, _ []protocol.Card, _ int)        {}
func (p *nopPresenter) ShowInfo(string, []protocol.Card)              {}
func (p *nopPresenter) ShowPlayed(protocol.UserID, protocol.Card)     {}
func (p *nopPresenter) ShowHandWinner(protocol.UserID)                {}
func (p *nopPresenter) ShowMatchWinner([]protocol.UserID)             {}
func (p *nopPresenter) ShowGameWinner([]protocol.UserID)              {}
func (p *nopPresenter) ShowBriscolaAccepted()                         {}
func (p *nopPresenter) ShowTimeExceeded()                             {}
func (p *nopPresenter) ShowUnknown(string)                            {}

func (p *nopPresenter) ShowError(code protocol.Code) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors = append(p.errors, code)
}

func newTestController(t *testing.T) (*Controller, *mockTransport, *nopPresenter) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	tr := &mockTransport{}
	pr := &nopPresenter{}
	return New(tr, pr, logger), tr, pr
}

func TestFailedSendIsResentWhenTransportReady(t *testing.T) {
	c, tr, pr := newTestController(t)
	msg := protocol.Play{Card: protocol.Card{Suit: "Coppe", Rank: 1}}

	// The failure alone does not resend; the transport is not ready yet.
	require.True(t, c.step(SendFailed{Msg: msg}))
	assert.Empty(t, tr.allSent())

	// The reconnect triggers the single resend.
	require.True(t, c.step(Connected{}))
	require.Len(t, tr.allSent(), 1)
	assert.Equal(t, protocol.Message(msg), tr.allSent()[0])

	// The resend failed too: give up instead of looping.
	ok := c.step(SendFailed{Msg: msg})
	assert.False(t, ok)
	assert.Equal(t, []protocol.Code{protocol.MessageSendingFailed}, pr.errors)
}

func TestHeldMessageIsDroppedOnServerTraffic(t *testing.T) {
	c, tr, _ := newTestController(t)
	msg := protocol.Briscola{Suit: "Coppe"}

	require.True(t, c.step(SendFailed{Msg: msg}))
	// The server spoke, so the wire works and the held message is stale.
	require.True(t, c.step(server(protocol.Information{Text: "hi"})))
	require.True(t, c.step(Connected{}))
	assert.Empty(t, tr.allSent())

	// A fresh failure of the same message starts a fresh cycle rather
	// than terminating.
	require.True(t, c.step(SendFailed{Msg: msg}))
	require.True(t, c.step(Connected{}))
	assert.Len(t, tr.allSent(), 1)
}

func TestStaleTimerFireIsDropped(t *testing.T) {
	c, tr, _ := newTestController(t)
	c.state = ChoosingBriscola{User: testUser, Lobby: testLobby, TimeoutSec: 10}

	c.timerMu.Lock()
	c.timerGen = 3
	c.timerMu.Unlock()

	require.True(t, c.step(TimerExpired{Gen: 2}))
	assert.IsType(t, ChoosingBriscola{}, c.state, "stale fire must not advance the machine")
	assert.Empty(t, tr.allSent())

	require.True(t, c.step(TimerExpired{Gen: 3}))
	assert.IsType(t, InGame{}, c.state)
	require.Len(t, tr.allSent(), 1)
	assert.IsType(t, protocol.TimeoutExceeded{}, tr.allSent()[0])
}

func TestLoginReplaysSessionToken(t *testing.T) {
	c, tr, _ := newTestController(t)
	c.state = Authenticating{}

	require.True(t, c.step(server(protocol.Logged{User: testUser, Token: "tok-1"})))
	assert.IsType(t, LoggedIdle{}, c.state)

	// A later re-login carries the token so the server can evict the
	// session it still holds for this user.
	c.state = Authenticating{}
	require.True(t, c.step(UsernameChosen{Name: "alice"}))
	require.Len(t, tr.allSent(), 1)
	login := tr.allSent()[0].(protocol.LogIn)
	assert.Equal(t, "alice", login.Username)
	assert.Equal(t, "tok-1", login.Token)
}

func TestCanGoBackTracksState(t *testing.T) {
	c, _, _ := newTestController(t)
	c.canGoBack.Store(CanGoBack(c.state))
	assert.False(t, c.CanGoBack())

	require.True(t, c.step(Connected{}))
	assert.False(t, c.CanGoBack())

	require.True(t, c.step(server(protocol.Logged{User: testUser})))
	assert.True(t, c.CanGoBack())
}
