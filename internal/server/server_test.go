// internal/server/server_test.go
package server

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beccaccino/internal/auth"
	"beccaccino/internal/protocol"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	require.NoError(t, auth.Init())

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv := New(ctx, logger)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(ts), &websocket.DialOptions{
		Subprotocols: []string{Subprotocol},
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func sendMsg(t *testing.T, conn *websocket.Conn, msg protocol.Message) {
	t.Helper()
	data, err := protocol.Encode(msg)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

// expect reads frames until one decodes to T, skipping everything else.
func expect[T protocol.Message](t *testing.T, conn *websocket.Conn) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err, "waiting for %T", *new(T))
		msg, err := protocol.Decode(data)
		require.NoError(t, err)
		if want, ok := msg.(T); ok {
			return want
		}
	}
}

func logIn(t *testing.T, conn *websocket.Conn, name string) protocol.Logged {
	t.Helper()
	sendMsg(t, conn, protocol.LogIn{Username: name})
	return expect[protocol.Logged](t, conn)
}

func TestWSRejectsMissingSubprotocol(t *testing.T) {
	ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, _, err = conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusCode(BadSubprotocolError), websocket.CloseStatus(err))
}

func TestFloodingClientIsDisconnected(t *testing.T) {
	ts := newTestServer(t)
	conn := dialWS(t, ts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := protocol.Encode(protocol.RetrieveAvailableGames{})
	require.NoError(t, err)
	for i := 0; i < 40; i++ {
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			break // the server already hung up
		}
	}

	for {
		_, _, err := conn.Read(ctx)
		if err != nil {
			assert.Equal(t, websocket.StatusCode(TooManyRequests), websocket.CloseStatus(err))
			return
		}
	}
}

func TestLogInOverTheWire(t *testing.T) {
	ts := newTestServer(t)
	conn := dialWS(t, ts)

	logged := logIn(t, conn, "alice")
	assert.Equal(t, "alice", logged.User.Name)
	assert.NotEmpty(t, logged.Token, "login mints a session token")

	// Same name from a second connection without the token is refused.
	second := dialWS(t, ts)
	sendMsg(t, second, protocol.LogIn{Username: "alice"})
	errMsg := expect[protocol.ErrorOccurred](t, second)
	assert.Equal(t, protocol.UserAlreadyPresent, errMsg.Code)
}

func TestTokenEvictsAbandonedSession(t *testing.T) {
	ts := newTestServer(t)

	first := dialWS(t, ts)
	logged := logIn(t, first, "alice")

	// The user's client crashed without a clean close; the replacement
	// session proves ownership with the token.
	second := dialWS(t, ts)
	sendMsg(t, second, protocol.LogIn{Username: "alice", Token: logged.Token})
	relogged := expect[protocol.Logged](t, second)
	assert.Equal(t, "alice", relogged.User.Name)
	assert.Greater(t, relogged.User.Seq, logged.User.Seq, "eviction creates a fresh identity")
}

func TestLobbyFlowOverTheWire(t *testing.T) {
	ts := newTestServer(t)

	alice := dialWS(t, ts)
	logIn(t, alice, "alice")

	sendMsg(t, alice, protocol.RetrieveAvailableGames{})
	catalog := expect[protocol.AvailableGames](t, alice)
	require.NotEmpty(t, catalog.Games)

	sendMsg(t, alice, protocol.CreateLobby{Game: catalog.Games[0]})
	created := expect[protocol.LobbyCreated](t, alice)
	assert.Equal(t, "alice", created.Lobby.Owner)

	bob := dialWS(t, ts)
	logIn(t, bob, "bob")

	sendMsg(t, bob, protocol.RetrieveAvailableLobbies{})
	listed := expect[protocol.AvailableLobbies](t, bob)
	require.Len(t, listed.Lobbies, 1)

	sendMsg(t, bob, protocol.JoinLobby{Lobby: listed.Lobbies[0].ID})
	joined := expect[protocol.LobbyJoined](t, bob)
	require.Len(t, joined.Members, 2)

	update := expect[protocol.LobbyUpdate](t, alice)
	assert.Equal(t, joined.Members, update.Members, "every member sees the same membership")

	// Leaving is confirmed to the leaver and broadcast to the rest.
	sendMsg(t, bob, protocol.OutOfLobby{Lobby: created.Lobby})
	left := expect[protocol.OutOfLobby](t, bob)
	assert.Equal(t, created.Lobby.Seq, left.Lobby.Seq)
	update = expect[protocol.LobbyUpdate](t, alice)
	assert.Len(t, update.Members, 1)
}

func TestFourthJoinStartsTheGame(t *testing.T) {
	ts := newTestServer(t)

	conns := make(map[string]*websocket.Conn, 4)
	names := []string{"alice", "bob", "carol", "dave"}
	for _, n := range names {
		conns[n] = dialWS(t, ts)
		logIn(t, conns[n], n)
	}

	sendMsg(t, conns["alice"], protocol.CreateLobby{Game: protocol.GameID{Name: "Beccaccino"}})
	created := expect[protocol.LobbyCreated](t, conns["alice"])

	for _, n := range names[1:] {
		sendMsg(t, conns[n], protocol.JoinLobby{Lobby: created.Lobby})
		joined := expect[protocol.LobbyJoined](t, conns[n])
		assert.Equal(t, created.Lobby.Seq, joined.Lobby.Seq)
	}

	// Everyone sees the start and gets a private hand; the owner is asked
	// for the briscola.
	for _, n := range names {
		started := expect[protocol.GameStarted](t, conns[n])
		assert.Len(t, started.Players, 4)
		hand := expect[protocol.Information](t, conns[n])
		assert.Len(t, hand.Field, 10)
	}
	prompt := expect[protocol.ChooseBriscola](t, conns["alice"])
	assert.NotEmpty(t, prompt.Options)

	// The table is full for latecomers.
	eve := dialWS(t, ts)
	logIn(t, eve, "eve")
	sendMsg(t, eve, protocol.JoinLobby{Lobby: created.Lobby})
	errMsg := expect[protocol.ErrorOccurred](t, eve)
	assert.Equal(t, protocol.LobbyFull, errMsg.Code)
}

func TestJoinersConfirmationPrecedesGameStart(t *testing.T) {
	ts := newTestServer(t)

	conns := make([]*websocket.Conn, 4)
	names := []string{"alice", "bob", "carol", "dave"}
	for i, n := range names {
		conns[i] = dialWS(t, ts)
		logIn(t, conns[i], n)
	}

	sendMsg(t, conns[0], protocol.CreateLobby{Game: protocol.GameID{Name: "Beccaccino"}})
	created := expect[protocol.LobbyCreated](t, conns[0])
	for _, c := range conns[1:] {
		sendMsg(t, c, protocol.JoinLobby{Lobby: created.Lobby})
	}

	// The player whose join filled the lobby must still see their own
	// LobbyJoined before the GameStarted it triggered.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	last := conns[3]
	var sawJoined bool
	for {
		_, data, err := last.Read(ctx)
		require.NoError(t, err)
		msg, err := protocol.Decode(data)
		require.NoError(t, err)
		if _, ok := msg.(protocol.LobbyJoined); ok {
			sawJoined = true
		}
		if _, ok := msg.(protocol.GameStarted); ok {
			assert.True(t, sawJoined, "join confirmation arrived after game start")
			return
		}
	}
}
