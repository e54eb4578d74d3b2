// internal/server/server.go
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"beccaccino/internal/auth"
	"beccaccino/internal/games"
	"beccaccino/internal/middleware"
	"beccaccino/internal/protocol"
	"beccaccino/internal/registry"
)

// Subprotocol is the websocket subprotocol every client must speak.
const Subprotocol = "beccaccino"

// DefaultTurnTimeout bounds how long a player may take to choose the
// briscola or play a card before the server advances the turn.
const DefaultTurnTimeout = 10 * time.Second

// Server owns the registry, the live connections and the running matches,
// and exposes the single /ws endpoint everything flows through.
type Server struct {
	Registry *registry.Registry

	logger      *logrus.Logger
	turnTimeout time.Duration

	mu      sync.Mutex
	conns   map[string]*conn // username -> connection, bound at login
	matches map[int]*Match   // lobby seq -> running match
}

// New wires a server with its registry and rule catalog and registers the
// lobby-full hand-off.
func New(ctx context.Context, logger *logrus.Logger) *Server {
	s := &Server{
		Registry:    registry.New(ctx, games.NewCatalog(), logger),
		logger:      logger,
		turnTimeout: DefaultTurnTimeout,
		conns:       make(map[string]*conn),
		matches:     make(map[int]*Match),
	}
	s.Registry.SetOnLobbyFull(s.startMatch)
	return s
}

// Router builds the HTTP surface: a heartbeat and the websocket endpoint.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.LogMiddleware(s.logger))
	r.Use(chimw.Heartbeat("/ping"))
	r.Get("/ws", s.handleWS)
	return r
}

// conn is one client's websocket presence. It implements registry.Outbox:
// everything the server originates for this client is funneled through the
// out channel and written by the write pump.
type conn struct {
	id   uuid.UUID
	sock *websocket.Conn
	out  chan protocol.Message
	log  *logrus.Entry

	mu    sync.Mutex
	user  protocol.UserID
	bound bool
	lobby *protocol.LobbyID
}

// Deliver pushes a message onto the connection's out channel without
// blocking. A full channel means the client is too slow; the message is
// dropped and logged, mirroring how the write side deals with back
// pressure.
func (c *conn) Deliver(msg protocol.Message) {
	select {
	case c.out <- msg:
	default:
		c.log.WithField("msg", msg).Warn("outbox full, dropping message")
	}
}

func (c *conn) setUser(u protocol.UserID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = u
	c.bound = true
}

func (c *conn) clearUser() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = protocol.UserID{}
	c.bound = false
	c.lobby = nil
}

func (c *conn) boundUser() (protocol.UserID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user, c.bound
}

func (c *conn) setLobby(id protocol.LobbyID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lobby = &id
}

func (c *conn) clearLobby() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lobby = nil
}

func (c *conn) currentLobby() (protocol.LobbyID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lobby == nil {
		return protocol.LobbyID{}, false
	}
	return *c.lobby, true
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	remoteAddr := r.RemoteAddr
	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: []string{"*"}, // tightened via CORS at the router in production
	})
	if err != nil {
		s.logger.Warnf("websocket accept error: %v", err)
		return
	}
	defer sock.Close(websocket.StatusInternalError, "handler finished")

	if sock.Subprotocol() != Subprotocol {
		sock.Close(BadSubprotocolError, "client must speak the beccaccino subprotocol")
		return
	}

	middleware.LogWebSocketConnect(s.logger, remoteAddr, r.URL.Path)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	id := uuid.New()
	c := &conn{
		id:   id,
		sock: sock,
		out:  make(chan protocol.Message, 32),
		log:  s.logger.WithField("conn", id.String()[:8]),
	}

	go s.writePump(ctx, c)
	readErr := s.readPump(ctx, c)

	// A dropped connection logs its user out; the registry handles any
	// lobby exit and the broadcasts that go with it.
	if user, ok := c.boundUser(); ok {
		s.unbind(user.Name, c)
		s.Registry.LogOut(user.Name)
	}
	middleware.LogWebSocketDisconnect(s.logger, remoteAddr, r.URL.Path, readErr)
}

func (s *Server) readPump(ctx context.Context, c *conn) error {
	limiter := rate.NewLimiter(rate.Every(time.Millisecond*50), 10)
	for {
		typ, data, err := c.sock.Read(ctx)
		if err != nil {
			return err
		}
		if !limiter.Allow() {
			c.log.Warn("inbound message rate exceeded, closing")
			c.sock.Close(TooManyRequests, "message rate limit exceeded")
			return errors.New("message rate limit exceeded")
		}
		if typ != websocket.MessageText {
			c.log.Warnf("ignoring non-text frame type %d", typ)
			continue
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			c.log.Warnf("undecodable frame: %v", err)
			continue
		}
		s.dispatch(c, msg)
	}
}

func (s *Server) writePump(ctx context.Context, c *conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.out:
			data, err := protocol.Encode(msg)
			if err != nil {
				c.log.Warnf("failed to encode outgoing msg: %v", err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.sock.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.log.Warnf("write failed: %v", err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.sock.Ping(pingCtx)
			cancel()
			if err != nil {
				c.log.Warnf("ping failed, assuming disconnect: %v", err)
				return
			}
		}
	}
}

// dispatch routes one decoded client request. Registry failures come back
// as structured codes and are returned to the sender as ErrorOccurred.
func (s *Server) dispatch(c *conn, msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.LogIn:
		s.handleLogIn(c, m)

	case protocol.LogOut:
		if user, ok := c.boundUser(); ok && user.Name == m.Username {
			s.unbind(user.Name, c)
			s.Registry.LogOut(user.Name)
			c.clearUser()
		}

	case protocol.RetrieveAvailableGames:
		res, err := s.Registry.AvailableGames()
		if err != nil {
			return
		}
		c.Deliver(res)

	case protocol.CreateLobby:
		user, ok := c.boundUser()
		if !ok {
			c.Deliver(protocol.ErrorOccurred{Code: protocol.UserNotLogged})
			return
		}
		res, err := s.Registry.CreateLobby(user.Name, m.Game)
		if err != nil {
			s.deliverErr(c, err)
			return
		}
		c.setLobby(res.Lobby)
		c.Deliver(res)

	case protocol.RetrieveAvailableLobbies:
		user, ok := c.boundUser()
		if !ok {
			c.Deliver(protocol.ErrorOccurred{Code: protocol.UserNotLogged})
			return
		}
		res, err := s.Registry.AvailableLobbies(user.Name, m.Game, m.Owner)
		if err != nil {
			s.deliverErr(c, err)
			return
		}
		c.Deliver(res)

	case protocol.JoinLobby:
		user, ok := c.boundUser()
		if !ok {
			c.Deliver(protocol.ErrorOccurred{Code: protocol.UserNotLogged})
			return
		}
		// On success the registry has already delivered LobbyJoined to
		// this connection's outbox, ordered ahead of any GameStarted.
		res, err := s.Registry.JoinLobby(user.Name, m.Lobby)
		if err != nil {
			s.deliverErr(c, err)
			return
		}
		c.setLobby(res.Lobby)

	case protocol.OutOfLobby:
		user, ok := c.boundUser()
		if !ok {
			c.Deliver(protocol.ErrorOccurred{Code: protocol.UserNotLogged})
			return
		}
		res, err := s.Registry.ExitLobby(user.Name, m.Lobby)
		if err != nil {
			s.deliverErr(c, err)
			return
		}
		c.clearLobby()
		c.Deliver(res)

	case protocol.Briscola:
		if match, user, ok := s.matchFor(c); ok {
			match.HandleBriscola(user, m.Suit)
		} else {
			c.Deliver(protocol.ErrorOccurred{Code: protocol.SelectionNotAvailable})
		}

	case protocol.Play:
		if match, user, ok := s.matchFor(c); ok {
			match.HandlePlay(user, m.Card)
		} else {
			c.Deliver(protocol.ErrorOccurred{Code: protocol.SelectionNotAvailable})
		}

	case protocol.TimeoutExceeded:
		if match, user, ok := s.matchFor(c); ok {
			match.HandleTimeout(user)
		}

	case protocol.Unknown:
		c.log.WithField("type", m.Type).Warn("unknown message type from client")

	default:
		// Server-only envelopes arriving from a client are ignored.
		c.log.Warnf("unexpected client message %T", msg)
	}
}

func (s *Server) handleLogIn(c *conn, m protocol.LogIn) {
	// A token from a previous session lets us evict the half-dead
	// identity it names before the uniqueness check runs.
	if m.Token != "" {
		if prior, err := auth.AuthenticateJWT(m.Token); err == nil && prior == m.Username {
			if old := s.connFor(prior); old != nil && old != c {
				s.unbind(prior, old)
				old.clearUser()
			}
			s.Registry.LogOut(prior)
		}
	}

	logged, err := s.Registry.LogIn(m.Username, c)
	if err != nil {
		s.deliverErr(c, err)
		return
	}
	c.setUser(logged.User)
	s.bind(m.Username, c)

	token, err := auth.CreateJWT(m.Username)
	if err != nil {
		c.log.Warnf("token mint failed for %s: %v", m.Username, err)
	}
	logged.Token = token
	c.Deliver(logged)
}

func (s *Server) deliverErr(c *conn, err error) {
	var code protocol.Code
	if perr, ok := err.(*protocol.Error); ok {
		code = perr.Code
	} else {
		// Registry shut down mid-request; the connection is going away.
		code = protocol.ConnectionLost
	}
	c.Deliver(protocol.ErrorOccurred{Code: code})
}

func (s *Server) bind(name string, c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[name] = c
}

func (s *Server) unbind(name string, c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns[name] == c {
		delete(s.conns, name)
	}
}

func (s *Server) connFor(name string) *conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[name]
}

func (s *Server) matchFor(c *conn) (*Match, protocol.UserID, bool) {
	user, ok := c.boundUser()
	if !ok {
		return nil, protocol.UserID{}, false
	}
	lobby, ok := c.currentLobby()
	if !ok {
		return nil, protocol.UserID{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.matches[lobby.Seq]
	if !ok {
		return nil, protocol.UserID{}, false
	}
	return match, user, true
}

// startMatch is the registry's lobby-full hand-off. It runs on the
// registry loop, so it only builds the match and starts it; all message
// delivery goes through non-blocking outboxes.
func (s *Server) startMatch(lobby protocol.LobbyID, members []protocol.UserID) {
	m := newMatch(lobby, members, s.turnTimeout, s.logger)
	m.send = func(user protocol.UserID, msg protocol.Message) {
		if c := s.connFor(user.Name); c != nil {
			c.Deliver(msg)
		}
	}
	m.broadcast = func(msg protocol.Message) {
		for _, p := range members {
			if c := s.connFor(p.Name); c != nil {
				c.Deliver(msg)
			}
		}
	}
	m.onEnd = s.endMatch

	s.mu.Lock()
	s.matches[lobby.Seq] = m
	s.mu.Unlock()

	m.Start()
}

// endMatch tears a finished match down: the lobby is disbanded (members
// get OutOfLobby and are free again) and connection lobby refs cleared.
func (s *Server) endMatch(lobby protocol.LobbyID) {
	s.mu.Lock()
	match := s.matches[lobby.Seq]
	delete(s.matches, lobby.Seq)
	s.mu.Unlock()
	if match == nil {
		return
	}
	for _, p := range match.players {
		if c := s.connFor(p.Name); c != nil {
			c.clearLobby()
		}
	}
	s.Registry.Disband(lobby)
}
