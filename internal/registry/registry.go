// internal/registry/registry.go
package registry

import (
	"context"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"beccaccino/internal/games"
	"beccaccino/internal/protocol"
)

// MaxLobbyMembers is the lobby capacity; a lobby at capacity is handed to
// the match coordinator and no longer appears in listings.
const MaxLobbyMembers = games.Seats

// Outbox delivers server-originated messages to one connected session.
// Implementations must not block.
type Outbox interface {
	Deliver(protocol.Message)
}

// OnLobbyFull is invoked from the registry loop the moment a lobby reaches
// capacity, with the final membership in join order.
type OnLobbyFull func(lobby protocol.LobbyID, members []protocol.UserID)

// Registry is the authoritative store of logged-in users and lobbies. All
// operations funnel through a single inbox drained by one goroutine, so
// every check-and-update is atomic and ties are broken in arrival order.
type Registry struct {
	inbox   chan request
	catalog *games.Catalog
	log     *logrus.Entry
	onFull  OnLobbyFull
	ctx     context.Context
	cancel  context.CancelFunc

	// Everything below is owned by the loop goroutine.
	users    map[string]*user
	lobbies  map[int]*lobby
	memberOf map[string]int
	userSeq  int
	lobbySeq int
}

type user struct {
	id     protocol.UserID
	outbox Outbox
}

type lobby struct {
	id      protocol.LobbyID
	members []string // join order
	started bool
}

// request is the closed set of operations the loop understands.
type request interface{ isRequest() }

// response pairs a success message with a structured failure code. Exactly
// one of the two is set.
type response struct {
	msg protocol.Message
	err *protocol.Error
}

type logInReq struct {
	name   string
	outbox Outbox
	reply  chan response
}

type logOutReq struct {
	name  string
	reply chan struct{}
}

type exitLobbyReq struct {
	name  string
	id    protocol.LobbyID
	reply chan response
}

type logOutAndExitReq struct {
	name  string
	id    protocol.LobbyID
	reply chan struct{}
}

type createLobbyReq struct {
	name  string
	game  protocol.GameID
	reply chan response
}

type listLobbiesReq struct {
	name  string
	game  string
	owner string
	reply chan response
}

type joinLobbyReq struct {
	name  string
	id    protocol.LobbyID
	reply chan response
}

type listGamesReq struct {
	reply chan response
}

type disbandReq struct {
	id    protocol.LobbyID
	reply chan struct{}
}

func (logInReq) isRequest()         {}
func (logOutReq) isRequest()        {}
func (exitLobbyReq) isRequest()     {}
func (logOutAndExitReq) isRequest() {}
func (createLobbyReq) isRequest()   {}
func (listLobbiesReq) isRequest()   {}
func (joinLobbyReq) isRequest()     {}
func (listGamesReq) isRequest()     {}
func (disbandReq) isRequest()       {}

// New builds a registry and starts its loop. The loop stops when parent is
// cancelled.
func New(parent context.Context, catalog *games.Catalog, logger *logrus.Logger) *Registry {
	ctx, cancel := context.WithCancel(parent)
	r := &Registry{
		inbox:    make(chan request, 64),
		catalog:  catalog,
		log:      logger.WithField("component", "registry"),
		ctx:      ctx,
		cancel:   cancel,
		users:    make(map[string]*user),
		lobbies:  make(map[int]*lobby),
		memberOf: make(map[string]int),
	}
	go r.loop()
	return r
}

// SetOnLobbyFull registers the match hand-off callback. Must be called
// before any client traffic reaches the registry.
func (r *Registry) SetOnLobbyFull(fn OnLobbyFull) { r.onFull = fn }

// Close stops the registry loop.
func (r *Registry) Close() { r.cancel() }

func (r *Registry) loop() {
	for {
		select {
		case <-r.ctx.Done():
			return
		case req := <-r.inbox:
			switch m := req.(type) {
			case logInReq:
				m.reply <- r.handleLogIn(m.name, m.outbox)
			case logOutReq:
				r.handleLogOut(m.name)
				m.reply <- struct{}{}
			case exitLobbyReq:
				m.reply <- r.handleExitLobby(m.name, m.id)
			case logOutAndExitReq:
				r.handleExitLobby(m.name, m.id)
				r.handleLogOut(m.name)
				m.reply <- struct{}{}
			case createLobbyReq:
				m.reply <- r.handleCreateLobby(m.name, m.game)
			case listLobbiesReq:
				m.reply <- r.handleListLobbies(m.name, m.game, m.owner)
			case joinLobbyReq:
				m.reply <- r.handleJoinLobby(m.name, m.id)
			case listGamesReq:
				m.reply <- response{msg: protocol.AvailableGames{Games: r.catalog.All()}}
			case disbandReq:
				r.handleDisband(m.id)
				m.reply <- struct{}{}
			}
		}
	}
}

// --- public operations; each blocks until the loop has replied ---

// LogIn registers a fresh identity for name, bound to out for broadcasts.
func (r *Registry) LogIn(name string, out Outbox) (protocol.Logged, error) {
	res, err := r.roundTrip(logInReq{name: name, outbox: out, reply: make(chan response, 1)})
	if err != nil {
		return protocol.Logged{}, err
	}
	return res.(protocol.Logged), nil
}

// LogOut removes the user, leaving any lobby first.
func (r *Registry) LogOut(name string) {
	req := logOutReq{name: name, reply: make(chan struct{}, 1)}
	select {
	case r.inbox <- req:
	case <-r.ctx.Done():
		return
	}
	select {
	case <-req.reply:
	case <-r.ctx.Done():
	}
}

// LogOutAndExitFromLobby removes the user from the named lobby and then
// logs them out.
func (r *Registry) LogOutAndExitFromLobby(name string, id protocol.LobbyID) {
	req := logOutAndExitReq{name: name, id: id, reply: make(chan struct{}, 1)}
	select {
	case r.inbox <- req:
	case <-r.ctx.Done():
		return
	}
	select {
	case <-req.reply:
	case <-r.ctx.Done():
	}
}

// ExitLobby removes the user from the named lobby without logging out.
func (r *Registry) ExitLobby(name string, id protocol.LobbyID) (protocol.OutOfLobby, error) {
	res, err := r.roundTrip(exitLobbyReq{name: name, id: id, reply: make(chan response, 1)})
	if err != nil {
		return protocol.OutOfLobby{}, err
	}
	return res.(protocol.OutOfLobby), nil
}

// CreateLobby validates the game and opens a lobby owned by name.
func (r *Registry) CreateLobby(name string, game protocol.GameID) (protocol.LobbyCreated, error) {
	res, err := r.roundTrip(createLobbyReq{name: name, game: game, reply: make(chan response, 1)})
	if err != nil {
		return protocol.LobbyCreated{}, err
	}
	return res.(protocol.LobbyCreated), nil
}

// AvailableLobbies lists the joinable (non-full) lobbies, optionally
// filtered by game and owner name.
func (r *Registry) AvailableLobbies(name, game, owner string) (protocol.AvailableLobbies, error) {
	res, err := r.roundTrip(listLobbiesReq{name: name, game: game, owner: owner, reply: make(chan response, 1)})
	if err != nil {
		return protocol.AvailableLobbies{}, err
	}
	return res.(protocol.AvailableLobbies), nil
}

// JoinLobby adds name to the lobby, replying with the post-join membership
// and broadcasting the same set to every other member.
func (r *Registry) JoinLobby(name string, id protocol.LobbyID) (protocol.LobbyJoined, error) {
	res, err := r.roundTrip(joinLobbyReq{name: name, id: id, reply: make(chan response, 1)})
	if err != nil {
		return protocol.LobbyJoined{}, err
	}
	return res.(protocol.LobbyJoined), nil
}

// Disband dissolves a lobby whose game has finished: every member gets an
// OutOfLobby for it and becomes free to create or join again.
func (r *Registry) Disband(id protocol.LobbyID) {
	req := disbandReq{id: id, reply: make(chan struct{}, 1)}
	select {
	case r.inbox <- req:
	case <-r.ctx.Done():
		return
	}
	select {
	case <-req.reply:
	case <-r.ctx.Done():
	}
}

// AvailableGames returns the rule catalog's game definitions.
func (r *Registry) AvailableGames() (protocol.AvailableGames, error) {
	res, err := r.roundTrip(listGamesReq{reply: make(chan response, 1)})
	if err != nil {
		return protocol.AvailableGames{}, err
	}
	return res.(protocol.AvailableGames), nil
}

func (r *Registry) roundTrip(req request) (protocol.Message, error) {
	var reply chan response
	switch m := req.(type) {
	case logInReq:
		reply = m.reply
	case exitLobbyReq:
		reply = m.reply
	case createLobbyReq:
		reply = m.reply
	case listLobbiesReq:
		reply = m.reply
	case joinLobbyReq:
		reply = m.reply
	case listGamesReq:
		reply = m.reply
	}
	select {
	case r.inbox <- req:
	case <-r.ctx.Done():
		return nil, r.ctx.Err()
	}
	select {
	case res := <-reply:
		if res.err != nil {
			return nil, res.err
		}
		return res.msg, nil
	case <-r.ctx.Done():
		return nil, r.ctx.Err()
	}
}

// --- loop-side handlers; never called outside the loop goroutine ---

func (r *Registry) handleLogIn(name string, out Outbox) response {
	if _, taken := r.users[name]; taken {
		return response{err: protocol.Errf(protocol.UserAlreadyPresent)}
	}
	r.userSeq++
	u := &user{id: protocol.UserID{Seq: r.userSeq, Name: name}, outbox: out}
	r.users[name] = u
	r.log.WithFields(logrus.Fields{"user": name, "seq": u.id.Seq}).Info("user logged in")
	return response{msg: protocol.Logged{User: u.id}}
}

func (r *Registry) handleLogOut(name string) {
	u, ok := r.users[name]
	if !ok {
		return
	}
	if seq, inLobby := r.memberOf[name]; inLobby {
		if lob, exists := r.lobbies[seq]; exists {
			r.removeMember(lob, name)
		}
	}
	delete(r.users, name)
	r.log.WithFields(logrus.Fields{"user": name, "seq": u.id.Seq}).Info("user logged out")
}

func (r *Registry) handleExitLobby(name string, id protocol.LobbyID) response {
	if _, ok := r.users[name]; !ok {
		return response{err: protocol.Errf(protocol.UserNotLogged)}
	}
	lob, ok := r.lobbies[id.Seq]
	if !ok || !lob.hasMember(name) {
		return response{err: protocol.Errf(protocol.LobbyNotExisting)}
	}
	r.removeMember(lob, name)
	return response{msg: protocol.OutOfLobby{Lobby: lob.id}}
}

func (r *Registry) handleCreateLobby(name string, game protocol.GameID) response {
	if _, ok := r.users[name]; !ok {
		return response{err: protocol.Errf(protocol.UserNotLogged)}
	}
	if !r.catalog.Exists(game) {
		return response{err: protocol.Errf(protocol.GameNotExisting)}
	}
	if _, inLobby := r.memberOf[name]; inLobby {
		return response{err: protocol.Errf(protocol.UserAlreadyInALobby)}
	}

	r.lobbySeq++
	lob := &lobby{
		id:      protocol.LobbyID{Seq: r.lobbySeq, Owner: name, Game: game},
		members: []string{name},
	}
	r.lobbies[lob.id.Seq] = lob
	r.memberOf[name] = lob.id.Seq
	r.log.WithFields(logrus.Fields{"lobby": lob.id.Seq, "owner": name, "game": game.Name}).Info("lobby created")
	return response{msg: protocol.LobbyCreated{Lobby: lob.id, Members: r.membersOf(lob)}}
}

func (r *Registry) handleListLobbies(name, game, owner string) response {
	if _, ok := r.users[name]; !ok {
		return response{err: protocol.Errf(protocol.UserNotLogged)}
	}
	var out []protocol.LobbySummary
	for _, lob := range r.lobbies {
		if lob.started || len(lob.members) >= MaxLobbyMembers {
			continue
		}
		if game != "" && !strings.EqualFold(lob.id.Game.Name, game) {
			continue
		}
		if owner != "" && lob.id.Owner != owner {
			continue
		}
		out = append(out, protocol.LobbySummary{ID: lob.id, Members: r.membersOf(lob)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Seq < out[j].ID.Seq })
	return response{msg: protocol.AvailableLobbies{Lobbies: out}}
}

func (r *Registry) handleJoinLobby(name string, id protocol.LobbyID) response {
	if _, ok := r.users[name]; !ok {
		return response{err: protocol.Errf(protocol.UserNotLogged)}
	}
	lob, ok := r.lobbies[id.Seq]
	if !ok {
		return response{err: protocol.Errf(protocol.LobbyNotExisting)}
	}
	if _, inLobby := r.memberOf[name]; inLobby {
		return response{err: protocol.Errf(protocol.UserAlreadyInALobby)}
	}
	// Capacity check and insert are one step: the loop never interleaves
	// two joins, so simultaneous joiners of the last slot are resolved in
	// arrival order and the loser sees LOBBY_FULL.
	if lob.started || len(lob.members) >= MaxLobbyMembers {
		return response{err: protocol.Errf(protocol.LobbyFull)}
	}

	lob.members = append(lob.members, name)
	r.memberOf[name] = lob.id.Seq
	members := r.membersOf(lob)

	// The caller's confirmation is delivered here, inside the loop, so it
	// always reaches the joiner's outbox ahead of anything a full lobby
	// triggers (GameStarted). The wire layer must not deliver the returned
	// message a second time.
	if joiner, ok := r.users[name]; ok {
		joiner.outbox.Deliver(protocol.LobbyJoined{Lobby: lob.id, Members: members})
	}
	for _, m := range lob.members {
		if m == name {
			continue
		}
		if peer, ok := r.users[m]; ok {
			peer.outbox.Deliver(protocol.LobbyUpdate{Lobby: lob.id, Members: members})
		}
	}
	r.log.WithFields(logrus.Fields{"lobby": lob.id.Seq, "user": name, "size": len(lob.members)}).Info("lobby joined")

	if len(lob.members) == MaxLobbyMembers {
		lob.started = true
		if r.onFull != nil {
			r.onFull(lob.id, members)
		}
	}
	return response{msg: protocol.LobbyJoined{Lobby: lob.id, Members: members}}
}

// removeMember drops name from lob, broadcasting the shrunken membership to
// whoever remains and deleting the lobby the instant it empties.
func (r *Registry) removeMember(lob *lobby, name string) {
	kept := lob.members[:0]
	for _, m := range lob.members {
		if m != name {
			kept = append(kept, m)
		}
	}
	lob.members = kept
	delete(r.memberOf, name)

	if len(lob.members) == 0 {
		delete(r.lobbies, lob.id.Seq)
		r.log.WithField("lobby", lob.id.Seq).Info("lobby deleted")
		return
	}
	members := r.membersOf(lob)
	for _, m := range lob.members {
		if peer, ok := r.users[m]; ok {
			peer.outbox.Deliver(protocol.LobbyUpdate{Lobby: lob.id, Members: members})
		}
	}
}

func (r *Registry) handleDisband(id protocol.LobbyID) {
	lob, ok := r.lobbies[id.Seq]
	if !ok {
		return
	}
	for _, m := range lob.members {
		delete(r.memberOf, m)
		if u, ok := r.users[m]; ok {
			u.outbox.Deliver(protocol.OutOfLobby{Lobby: lob.id})
		}
	}
	delete(r.lobbies, lob.id.Seq)
	r.log.WithField("lobby", lob.id.Seq).Info("lobby disbanded")
}

func (r *Registry) membersOf(lob *lobby) []protocol.UserID {
	out := make([]protocol.UserID, 0, len(lob.members))
	for _, m := range lob.members {
		if u, ok := r.users[m]; ok {
			out = append(out, u.id)
		}
	}
	return out
}

func (l *lobby) hasMember(name string) bool {
	for _, m := range l.members {
		if m == name {
			return true
		}
	}
	return false
}
