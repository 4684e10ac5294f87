package ircd

import (
	"github.com/horgh/ircrelay/internal/wire"
	"github.com/pkg/errors"
)

// Errors returned by Session operations. Handlers (handlers.go) translate
// these into IRC numerics; Session itself knows nothing about the wire
// protocol.
var (
	ErrNicknameInUse   = errors.New("nickname already in use")
	ErrInvalidNick     = errors.New("invalid nickname")
	ErrInvalidChannel  = errors.New("invalid channel name")
	ErrChannelExists   = errors.New("channel already exists")
	ErrNoSuchChannel   = errors.New("no such channel")
	ErrNoSuchUser      = errors.New("no such user")
	ErrNotOnChannel    = errors.New("not on that channel")
	ErrChannelIsFull   = errors.New("channel is full")
)

// Session is the in-memory container for all Users, Channels, their
// membership relations, and the ready list; all cross-entity lookups go
// through it. It is not safe for concurrent use by itself; the
// single-threaded core only ever touches it from the poll loop, and the
// threaded variant (threaded.go) serializes all access onto its writer
// goroutine.
type Session struct {
	users    map[string]*User    // canonical nick -> User
	channels map[string]*Channel // canonical name -> Channel

	// userChannels and channelUsers are dual relations that must stay
	// mutually consistent. Both are keyed by canonical name on both
	// sides so a Rename only ever has to rewrite the index, never chase
	// a pointer.
	userChannels map[string]map[string]struct{} // canonical nick -> set of canonical chan names
	channelUsers map[string]map[string]struct{} // canonical chan name -> set of canonical nicks

	readyUsers    map[string]struct{} // canonical nick
	readyChannels map[string]struct{} // canonical chan name

	defaultUserCap int
	queueCapacity  int
}

// NewSession creates an empty Session. defaultUserCap is the channel
// membership cap applied to channels created without an explicit one.
// queueCapacity bounds every per-user and per-channel queue created
// through this Session.
func NewSession(defaultUserCap, queueCapacity int) *Session {
	return &Session{
		users:          make(map[string]*User),
		channels:       make(map[string]*Channel),
		userChannels:   make(map[string]map[string]struct{}),
		channelUsers:   make(map[string]map[string]struct{}),
		readyUsers:     make(map[string]struct{}),
		readyChannels:  make(map[string]struct{}),
		defaultUserCap: defaultUserCap,
		queueCapacity:  queueCapacity,
	}
}

// RegisterUser adds a new User under its nickname. The caller must have
// already validated the nickname and checked for collisions via
// LookupUser; RegisterUser returns ErrNicknameInUse defensively if that
// invariant was violated.
func (s *Session) RegisterUser(u *User) error {
	key := canonicalNick(u.Nickname)
	if _, exists := s.users[key]; exists {
		return ErrNicknameInUse
	}

	if u.OutQueue == nil {
		u.OutQueue = NewMessageQueue(s.queueCapacity)
	}

	s.users[key] = u
	s.userChannels[key] = make(map[string]struct{})
	return nil
}

// LookupUser finds a User by nickname (case-insensitive).
func (s *Session) LookupUser(nick string) (*User, bool) {
	u, ok := s.users[canonicalNick(nick)]
	return u, ok
}

// UnregisterUser removes a User from the nickname index and its
// membership relation. It does not touch channels the user was in --
// callers (QUIT, disconnect) must call LeaveAll first so farewells are
// sent and Temporary channels are cleaned up.
func (s *Session) UnregisterUser(nick string) {
	key := canonicalNick(nick)
	delete(s.users, key)
	delete(s.userChannels, key)
	delete(s.readyUsers, key)
}

// CreateChannel creates a new, empty Channel. Returns ErrChannelExists if
// the name is already taken, ErrInvalidChannel if the name fails
// IsValidChannel.
func (s *Session) CreateChannel(name string, kind ChannelKind) (*Channel, error) {
	if !IsValidChannel(name) {
		return nil, ErrInvalidChannel
	}

	key := canonicalChannel(name)
	if _, exists := s.channels[key]; exists {
		return nil, ErrChannelExists
	}

	ch := &Channel{
		Name:     name,
		Kind:     kind,
		UserCap:  s.defaultUserCap,
		OutQueue: NewBroadcastQueue(s.queueCapacity),
	}
	s.channels[key] = ch
	s.channelUsers[key] = make(map[string]struct{})
	return ch, nil
}

// LookupChannel finds a Channel by name (case-insensitive).
func (s *Session) LookupChannel(name string) (*Channel, bool) {
	ch, ok := s.channels[canonicalChannel(name)]
	return ch, ok
}

// DestroyChannel removes a Channel from the name index unconditionally.
// Callers are responsible for checking emptiness first if that matters
// (Leave does this itself for Temporary channels, per invariant 4).
func (s *Session) DestroyChannel(name string) {
	key := canonicalChannel(name)
	delete(s.channels, key)
	delete(s.channelUsers, key)
	delete(s.readyChannels, key)
}

// Join adds user to the named channel. It is idempotent: if the user is
// already a member, Join returns the existing Channel and a false
// "created" flag without mutating anything. If the channel does not
// exist, it is created as Temporary in the same step Join adds the first
// member, so a Temporary channel is never observed with zero members.
func (s *Session) Join(u *User, channelName string) (ch *Channel, created bool, err error) {
	if !IsValidChannel(channelName) {
		return nil, false, ErrInvalidChannel
	}

	key := canonicalChannel(channelName)
	ch, exists := s.channels[key]
	if !exists {
		ch, err = s.CreateChannel(channelName, Temporary)
		if err != nil {
			return nil, false, err
		}
		created = true
	}

	userKey := canonicalNick(u.Nickname)
	if _, already := s.channelUsers[key][userKey]; already {
		return ch, false, nil
	}

	if len(s.channelUsers[key]) >= ch.UserCap {
		if created {
			s.DestroyChannel(channelName)
		}
		return nil, false, ErrChannelIsFull
	}

	s.channelUsers[key][userKey] = struct{}{}
	s.userChannels[userKey][key] = struct{}{}
	return ch, created, nil
}

// Leave removes user from the named channel. If the channel is Temporary
// and becomes empty as a result, it is destroyed in the same call
// (invariant 4: "destroyed atomically with its last leave").
func (s *Session) Leave(u *User, channelName string) error {
	key := canonicalChannel(channelName)
	ch, exists := s.channels[key]
	if !exists {
		return ErrNoSuchChannel
	}

	userKey := canonicalNick(u.Nickname)
	if _, member := s.channelUsers[key][userKey]; !member {
		return ErrNotOnChannel
	}

	delete(s.channelUsers[key], userKey)
	delete(s.userChannels[userKey], key)

	if ch.Kind == Temporary && len(s.channelUsers[key]) == 0 {
		s.DestroyChannel(channelName)
	}

	return nil
}

// LeaveAll removes user from every channel it is in, enqueueing farewell
// on each channel first (so the remaining members see it) and then
// applying Leave. The departing user is excluded from each farewell's
// recipient snapshot: a quitting connection never hears its own QUIT.
// Used by QUIT and disconnect handling.
func (s *Session) LeaveAll(u *User, farewell wire.Message) {
	userKey := canonicalNick(u.Nickname)
	names := make([]string, 0, len(s.userChannels[userKey]))
	for key := range s.userChannels[userKey] {
		names = append(names, s.channels[key].Name)
	}

	for _, name := range names {
		s.EnqueueChannelExcept(name, farewell, u.Nickname)
		_ = s.Leave(u, name)
	}
}

// IsMember reports whether u is currently a member of the named channel.
func (s *Session) IsMember(u *User, channelName string) bool {
	key := canonicalChannel(channelName)
	_, member := s.channelUsers[key][canonicalNick(u.Nickname)]
	return member
}

// MemberNicknames returns the current member nicknames of a channel, in
// no particular order; used by JOIN's RPL_NAMREPLY. Fan-out at flush time
// uses each Broadcast's recipient snapshot instead.
func (s *Session) MemberNicknames(channelName string) []string {
	key := canonicalChannel(channelName)
	members := s.channelUsers[key]
	out := make([]string, 0, len(members))
	for nickKey := range members {
		out = append(out, s.users[nickKey].Nickname)
	}
	return out
}

// UserChannelNames returns the names (as given when each channel was
// created, not lower-cased) of every channel user is currently a member
// of.
func (s *Session) UserChannelNames(u *User) []string {
	userKey := canonicalNick(u.Nickname)
	out := make([]string, 0, len(s.userChannels[userKey]))
	for key := range s.userChannels[userKey] {
		out = append(out, s.channels[key].Name)
	}
	return out
}

// Rename changes a registered user's nickname, rejecting the change if
// newNick is already taken. It rewrites the nickname index and every
// channel membership set referencing the old key -- a key-rewrite, never
// a pointer chase.
func (s *Session) Rename(u *User, newNick string) error {
	oldKey := canonicalNick(u.Nickname)
	newKey := canonicalNick(newNick)

	if oldKey == newKey {
		u.Nickname = newNick
		return nil
	}

	if _, exists := s.users[newKey]; exists {
		return ErrNicknameInUse
	}

	s.users[newKey] = u
	delete(s.users, oldKey)

	s.userChannels[newKey] = s.userChannels[oldKey]
	delete(s.userChannels, oldKey)

	for chanKey := range s.userChannels[newKey] {
		delete(s.channelUsers[chanKey], oldKey)
		s.channelUsers[chanKey][newKey] = struct{}{}
	}

	if _, ready := s.readyUsers[oldKey]; ready {
		delete(s.readyUsers, oldKey)
		s.readyUsers[newKey] = struct{}{}
	}

	u.Nickname = newNick
	return nil
}

// MarkUserReady adds nick to the ready list's user set. Idempotent.
func (s *Session) MarkUserReady(nick string) {
	s.readyUsers[canonicalNick(nick)] = struct{}{}
}

// MarkChannelReady adds name to the ready list's channel set. Idempotent.
func (s *Session) MarkChannelReady(name string) {
	s.readyChannels[canonicalChannel(name)] = struct{}{}
}

// TakeReadyUsers returns every User with a non-empty OutQueue and clears
// the ready set. Order is unspecified.
func (s *Session) TakeReadyUsers() []*User {
	out := make([]*User, 0, len(s.readyUsers))
	for key := range s.readyUsers {
		if u, ok := s.users[key]; ok {
			out = append(out, u)
		}
	}
	s.readyUsers = make(map[string]struct{})
	return out
}

// TakeReadyChannels returns every Channel with a non-empty OutQueue and
// clears the ready set. Order is unspecified.
func (s *Session) TakeReadyChannels() []*Channel {
	out := make([]*Channel, 0, len(s.readyChannels))
	for key := range s.readyChannels {
		if ch, ok := s.channels[key]; ok {
			out = append(out, ch)
		}
	}
	s.readyChannels = make(map[string]struct{})
	return out
}

// EnqueueUser pushes msg onto nick's OutQueue and marks it ready. It is a
// no-op if nick isn't registered (e.g. a race between QUIT and an
// in-flight broadcast).
func (s *Session) EnqueueUser(nick string, msg wire.Message) {
	u, ok := s.LookupUser(nick)
	if !ok {
		return
	}
	u.OutQueue.Push(msg)
	s.MarkUserReady(nick)
}

// EnqueueChannel pushes msg onto the named channel's OutQueue once,
// recording the membership snapshot at enqueue time, and marks the
// channel ready. The flush step (engine.go) fans the single queued entry
// out to exactly that snapshot, never to later joiners.
func (s *Session) EnqueueChannel(channelName string, msg wire.Message) {
	s.enqueueChannel(channelName, msg, "")
}

// EnqueueChannelExcept is EnqueueChannel with one member excluded from
// the recipient snapshot -- the message's originator, who either gets an
// explicit echo through its own user queue (JOIN, PART, NICK, TOPIC) or
// none at all (PRIVMSG, QUIT).
func (s *Session) EnqueueChannelExcept(channelName string, msg wire.Message, exceptNick string) {
	s.enqueueChannel(channelName, msg, canonicalNick(exceptNick))
}

func (s *Session) enqueueChannel(channelName string, msg wire.Message, exceptKey string) {
	ch, ok := s.LookupChannel(channelName)
	if !ok {
		return
	}

	chanKey := canonicalChannel(channelName)
	recipients := make([]string, 0, len(s.channelUsers[chanKey]))
	for nickKey := range s.channelUsers[chanKey] {
		if nickKey == exceptKey {
			continue
		}
		recipients = append(recipients, nickKey)
	}

	ch.OutQueue.Push(Broadcast{Msg: msg, Recipients: recipients})
	s.MarkChannelReady(channelName)
}
