package ircd

import (
	"fmt"
	"strings"

	"github.com/horgh/ircrelay/internal/command"
	"github.com/horgh/ircrelay/internal/statemachine"
	"github.com/horgh/ircrelay/internal/wire"
)

// HandleLine parses one complete frame from c and dispatches it to the
// matching handler. Handlers never panic on wire-originated input; a
// line that doesn't parse into a command is silently ignored.
func (e *Engine) HandleLine(c *Client, line string) {
	cmd, ok := command.Parse(line)
	if !ok {
		return
	}

	name := strings.ToUpper(cmd.Name)

	if !statemachine.ServerTable().Allows(c.State, name) {
		// A command the state machine doesn't admit in the current state
		// gets ERR_NOTREGISTERED without advancing state, except QUIT,
		// which closes silently regardless of state.
		if name == "QUIT" {
			e.quitCommand(c, cmd)
			return
		}
		e.numeric(c, ErrNotRegistered, "You have not registered")
		return
	}

	switch name {
	case "NICK":
		e.nickCommand(c, cmd)
	case "USER":
		e.userCommand(c, cmd)
	case "JOIN":
		e.joinCommand(c, cmd)
	case "PART":
		e.partCommand(c, cmd)
	case "PRIVMSG":
		e.privmsgCommand(c, cmd)
	case "QUIT":
		e.quitCommand(c, cmd)
	case "WHOIS":
		e.whoisCommand(c, cmd)
	case "TOPIC":
		e.topicCommand(c, cmd)
	case "PING":
		e.pingCommand(c, cmd)
	case "PONG":
		// Nothing to do; receiving one just counts as activity.
	default:
		e.replyLine(c, wire.Line{
			Command:           "NOTICE",
			Body:              []string{"*"},
			Trailing:          fmt.Sprintf("Unknown command: %s", cmd.Name),
			HasTrailing:       true,
			TrailingHasSpaces: true,
		})
	}
}

// nickCommand handles NICK: validation, collision checks, and the
// rename broadcast once registered.
func (e *Engine) nickCommand(c *Client, cmd command.Command) {
	args := cmd.AllArgs()
	if len(args) == 0 {
		e.numeric(c, ErrNoNickGiven, "No nickname given")
		return
	}
	nick := args[0]

	if !IsValidNick(nick) {
		e.numeric(c, ErrErroneusNick, nick, "Erroneous nickname")
		return
	}

	// A registered user changing only the case of their own nickname
	// collides with themselves in the index; that is not "in use".
	if existing, exists := e.Session.LookupUser(nick); exists {
		if !c.IsRegistered() ||
			canonicalNick(existing.Nickname) != canonicalNick(c.RegisteredNick()) {
			e.numeric(c, ErrNickInUse, nick, "Nickname is already in use")
			return
		}
	}

	if !c.IsRegistered() {
		// Recorded on the client only; no broadcast until USER completes
		// registration. Setting the nickname is what starts registration.
		c.Nickname = nick
		e.Transition(c, statemachine.StartRegistration)
		return
	}

	u, _ := e.Session.LookupUser(c.RegisteredNick())
	old := u.NickUhost()

	if err := e.Session.Rename(u, nick); err != nil {
		e.numeric(c, ErrNickInUse, nick, "Nickname is already in use")
		return
	}
	c.Nickname = nick
	c.SetRegisteredNick(nick)

	notice, _ := wire.Line{
		Prefix:      old,
		Command:     "NICK",
		Trailing:    nick,
		HasTrailing: true,
	}.ToMessage(wire.Relay, wire.PriorityNormal)

	// One echo to the renamer, one broadcast per channel to everyone
	// else. Excluding the renamer from the channel snapshots keeps the
	// echo single even when the user is in several channels.
	e.Session.EnqueueUser(nick, notice)
	for _, chanName := range e.Session.UserChannelNames(u) {
		e.Session.EnqueueChannelExcept(chanName, notice, nick)
	}
}

// userCommand handles USER, completing registration.
func (e *Engine) userCommand(c *Client, cmd command.Command) {
	if c.IsRegistered() {
		e.numeric(c, ErrAlreadyReg, "Unauthorized command (already registered)")
		return
	}

	if c.Nickname == "" {
		e.numeric(c, ErrNotRegistered, "You have not registered")
		return
	}

	args := cmd.AllArgs()
	if len(args) < 4 {
		e.numeric(c, ErrNeedMoreParams, "USER", "Not enough parameters")
		return
	}

	hostname := c.Identifier
	u := &User{
		Nickname: c.Nickname,
		Username: args[0],
		Hostname: hostname,
		RealName: args[3],
		ClientID: c.Fd,
	}

	if err := e.Session.RegisterUser(u); err != nil {
		e.numeric(c, ErrNickInUse, c.Nickname, "Nickname is already in use")
		return
	}

	c.SetRegisteredNick(u.Nickname)
	e.Transition(c, statemachine.Registered)

	e.numeric(c, RplWelcome, fmt.Sprintf("Welcome to the IRC Network %s", u.NickUhost()))
}

// joinCommand handles JOIN, creating the channel as Temporary on its
// first joiner.
func (e *Engine) joinCommand(c *Client, cmd command.Command) {
	args := cmd.AllArgs()
	if len(args) == 0 {
		e.numeric(c, ErrNeedMoreParams, "JOIN", "Not enough parameters")
		return
	}

	channelName := args[0]
	if !IsValidChannel(channelName) {
		e.numeric(c, ErrBadChanName, channelName, "Invalid channel name")
		return
	}

	u, _ := e.Session.LookupUser(c.RegisteredNick())

	// Idempotent: a repeated JOIN neither duplicates membership nor
	// enqueues a second broadcast.
	if e.Session.IsMember(u, channelName) {
		return
	}

	ch, _, err := e.Session.Join(u, channelName)
	if err != nil {
		switch err {
		case ErrChannelIsFull:
			e.numeric(c, ErrChannelFull, channelName, "Cannot join channel (+l)")
		default:
			e.numeric(c, ErrBadChanName, channelName, "Invalid channel name")
		}
		return
	}

	joinMsg, _ := wire.Line{
		Prefix:  u.NickUhost(),
		Command: "JOIN",
		Body:    []string{ch.Name},
	}.ToMessage(wire.Relay, wire.PriorityNormal)

	// The joiner's own JOIN goes through its user queue, ahead of the
	// topic and names numerics, so the new member sees the join confirmed
	// before the replies describing the channel. Existing members get it
	// via the channel queue.
	e.Session.EnqueueUser(u.Nickname, joinMsg)
	e.Session.EnqueueChannelExcept(ch.Name, joinMsg, u.Nickname)

	if ch.Topic == "" {
		e.numeric(c, RplNoTopic, ch.Name, "No topic is set")
	} else {
		e.numeric(c, RplTopic, ch.Name, ch.Topic)
	}

	names := strings.Join(e.Session.MemberNicknames(ch.Name), " ")
	e.numeric(c, RplNamReply, "=", ch.Name, names)
	e.numeric(c, RplEndOfNames, ch.Name, "End of NAMES list")

	e.Transition(c, statemachine.InChannel)
}

// partCommand handles PART, destroying a Temporary channel that empties.
func (e *Engine) partCommand(c *Client, cmd command.Command) {
	args := cmd.AllArgs()
	if len(args) == 0 {
		e.numeric(c, ErrNeedMoreParams, "PART", "Not enough parameters")
		return
	}
	channelName := args[0]
	partMsg := ""
	if len(args) >= 2 {
		partMsg = args[1]
	}

	ch, exists := e.Session.LookupChannel(channelName)
	if !exists {
		e.numeric(c, ErrNoSuchChan, channelName, "No such channel")
		return
	}

	u, _ := e.Session.LookupUser(c.RegisteredNick())
	if !e.Session.IsMember(u, channelName) {
		e.numeric(c, ErrNotOnChan, ch.Name, "You're not on that channel")
		return
	}

	msg, _ := wire.Line{
		Prefix:            u.NickUhost(),
		Command:           "PART",
		Body:              []string{ch.Name},
		HasTrailing:       partMsg != "",
		Trailing:          partMsg,
		TrailingHasSpaces: true,
	}.ToMessage(wire.Relay, wire.PriorityNormal)

	// Echo to the parting user through its own queue: the channel queue
	// dies with the channel when the last member leaves a Temporary one,
	// and the user is no longer in the membership snapshot after Leave.
	e.Session.EnqueueUser(u.Nickname, msg)
	e.Session.EnqueueChannelExcept(ch.Name, msg, u.Nickname)

	_ = e.Session.Leave(u, channelName)

	if len(e.Session.UserChannelNames(u)) == 0 {
		e.Transition(c, statemachine.Registered)
	}
}

// privmsgCommand handles PRIVMSG to a channel or a nick.
func (e *Engine) privmsgCommand(c *Client, cmd command.Command) {
	args := cmd.AllArgs()
	if len(args) < 2 {
		e.numeric(c, ErrNeedMoreParams, "PRIVMSG", "Not enough parameters")
		return
	}

	target := args[0]
	text := args[1]
	u, _ := e.Session.LookupUser(c.RegisteredNick())

	if strings.HasPrefix(target, "#") {
		ch, exists := e.Session.LookupChannel(target)
		if !exists {
			e.numeric(c, ErrNoSuchChan, target, "No such channel")
			return
		}
		if !e.Session.IsMember(u, target) {
			e.numeric(c, ErrNotOnChan, target, "You're not on that channel")
			return
		}

		msg, _ := wire.Line{
			Prefix:            u.NickUhost(),
			Command:           "PRIVMSG",
			Body:              []string{ch.Name},
			Trailing:          text,
			HasTrailing:       true,
			TrailingHasSpaces: true,
		}.ToMessage(wire.Relay, wire.PriorityNormal)

		// The sender is excluded from the snapshot: no echo.
		e.Session.EnqueueChannelExcept(ch.Name, msg, u.Nickname)
		return
	}

	targetUser, exists := e.Session.LookupUser(target)
	if !exists {
		e.numeric(c, ErrNoSuchNick, target, "No such nick/channel")
		return
	}

	msg, _ := wire.Line{
		Prefix:            u.NickUhost(),
		Command:           "PRIVMSG",
		Body:              []string{targetUser.Nickname},
		Trailing:          text,
		HasTrailing:       true,
		TrailingHasSpaces: true,
	}.ToMessage(wire.Relay, wire.PriorityNormal)
	e.Session.EnqueueUser(targetUser.Nickname, msg)
}

// quitCommand handles QUIT: not registered means a silent close;
// otherwise farewell every channel, then unregister.
func (e *Engine) quitCommand(c *Client, cmd command.Command) {
	msg := "Client quit"
	if args := cmd.AllArgs(); len(args) > 0 {
		msg = args[0]
	}

	if !c.IsRegistered() {
		e.Transition(c, statemachine.Disconnected)
		return
	}

	u, _ := e.Session.LookupUser(c.RegisteredNick())

	quitMsg, _ := wire.Line{
		Prefix:            u.NickUhost(),
		Command:           "QUIT",
		Trailing:          msg,
		HasTrailing:       true,
		TrailingHasSpaces: true,
	}.ToMessage(wire.Relay, wire.PriorityNormal)

	e.Session.LeaveAll(u, quitMsg)
	e.Session.UnregisterUser(u.Nickname)
	c.SetRegisteredNick("")
	e.Transition(c, statemachine.Disconnected)
}

// pingCommand answers a client-originated PING with PONG.
func (e *Engine) pingCommand(c *Client, cmd command.Command) {
	arg := e.ServerName
	if args := cmd.AllArgs(); len(args) > 0 {
		arg = args[0]
	}
	e.replyLine(c, wire.Line{
		Command:     "PONG",
		Trailing:    arg,
		HasTrailing: true,
	})
}

// whoisCommand handles WHOIS <nick>.
func (e *Engine) whoisCommand(c *Client, cmd command.Command) {
	args := cmd.AllArgs()
	if len(args) == 0 {
		e.numeric(c, ErrNoNickGiven, "No nickname given")
		return
	}

	target, exists := e.Session.LookupUser(args[0])
	if !exists {
		e.numeric(c, ErrNoSuchNick, args[0], "No such nick/channel")
		return
	}

	e.numeric(c, RplWhoisUser, target.Nickname, target.Username, target.Hostname, "*", target.RealName)

	channels := strings.Join(e.Session.UserChannelNames(target), " ")
	if channels != "" {
		e.numeric(c, RplWhoisChans, target.Nickname, channels)
	}

	e.numeric(c, RplEndOfWhois, target.Nickname, "End of WHOIS list")
}

// topicCommand handles TOPIC: view with one argument, set with two. Any
// member may set the topic; there is no operator model.
func (e *Engine) topicCommand(c *Client, cmd command.Command) {
	args := cmd.AllArgs()
	if len(args) == 0 {
		e.numeric(c, ErrNeedMoreParams, "TOPIC", "Not enough parameters")
		return
	}

	ch, exists := e.Session.LookupChannel(args[0])
	if !exists {
		e.numeric(c, ErrNoSuchChan, args[0], "No such channel")
		return
	}

	u, _ := e.Session.LookupUser(c.RegisteredNick())
	if !e.Session.IsMember(u, ch.Name) {
		e.numeric(c, ErrNotOnChan, ch.Name, "You're not on that channel")
		return
	}

	if len(args) < 2 {
		if ch.Topic == "" {
			e.numeric(c, RplNoTopic, ch.Name, "No topic is set")
			return
		}
		e.numeric(c, RplTopic, ch.Name, ch.Topic)
		return
	}

	ch.Topic = args[1]

	msg, _ := wire.Line{
		Prefix:            u.NickUhost(),
		Command:           "TOPIC",
		Body:              []string{ch.Name},
		Trailing:          ch.Topic,
		HasTrailing:       true,
		TrailingHasSpaces: true,
	}.ToMessage(wire.Relay, wire.PriorityNormal)

	e.Session.EnqueueUser(u.Nickname, msg)
	e.Session.EnqueueChannelExcept(ch.Name, msg, u.Nickname)
}
