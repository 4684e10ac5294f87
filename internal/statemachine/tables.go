package statemachine

// ClientTable is the client-role state table. Commands are the local,
// lower-case commands a user types (see internal/ircc), not wire
// commands.
func ClientTable() *Table {
	return NewTable(
		map[State][]State{
			Disconnected:      {Connected},
			Connected:         {StartRegistration, Disconnected},
			StartRegistration: {Registered, Disconnected},
			Registered:        {InChannel, Disconnected},
			InChannel:         {Registered, Disconnected},
		},
		map[State][]string{
			Disconnected: {"help", "nick", "user", "connect", "address", "port", "quit"},
			Connected:    {"help", "nick", "disconnect", "address", "port", "quit"},
			StartRegistration: {
				"help", "user", "disconnect", "address", "port", "quit",
			},
			Registered: {
				"help", "nick", "join", "privmsg", "msg", "disconnect", "whois", "quit",
			},
			InChannel: {
				"help", "nick", "join", "privmsg", "msg", "part", "disconnect",
				"whois", "quit",
			},
		},
	)
}

// ServerTable is the server's view of a connecting client's state, keyed
// by the wire commands the server will accept from a client in that
// state.
func ServerTable() *Table {
	return NewTable(
		map[State][]State{
			Disconnected:      {Connected},
			Connected:         {StartRegistration, Disconnected},
			StartRegistration: {Registered, Disconnected},
			Registered:        {InChannel, Disconnected},
			InChannel:         {Registered, Disconnected},
		},
		map[State][]string{
			Disconnected:      {"NICK", "USER", "QUIT"},
			Connected:         {"NICK", "USER", "QUIT"},
			StartRegistration: {"NICK", "USER", "QUIT"},
			// USER stays admissible after registration so the handler can
			// answer it with ERR_ALREADYREGISTRED instead of the state
			// machine's blanket ERR_NOTREGISTERED.
			Registered: {
				"NICK", "USER", "JOIN", "PRIVMSG", "PART", "QUIT", "WHOIS", "TOPIC",
				"PING", "PONG",
			},
			InChannel: {
				"NICK", "USER", "JOIN", "PRIVMSG", "PART", "QUIT", "WHOIS", "TOPIC",
				"PING", "PONG",
			},
		},
	)
}
