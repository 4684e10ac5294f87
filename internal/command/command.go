// Package command implements the input-line parser: "CMD [arg1 [arg2
// ...]] [:trailing text possibly with spaces]". It follows
// github.com/horgh/irc's tokenising rules for the wire grammar,
// generalised to also accept the leading "/" a terminal client strips
// off a typed line.
package command

import "strings"

// MaxTokens bounds how many space-separated tokens Parse will produce
// before treating the rest of the line as a single trailing argument.
const MaxTokens = 15

// Command is a parsed input line: a label and its arguments. Trailing
// holds the final ":"-introduced argument verbatim, including any
// embedded spaces; HasTrailing distinguishes "no trailing argument" from
// "trailing argument is empty".
type Command struct {
	Name        string
	Args        []string
	Trailing    string
	HasTrailing bool
}

// UnknownCommand is the empty label. Parse never returns it: a line with
// no command name yields ok=false instead. Callers compare Name against
// their own label table; this package does not know what commands exist,
// only how to tokenise a line.
const UnknownCommand = ""

// Parse tokenises a raw input line into a Command. A leading "/" (as
// typed by a terminal client user) is stripped before anything else. An
// empty, all-whitespace line yields the zero Command and ok=false.
func Parse(line string) (Command, bool) {
	line = strings.TrimPrefix(strings.TrimRight(line, " "), "/")
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, false
	}

	var c Command
	remaining := line

	for i := 0; i < MaxTokens-1; i++ {
		remaining = strings.TrimLeft(remaining, " ")
		if remaining == "" {
			break
		}

		if remaining[0] == ':' {
			c.Trailing = remaining[1:]
			c.HasTrailing = true
			remaining = ""
			break
		}

		idx := strings.IndexByte(remaining, ' ')
		var token string
		if idx == -1 {
			token = remaining
			remaining = ""
		} else {
			token = remaining[:idx]
			remaining = remaining[idx+1:]
		}

		if i == 0 {
			c.Name = token
			continue
		}
		c.Args = append(c.Args, token)
	}

	// Whatever didn't fit in MaxTokens-1 tokens and wasn't consumed as a
	// trailing argument becomes the trailing argument verbatim, still
	// honouring a leading ':'.
	if remaining != "" && !c.HasTrailing {
		remaining = strings.TrimLeft(remaining, " ")
		c.Trailing = strings.TrimPrefix(remaining, ":")
		c.HasTrailing = true
	}

	if c.Name == "" {
		return Command{}, false
	}

	return c, true
}

// AllArgs returns Args with Trailing appended, if present -- convenient
// for handlers that don't care whether the final argument arrived as a
// plain token or a trailing argument (e.g. a one-word PART message).
func (c Command) AllArgs() []string {
	if !c.HasTrailing {
		return c.Args
	}
	return append(append([]string{}, c.Args...), c.Trailing)
}
