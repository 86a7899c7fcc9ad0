package server

import (
	"fmt"
	"slices"
	"strings"

	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/events"
	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/protocol"
)

// CommandHandler is the signature for chat command implementations.
type CommandHandler func(s *Server, sess *Session, args string)

// Command represents a registered slash command.
type Command struct {
	Name    string
	Usage   string
	Handler CommandHandler
}

// InitCommands registers all available chat commands.
func InitCommands() map[string]*Command {
	cmds := make(map[string]*Command)

	register := func(name, usage string, handler CommandHandler) {
		cmds[strings.ToLower(name)] = &Command{Name: name, Usage: usage, Handler: handler}
	}

	register("me", "/me <action>", cmdMe)
	register("msg", "/msg <player> <message>", cmdMsg)
	register("tell", "/tell <player> <message>", cmdMsg)
	register("players", "/players", cmdPlayers)
	register("clients", "/clients", cmdClients)
	register("rules", "/rules", cmdRules)
	register("help", "/help", cmdHelp)

	return cmds
}

// DispatchCommand handles one line of client chat: slash commands run their
// handler, anything else is relayed to every player.
func DispatchCommand(s *Server, sess *Session, input string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return
	}
	if input[0] != '/' || strings.HasPrefix(input, "//") {
		// "//" escapes a chat line that starts with a slash.
		if strings.HasPrefix(input, "//") {
			input = input[1:]
		}
		cmdSay(s, sess, input)
		return
	}

	// Split command and args
	var cmdName, args string
	input = input[1:]
	if spaceIdx := strings.IndexByte(input, ' '); spaceIdx >= 0 {
		cmdName = input[:spaceIdx]
		args = strings.TrimSpace(input[spaceIdx+1:])
	} else {
		cmdName = input
	}

	if cmd, ok := s.Commands[strings.ToLower(cmdName)]; ok {
		cmd.Handler(s, sess, args)
		return
	}
	sess.SendMessage(protocol.MessageChat, fmt.Sprintf("&wUnknown command: /%s. Type /help for a list.", cmdName))
}

// --- Communication Commands ---

func cmdSay(s *Server, sess *Session, text string) {
	s.Bus.Broadcast(events.Event{
		Type:   events.EvChat,
		Source: sess.Name(),
		Text:   fmt.Sprintf("&y%s: &f%s", sess.Name(), text),
	})
}

func cmdMe(s *Server, sess *Session, args string) {
	if args == "" {
		sess.SendMessage(protocol.MessageChat, "&sUsage: /me <action>")
		return
	}
	s.Bus.Broadcast(events.Event{
		Type:   events.EvChat,
		Source: sess.Name(),
		Text:   fmt.Sprintf("&m* %s %s", sess.Name(), args),
	})
}

func cmdMsg(s *Server, sess *Session, args string) {
	target, text, _ := strings.Cut(args, " ")
	text = strings.TrimSpace(text)
	if target == "" || text == "" {
		sess.SendMessage(protocol.MessageChat, "&sUsage: /msg <player> <message>")
		return
	}
	other, ok := s.Conns.Get(target)
	if !ok {
		sess.SendMessage(protocol.MessageChat, fmt.Sprintf("&wPlayer %s is not online.", target))
		return
	}
	s.Bus.EmitToPlayer(other.Name(), events.Event{
		Type:   events.EvPrivate,
		Source: sess.Name(),
		Text:   fmt.Sprintf("&p[%s > you] %s", sess.Name(), text),
	})
	sess.SendMessage(protocol.MessageChat, fmt.Sprintf("&p[you > %s] %s", other.Name(), text))
}

// --- Information Commands ---

func cmdPlayers(s *Server, sess *Session, _ string) {
	names := s.Conns.Players()
	slices.SortFunc(names, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	sess.SendMessage(protocol.MessageChat,
		fmt.Sprintf("&sPlayers online (%d): &f%s", len(names), strings.Join(names, ", ")))
}

func cmdClients(s *Server, sess *Session, _ string) {
	byApp := make(map[string][]string)
	for _, other := range s.Conns.AllSessions() {
		if other.State() != ConnPlaying {
			continue
		}
		app := other.Caps().AppName
		if app == "" {
			app = "(vanilla)"
		}
		byApp[app] = append(byApp[app], other.Name())
	}
	apps := make([]string, 0, len(byApp))
	for app := range byApp {
		apps = append(apps, app)
	}
	slices.Sort(apps)

	var b strings.Builder
	b.WriteString("&sPlayers using:")
	for _, app := range apps {
		names := byApp[app]
		slices.Sort(names)
		fmt.Fprintf(&b, "\n&s%s: &f%s", app, strings.Join(names, ", "))
	}
	// Leading spaces on a line are dropped; the prefix does the indenting.
	sess.SendPrefixed("    ", protocol.MessageChat, b.String())
}

func cmdRules(s *Server, sess *Session, _ string) {
	rules := s.Texts.GetRules()
	if rules == "" {
		sess.SendMessage(protocol.MessageChat, "&sNo rules have been set.")
		return
	}
	sess.SendMessage(protocol.MessageChat, rules)
}

func cmdHelp(s *Server, sess *Session, _ string) {
	seen := make(map[*Command]bool)
	var usages []string
	for _, cmd := range s.Commands {
		if !seen[cmd] {
			seen[cmd] = true
			usages = append(usages, cmd.Usage)
		}
	}
	slices.Sort(usages)
	sess.SendMessage(protocol.MessageChat, "&hCommands: &f"+strings.Join(usages, ", "))
}
