// Package console is an interactive operator prompt over the running
// session: send messages, grant roles, reconnect, inspect counters and tail
// the event stream.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/chzyer/readline"

	"github.com/sipeed/discordant/pkg/bridge"
	"github.com/sipeed/discordant/pkg/bus"
	"github.com/sipeed/discordant/pkg/logger"
)

// ErrQuit is returned by Exec for the quit command.
var ErrQuit = errors.New("console: quit")

// Session is the part of the gateway session the console drives.
type Session interface {
	bridge.Sender
	Reconnect() error
}

// StatsFunc returns a component's counters.
type StatsFunc func() interface{}

type Console struct {
	session    Session
	bus        *bus.MessageBus
	stats      map[string]StatsFunc
	tailing    atomic.Bool
	isTerminal func() bool
}

// Option configures a Console.
type Option func(*Console)

// WithStats registers counters printed by the stats command.
func WithStats(name string, fn StatsFunc) Option {
	return func(c *Console) { c.stats[name] = fn }
}

func New(session Session, mb *bus.MessageBus, opts ...Option) *Console {
	c := &Console{
		session:    session,
		bus:        mb,
		stats:      make(map[string]StatsFunc),
		isTerminal: readline.DefaultIsTerminal,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

const help = `commands:
  say <channel-id> <text>          send a message
  role <guild-id> <user-id> <role-id>  add a role to a member
  reconnect                        restart the gateway session
  stats                            print pipeline counters
  tail on|off                      print every event as it is consumed
  help                             this text
  quit                             stop discordant`

// Exec runs one command line and returns its output.
func (c *Console) Exec(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}

	switch cmd, args := fields[0], fields[1:]; cmd {
	case "say":
		if len(args) < 2 {
			return "", errors.New("usage: say <channel-id> <text>")
		}
		// Keep the text as typed, including inner spacing.
		rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), cmd))
		text := strings.TrimSpace(rest[strings.IndexFunc(rest, unicode.IsSpace):])
		if err := c.session.SendText(args[0], text); err != nil {
			return "", err
		}
		return "sent", nil

	case "role":
		if len(args) != 3 {
			return "", errors.New("usage: role <guild-id> <user-id> <role-id>")
		}
		if err := c.session.AddRole(args[0], args[1], args[2]); err != nil {
			return "", err
		}
		return "role added", nil

	case "reconnect":
		logger.InfoC("console", "Reconnecting session")
		if err := c.session.Reconnect(); err != nil {
			return "", err
		}
		return "reconnected", nil

	case "stats":
		return c.formatStats(), nil

	case "tail":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return "", errors.New("usage: tail on|off")
		}
		c.tailing.Store(args[0] == "on")
		return "tail " + args[0], nil

	case "help", "?":
		return help, nil

	case "quit", "exit":
		return "", ErrQuit

	default:
		return "", fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

func (c *Console) formatStats() string {
	names := make([]string, 0, len(c.stats))
	for name := range c.stats {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		fmt.Fprintf(&sb, "%-9s %+v\n", name+":", c.stats[name]())
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Run reads commands until quit, EOF or ctx is done. Quit and EOF return
// ErrQuit so the caller can shut the process down. Without a terminal on
// stdin there is no operator, so Run returns nil straight away and the
// process keeps running headless.
func (c *Console) Run(ctx context.Context) error {
	if !c.isTerminal() {
		logger.InfoC("console", "Stdin is not a terminal, console disabled")
		return nil
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "discordant> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("console: %w", err)
	}
	defer rl.Close()

	go c.watch(ctx, rl.Stdout())

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		for {
			line, err := rl.Readline()
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if err != nil {
				readErr <- err
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return ErrQuit
			}
			return fmt.Errorf("console: %w", err)
		case line := <-lines:
			out, err := c.Exec(line)
			if errors.Is(err, ErrQuit) {
				return ErrQuit
			}
			if err != nil {
				fmt.Fprintln(rl.Stderr(), "error:", err)
				continue
			}
			if out != "" {
				fmt.Fprintln(rl.Stdout(), out)
			}
		}
	}
}

// watch prints system events, and every event while tailing.
func (c *Console) watch(ctx context.Context, w io.Writer) {
	system := c.bus.SubscribeSystem("console")
	tap := c.bus.SubscribeEventTap("console")
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-system:
			if !ok {
				return
			}
			fmt.Fprintf(w, "[%s] %s: %v\n", evt.Source, evt.Type, evt.Data)
		case msg, ok := <-tap:
			if !ok {
				return
			}
			if c.tailing.Load() {
				fmt.Fprintf(w, "event %s\n", msg.Kind())
			}
		}
	}
}
