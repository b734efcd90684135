// Package console implements spec.md §4.9: the interactive keyboard
// command console polled once per 100 ms by the supervisor.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// pollInterval is the fixed "at most one key per 100 ms" cadence spec.md
// §4.9 names.
const pollInterval = 100 * time.Millisecond

// Terminal is the narrow contract the console needs from the terminal
// controller (internal/term.Controller satisfies this): a non-blocking
// key read, and the raw-mode/echo toggle used around the 'c'/'C' prompt.
type Terminal interface {
	ReadByte() int
	RestoreTTY()
	EnableRawModeIfInteractive(fd int, wantInteractive bool) error
}

// Command is a parsed 'c'/'C' console command (spec.md §4.9).
type Command struct {
	Target  string // a filter-graph target name, or "all"
	Command string
	Arg     string
	// AtUs is the future fire time in Unix microseconds, or -1 for
	// "send immediately".
	AtUs int64
}

// Console drives keyboard polling and command dispatch.
type Console struct {
	Term    Terminal
	StdinFD int
	Stdin   io.Reader // source for the blocking prompt read; defaults to os.Stdin by the caller

	// Dispatch sends a parsed command to every matching filter graph;
	// the console itself does not know how targets resolve to graphs.
	Dispatch func(cmd Command) error
	// Help prints the '?' help screen.
	Help func()
	// LogLevel is raised/lowered by ten on '+'/'-'.
	LogLevel *atomic.Int32

	now      func() time.Time
	lastPoll time.Time
}

// New returns a Console ready to poll term for key presses.
func New(term Terminal, stdin io.Reader, logLevel *atomic.Int32) *Console {
	return &Console{
		Term:     term,
		Stdin:    stdin,
		LogLevel: logLevel,
		now:      time.Now,
	}
}

func (c *Console) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

// Poll reads at most one key every 100 ms and reports whether the user
// requested the transcode stop ('q'). Calls inside the 100 ms window are
// no-ops (spec.md §4.9).
func (c *Console) Poll(ctx context.Context) bool {
	now := c.clock()
	if !c.lastPoll.IsZero() && now.Sub(c.lastPoll) < pollInterval {
		return false
	}
	c.lastPoll = now

	if c.Term == nil {
		return false
	}
	b := c.Term.ReadByte()
	if b < 0 {
		return false
	}
	return c.handleKey(byte(b))
}

func (c *Console) handleKey(key byte) bool {
	switch key {
	case 'q':
		return true
	case '+':
		if c.LogLevel != nil {
			c.LogLevel.Add(10)
		}
	case '-':
		if c.LogLevel != nil {
			c.LogLevel.Add(-10)
		}
	case '?':
		if c.Help != nil {
			c.Help()
		}
	case 'c', 'C':
		c.promptAndDispatch(key == 'C')
	}
	return false
}

// promptAndDispatch enables TTY echo, blocks for one line of input,
// disables echo again, parses it, and dispatches it (spec.md §4.9).
func (c *Console) promptAndDispatch(broadcastForm bool) {
	if c.Term != nil {
		c.Term.RestoreTTY()
	}
	line, err := c.readLine()
	if c.Term != nil {
		_ = c.Term.EnableRawModeIfInteractive(c.StdinFD, true)
	}
	if err != nil {
		return
	}

	cmd, err := ParseCommand(line, c.clock(), broadcastForm)
	if err != nil || cmd == nil {
		return
	}
	if c.Dispatch != nil {
		_ = c.Dispatch(*cmd)
	}
}

func (c *Console) readLine() (string, error) {
	if c.Stdin == nil {
		return "", io.EOF
	}
	r := bufio.NewReader(c.Stdin)
	line, err := r.ReadString('\n')
	return strings.TrimRight(line, "\r\n"), err
}

// ParseCommand parses the `<target>|all <time>|-1 <command>[ <arg>]`
// grammar (spec.md §4.9). A timeSpec of "-1" means send immediately
// (valid for both the one-shot 'c' and broadcast 'C' forms). Any other
// timeSpec is a standard 5-field cron expression (five whitespace-separated
// tokens, or a single '@' descriptor token) naming the next future fire
// time, and is only valid when broadcastForm is true — queueing with the
// one-shot 'c' form is rejected.
func ParseCommand(raw string, now time.Time, broadcastForm bool) (*Command, error) {
	fields := strings.Fields(raw)
	if len(fields) < 3 {
		return nil, fmt.Errorf("console: expected '<target>|all <time> <command>[ <arg>]', got %q", raw)
	}

	target, timeSpec, commandName := fields[0], fields[1], fields[2]
	arg := strings.Join(fields[3:], " ")

	cmd := &Command{Target: target, Command: commandName, Arg: arg}

	if timeSpec == "-1" {
		cmd.AtUs = -1
		return cmd, nil
	}

	if !broadcastForm {
		return nil, fmt.Errorf("console: queueing a future time is only valid with the broadcast ('C') command")
	}

	cronFields := 5
	if strings.HasPrefix(timeSpec, "@") {
		cronFields = 1
	}
	if len(fields) < 2+cronFields {
		return nil, fmt.Errorf("console: expected '<target>|all <cron expr> <command>[ <arg>]', got %q", raw)
	}
	timeSpec = strings.Join(fields[1:1+cronFields], " ")
	cmd.Command = fields[1+cronFields]
	cmd.Arg = strings.Join(fields[2+cronFields:], " ")

	schedule, err := cron.ParseStandard(timeSpec)
	if err != nil {
		return nil, fmt.Errorf("console: invalid future-time expression %q: %w", timeSpec, err)
	}
	cmd.AtUs = schedule.Next(now).UnixMicro()
	return cmd, nil
}

// DefaultHelpText is the fixed '?' help screen (spec.md §4.9).
const DefaultHelpText = `
q       quit
+       increase log verbosity
-       decrease log verbosity
?       show this help
c       send a one-shot command to a filter graph now
C       send or queue a command to a filter graph
`
