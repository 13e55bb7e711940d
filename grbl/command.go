package grbl

import "strings"

// Kind says how a command is scheduled.
type Kind int

const (
	// KindQueued commands are plain program lines.
	KindQueued Kind = iota
	// KindImmediate commands preempt queued work.
	KindImmediate
)

func (k Kind) String() string {
	if k == KindImmediate {
		return "immediate"
	}
	return "queued"
}

// Realtime commands understood by Grbl.
const (
	CmdStatus    = "?"
	CmdFeedHold  = "!"
	CmdResume    = "~"
	CmdSoftReset = "\x18"
)

// A Command is a single line sent to the controller.
type Command struct {
	Text string
	Kind Kind
}

// ParseCommand normalizes text and classifies it.
func ParseCommand(text string) Command {
	t := strings.ToUpper(strings.TrimSpace(text))
	switch {
	case t == CmdStatus, t == CmdFeedHold, t == CmdResume:
		return Command{Text: t, Kind: KindImmediate}
	case strings.HasPrefix(t, "$"):
		return Command{Text: t, Kind: KindImmediate}
	}
	return Command{Text: t, Kind: KindQueued}
}

// IsRealtime reports whether the command is a single realtime byte.
func (c Command) IsRealtime() bool {
	switch c.Text {
	case CmdStatus, CmdFeedHold, CmdResume:
		return true
	}
	return false
}

// IsSystem reports whether the command is a `$` system command.
func (c Command) IsSystem() bool { return strings.HasPrefix(c.Text, "$") }

// payload returns the bytes written to the device. Realtime commands
// are sent bare; everything else is newline terminated.
func (c Command) payload() []byte {
	if c.IsRealtime() {
		return []byte(c.Text)
	}
	return []byte(c.Text + "\n")
}

func (c Command) String() string { return c.Text }
