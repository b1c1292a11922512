package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/dkeye/Mesh/internal/app/session"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/output"
)

// Session is what the console drives. *session.Coordinator implements it.
type Session interface {
	ToggleVideo() (domain.MediaFlags, error)
	ToggleAudio() (domain.MediaFlags, error)
	ToggleScreenShare() (domain.MediaFlags, error)
	Flags() domain.MediaFlags
	Roster() []session.Remote
	Touch()
	Leave() error
	EndForAll(ctx context.Context) error
	Report(ctx context.Context, target domain.ParticipantID) error
	Done() <-chan struct{}
}

const consoleHelp = `commands:
  video | audio | screen   toggle local media
  roster                   list the other participants
  touch                    reset the inactivity timer
  report <participant>     report someone to the moderators
  leave                    leave the session
  end                      end the session for everyone (last participant only)`

// Console reads one command per line until the session ends. Every command
// counts as user activity.
type Console struct {
	s   Session
	out *output.Formatter
}

func NewConsole(s Session, out *output.Formatter) *Console {
	return &Console{s: s, out: out}
}

// Run returns when the session ended or ctx is done. End of input does not
// leave the session.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.s.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			c.exec(ctx, line)
		}
	}
}

func (c *Console) exec(ctx context.Context, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	c.s.Touch()
	switch fields[0] {
	case "video", "v":
		c.flags(c.s.ToggleVideo())
	case "audio", "a":
		c.flags(c.s.ToggleAudio())
	case "screen", "s":
		c.flags(c.s.ToggleScreenShare())
	case "roster", "r":
		c.out.Roster(c.s.Roster())
	case "report":
		if len(fields) != 2 {
			c.out.Error("usage: report <participant>")
			return
		}
		if err := c.s.Report(ctx, domain.ParticipantID(fields[1])); err != nil {
			c.out.Error(err.Error())
			return
		}
		c.out.Info("reported " + fields[1])
	case "leave", "quit", "q":
		if err := c.s.Leave(); err != nil {
			c.out.Error(err.Error())
		}
	case "end":
		err := c.s.EndForAll(ctx)
		switch {
		case errors.Is(err, domain.ErrNotSoleParticipant):
			c.out.Error("others are still here, only the last participant can end the session")
		case err != nil:
			c.out.Error(err.Error())
		}
	case "touch":
		c.out.Info("still here")
	case "help", "?":
		c.out.Info(consoleHelp)
	default:
		c.out.Error("unknown command " + fields[0] + ", try help")
	}
}

func (c *Console) flags(m domain.MediaFlags, err error) {
	if err != nil {
		c.out.Error(err.Error())
		return
	}
	c.out.Flags(m)
}
