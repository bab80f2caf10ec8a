package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"devremote/troubleshoot/pkg/handler/shell"
	"devremote/troubleshoot/pkg/proto"
	"devremote/troubleshoot/pkg/terminal"
)

// resizeInterval is how often the local terminal size is polled.
const resizeInterval = time.Second

// Terminal is the operator side of a remote shell.
type Terminal struct {
	IO io.ReadWriteCloser
	// Size reports the local terminal size. Nil means unknown.
	Size func() (terminal.Size, error)
	// Transcript receives a copy of the shell output, if set.
	Transcript io.Writer
}

// Shell opens a remote shell and connects it to term until the shell ends,
// the input reaches EOF or ctx is cancelled.
func (p *Peer) Shell(ctx context.Context, term Terminal) error {
	sid := newSessionID()

	var size terminal.Size
	if term.Size != nil {
		if s, err := term.Size(); err == nil {
			size = s
		}
	}

	req := proto.New(proto.ProtoShell, shell.MsgNew.String(), sid)
	req.Header.Properties = &proto.Properties{
		TerminalWidth:  proto.Uint16(size.Width),
		TerminalHeight: proto.Uint16(size.Height),
	}
	if err := p.Send(ctx, req); err != nil {
		return err
	}

	m, err := p.recvReply(ctx, proto.ProtoShell, sid)
	if err != nil {
		return fmt.Errorf("waiting for shell: %w", err)
	}
	if shell.ParseMsgType(m.MsgType()) != shell.MsgNew {
		return fmt.Errorf("unexpected reply %q to new shell", m.MsgType())
	}
	if err := statusError(m); err != nil {
		return err
	}
	p.logger.InfoMsg("Remote shell %s opened\n", sid)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if term.Size != nil {
		go terminal.WatchSize(ctx, resizeInterval, size, term.Size, func(s terminal.Size) {
			m := proto.New(proto.ProtoShell, shell.MsgResize.String(), sid)
			m.Header.Properties = &proto.Properties{
				TerminalWidth:  proto.Uint16(s.Width),
				TerminalHeight: proto.Uint16(s.Height),
			}
			if err := p.Send(ctx, m); err != nil {
				p.logger.VerboseMsg("Sending resize: %s", err)
			}
		})
	}

	go p.pumpInput(ctx, sid, term.IO)
	defer term.IO.Close()

	out := io.Writer(term.IO)
	if term.Transcript != nil {
		out = io.MultiWriter(term.IO, term.Transcript)
	}

	for {
		m, err := p.recvReply(ctx, proto.ProtoShell, sid)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				p.stopShell(sid)
				return nil
			}
			return err
		}

		switch shell.ParseMsgType(m.MsgType()) {
		case shell.MsgShell:
			if _, err := out.Write(m.Body); err != nil {
				p.logger.VerboseMsg("Writing shell output: %s", err)
			}
		case shell.MsgStop:
			if statusError(m) != nil {
				p.logger.InfoMsg("Remote shell %s ended on the device\n", sid)
			} else {
				p.logger.InfoMsg("Remote shell %s closed\n", sid)
			}
			return nil
		case shell.MsgPong:
		default:
			p.logger.VerboseMsg("Ignoring shell message %q", m.MsgType())
		}
	}
}

// pumpInput forwards local input to the shell. At EOF it asks the device to
// stop the shell; the session ends when the stop reply arrives.
func (p *Peer) pumpInput(ctx context.Context, sid string, in io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			m := proto.New(proto.ProtoShell, shell.MsgShell.String(), sid)
			m.Body = append([]byte(nil), buf[:n]...)
			if serr := p.Send(ctx, m); serr != nil {
				p.logger.VerboseMsg("Sending shell input: %s", serr)
				return
			}
		}
		if err != nil {
			if ctx.Err() == nil {
				p.stopShell(sid)
			}
			return
		}
	}
}

func (p *Peer) stopShell(sid string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.Send(ctx, proto.New(proto.ProtoShell, shell.MsgStop.String(), sid)); err != nil {
		p.logger.VerboseMsg("Sending stop: %s", err)
	}
}
