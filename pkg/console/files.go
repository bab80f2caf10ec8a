package console

import (
	"context"
	"fmt"
	"io"

	"devremote/troubleshoot/pkg/handler/filetransfer"
	"devremote/troubleshoot/pkg/proto"
)

// UserID tags the file transfers started by the console.
const UserID = "console"

// Stat returns the metadata of path on the device.
func (p *Peer) Stat(ctx context.Context, path string) (filetransfer.FileInfo, error) {
	body, err := filetransfer.EncodePathBody(path)
	if err != nil {
		return filetransfer.FileInfo{}, err
	}

	sid := newSessionID()
	req := proto.New(proto.ProtoFileTransfer, filetransfer.MsgStat.String(), sid)
	req.Body = body
	if err := p.Send(ctx, req); err != nil {
		return filetransfer.FileInfo{}, err
	}

	m, err := p.recvReply(ctx, proto.ProtoFileTransfer, sid)
	if err != nil {
		return filetransfer.FileInfo{}, err
	}

	switch filetransfer.ParseMsgType(m.MsgType()) {
	case filetransfer.MsgFileInfo:
		_, info, err := filetransfer.DecodeFileInfo(m.Body)
		return info, err
	case filetransfer.MsgError:
		return filetransfer.FileInfo{}, remoteError(m)
	default:
		return filetransfer.FileInfo{}, fmt.Errorf("unexpected reply %q to stat", m.MsgType())
	}
}

// Download options mirror the agent's flow control settings.
type DownloadOptions struct {
	ChunkSize int
	BatchSize int
	// Progress is called with the bytes received so far, if set.
	Progress func(n int64)
}

// Download copies path from the device to w and returns the number of
// bytes received. Every BatchSize chunks are acknowledged; a chunk shorter
// than ChunkSize is the last one before the terminator and is not, because
// the device has already finished the batch.
func (p *Peer) Download(ctx context.Context, path string, w io.Writer, opts DownloadOptions) (int64, error) {
	body, err := filetransfer.EncodePathBody(path)
	if err != nil {
		return 0, err
	}

	sid := newSessionID()
	req := proto.New(proto.ProtoFileTransfer, filetransfer.MsgGetFile.String(), sid)
	req.Header.Properties = &proto.Properties{UserID: proto.String(UserID)}
	req.Body = body
	if err := p.Send(ctx, req); err != nil {
		return 0, err
	}

	var received int64
	chunks := 0
	for {
		m, err := p.recvReply(ctx, proto.ProtoFileTransfer, sid)
		if err != nil {
			return received, err
		}

		switch filetransfer.ParseMsgType(m.MsgType()) {
		case filetransfer.MsgFileChunk:
		case filetransfer.MsgError:
			return received, remoteError(m)
		default:
			return received, fmt.Errorf("unexpected message %q during download", m.MsgType())
		}

		if props := m.Props(); props != nil && props.Offset != nil && *props.Offset != received {
			p.abortTransfer(ctx, sid, "unexpected chunk offset")
			return received, fmt.Errorf("chunk at offset %d, expected %d", *props.Offset, received)
		}

		if len(m.Body) == 0 {
			return received, p.ack(ctx, sid, received)
		}

		if _, err := w.Write(m.Body); err != nil {
			p.abortTransfer(ctx, sid, err.Error())
			return received, fmt.Errorf("writing download: %w", err)
		}
		received += int64(len(m.Body))
		if opts.Progress != nil {
			opts.Progress(received)
		}

		chunks++
		if chunks == opts.BatchSize {
			chunks = 0
			if len(m.Body) < opts.ChunkSize {
				continue
			}
			if err := p.ack(ctx, sid, received); err != nil {
				return received, err
			}
		}
	}
}

// UploadOptions must match the agent's batch size, which decides when the
// device acknowledges.
type UploadOptions struct {
	ChunkSize int
	BatchSize int
	// Mode is the permission of the created file, or the device default.
	Mode     *uint32
	Progress func(n int64)
}

// Upload copies r to path on the device and returns the number of bytes
// sent. After every BatchSize chunks it waits for the device to acknowledge
// the offset reached; the terminating empty chunk gets a final ack.
func (p *Peer) Upload(ctx context.Context, path string, r io.Reader, opts UploadOptions) (int64, error) {
	body, err := filetransfer.EncodePutBody(path, nil, nil, opts.Mode)
	if err != nil {
		return 0, err
	}

	sid := newSessionID()
	req := proto.New(proto.ProtoFileTransfer, filetransfer.MsgPutFile.String(), sid)
	req.Header.Properties = &proto.Properties{UserID: proto.String(UserID)}
	req.Body = body
	if err := p.Send(ctx, req); err != nil {
		return 0, err
	}
	if err := p.awaitAck(ctx, sid, 0); err != nil {
		return 0, err
	}

	var sent int64
	chunks := 0
	buf := make([]byte, opts.ChunkSize)
	for {
		n, rerr := io.ReadFull(r, buf)
		if n > 0 {
			if err := p.sendChunk(ctx, sid, sent, buf[:n]); err != nil {
				return sent, err
			}
			sent += int64(n)
			if opts.Progress != nil {
				opts.Progress(sent)
			}

			chunks++
			if chunks == opts.BatchSize {
				chunks = 0
				if err := p.awaitAck(ctx, sid, sent); err != nil {
					return sent, err
				}
			}
		}

		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			p.abortTransfer(ctx, sid, rerr.Error())
			return sent, fmt.Errorf("reading upload: %w", rerr)
		}
	}

	if err := p.sendChunk(ctx, sid, sent, nil); err != nil {
		return sent, err
	}
	return sent, p.awaitAck(ctx, sid, sent)
}

func (p *Peer) sendChunk(ctx context.Context, sid string, offset int64, data []byte) error {
	m := proto.New(proto.ProtoFileTransfer, filetransfer.MsgFileChunk.String(), sid)
	m.Header.Properties = &proto.Properties{
		Offset: proto.Int64(offset),
		UserID: proto.String(UserID),
	}
	m.Body = data
	return p.Send(ctx, m)
}

// awaitAck waits for the device to acknowledge offset.
func (p *Peer) awaitAck(ctx context.Context, sid string, offset int64) error {
	m, err := p.recvReply(ctx, proto.ProtoFileTransfer, sid)
	if err != nil {
		return err
	}

	switch filetransfer.ParseMsgType(m.MsgType()) {
	case filetransfer.MsgAck:
	case filetransfer.MsgError:
		return remoteError(m)
	default:
		p.abortTransfer(ctx, sid, "unexpected message")
		return fmt.Errorf("unexpected message %q during upload", m.MsgType())
	}

	if props := m.Props(); props == nil || props.Offset == nil || *props.Offset != offset {
		p.abortTransfer(ctx, sid, "unexpected ack offset")
		return fmt.Errorf("ack does not confirm offset %d", offset)
	}
	return nil
}

func (p *Peer) ack(ctx context.Context, sid string, offset int64) error {
	m := proto.New(proto.ProtoFileTransfer, filetransfer.MsgAck.String(), sid)
	m.Header.Properties = &proto.Properties{
		Offset: proto.Int64(offset),
		UserID: proto.String(UserID),
	}
	return p.Send(ctx, m)
}

// abortTransfer tells the device to give up the running job.
func (p *Peer) abortTransfer(ctx context.Context, sid, reason string) {
	body, err := proto.ErrorBody{Err: reason}.Encode()
	if err != nil {
		return
	}
	m := proto.New(proto.ProtoFileTransfer, filetransfer.MsgError.String(), sid)
	m.Body = body
	if err := p.Send(ctx, m); err != nil {
		p.logger.VerboseMsg("Aborting transfer: %s", err)
	}
}
