// Package filetransfer implements file download, upload and stat.
//
// Downloads are flow controlled: the device sends up to BatchSize chunks of
// ChunkSize bytes, then waits for an "ack" before sending more. The end of
// a file is marked by a chunk without body, which the peer confirms with a
// final "ack". Uploads mirror this: the device acknowledges every BatchSize
// received chunks and the terminating empty chunk. Only one job runs at a
// time.
package filetransfer

import (
	"errors"
	"fmt"
	"io"
	"time"

	"devremote/troubleshoot/pkg/config"
	"devremote/troubleshoot/pkg/handler"
	"devremote/troubleshoot/pkg/log"
	"devremote/troubleshoot/pkg/proto"
)

// MsgType enumerates the file transfer message types.
type MsgType int

const (
	MsgUnknown MsgType = iota
	MsgGetFile
	MsgPutFile
	MsgFileChunk
	MsgAck
	MsgStat
	MsgFileInfo
	MsgError
)

var msgTypeNames = map[MsgType]string{
	MsgGetFile:   "get_file",
	MsgPutFile:   "put_file",
	MsgFileChunk: "file_chunk",
	MsgAck:       "ack",
	MsgStat:      "stat",
	MsgFileInfo:  "file_info",
	MsgError:     proto.MsgTypeError,
}

// ParseMsgType maps a wire message type to its MsgType.
func ParseMsgType(s string) MsgType {
	for t, name := range msgTypeNames {
		if name == s {
			return t
		}
	}
	return MsgUnknown
}

func (t MsgType) String() string {
	if name, ok := msgTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Body keys.
const (
	keyPath    = "path"
	keySrcPath = "src_path"
	keySize    = "size"
	keyUID     = "uid"
	keyGID     = "gid"
	keyMode    = "mode"
	keyModTime = "modtime"
)

// State of the single transfer job.
type State int

const (
	StateIdle State = iota
	StateReading
	StateWriting
	StateAwaitingFinalAck
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReading:
		return "reading"
	case StateWriting:
		return "writing"
	case StateAwaitingFinalAck:
		return "awaiting final ack"
	default:
		return "unknown"
	}
}

// FileInfo is file metadata. Every field is optional.
type FileInfo struct {
	Size    *int64
	UID     *uint32
	GID     *uint32
	Mode    *uint32
	ModTime *time.Time
}

// File is an open file.
type File interface {
	io.ReadWriteSeeker
	io.Closer
}

// OpenMode selects how a file is opened.
type OpenMode int

const (
	OpenRead OpenMode = iota
	// OpenWrite creates or truncates the file.
	OpenWrite
)

// OpenOptions describe how to open a file. Owner and permissions are only
// applied to files opened for writing.
type OpenOptions struct {
	Mode OpenMode
	UID  *uint32
	GID  *uint32
	Perm *uint32
}

// Files is the device filesystem capability.
type Files interface {
	Stat(path string) (FileInfo, error)
	Open(path string, opts OpenOptions) (File, error)
}

// Config holds the flow control parameters.
type Config struct {
	ChunkSize int
	BatchSize int
}

// Handler holds the single transfer job.
type Handler struct {
	files  Files
	send   handler.Sender
	cfg    Config
	logger *log.Logger

	state     State
	file      File
	path      string
	sessionID string
	userID    *string
	offset    int64 // bytes sent or written so far
	received  int   // chunks received since the last upload ack
}

// New creates a file transfer handler. Sizes outside their valid range fall
// back to the defaults.
func New(files Files, send handler.Sender, cfg Config, logger *log.Logger) *Handler {
	if cfg.ChunkSize < 1 || cfg.ChunkSize > config.MaxChunkSize {
		logger.WarnMsg("Invalid chunk size %d, using %d\n", cfg.ChunkSize, config.DefaultChunkSize)
		cfg.ChunkSize = config.DefaultChunkSize
	}
	if cfg.BatchSize < 1 {
		logger.WarnMsg("Invalid batch size %d, using %d\n", cfg.BatchSize, config.DefaultBatchSize)
		cfg.BatchSize = config.DefaultBatchSize
	}

	return &Handler{
		files:  files,
		send:   send,
		cfg:    cfg,
		logger: logger,
	}
}

// State returns the job state.
func (h *Handler) State() State {
	return h.state
}

// Handle processes one file transfer message.
func (h *Handler) Handle(m *proto.Message) (*proto.Message, error) {
	t := ParseMsgType(m.MsgType())

	if h.state == StateAwaitingFinalAck && t != MsgAck && t != MsgError {
		err := proto.NewProtocolError(m, "expected final ack for %q", h.path)
		h.abort()
		return h.errorReply(m, err)
	}

	switch t {
	case MsgGetFile:
		return h.handleGetFile(m)
	case MsgPutFile:
		return h.handlePutFile(m)
	case MsgFileChunk:
		return h.handleChunk(m)
	case MsgAck:
		return h.handleAck(m)
	case MsgStat:
		return h.handleStat(m)
	case MsgError:
		h.handlePeerError(m)
		return nil, nil
	default:
		return nil, proto.Unsupported(m)
	}
}

func (h *Handler) handleGetFile(m *proto.Message) (*proto.Message, error) {
	if h.state != StateIdle {
		return h.errorReply(m, fmt.Errorf("get_file: %w", proto.ErrBusy))
	}

	path, err := bodyPath(m, keyPath)
	if err != nil {
		return h.errorReply(m, err)
	}

	f, err := h.files.Open(path, OpenOptions{Mode: OpenRead})
	if err != nil {
		return h.errorReply(m, proto.NewCapabilityError("opening "+path, err))
	}

	h.start(StateReading, f, path, m)
	h.logger.InfoMsg("Download of %s started\n", path)

	if err := h.sendBatch(); err != nil {
		h.abort()
		return h.errorReply(m, err)
	}
	return nil, nil
}

func (h *Handler) handlePutFile(m *proto.Message) (*proto.Message, error) {
	if h.state != StateIdle {
		return h.errorReply(m, fmt.Errorf("put_file: %w", proto.ErrBusy))
	}

	path, err := bodyPath(m, keyPath)
	if err != nil {
		return h.errorReply(m, err)
	}

	opts := OpenOptions{Mode: OpenWrite}
	body, _ := proto.DecodeMap(m.Body)
	opts.UID = optUint32(body, keyUID)
	opts.GID = optUint32(body, keyGID)
	opts.Perm = optUint32(body, keyMode)
	if src, ok := body.String(keySrcPath); ok {
		h.logger.VerboseMsg("Upload source %s", src)
	}

	f, err := h.files.Open(path, opts)
	if err != nil {
		return h.errorReply(m, proto.NewCapabilityError("opening "+path, err))
	}

	h.start(StateWriting, f, path, m)
	h.logger.InfoMsg("Upload to %s started\n", path)

	reply := proto.NewReply(m, MsgAck.String())
	props := proto.Properties{}
	if p := m.Props(); p != nil {
		props = *p
	}
	if props.Offset == nil {
		props.Offset = proto.Int64(0)
	}
	reply.Header.Properties = &props
	return reply, nil
}

func (h *Handler) handleChunk(m *proto.Message) (*proto.Message, error) {
	if h.state != StateWriting {
		return nil, proto.NewProtocolError(m, "no upload in progress (state %s)", h.state)
	}

	if p := m.Props(); p != nil && p.Offset != nil && *p.Offset != h.offset {
		err := proto.NewProtocolError(m, "chunk offset %d, expected %d", *p.Offset, h.offset)
		h.abort()
		return h.errorReply(m, err)
	}

	if len(m.Body) == 0 {
		err := h.file.Close()
		h.file = nil
		path, offset := h.path, h.offset
		h.reset()
		if err != nil {
			return h.errorReply(m, proto.NewCapabilityError("closing "+path, err))
		}
		h.logger.InfoMsg("Upload to %s finished (%d bytes)\n", path, offset)
		return h.ack(m, offset), nil
	}

	n, err := h.file.Write(m.Body)
	h.offset += int64(n)
	if err != nil {
		h.abort()
		return h.errorReply(m, proto.NewCapabilityError("writing "+h.path, err))
	}

	h.received++
	if h.received >= h.cfg.BatchSize {
		h.received = 0
		return h.ack(m, h.offset), nil
	}
	return nil, nil
}

func (h *Handler) handleAck(m *proto.Message) (*proto.Message, error) {
	switch h.state {
	case StateReading:
		if p := m.Props(); p != nil && p.Offset != nil && *p.Offset != h.offset {
			if _, err := h.file.Seek(*p.Offset, io.SeekStart); err != nil {
				h.abort()
				return h.errorReply(m, proto.NewCapabilityError("seeking "+h.path, err))
			}
			h.offset = *p.Offset
		}
		if err := h.sendBatch(); err != nil {
			h.abort()
			return h.errorReply(m, err)
		}
		return nil, nil

	case StateAwaitingFinalAck:
		path, offset := h.path, h.offset
		err := h.file.Close()
		h.file = nil
		h.reset()
		if err != nil {
			return nil, proto.NewCapabilityError("closing "+path, err)
		}
		h.logger.InfoMsg("Download of %s finished (%d bytes)\n", path, offset)
		return nil, nil

	default:
		return nil, proto.NewProtocolError(m, "unexpected ack (state %s)", h.state)
	}
}

func (h *Handler) handleStat(m *proto.Message) (*proto.Message, error) {
	path, err := bodyPath(m, keyPath)
	if err != nil {
		return h.errorReply(m, err)
	}

	info, err := h.files.Stat(path)
	if err != nil {
		return h.errorReply(m, proto.NewCapabilityError("stat "+path, err))
	}

	b := proto.NewMapBuilder().String(keyPath, path)
	if info.Size != nil {
		b.Int(keySize, *info.Size)
	}
	if info.UID != nil {
		b.Uint(keyUID, uint64(*info.UID))
	}
	if info.GID != nil {
		b.Uint(keyGID, uint64(*info.GID))
	}
	if info.Mode != nil {
		b.Uint(keyMode, uint64(*info.Mode))
	}
	if info.ModTime != nil {
		if proto.FitsTimestamp32(*info.ModTime) {
			b.Timestamp32(keyModTime, *info.ModTime)
		} else {
			h.logger.WarnMsg("Omitting modtime %s of %s: outside the 32-bit timestamp range\n", info.ModTime.UTC().Format(time.RFC3339), path)
		}
	}

	body, err := b.Encode()
	if err != nil {
		return nil, proto.NewResourceError("encoding file_info", err)
	}

	reply := proto.NewReply(m, MsgFileInfo.String())
	reply.Body = body
	return reply, nil
}

func (h *Handler) handlePeerError(m *proto.Message) {
	if eb, err := proto.DecodeErrorBody(m.Body); err == nil {
		h.logger.WarnMsg("Peer aborted file transfer: %s\n", eb.Err)
	}
	if h.state != StateIdle {
		h.abort()
	}
}

// sendBatch sends up to BatchSize chunks from the current offset. At end of
// file it sends the terminating empty chunk and waits for the final ack.
func (h *Handler) sendBatch() error {
	for i := 0; i < h.cfg.BatchSize; i++ {
		buf := make([]byte, h.cfg.ChunkSize)
		n, err := io.ReadFull(h.file, buf)
		eof := errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
		if err != nil && !eof {
			return proto.NewCapabilityError("reading "+h.path, err)
		}

		if n > 0 {
			if err := h.sendChunk(buf[:n]); err != nil {
				return err
			}
			h.offset += int64(n)
		}

		if eof {
			if err := h.sendChunk(nil); err != nil {
				return err
			}
			h.state = StateAwaitingFinalAck
			return nil
		}
	}
	return nil
}

func (h *Handler) sendChunk(data []byte) error {
	m := proto.New(proto.ProtoFileTransfer, MsgFileChunk.String(), h.sessionID)
	m.Header.Properties = &proto.Properties{
		Offset: proto.Int64(h.offset),
		UserID: h.userID,
	}
	m.Body = data
	if err := h.send.Send(m); err != nil {
		return proto.NewResourceError("sending file_chunk", err)
	}
	return nil
}

func (h *Handler) ack(req *proto.Message, offset int64) *proto.Message {
	reply := proto.NewReply(req, MsgAck.String())
	reply.Header.Properties = &proto.Properties{Offset: proto.Int64(offset)}
	if p := req.Props(); p != nil {
		reply.Header.Properties.UserID = p.UserID
	}
	return reply
}

// errorReply builds the error reply for err and returns it along with err.
func (h *Handler) errorReply(m *proto.Message, err error) (*proto.Message, error) {
	reply, encErr := proto.NewErrorReply(m, err, true)
	if encErr != nil {
		return nil, errors.Join(err, proto.NewResourceError("encoding error reply", encErr))
	}
	return reply, err
}

func (h *Handler) start(state State, f File, path string, m *proto.Message) {
	h.state = state
	h.file = f
	h.path = path
	h.sessionID = m.SessionID()
	h.offset = 0
	h.received = 0
	h.userID = nil
	if p := m.Props(); p != nil && p.UserID != nil {
		h.userID = proto.String(*p.UserID)
	}
}

// abort closes the open file, if any, and returns to idle.
func (h *Handler) abort() {
	if h.file != nil {
		if err := h.file.Close(); err != nil {
			h.logger.ErrorMsg("Closing %s: %s\n", h.path, err)
		}
		h.file = nil
	}
	if h.state != StateIdle {
		h.logger.WarnMsg("File transfer of %s aborted\n", h.path)
	}
	h.reset()
}

func (h *Handler) reset() {
	h.state = StateIdle
	h.file = nil
	h.path = ""
	h.sessionID = ""
	h.userID = nil
	h.offset = 0
	h.received = 0
}

// Teardown aborts the running job without notifying the peer.
func (h *Handler) Teardown() {
	h.abort()
}

func bodyPath(m *proto.Message, key string) (string, error) {
	body, err := proto.DecodeMap(m.Body)
	if err != nil {
		return "", proto.NewProtocolError(m, "invalid body: %s", err)
	}
	path, ok := body.String(key)
	if !ok || path == "" {
		return "", proto.NewProtocolError(m, "missing %s", key)
	}
	return path, nil
}

func optUint32(m proto.Map, key string) *uint32 {
	v, ok := m.Uint(key)
	if !ok || v > 0xFFFFFFFF {
		return nil
	}
	return proto.Uint32(uint32(v))
}
