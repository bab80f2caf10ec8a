package filetransfer

import (
	"bytes"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"devremote/troubleshoot/pkg/config"
	"devremote/troubleshoot/pkg/proto"
)

// memFile is an in-memory File.
type memFile struct {
	data    []byte
	pos     int64
	closes  int
	readErr error
}

func (f *memFile) Read(p []byte) (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	if f.pos >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	f.data = append(f.data[:f.pos], p...)
	f.pos += int64(len(p))
	return len(p), nil
}

func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	if whence != io.SeekStart || offset < 0 {
		return 0, errors.New("unsupported seek")
	}
	f.pos = offset
	return offset, nil
}

func (f *memFile) Close() error {
	f.closes++
	return nil
}

type fakeFiles struct {
	file    *memFile
	info    FileInfo
	openErr error
	statErr error

	opened []OpenOptions
	paths  []string
}

func (f *fakeFiles) Stat(path string) (FileInfo, error) {
	f.paths = append(f.paths, path)
	return f.info, f.statErr
}

func (f *fakeFiles) Open(path string, opts OpenOptions) (File, error) {
	f.paths = append(f.paths, path)
	f.opened = append(f.opened, opts)
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.file, nil
}

type recorder struct {
	sent []*proto.Message
}

func (r *recorder) Send(m *proto.Message) error {
	r.sent = append(r.sent, m)
	return nil
}

func (r *recorder) take() []*proto.Message {
	out := r.sent
	r.sent = nil
	return out
}

func newMsg(typ string) *proto.Message {
	return proto.New(proto.ProtoFileTransfer, typ, "sid")
}

func pathBody(t *testing.T, key, path string) []byte {
	t.Helper()
	b, err := proto.NewMapBuilder().String(key, path).Encode()
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func getFile(t *testing.T, path string) *proto.Message {
	m := newMsg("get_file")
	m.Header.Properties = &proto.Properties{UserID: proto.String("operator")}
	m.Body = pathBody(t, keyPath, path)
	return m
}

func ackAt(offset int64) *proto.Message {
	m := newMsg("ack")
	m.Header.Properties = &proto.Properties{Offset: proto.Int64(offset)}
	return m
}

func checkChunks(t *testing.T, got []*proto.Message, wantSizes []int, wantOffsets []int64) {
	t.Helper()
	if len(got) != len(wantSizes) {
		t.Fatalf("sent %d chunks, want %d", len(got), len(wantSizes))
	}
	for i, m := range got {
		if m.MsgType() != "file_chunk" || m.SessionID() != "sid" {
			t.Errorf("chunk %d header = %+v", i, m.Header)
		}
		p := m.Props()
		if p == nil || p.Offset == nil || *p.Offset != wantOffsets[i] {
			t.Errorf("chunk %d offset = %v, want %d", i, p, wantOffsets[i])
		}
		if p == nil || p.UserID == nil || *p.UserID != "operator" {
			t.Errorf("chunk %d user_id missing", i)
		}
		if len(m.Body) != wantSizes[i] {
			t.Errorf("chunk %d size = %d, want %d", i, len(m.Body), wantSizes[i])
		}
	}
}

func TestDownload_Batches(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("x"), 2500)
	files := &fakeFiles{file: &memFile{data: data}}
	rec := &recorder{}
	h := New(files, rec, Config{ChunkSize: 1024, BatchSize: 2}, nil)

	reply, err := h.Handle(getFile(t, "/tmp/x"))
	if err != nil || reply != nil {
		t.Fatalf("Handle(get_file) = (%v, %v)", reply, err)
	}
	checkChunks(t, rec.take(), []int{1024, 1024}, []int64{0, 1024})
	if h.State() != StateReading {
		t.Fatalf("state = %s, want reading", h.State())
	}

	if _, err := h.Handle(ackAt(2048)); err != nil {
		t.Fatalf("Handle(ack) error = %v", err)
	}
	checkChunks(t, rec.take(), []int{452, 0}, []int64{2048, 2500})
	if h.State() != StateAwaitingFinalAck {
		t.Fatalf("state = %s, want awaiting final ack", h.State())
	}

	if _, err := h.Handle(ackAt(2500)); err != nil {
		t.Fatalf("Handle(final ack) error = %v", err)
	}
	if h.State() != StateIdle {
		t.Errorf("state = %s, want idle", h.State())
	}
	if files.file.closes != 1 {
		t.Errorf("file closed %d times, want 1", files.file.closes)
	}
	if len(rec.sent) != 0 {
		t.Errorf("final ack produced %d messages", len(rec.sent))
	}
}

func TestNew_InvalidSizesUseDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero", Config{}},
		{"negative", Config{ChunkSize: -1, BatchSize: -5}},
		{"chunk too large", Config{ChunkSize: config.MaxChunkSize + 1, BatchSize: config.DefaultBatchSize}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			data := bytes.Repeat([]byte("y"), 3*config.DefaultChunkSize)
			rec := &recorder{}
			h := New(&fakeFiles{file: &memFile{data: data}}, rec, tc.cfg, nil)

			if _, err := h.Handle(getFile(t, "/var/log/messages")); err != nil {
				t.Fatalf("Handle(get_file) error = %v", err)
			}
			size := config.DefaultChunkSize
			checkChunks(t, rec.take(), []int{size, size, size, 0}, []int64{0, int64(size), int64(2 * size), int64(3 * size)})
			if h.State() != StateAwaitingFinalAck {
				t.Errorf("state = %s, want awaiting final ack", h.State())
			}
		})
	}
}

func TestDownload_ChunkCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		size      int
		chunk     int
		batch     int
		wantChunk int // data chunks, excluding the terminating empty one
	}{
		{name: "empty file", size: 0, chunk: 1024, batch: 10, wantChunk: 0},
		{name: "exact multiple", size: 2048, chunk: 1024, batch: 10, wantChunk: 2},
		{name: "partial last chunk", size: 1025, chunk: 1024, batch: 10, wantChunk: 2},
		{name: "many batches", size: 10000, chunk: 100, batch: 7, wantChunk: 100},
		{name: "batch boundary at eof", size: 400, chunk: 100, batch: 4, wantChunk: 4},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			files := &fakeFiles{file: &memFile{data: make([]byte, tc.size)}}
			rec := &recorder{}
			h := New(files, rec, Config{ChunkSize: tc.chunk, BatchSize: tc.batch}, nil)

			if _, err := h.Handle(getFile(t, "/f")); err != nil {
				t.Fatalf("Handle(get_file) error = %v", err)
			}

			var chunks []*proto.Message
			rounds := 0
			for h.State() == StateReading {
				got := rec.take()
				if len(got) > tc.batch {
					t.Fatalf("round %d sent %d chunks, batch is %d", rounds, len(got), tc.batch)
				}
				chunks = append(chunks, got...)
				if _, err := h.Handle(ackAt(int64(len(chunks) * tc.chunk))); err != nil {
					t.Fatalf("Handle(ack) error = %v", err)
				}
				rounds++
			}
			chunks = append(chunks, rec.take()...)

			if len(chunks) != tc.wantChunk+1 {
				t.Fatalf("sent %d chunks, want %d plus terminator", len(chunks), tc.wantChunk)
			}
			if last := chunks[len(chunks)-1]; len(last.Body) != 0 {
				t.Errorf("last chunk has %d bytes, want none", len(last.Body))
			}
			total := 0
			for _, c := range chunks {
				total += len(c.Body)
			}
			if total != tc.size {
				t.Errorf("sent %d bytes, want %d", total, tc.size)
			}
			if h.State() != StateAwaitingFinalAck {
				t.Errorf("state = %s, want awaiting final ack", h.State())
			}
		})
	}
}

func TestDownload_AwaitingFinalAckRejectsOthers(t *testing.T) {
	t.Parallel()

	files := &fakeFiles{file: &memFile{data: []byte("abc")}}
	rec := &recorder{}
	h := New(files, rec, Config{ChunkSize: 1024, BatchSize: 10}, nil)

	if _, err := h.Handle(getFile(t, "/f")); err != nil {
		t.Fatalf("Handle(get_file) error = %v", err)
	}
	if h.State() != StateAwaitingFinalAck {
		t.Fatalf("state = %s, want awaiting final ack", h.State())
	}

	reply, err := h.Handle(getFile(t, "/g"))
	var pe *proto.ProtocolError
	if !errors.As(err, &pe) {
		t.Errorf("Handle(get_file) error = %v, want ProtocolError", err)
	}
	if reply == nil || reply.MsgType() != "error" {
		t.Fatalf("reply = %v, want error", reply)
	}
	if h.State() != StateIdle {
		t.Errorf("state = %s, want idle", h.State())
	}
	if files.file.closes != 1 {
		t.Errorf("file closed %d times, want 1", files.file.closes)
	}
}

func TestDownload_AckSeeks(t *testing.T) {
	t.Parallel()

	files := &fakeFiles{file: &memFile{data: []byte("0123456789")}}
	rec := &recorder{}
	h := New(files, rec, Config{ChunkSize: 2, BatchSize: 2}, nil)

	if _, err := h.Handle(getFile(t, "/f")); err != nil {
		t.Fatal(err)
	}
	rec.take()

	if _, err := h.Handle(ackAt(2)); err != nil {
		t.Fatal(err)
	}
	got := rec.take()
	if len(got) != 2 || string(got[0].Body) != "23" || *got[0].Props().Offset != 2 {
		t.Errorf("resent chunks = %q, want from offset 2", got[0].Body)
	}
}

func TestDownload_Busy(t *testing.T) {
	t.Parallel()

	files := &fakeFiles{file: &memFile{data: make([]byte, 100)}}
	rec := &recorder{}
	h := New(files, rec, Config{ChunkSize: 10, BatchSize: 2}, nil)

	if _, err := h.Handle(getFile(t, "/f")); err != nil {
		t.Fatal(err)
	}

	reply, err := h.Handle(getFile(t, "/g"))
	if !errors.Is(err, proto.ErrBusy) {
		t.Errorf("second get_file error = %v, want ErrBusy", err)
	}
	if reply == nil || reply.MsgType() != "error" {
		t.Fatalf("reply = %v, want error", reply)
	}
	if h.State() != StateReading || files.file.closes != 0 {
		t.Errorf("active job disturbed: state %s closes %d", h.State(), files.file.closes)
	}
}

func TestDownload_Failures(t *testing.T) {
	t.Parallel()

	t.Run("open fails", func(t *testing.T) {
		t.Parallel()
		h := New(&fakeFiles{openErr: errors.New("denied")}, &recorder{}, Config{ChunkSize: 10, BatchSize: 2}, nil)

		reply, err := h.Handle(getFile(t, "/f"))
		var ce *proto.CapabilityError
		if !errors.As(err, &ce) {
			t.Errorf("error = %v, want CapabilityError", err)
		}
		eb, decErr := proto.DecodeErrorBody(reply.Body)
		if decErr != nil {
			t.Fatal(decErr)
		}
		if eb.Err != "opening /f: denied" || eb.MsgType != "get_file" {
			t.Errorf("error body = %+v", eb)
		}
		if h.State() != StateIdle {
			t.Errorf("state = %s, want idle", h.State())
		}
	})

	t.Run("read fails", func(t *testing.T) {
		t.Parallel()
		f := &memFile{readErr: errors.New("io error")}
		h := New(&fakeFiles{file: f}, &recorder{}, Config{ChunkSize: 10, BatchSize: 2}, nil)

		reply, err := h.Handle(getFile(t, "/f"))
		if err == nil || reply == nil || reply.MsgType() != "error" {
			t.Fatalf("Handle() = (%v, %v), want error reply", reply, err)
		}
		if f.closes != 1 || h.State() != StateIdle {
			t.Errorf("closes = %d state = %s, want 1 and idle", f.closes, h.State())
		}
	})

	t.Run("missing path", func(t *testing.T) {
		t.Parallel()
		h := New(&fakeFiles{}, &recorder{}, Config{ChunkSize: 10, BatchSize: 2}, nil)

		reply, err := h.Handle(newMsg("get_file"))
		var pe *proto.ProtocolError
		if !errors.As(err, &pe) || reply == nil || reply.MsgType() != "error" {
			t.Errorf("Handle() = (%v, %v), want error reply with ProtocolError", reply, err)
		}
	})
}

func TestPeerErrorAborts(t *testing.T) {
	t.Parallel()

	files := &fakeFiles{file: &memFile{data: make([]byte, 100)}}
	h := New(files, &recorder{}, Config{ChunkSize: 10, BatchSize: 2}, nil)
	if _, err := h.Handle(getFile(t, "/f")); err != nil {
		t.Fatal(err)
	}

	m := newMsg("error")
	m.Body, _ = proto.ErrorBody{Err: "cancelled"}.Encode()
	reply, err := h.Handle(m)
	if reply != nil || err != nil {
		t.Errorf("Handle(error) = (%v, %v)", reply, err)
	}
	if h.State() != StateIdle || files.file.closes != 1 {
		t.Errorf("state = %s closes = %d, want idle and 1", h.State(), files.file.closes)
	}
}

func TestAckWhileIdle(t *testing.T) {
	t.Parallel()

	h := New(&fakeFiles{}, &recorder{}, Config{ChunkSize: 10, BatchSize: 2}, nil)
	reply, err := h.Handle(ackAt(0))
	var pe *proto.ProtocolError
	if !errors.As(err, &pe) || reply != nil {
		t.Errorf("Handle(ack) = (%v, %v), want ProtocolError without reply", reply, err)
	}
}

func putFile(t *testing.T) *proto.Message {
	m := newMsg("put_file")
	b, err := proto.NewMapBuilder().
		String(keySrcPath, "local.txt").
		String(keyPath, "/tmp/up").
		Uint(keyMode, 0o640).
		Encode()
	if err != nil {
		t.Fatal(err)
	}
	m.Body = b
	return m
}

func chunkAt(offset int64, data string) *proto.Message {
	m := newMsg("file_chunk")
	m.Header.Properties = &proto.Properties{Offset: proto.Int64(offset)}
	if data != "" {
		m.Body = []byte(data)
	}
	return m
}

func TestUpload(t *testing.T) {
	t.Parallel()

	files := &fakeFiles{file: &memFile{}}
	h := New(files, &recorder{}, Config{ChunkSize: 1024, BatchSize: 2}, nil)

	reply, err := h.Handle(putFile(t))
	if err != nil {
		t.Fatalf("Handle(put_file) error = %v", err)
	}
	if reply.MsgType() != "ack" || reply.Props() == nil || reply.Props().Offset == nil || *reply.Props().Offset != 0 {
		t.Fatalf("put_file reply = %+v", reply.Header)
	}
	if opts := files.opened[0]; opts.Mode != OpenWrite || opts.Perm == nil || *opts.Perm != 0o640 || opts.UID != nil {
		t.Errorf("open options = %+v", opts)
	}
	if files.paths[0] != "/tmp/up" {
		t.Errorf("opened %q, want /tmp/up", files.paths[0])
	}

	steps := []struct {
		msg     *proto.Message
		wantAck int64 // -1 for no reply
	}{
		{chunkAt(0, "aaa"), -1},
		{chunkAt(3, "bbb"), 6},
		{chunkAt(6, "cc"), -1},
		{chunkAt(8, ""), 8},
	}
	for i, s := range steps {
		reply, err := h.Handle(s.msg)
		if err != nil {
			t.Fatalf("step %d: Handle(file_chunk) error = %v", i, err)
		}
		if s.wantAck < 0 {
			if reply != nil {
				t.Errorf("step %d: unexpected reply %+v", i, reply.Header)
			}
			continue
		}
		if reply == nil || reply.MsgType() != "ack" || *reply.Props().Offset != s.wantAck {
			t.Errorf("step %d: reply = %v, want ack at %d", i, reply, s.wantAck)
		}
	}

	if string(files.file.data) != "aaabbbcc" {
		t.Errorf("written = %q", files.file.data)
	}
	if files.file.closes != 1 || h.State() != StateIdle {
		t.Errorf("closes = %d state = %s, want 1 and idle", files.file.closes, h.State())
	}
}

func TestUpload_OffsetMismatch(t *testing.T) {
	t.Parallel()

	files := &fakeFiles{file: &memFile{}}
	h := New(files, &recorder{}, Config{ChunkSize: 1024, BatchSize: 10}, nil)
	if _, err := h.Handle(putFile(t)); err != nil {
		t.Fatal(err)
	}

	reply, err := h.Handle(chunkAt(5, "x"))
	if err == nil || reply == nil || reply.MsgType() != "error" {
		t.Fatalf("Handle(file_chunk) = (%v, %v), want error reply", reply, err)
	}
	if files.file.closes != 1 || h.State() != StateIdle {
		t.Errorf("closes = %d state = %s, want 1 and idle", files.file.closes, h.State())
	}
}

func TestTeardown(t *testing.T) {
	t.Parallel()

	files := &fakeFiles{file: &memFile{}}
	h := New(files, &recorder{}, Config{ChunkSize: 1024, BatchSize: 10}, nil)
	if _, err := h.Handle(putFile(t)); err != nil {
		t.Fatal(err)
	}

	h.Teardown()
	h.Teardown()
	if files.file.closes != 1 || h.State() != StateIdle {
		t.Errorf("closes = %d state = %s, want 1 and idle", files.file.closes, h.State())
	}
}

func statMsg(t *testing.T, path string) *proto.Message {
	m := proto.New(proto.ProtoFileTransfer, "stat", "")
	m.Body = pathBody(t, keyPath, path)
	return m
}

func bodyKeys(t *testing.T, body []byte) []string {
	t.Helper()
	m, err := proto.DecodeMap(body)
	if err != nil {
		t.Fatalf("DecodeMap() error = %v", err)
	}
	var keys []string
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func TestStat_SizeOnly(t *testing.T) {
	t.Parallel()

	files := &fakeFiles{info: FileInfo{Size: proto.Int64(42)}}
	h := New(files, &recorder{}, Config{ChunkSize: 1024, BatchSize: 10}, nil)

	reply, err := h.Handle(statMsg(t, "/tmp/x"))
	if err != nil {
		t.Fatalf("Handle(stat) error = %v", err)
	}
	if reply.MsgType() != "file_info" || reply.Proto() != proto.ProtoFileTransfer {
		t.Errorf("reply header = %+v", reply.Header)
	}

	keys := bodyKeys(t, reply.Body)
	if len(keys) != 2 || keys[0] != "path" || keys[1] != "size" {
		t.Errorf("body keys = %v, want [path size]", keys)
	}
	body, _ := proto.DecodeMap(reply.Body)
	if path, _ := body.String("path"); path != "/tmp/x" {
		t.Errorf("path = %q", path)
	}
	if size, _ := body.Int("size"); size != 42 {
		t.Errorf("size = %d, want 42", size)
	}
}

func TestStat_AllFields(t *testing.T) {
	t.Parallel()

	mtime := time.Unix(1700000000, 0)
	files := &fakeFiles{info: FileInfo{
		Size:    proto.Int64(7),
		UID:     proto.Uint32(1000),
		GID:     proto.Uint32(100),
		Mode:    proto.Uint32(0o100644),
		ModTime: &mtime,
	}}
	h := New(files, &recorder{}, Config{ChunkSize: 1024, BatchSize: 10}, nil)

	reply, err := h.Handle(statMsg(t, "/etc/hosts"))
	if err != nil {
		t.Fatalf("Handle(stat) error = %v", err)
	}

	body, err := proto.DecodeMap(reply.Body)
	if err != nil {
		t.Fatal(err)
	}
	if uid, _ := body.Uint("uid"); uid != 1000 {
		t.Errorf("uid = %d", uid)
	}
	if gid, _ := body.Uint("gid"); gid != 100 {
		t.Errorf("gid = %d", gid)
	}
	if mode, _ := body.Uint("mode"); mode != 0o100644 {
		t.Errorf("mode = %o", mode)
	}
	if got, ok := body.Time("modtime"); !ok || !got.Equal(mtime) {
		t.Errorf("modtime = %v, want %v", got, mtime)
	}
	if v := body["modtime"]; v.Kind != proto.KindExt || v.ExtType != -1 || len(v.Bin) != 4 {
		t.Errorf("modtime wire value = %+v, want 4-byte ext -1", v)
	}
}

func TestStat_ModTimeOutOfRange(t *testing.T) {
	t.Parallel()

	for _, mtime := range []time.Time{
		time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2200, 1, 1, 0, 0, 0, 0, time.UTC),
	} {
		files := &fakeFiles{info: FileInfo{
			Size:    proto.Int64(42),
			UID:     proto.Uint32(0),
			GID:     proto.Uint32(0),
			Mode:    proto.Uint32(0o100600),
			ModTime: &mtime,
		}}
		h := New(files, &recorder{}, Config{ChunkSize: 1024, BatchSize: 10}, nil)

		reply, err := h.Handle(statMsg(t, "/etc/shadow"))
		if err != nil || reply == nil {
			t.Fatalf("Handle(stat) with modtime %s = (%v, %v), want file_info", mtime, reply, err)
		}
		if reply.MsgType() != "file_info" {
			t.Errorf("reply type = %q, want file_info", reply.MsgType())
		}
		got := bodyKeys(t, reply.Body)
		want := []string{"gid", "mode", "path", "size", "uid"}
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Errorf("body keys = %v, want %v", got, want)
		}
	}
}

func TestStat_Fails(t *testing.T) {
	t.Parallel()

	h := New(&fakeFiles{statErr: errors.New("no such file")}, &recorder{}, Config{ChunkSize: 1024, BatchSize: 10}, nil)
	reply, err := h.Handle(statMsg(t, "/nope"))
	if err == nil || reply == nil || reply.MsgType() != "error" {
		t.Fatalf("Handle(stat) = (%v, %v), want error reply", reply, err)
	}
}
