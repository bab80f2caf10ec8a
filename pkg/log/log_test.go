package log

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogger_Messages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		logFn  func(l *Logger)
		prefix string
	}{
		{"error", func(l *Logger) { l.ErrorMsg("test error: %s\n", "something") }, "[!] Error: test error: something"},
		{"warn", func(l *Logger) { l.WarnMsg("test warn: %s\n", "something") }, "[-] test warn: something"},
		{"info", func(l *Logger) { l.InfoMsg("test info: %s\n", "something") }, "[+] test info: something"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			tc.logFn(NewLoggerTo(&buf, false))

			if !strings.Contains(buf.String(), tc.prefix) {
				t.Errorf("output = %q, want it to contain %q", buf.String(), tc.prefix)
			}
		})
	}
}

func TestLogger_VerboseMsg(t *testing.T) {
	t.Parallel()

	var quiet bytes.Buffer
	NewLoggerTo(&quiet, false).VerboseMsg("hidden %d", 1)
	if quiet.Len() != 0 {
		t.Errorf("VerboseMsg() printed %q with verbose disabled", quiet.String())
	}

	var loud bytes.Buffer
	l := NewLoggerTo(&loud, true)
	l.VerboseMsg("shown %d", 2)
	if loud.String() != "[v] shown 2\n" {
		t.Errorf("VerboseMsg() = %q, want %q", loud.String(), "[v] shown 2\n")
	}
	if !l.Verbose() {
		t.Error("Verbose() = false, want true")
	}
}

func TestLogger_Nil(t *testing.T) {
	t.Parallel()

	var l *Logger
	l.ErrorMsg("x")
	l.WarnMsg("x")
	l.InfoMsg("x")
	l.VerboseMsg("x")
	if l.Verbose() {
		t.Error("nil logger reports verbose")
	}
}

func TestTranscript(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.log")

	tr, err := NewTranscript(path)
	if err != nil {
		t.Fatalf("NewTranscript() error = %v", err)
	}
	if _, err := tr.Write([]byte("hello ")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := tr.Write([]byte("world")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("transcript = %q, want %q", data, "hello world")
	}
}

func TestNewTranscript_InvalidPath(t *testing.T) {
	t.Parallel()

	if _, err := NewTranscript(filepath.Join(t.TempDir(), "missing", "x.log")); err == nil {
		t.Error("NewTranscript() expected error for missing directory")
	}
}
