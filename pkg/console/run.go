package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"devremote/troubleshoot/pkg/config"
	"devremote/troubleshoot/pkg/format"
	"devremote/troubleshoot/pkg/handler/clientctl"
	"devremote/troubleshoot/pkg/handler/filetransfer"
	"devremote/troubleshoot/pkg/proto"
)

// Run performs the handshake and then the action selected by cfg. Results
// of non-interactive actions are written to term.IO.
func Run(ctx context.Context, p *Peer, cfg *config.Console, term Terminal) error {
	acc, err := p.Handshake(ctx)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	switch {
	case cfg.Stat != "":
		if !Supports(acc, proto.ProtoFileTransfer) {
			return fmt.Errorf("device does not support %s", proto.ProtoFileTransfer)
		}
		info, err := p.Stat(ctx, cfg.Stat)
		if err != nil {
			return fmt.Errorf("stat %s: %w", cfg.Stat, err)
		}
		_, err = io.WriteString(term.IO, FormatFileInfo(cfg.Stat, info))
		return err

	case cfg.Get != "":
		if !Supports(acc, proto.ProtoFileTransfer) {
			return fmt.Errorf("device does not support %s", proto.ProtoFileTransfer)
		}
		return download(ctx, p, cfg)

	case cfg.Put != "":
		if !Supports(acc, proto.ProtoFileTransfer) {
			return fmt.Errorf("device does not support %s", proto.ProtoFileTransfer)
		}
		return upload(ctx, p, cfg)

	case cfg.CheckUpdate:
		return p.Request(ctx, clientctl.MsgCheckUpdate)

	case cfg.SendInventory:
		return p.Request(ctx, clientctl.MsgSendInventory)

	default:
		if !Supports(acc, proto.ProtoShell) {
			return fmt.Errorf("device does not support %s", proto.ProtoShell)
		}
		return p.Shell(ctx, term)
	}
}

func download(ctx context.Context, p *Peer, cfg *config.Console) error {
	f, err := os.Create(cfg.Out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", cfg.Out, err)
	}

	start := time.Now()
	n, err := p.Download(ctx, cfg.Get, f, DownloadOptions{
		ChunkSize: cfg.ChunkSize,
		BatchSize: cfg.BatchSize,
		Progress: func(n int64) {
			p.logger.VerboseMsg("Received %s", format.Size(n))
		},
	})
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("downloading %s: %w", cfg.Get, err)
	}

	p.logger.InfoMsg("Downloaded %s to %s (%s in %s)\n", cfg.Get, cfg.Out, format.Size(n), time.Since(start).Round(time.Millisecond))
	return nil
}

func upload(ctx context.Context, p *Peer, cfg *config.Console) error {
	f, err := os.Open(cfg.Put)
	if err != nil {
		return fmt.Errorf("opening %s: %w", cfg.Put, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", cfg.Put, err)
	}

	start := time.Now()
	n, err := p.Upload(ctx, cfg.To, f, UploadOptions{
		ChunkSize: cfg.ChunkSize,
		BatchSize: cfg.BatchSize,
		Mode:      proto.Uint32(uint32(fi.Mode().Perm())),
		Progress: func(n int64) {
			p.logger.VerboseMsg("Sent %s of %s", format.Size(n), format.Size(fi.Size()))
		},
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", cfg.Put, err)
	}

	p.logger.InfoMsg("Uploaded %s to %s (%s in %s)\n", cfg.Put, cfg.To, format.Size(n), time.Since(start).Round(time.Millisecond))
	return nil
}

// FormatFileInfo renders stat results one field per line.
func FormatFileInfo(path string, info filetransfer.FileInfo) string {
	out := fmt.Sprintf("path:    %s\n", path)
	if info.Size != nil {
		out += fmt.Sprintf("size:    %d (%s)\n", *info.Size, format.Size(*info.Size))
	}
	if info.Mode != nil {
		out += fmt.Sprintf("mode:    %s (%o)\n", os.FileMode(*info.Mode&0o777), *info.Mode)
	}
	if info.UID != nil {
		out += fmt.Sprintf("uid:     %d\n", *info.UID)
	}
	if info.GID != nil {
		out += fmt.Sprintf("gid:     %d\n", *info.GID)
	}
	if info.ModTime != nil {
		out += fmt.Sprintf("modtime: %s\n", info.ModTime.UTC().Format(time.RFC3339))
	}
	return out
}
