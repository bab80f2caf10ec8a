// Package files provides the file transfer capability on the local
// filesystem.
package files

import (
	"fmt"
	"os"

	"devremote/troubleshoot/pkg/handler/filetransfer"
	"devremote/troubleshoot/pkg/log"
)

// FS opens and inspects local files.
type FS struct {
	logger *log.Logger
}

// New creates the filesystem capability.
func New(logger *log.Logger) *FS {
	return &FS{logger: logger}
}

// Stat reports the metadata of path.
func (fs *FS) Stat(path string) (filetransfer.FileInfo, error) {
	info, err := stat(path)
	if err != nil {
		return filetransfer.FileInfo{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return info, nil
}

// Open opens path for reading, or creates/truncates it for writing. Owner
// and permissions are applied to files opened for writing.
func (fs *FS) Open(path string, opts filetransfer.OpenOptions) (filetransfer.File, error) {
	if opts.Mode == filetransfer.OpenRead {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		if fi, err := f.Stat(); err == nil && fi.IsDir() {
			_ = f.Close()
			return nil, fmt.Errorf("%s is a directory", path)
		}
		return f, nil
	}

	perm := os.FileMode(0o644)
	if opts.Perm != nil {
		perm = os.FileMode(*opts.Perm & 0o777)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return nil, err
	}

	// OpenFile only applies perm to new files, and subject to the umask.
	if opts.Perm != nil {
		if err := f.Chmod(perm); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("chmod %s: %w", path, err)
		}
	}

	if opts.UID != nil || opts.GID != nil {
		uid, gid := -1, -1
		if opts.UID != nil {
			uid = int(*opts.UID)
		}
		if opts.GID != nil {
			gid = int(*opts.GID)
		}
		if err := f.Chown(uid, gid); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("chown %s: %w", path, err)
		}
	}

	fs.logger.VerboseMsg("Opened %s for writing", path)
	return f, nil
}
