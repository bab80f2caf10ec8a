//go:build !linux

package files

import (
	"os"

	"devremote/troubleshoot/pkg/handler/filetransfer"
)

// Owner information is not reported outside Linux.
func stat(path string) (filetransfer.FileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return filetransfer.FileInfo{}, err
	}

	size := fi.Size()
	mode := uint32(fi.Mode().Perm())
	mtime := fi.ModTime()

	return filetransfer.FileInfo{
		Size:    &size,
		Mode:    &mode,
		ModTime: &mtime,
	}, nil
}
