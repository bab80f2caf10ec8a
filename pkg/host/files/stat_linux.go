package files

import (
	"time"

	"devremote/troubleshoot/pkg/handler/filetransfer"

	"golang.org/x/sys/unix"
)

func stat(path string) (filetransfer.FileInfo, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return filetransfer.FileInfo{}, err
	}

	size := st.Size
	uid := st.Uid
	gid := st.Gid
	mode := st.Mode & 0o7777
	sec, nsec := st.Mtim.Unix()
	mtime := time.Unix(sec, nsec)

	return filetransfer.FileInfo{
		Size:    &size,
		UID:     &uid,
		GID:     &gid,
		Mode:    &mode,
		ModTime: &mtime,
	}, nil
}
