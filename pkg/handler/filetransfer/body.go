package filetransfer

import (
	"fmt"

	"devremote/troubleshoot/pkg/proto"
)

// EncodePathBody encodes the body of get_file and stat requests.
func EncodePathBody(path string) ([]byte, error) {
	return proto.NewMapBuilder().String(keyPath, path).Encode()
}

// EncodePutBody encodes the body of a put_file request. Nil owner and mode
// fields are omitted.
func EncodePutBody(path string, uid, gid, mode *uint32) ([]byte, error) {
	b := proto.NewMapBuilder().String(keyPath, path)
	if uid != nil {
		b.Uint(keyUID, uint64(*uid))
	}
	if gid != nil {
		b.Uint(keyGID, uint64(*gid))
	}
	if mode != nil {
		b.Uint(keyMode, uint64(*mode))
	}
	return b.Encode()
}

// DecodeFileInfo decodes the body of a file_info reply.
func DecodeFileInfo(body []byte) (string, FileInfo, error) {
	m, err := proto.DecodeMap(body)
	if err != nil {
		return "", FileInfo{}, fmt.Errorf("decoding file_info: %w", err)
	}

	path, _ := m.String(keyPath)

	var info FileInfo
	if v, ok := m.Int(keySize); ok {
		info.Size = &v
	}
	info.UID = optUint32(m, keyUID)
	info.GID = optUint32(m, keyGID)
	info.Mode = optUint32(m, keyMode)
	if v, ok := m.Time(keyModTime); ok {
		info.ModTime = &v
	}
	return path, info, nil
}
