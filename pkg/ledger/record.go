package ledger

import (
	"bytes"
	"encoding/binary"
	"io"
)

type Status byte

const (
	StatusUninstalled Status = 0x00
	StatusInstalled   Status = 0x01
	StatusEnd         Status = 0xFF
)

func (s Status) String() string {
	switch s {
	case StatusUninstalled:
		return "uninstalled"
	case StatusInstalled:
		return "installed"
	case StatusEnd:
		return "end"
	}
	return "unknown"
}

// Record is one row of the install table.
type Record struct {
	Status  Status
	Game    GameName
	Version Version
	User    UserName
}

// EndRecord terminates the table. It is encoded as erased flash.
func EndRecord() Record {
	return Record{Status: StatusEnd}
}

func (r Record) FullName() string {
	return FullName(r.Game, r.Version)
}

func (r Record) Marshal() []byte {
	buf := make([]byte, RecordSize)
	if r.Status == StatusEnd {
		for i := range buf {
			buf[i] = byte(StatusEnd)
		}
		return buf
	}

	buf[statusOffset] = byte(r.Status)
	copy(buf[gameOffset:gameOffset+gameSize-1], r.Game)
	binary.LittleEndian.PutUint32(buf[majorOffset:majorOffset+4], r.Version.Major)
	binary.LittleEndian.PutUint32(buf[minorOffset:minorOffset+4], r.Version.Minor)
	copy(buf[userOffset:userOffset+userSize-1], r.User)
	return buf
}

func Unmarshal(buf []byte) (Record, error) {
	if len(buf) != RecordSize {
		return Record{}, io.ErrUnexpectedEOF
	}

	r := Record{Status: Status(buf[statusOffset])}
	if r.Status == StatusEnd {
		return r, nil
	}
	r.Game = GameName(cstring(buf[gameOffset : gameOffset+gameSize-1]))
	r.Version.Major = binary.LittleEndian.Uint32(buf[majorOffset : majorOffset+4])
	r.Version.Minor = binary.LittleEndian.Uint32(buf[minorOffset : minorOffset+4])
	r.User = UserName(cstring(buf[userOffset : userOffset+userSize-1]))
	return r, nil
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
