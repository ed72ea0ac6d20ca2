// Package ledger keeps the install table: an append-only log of fixed-width
// records behind a sentinel, terminated by a single END record.
package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// ErrStorage is matched by every failure of the underlying store
	ErrStorage = errors.New("ledger storage error")
	// ErrNoEnd errors when a scan runs off the store without an END record
	ErrNoEnd = errors.New("install table has no end record")
	// ErrFull errors when there is no room left for another record
	ErrFull = errors.New("install table is full")
	// ErrBadOffset errors when an offset does not address a record slot
	ErrBadOffset = errors.New("offset is not a record slot")
)

// Store is the byte-addressable flash the table lives on.
type Store interface {
	Size() uint32
	Read(offset, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
}

type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// Entry is a record together with the offset it was read from.
type Entry struct {
	Offset uint32
	Record Record
}

// Ledger is a view over Store. It holds no state of its own.
type Ledger struct {
	store Store
}

func New(s Store) *Ledger {
	return &Ledger{store: s}
}

func (l *Ledger) IsFirstBoot() (bool, error) {
	buf, err := l.store.Read(SentinelOffset, SentinelSize)
	if err != nil {
		return false, storageErr("read sentinel", err)
	}
	return binary.LittleEndian.Uint32(buf) != SentinelValue, nil
}

// Initialize writes the sentinel and an empty table unless the sentinel is
// already present. It reports whether anything was written.
func (l *Ledger) Initialize() (bool, error) {
	first, err := l.IsFirstBoot()
	if err != nil {
		return false, err
	}
	if !first {
		return false, nil
	}

	logrus.Info("ledger: initializing install table")
	sentinel := make([]byte, SentinelSize)
	binary.LittleEndian.PutUint32(sentinel, SentinelValue)
	if err := l.store.Write(SentinelOffset, sentinel); err != nil {
		return false, storageErr("write sentinel", err)
	}
	if err := l.store.Write(BaseOffset, EndRecord().Marshal()); err != nil {
		return false, storageErr("write end", err)
	}
	return true, nil
}

// Scanner walks the table from BaseOffset. The END record is the last entry
// it yields.
type Scanner struct {
	store  Store
	offset uint32
	entry  Entry
	done   bool
	err    error
}

// Scan starts a new read-only pass over the table.
func (l *Ledger) Scan() *Scanner {
	return &Scanner{store: l.store, offset: BaseOffset}
}

func (s *Scanner) Next() bool {
	if s.done || s.err != nil {
		return false
	}
	if uint64(s.offset)+RecordSize > uint64(s.store.Size()) {
		s.err = errors.Wrapf(ErrNoEnd, "scanned to 0x%x", s.offset)
		return false
	}

	buf, err := s.store.Read(s.offset, RecordSize)
	if err != nil {
		s.err = storageErr("scan", err)
		return false
	}
	rec, err := Unmarshal(buf)
	if err != nil {
		s.err = storageErr("decode", err)
		return false
	}

	s.entry = Entry{Offset: s.offset, Record: rec}
	s.offset += RecordSize
	if rec.Status == StatusEnd {
		s.done = true
	}
	return true
}

func (s *Scanner) Entry() Entry { return s.entry }

func (s *Scanner) Err() error { return s.err }

// Records returns every record before END.
func (l *Ledger) Records() ([]Entry, error) {
	var out []Entry
	sc := l.Scan()
	for sc.Next() {
		e := sc.Entry()
		if e.Record.Status == StatusEnd {
			break
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// End returns the offset of the END record.
func (l *Ledger) End() (uint32, error) {
	sc := l.Scan()
	for sc.Next() {
		if e := sc.Entry(); e.Record.Status == StatusEnd {
			return e.Offset, nil
		}
	}
	return 0, sc.Err()
}

// FindActive returns the latest INSTALLED record of game for user.
func (l *Ledger) FindActive(user UserName, game GameName) (Entry, bool, error) {
	return l.findLast(func(r Record) bool {
		return r.Status == StatusInstalled && r.User == user && r.Game == game
	})
}

// FindInstalled is FindActive restricted to one version.
func (l *Ledger) FindInstalled(user UserName, game GameName, v Version) (Entry, bool, error) {
	return l.findLast(func(r Record) bool {
		return r.Status == StatusInstalled && r.User == user && r.Game == game && r.Version == v
	})
}

func (l *Ledger) findLast(match func(Record) bool) (Entry, bool, error) {
	entries, err := l.Records()
	if err != nil {
		return Entry{}, false, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if match(entries[i].Record) {
			return entries[i], true, nil
		}
	}
	return Entry{}, false, nil
}

// Append writes rec over the current END record and places a fresh END
// right after it. It returns the offset rec was written at.
func (l *Ledger) Append(rec Record) (uint32, error) {
	if rec.Status == StatusEnd {
		return 0, errors.New("cannot append an end record")
	}
	end, err := l.End()
	if err != nil {
		return 0, err
	}
	if uint64(end)+2*RecordSize > uint64(l.store.Size()) {
		return 0, errors.Wrapf(ErrFull, "end at 0x%x", end)
	}

	buf := make([]byte, 0, 2*RecordSize)
	buf = append(buf, rec.Marshal()...)
	buf = append(buf, EndRecord().Marshal()...)
	if err := l.store.Write(end, buf); err != nil {
		return 0, storageErr("append", err)
	}

	logrus.WithFields(logrus.Fields{
		"offset": fmt.Sprintf("0x%x", end),
		"game":   rec.FullName(),
		"user":   rec.User,
	}).Debug("ledger: appended record")
	return end, nil
}

// Tombstone marks the record at offset uninstalled. END is not touched.
func (l *Ledger) Tombstone(offset uint32, rec Record) error {
	if offset < BaseOffset || (offset-BaseOffset)%RecordSize != 0 {
		return errors.Wrapf(ErrBadOffset, "0x%x", offset)
	}
	if rec.Status == StatusEnd {
		return errors.Wrapf(ErrBadOffset, "0x%x holds the end record", offset)
	}

	rec.Status = StatusUninstalled
	if err := l.store.Write(offset, rec.Marshal()); err != nil {
		return storageErr("tombstone", err)
	}
	return nil
}
