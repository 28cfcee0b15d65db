package eventlog

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/cathedral-fabric/fabric/pkg/core"
)

// logMagic identifies a ".cath-log" file. Version is bumped whenever the
// record layout of Event.Encode changes in a way that isn't
// backward-readable.
var logMagic = [7]byte{'C', 'A', 'T', 'H', 'L', 'O', 'G'}

const logVersion uint32 = 1

// Log is an append-only, hash-chained sequence of events backed by a
// single file, mirroring the append-with-lock discipline of
// appendJournalRecord in the reference session journal: every writer
// holds the log's mutex for the duration of an append so readers never
// observe a half-written record.
type Log struct {
	mu        sync.Mutex
	file      *os.File
	validator *ChainValidator
	index     []indexEntry // event_id -> byte offset, built as events are appended
}

type indexEntry struct {
	eventID core.EventID
	offset  int64
}

// Create creates a new log file at path, writing the header, and returns
// a Log ready to accept Append calls starting from the empty chain.
func Create(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		return nil, core.NewError(core.CodeStorageError, fmt.Sprintf("create log: %v", err))
	}
	if err := writeHeader(f, 0); err != nil {
		f.Close()
		return nil, err
	}
	return &Log{file: f, validator: NewChainValidator()}, nil
}

// Open opens an existing log file for reading and appending, replaying
// its header and rebuilding the in-memory offset index and chain
// validator state from the records already on disk.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, core.NewError(core.CodeStorageError, fmt.Sprintf("open log: %v", err))
	}
	count, err := readHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	l := &Log{file: f, validator: NewChainValidator()}
	r := bufio.NewReader(f)
	for i := uint32(0); i < count; i++ {
		offset, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			f.Close()
			return nil, core.NewError(core.CodeStorageError, err.Error())
		}
		offset -= int64(r.Buffered())

		rec, err := readRecord(r)
		if err != nil {
			f.Close()
			return nil, err
		}
		ev, err := DecodeEvent(rec)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := l.validator.Validate(ev); err != nil {
			f.Close()
			return nil, err
		}
		l.index = append(l.index, indexEntry{eventID: ev.EventID, offset: offset})
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, core.NewError(core.CodeStorageError, err.Error())
	}
	return l, nil
}

func writeHeader(f *os.File, count uint32) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return core.NewError(core.CodeStorageError, err.Error())
	}
	var hdr [len(logMagic) + 4 + 4]byte
	copy(hdr[:len(logMagic)], logMagic[:])
	binary.BigEndian.PutUint32(hdr[len(logMagic):], logVersion)
	binary.BigEndian.PutUint32(hdr[len(logMagic)+4:], count)
	if _, err := f.Write(hdr[:]); err != nil {
		return core.NewError(core.CodeStorageError, err.Error())
	}
	return nil
}

func readHeader(f *os.File) (uint32, error) {
	var hdr [len(logMagic) + 4 + 4]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		return 0, core.NewError(core.CodeBundleCorrupted, fmt.Sprintf("read log header: %v", err))
	}
	if [7]byte(hdr[:len(logMagic)]) != logMagic {
		return 0, core.NewError(core.CodeBundleCorrupted, "not a cath-log file")
	}
	version := binary.BigEndian.Uint32(hdr[len(logMagic):])
	if version != logVersion {
		return 0, core.NewError(core.CodeBundleCorrupted, fmt.Sprintf("unsupported log version %d", version))
	}
	return binary.BigEndian.Uint32(hdr[len(logMagic)+4:]), nil
}

func writeRecord(w io.Writer, rec []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(rec)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return core.NewError(core.CodeStorageError, err.Error())
	}
	if _, err := w.Write(rec); err != nil {
		return core.NewError(core.CodeStorageError, err.Error())
	}
	return nil
}

func readRecord(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, core.NewError(core.CodeBundleCorrupted, fmt.Sprintf("read record length: %v", err))
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	rec := make([]byte, n)
	if _, err := io.ReadFull(r, rec); err != nil {
		return nil, core.NewError(core.CodeBundleCorrupted, fmt.Sprintf("read record body: %v", err))
	}
	return rec, nil
}

// Append validates e against the log's running hash chain, writes it to
// disk, and updates the header's event count in place.
func (l *Log) Append(e *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.validator.Validate(e); err != nil {
		return err
	}

	offset, err := l.file.Seek(0, io.SeekEnd)
	if err != nil {
		return core.NewError(core.CodeStorageError, err.Error())
	}
	if err := writeRecord(l.file, e.Encode()); err != nil {
		return err
	}
	l.index = append(l.index, indexEntry{eventID: e.EventID, offset: offset})

	if err := writeHeader(l.file, uint32(len(l.index))); err != nil {
		return err
	}
	if _, err := l.file.Seek(0, io.SeekEnd); err != nil {
		return core.NewError(core.CodeStorageError, err.Error())
	}
	return nil
}

// Len returns the number of events currently in the log.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.index)
}

// Tip returns the post_state_hash the next appended event must chain
// from, or nil if the log is empty.
func (l *Log) Tip() *core.Hash {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.validator.Expected()
}

// At returns the i'th event by sequential position (0-based), reading it
// off disk at its indexed offset.
func (l *Log) At(i int) (*Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i < 0 || i >= len(l.index) {
		return nil, core.NewError(core.CodeNotFound, "event index out of range")
	}
	return l.readAt(l.index[i].offset)
}

// Seek returns the event with the given id along with its sequential
// position, or CodeNotFound if absent.
func (l *Log) Seek(id core.EventID) (*Event, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, entry := range l.index {
		if entry.eventID == id {
			ev, err := l.readAt(entry.offset)
			return ev, i, err
		}
	}
	return nil, -1, core.NewError(core.CodeNotFound, "event not found: "+id.String())
}

func (l *Log) readAt(offset int64) (*Event, error) {
	if _, err := l.file.Seek(offset, io.SeekStart); err != nil {
		return nil, core.NewError(core.CodeStorageError, err.Error())
	}
	rec, err := readRecord(l.file)
	if err != nil {
		return nil, err
	}
	if _, err := l.file.Seek(0, io.SeekEnd); err != nil {
		return nil, core.NewError(core.CodeStorageError, err.Error())
	}
	return DecodeEvent(rec)
}

// All returns every event in sequential order. Intended for small logs,
// tests, and bundle packing; large replays should use a Cursor instead.
func (l *Log) All() ([]*Event, error) {
	n := l.Len()
	out := make([]*Event, 0, n)
	for i := 0; i < n; i++ {
		e, err := l.At(i)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Cursor streams events sequentially starting from a given position
// without holding the log lock between reads, so a slow consumer doesn't
// block concurrent appends for longer than a single record read.
type Cursor struct {
	log *Log
	pos int
}

// NewCursor returns a Cursor positioned at the start of the log.
func (l *Log) NewCursor() *Cursor { return &Cursor{log: l} }

// CursorFrom returns a Cursor positioned just after the event with id,
// used to resume streaming after a known checkpoint.
func (l *Log) CursorFrom(id core.EventID) (*Cursor, error) {
	_, pos, err := l.Seek(id)
	if err != nil {
		return nil, err
	}
	return &Cursor{log: l, pos: pos + 1}, nil
}

// Next returns the next event and advances the cursor, or (nil, false)
// if the cursor has reached the current end of the log.
func (c *Cursor) Next() (*Event, bool, error) {
	if c.pos >= c.log.Len() {
		return nil, false, nil
	}
	e, err := c.log.At(c.pos)
	if err != nil {
		return nil, false, err
	}
	c.pos++
	return e, true, nil
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Close(); err != nil {
		return core.NewError(core.CodeStorageError, err.Error())
	}
	return nil
}
