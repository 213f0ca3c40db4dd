package buffer

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"flowcore/pkg/event"
)

// FsyncPolicy selects when the disk buffer durably flushes writes.
type FsyncPolicy int

const (
	FsyncAlways FsyncPolicy = iota
	FsyncNever
	FsyncBatched
)

// DiskConfig configures a DiskBuffer.
type DiskConfig struct {
	Dir             string
	MaxSizeBytes    uint64
	DataFileSizeMax uint64 // default 128 MiB
	Fsync           FsyncPolicy
	FsyncInterval   time.Duration // used when Fsync == FsyncBatched
	Policy          OverflowPolicy
	Next            Buffer // required when Policy == Overflow

	DirPerm  os.FileMode
	FilePerm os.FileMode
}

func (c *DiskConfig) setDefaults() {
	if c.DataFileSizeMax == 0 {
		c.DataFileSizeMax = 128 << 20
	}
	if c.FsyncInterval == 0 {
		c.FsyncInterval = time.Second
	}
	if c.DirPerm == 0 {
		c.DirPerm = 0o755
	}
	if c.FilePerm == 0 {
		c.FilePerm = 0o644
	}
}

const frameHeaderSize = 16 // record_id(8) + event_count(4) + payload_len(4)
const frameTrailerSize = 4 // crc32c

func dataFileName(id uint16) string {
	return fmt.Sprintf("data-%010d", id)
}

// fileSpan tracks the record id range written into a single data file, used
// to decide when the file becomes eligible for deletion (fully read AND
// fully acknowledged).
type fileSpan struct {
	id          uint16
	maxRecordID uint64
}

// DiskBuffer is the durable on-disk buffer: a crash-consistent, bounded-size
// queue backed by a fixed-size ledger record and a sequence of append-only
// data files, per SPEC_FULL.md §4.2.3.
//
// Grounded on the teacher's pkg/buffer/disk_buffer.go for the overall shape
// (rotation, background sync, glob-based recovery) but rewritten onto the
// ledger+framed-record wire format the spec requires, and generalized from
// *types.LogEntry to the polymorphic event.Event.
type DiskBuffer struct {
	cfg    DiskConfig
	ledger *ledger

	writeMu     sync.Mutex
	writeFile   *os.File
	writeOffset int64
	dirty       int
	lastSync    time.Time

	readMu        sync.Mutex
	readFile      *os.File
	readOffset    int64
	readFileMaxID uint64 // highest record id observed so far in the current read file
	lastFrameSize int64  // size of the most recently consumed frame, for rewind

	pendingMu sync.Mutex
	pending   map[uint16]uint64 // data file id -> max record id, awaiting ack before deletion

	notify chan struct{}
	space  chan struct{}

	closed  int32
	closeCh chan struct{}

	overflowed int64
}

// OpenDiskBuffer opens (or creates) a disk buffer rooted at cfg.Dir.
func OpenDiskBuffer(cfg DiskConfig) (*DiskBuffer, error) {
	cfg.setDefaults()
	if cfg.Policy == Overflow && cfg.Next == nil {
		return nil, fmt.Errorf("buffer: disk buffer configured with Overflow policy but no Next buffer")
	}
	if err := os.MkdirAll(cfg.Dir, cfg.DirPerm); err != nil {
		return nil, fmt.Errorf("buffer: create dir: %w", err)
	}
	l, err := openLedger(filepath.Join(cfg.Dir, "ledger"))
	if err != nil {
		return nil, err
	}

	db := &DiskBuffer{
		cfg:     cfg,
		ledger:  l,
		pending: make(map[uint16]uint64),
		notify:  make(chan struct{}, 1),
		space:   make(chan struct{}, 1),
		closeCh: make(chan struct{}),
	}

	st := l.snapshot()
	wf, err := os.OpenFile(filepath.Join(cfg.Dir, dataFileName(st.WriterCurrentDataFileID)), os.O_RDWR|os.O_CREATE|os.O_APPEND, cfg.FilePerm)
	if err != nil {
		return nil, fmt.Errorf("buffer: open write file: %w", err)
	}
	info, err := wf.Stat()
	if err != nil {
		wf.Close()
		return nil, err
	}
	db.writeFile = wf
	db.writeOffset = info.Size()
	return db, nil
}

func (b *DiskBuffer) wake(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Send serializes e and appends it as a framed record, rolling to a new
// data file when the current one would exceed DataFileSizeMax, and applying
// the configured overflow policy when the buffer is at capacity.
//
// On success the caller's finalizer (if any) is released with
// StatusRecorded: the event is now durably captured even though it has not
// yet been delivered downstream (see pkg/event.Status).
func (b *DiskBuffer) Send(ctx context.Context, e event.Event) error {
	if atomic.LoadInt32(&b.closed) == 1 {
		return ErrClosed
	}

	payload, err := encodeEvent(e)
	if err != nil {
		return fmt.Errorf("buffer: encode: %w", err)
	}
	framedSize := uint64(frameHeaderSize + len(payload) + frameTrailerSize)

	for {
		st := b.ledger.snapshot()
		if st.TotalBufferSize+framedSize > b.cfg.MaxSizeBytes && b.cfg.MaxSizeBytes > 0 {
			switch b.cfg.Policy {
			case DropNewest:
				atomic.AddInt64(&b.overflowed, 1)
				if e.Metadata.Finalizer != nil {
					e.Metadata.Finalizer.Release(event.StatusDropped)
				}
				return nil
			case Overflow:
				atomic.AddInt64(&b.overflowed, 1)
				return b.cfg.Next.Send(ctx, e)
			default: // Block
				select {
				case <-b.space:
					continue
				case <-b.closeCh:
					return ErrClosed
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		break
	}

	recordID, err := b.writeFrame(payload)
	if err != nil {
		return fmt.Errorf("buffer: write frame: %w", err)
	}
	_ = recordID

	if e.Metadata.Finalizer != nil {
		e.Metadata.Finalizer.Release(event.StatusRecorded)
	}
	b.wake(b.notify)
	return nil
}

func (b *DiskBuffer) writeFrame(payload []byte) (uint64, error) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	framedSize := int64(frameHeaderSize + len(payload) + frameTrailerSize)
	st := b.ledger.snapshot()

	if b.writeOffset+framedSize > int64(b.cfg.DataFileSizeMax) {
		if err := b.rollWriteFileLocked(st); err != nil {
			return 0, err
		}
		st = b.ledger.snapshot()
	}

	recordID := st.WriterNextRecordID
	frame := make([]byte, framedSize)
	binary.LittleEndian.PutUint64(frame[0:8], recordID)
	binary.LittleEndian.PutUint32(frame[8:12], 1)
	binary.LittleEndian.PutUint32(frame[12:16], uint32(len(payload)))
	copy(frame[16:16+len(payload)], payload)
	crc := crc32.Checksum(frame[:16+len(payload)], castagnoliTable)
	binary.LittleEndian.PutUint32(frame[16+len(payload):], crc)

	if _, err := b.writeFile.Write(frame); err != nil {
		return 0, err
	}
	b.writeOffset += framedSize
	b.dirty++

	switch b.cfg.Fsync {
	case FsyncAlways:
		if err := b.writeFile.Sync(); err != nil {
			return 0, err
		}
		b.dirty = 0
	case FsyncBatched:
		if time.Since(b.lastSync) >= b.cfg.FsyncInterval || b.dirty > 256 {
			if err := b.writeFile.Sync(); err != nil {
				return 0, err
			}
			b.dirty = 0
			b.lastSync = time.Now()
		}
	}

	err := b.ledger.update(func(s *ledgerState) {
		s.WriterNextRecordID = recordID + 1
		s.TotalBufferSize += uint64(framedSize)
		s.WriterCurrentDataFileID = st.WriterCurrentDataFileID
	})
	return recordID, err
}

func (b *DiskBuffer) rollWriteFileLocked(st ledgerState) error {
	if err := b.writeFile.Sync(); err != nil {
		return err
	}
	b.writeFile.Close()

	newID := st.WriterCurrentDataFileID + 1
	wf, err := os.OpenFile(filepath.Join(b.cfg.Dir, dataFileName(newID)), os.O_RDWR|os.O_CREATE|os.O_APPEND, b.cfg.FilePerm)
	if err != nil {
		return err
	}
	b.writeFile = wf
	b.writeOffset = 0
	return b.ledger.update(func(s *ledgerState) {
		s.WriterCurrentDataFileID = newID
	})
}

// Receive reads the next frame in FIFO order, verifying its checksum. A
// corrupt frame is skipped (its bytes already consumed by the length
// field) rather than failing the whole read.
func (b *DiskBuffer) Receive(ctx context.Context) (event.Event, error) {
	b.readMu.Lock()
	defer b.readMu.Unlock()

	for {
		if atomic.LoadInt32(&b.closed) == 1 {
			return event.Event{}, ErrClosed
		}
		if b.readFile == nil {
			if err := b.openReadFileLocked(); err != nil {
				return event.Event{}, err
			}
		}

		e, recordID, ok, err := b.tryReadFrameLocked()
		if err != nil {
			return event.Event{}, err
		}
		if ok {
			b.attachReaderFinalizer(&e, recordID)
			return e, nil
		}

		// No complete frame available in the current file: roll forward if
		// the writer has already moved on, otherwise wait for more data.
		st := b.ledger.snapshot()
		if st.WriterCurrentDataFileID > b.currentReadFileID() {
			if err := b.rollReadFileLocked(); err != nil {
				return event.Event{}, err
			}
			continue
		}

		select {
		case <-b.notify:
			continue
		case <-b.closeCh:
			return event.Event{}, ErrClosed
		case <-ctx.Done():
			return event.Event{}, ctx.Err()
		}
	}
}

func (b *DiskBuffer) currentReadFileID() uint16 {
	return b.ledger.snapshot().ReaderCurrentDataFileID
}

func (b *DiskBuffer) openReadFileLocked() error {
	st := b.ledger.snapshot()
	path := filepath.Join(b.cfg.Dir, dataFileName(st.ReaderCurrentDataFileID))
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		// Nothing written yet for this file id; treat as empty.
		f, err = os.OpenFile(path, os.O_RDONLY|os.O_CREATE, b.cfg.FilePerm)
	}
	if err != nil {
		return fmt.Errorf("buffer: open read file: %w", err)
	}
	b.readFile = f
	b.readOffset = 0
	b.readFileMaxID = st.ReaderLastAckRecordID

	// Skip forward past any records already acknowledged in a prior run:
	// the persisted resume point is the last acknowledged record, not the
	// last read one, so records between that point and the tail are
	// replayed at-least-once per the spec.
	for {
		_, recID, ok, err := b.tryReadFrameLocked()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if recID > st.ReaderLastAckRecordID {
			// rewind: this record hasn't been acknowledged, it must be
			// yielded to the consumer. tryReadFrameLocked already advanced
			// readOffset past it, so back up.
			b.readOffset -= b.lastFrameSize
			if _, err := b.readFile.Seek(b.readOffset, io.SeekStart); err != nil {
				return err
			}
			break
		}
	}
	return nil
}

func (b *DiskBuffer) tryReadFrameLocked() (event.Event, uint64, bool, error) {
	header := make([]byte, frameHeaderSize)
	n, err := io.ReadFull(b.readFile, header)
	if err != nil || n < frameHeaderSize {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			if n > 0 {
				if _, serr := b.readFile.Seek(-int64(n), io.SeekCurrent); serr != nil {
					return event.Event{}, 0, false, serr
				}
			}
			return event.Event{}, 0, false, nil
		}
		return event.Event{}, 0, false, err
	}
	recordID := binary.LittleEndian.Uint64(header[0:8])
	payloadLen := binary.LittleEndian.Uint32(header[12:16])

	body := make([]byte, int(payloadLen)+frameTrailerSize)
	if _, err := io.ReadFull(b.readFile, body); err != nil {
		// Partial write at the tail: rewind past the header we just
		// consumed so the next attempt re-reads cleanly once the rest of
		// the frame has landed.
		if _, serr := b.readFile.Seek(-int64(frameHeaderSize), io.SeekCurrent); serr != nil {
			return event.Event{}, 0, false, serr
		}
		return event.Event{}, 0, false, nil
	}

	frameSize := int64(frameHeaderSize) + int64(len(body))
	b.readOffset += frameSize
	b.lastFrameSize = frameSize

	payload := body[:payloadLen]
	crc := binary.LittleEndian.Uint32(body[payloadLen:])
	full := append(append([]byte(nil), header...), payload...)
	if crc32.Checksum(full, castagnoliTable) != crc {
		// Corrupt record: bytes already consumed via the length field,
		// so the stream stays aligned for the next frame.
		return event.Event{}, 0, false, nil
	}

	if recordID > b.readFileMaxID {
		b.readFileMaxID = recordID
	}

	e, err := decodeEvent(payload)
	if err != nil {
		// Treat a payload that fails to decode the same as a corrupt
		// record rather than aborting the whole reader task.
		return event.Event{}, 0, false, nil
	}
	return e, recordID, true, nil
}

func (b *DiskBuffer) rollReadFileLocked() error {
	oldID := b.currentReadFileID()
	maxSeen := b.readFileMaxID

	b.readFile.Close()
	b.readFile = nil

	if err := b.ledger.update(func(s *ledgerState) {
		s.ReaderCurrentDataFileID = oldID + 1
	}); err != nil {
		return err
	}

	st := b.ledger.snapshot()
	if maxSeen > 0 && st.ReaderLastAckRecordID >= maxSeen {
		b.deleteFile(oldID)
	} else if maxSeen > 0 {
		b.pendingMu.Lock()
		b.pending[oldID] = maxSeen
		b.pendingMu.Unlock()
	}
	return b.openReadFileLocked()
}

func (b *DiskBuffer) deleteFile(id uint16) {
	os.Remove(filepath.Join(b.cfg.Dir, dataFileName(id)))
	b.wake(b.space)
}

// attachReaderFinalizer wires a fresh finalizer to the yielded event: when
// it reaches a terminal status, the ledger's acknowledged-record cursor
// advances (monotonically, never decreasing) and any data files that
// become fully acknowledged as a result are deleted.
func (b *DiskBuffer) attachReaderFinalizer(e *event.Event, recordID uint64) {
	e.Metadata.AttachFinalizer(event.NewFinalizer(func(event.Status) {
		b.acknowledge(recordID)
	}))
}

func (b *DiskBuffer) acknowledge(recordID uint64) {
	b.ledger.update(func(s *ledgerState) {
		if recordID > s.ReaderLastAckRecordID {
			s.ReaderLastAckRecordID = recordID
		}
	})
	st := b.ledger.snapshot()

	b.pendingMu.Lock()
	var done []uint16
	for id, maxID := range b.pending {
		if st.ReaderLastAckRecordID >= maxID {
			done = append(done, id)
		}
	}
	for _, id := range done {
		delete(b.pending, id)
	}
	b.pendingMu.Unlock()

	for _, id := range done {
		b.deleteFile(id)
	}
}

// Close shuts the buffer down. Any buffered-but-unread records remain on
// disk and are replayed on the next OpenDiskBuffer call.
func (b *DiskBuffer) Close() error {
	if !atomic.CompareAndSwapInt32(&b.closed, 0, 1) {
		return nil
	}
	close(b.closeCh)

	b.writeMu.Lock()
	b.writeFile.Sync()
	b.writeFile.Close()
	b.writeMu.Unlock()

	b.readMu.Lock()
	if b.readFile != nil {
		b.readFile.Close()
	}
	b.readMu.Unlock()

	return b.ledger.close()
}

func (b *DiskBuffer) Stats() Stats {
	st := b.ledger.snapshot()
	pending := int64(st.WriterNextRecordID) - int64(st.ReaderLastAckRecordID) - 1
	if pending < 0 {
		pending = 0
	}
	return Stats{
		Events:     pending,
		Bytes:      int64(st.TotalBufferSize),
		Capacity:   int64(b.cfg.MaxSizeBytes),
		ByBytes:    true,
		Overflowed: atomic.LoadInt64(&b.overflowed),
	}
}
