package buffer

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"sync"
)

// castagnoliTable backs the ledger header checksum per the spec's disk
// buffer wire format (CRC32C, not the IEEE polynomial the teacher's
// in-payload sha256 checksum used).
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// ledgerRecordSize is padded well past the 36 bytes of payload plus 4 bytes
// of CRC so the record stays friendly to mmap'd access on page-aligned
// platforms, per the spec's "fixed-size record, mmap-friendly" note.
const ledgerRecordSize = 64

// ledgerState is the ledger's logical content: the writer/reader cursors
// and the epoch used to detect a torn write on recovery.
type ledgerState struct {
	WriterNextRecordID      uint64
	WriterCurrentDataFileID uint16
	ReaderLastAckRecordID   uint64
	ReaderCurrentDataFileID uint16
	TotalBufferSize         uint64
	Epoch                   uint64
}

func (s ledgerState) encode() [ledgerRecordSize]byte {
	var buf [ledgerRecordSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], s.WriterNextRecordID)
	binary.LittleEndian.PutUint16(buf[8:10], s.WriterCurrentDataFileID)
	binary.LittleEndian.PutUint64(buf[10:18], s.ReaderLastAckRecordID)
	binary.LittleEndian.PutUint16(buf[18:20], s.ReaderCurrentDataFileID)
	binary.LittleEndian.PutUint64(buf[20:28], s.TotalBufferSize)
	binary.LittleEndian.PutUint64(buf[28:36], s.Epoch)
	crc := crc32.Checksum(buf[0:36], castagnoliTable)
	binary.LittleEndian.PutUint32(buf[36:40], crc)
	return buf
}

func decodeLedgerState(buf []byte) (ledgerState, error) {
	if len(buf) < 40 {
		return ledgerState{}, fmt.Errorf("ledger: short record (%d bytes)", len(buf))
	}
	crc := binary.LittleEndian.Uint32(buf[36:40])
	if crc32.Checksum(buf[0:36], castagnoliTable) != crc {
		return ledgerState{}, fmt.Errorf("ledger: checksum mismatch")
	}
	var s ledgerState
	s.WriterNextRecordID = binary.LittleEndian.Uint64(buf[0:8])
	s.WriterCurrentDataFileID = binary.LittleEndian.Uint16(buf[8:10])
	s.ReaderLastAckRecordID = binary.LittleEndian.Uint64(buf[10:18])
	s.ReaderCurrentDataFileID = binary.LittleEndian.Uint16(buf[18:20])
	s.TotalBufferSize = binary.LittleEndian.Uint64(buf[20:28])
	s.Epoch = binary.LittleEndian.Uint64(buf[28:36])
	return s, nil
}

// ledger is the single fixed-size on-disk record tracking writer/reader
// cursors for a disk buffer directory.
type ledger struct {
	mu    sync.Mutex
	file  *os.File
	state ledgerState
}

func openLedger(path string) (*ledger, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	l := &ledger{file: f}

	buf := make([]byte, ledgerRecordSize)
	n, _ := f.ReadAt(buf, 0)
	if n < 40 {
		l.state = ledgerState{WriterNextRecordID: 1}
		if err := l.persistLocked(); err != nil {
			f.Close()
			return nil, err
		}
		return l, nil
	}
	st, derr := decodeLedgerState(buf)
	if derr != nil {
		// A torn or never-written ledger: start fresh rather than fail
		// the whole buffer open, matching the spec's "never underestimates,
		// may briefly be stale" tolerance for crash recovery.
		l.state = ledgerState{WriterNextRecordID: 1}
		if err := l.persistLocked(); err != nil {
			f.Close()
			return nil, err
		}
		return l, nil
	}
	l.state = st
	return l, nil
}

func (l *ledger) persistLocked() error {
	l.state.Epoch++
	enc := l.state.encode()
	if _, err := l.file.WriteAt(enc[:], 0); err != nil {
		return fmt.Errorf("ledger: write: %w", err)
	}
	return l.file.Sync()
}

func (l *ledger) snapshot() ledgerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *ledger) update(fn func(*ledgerState)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(&l.state)
	return l.persistLocked()
}

func (l *ledger) close() error {
	return l.file.Close()
}
