package output

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RawLogMagic heads every raw result-stream log file.
const RawLogMagic = "PTRKRAW1"

// rawRecordHeaderSize is the fixed per-record framing: 8-byte receive time
// (unix nanoseconds), 4-byte sequence number and 4-byte payload size, all
// little-endian. The sequence number makes gaps from torn writes detectable
// when a recording is cut off mid-record.
const rawRecordHeaderSize = 16

// RawLogWriter records inbound result packets verbatim for offline replay.
type RawLogWriter struct {
	mu  sync.Mutex
	f   *os.File
	w   *bufio.Writer
	seq uint32
}

func NewRawLogWriter(outputDir string, prefix string) (*RawLogWriter, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}
	timestamp := time.Now().Format("20060102_150405")
	filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s.bin", timestamp, prefix))
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriterSize(f, 1024*1024)
	if _, err := w.WriteString(RawLogMagic); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &RawLogWriter{
		f: f,
		w: w,
	}, nil
}

// Record frames one inbound payload. Sequence numbers start at 1.
func (r *RawLogWriter) Record(payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return fmt.Errorf("raw log writer is closed")
	}
	r.seq++
	var header [rawRecordHeaderSize]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(time.Now().UnixNano()))
	binary.LittleEndian.PutUint32(header[8:12], r.seq)
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(payload)))
	if _, err := r.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := r.w.Write(payload); err != nil {
		return err
	}
	return r.w.Flush()
}

// Records reports how many payloads have been framed so far.
func (r *RawLogWriter) Records() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.seq)
}

func (r *RawLogWriter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return nil
	}
	if err := r.w.Flush(); err != nil {
		_ = r.f.Close()
		r.w = nil
		return err
	}
	err := r.f.Close()
	r.w = nil
	return err
}
