package output

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"posetrack-client-go/internal/types"
)

func TestRawLogRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewRawLogWriter(dir, "results")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := w.Record([]byte("abc")); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := w.Record([]byte("defg")); err != nil {
		t.Fatalf("record: %v", err)
	}
	if got := w.Records(); got != 2 {
		t.Fatalf("record counter = %d, want 2", got)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.Record([]byte("x")); err == nil {
		t.Fatal("record after close succeeded")
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*_results.bin"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("log file not found: %v %v", matches, err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if string(data[:8]) != RawLogMagic {
		t.Fatalf("bad magic %q", data[:8])
	}
	if seq := binary.LittleEndian.Uint32(data[16:20]); seq != 1 {
		t.Fatalf("first record sequence = %d, want 1", seq)
	}
	size := binary.LittleEndian.Uint32(data[20:24])
	if size != 3 {
		t.Fatalf("first record size = %d, want 3", size)
	}
	if string(data[24:27]) != "abc" {
		t.Fatalf("first payload = %q", data[24:27])
	}
	// Second record follows at magic + header + payload.
	second := 8 + rawRecordHeaderSize + 3
	if seq := binary.LittleEndian.Uint32(data[second+8 : second+12]); seq != 2 {
		t.Fatalf("second record sequence = %d, want 2", seq)
	}
}

func TestWriteSessionLog(t *testing.T) {
	dir := t.TempDir()
	entry := types.LogEntry{Seq: 1, Timestamp: 0.5}
	for i := 0; i < 4; i++ {
		entry.Pose[i][i] = 1
	}
	path, err := WriteSessionLog(dir, "run-42", []types.LogEntry{entry})
	if err != nil {
		t.Fatalf("write session log: %v", err)
	}
	if !strings.Contains(filepath.Base(path), "run-42") {
		t.Fatalf("file name missing run id: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(data), "Image: 1\n") {
		t.Fatalf("unexpected export content:\n%s", data)
	}
}
