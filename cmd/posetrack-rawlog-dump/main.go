package main

import (
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"posetrack-client-go/internal/codec"
	"posetrack-client-go/internal/output"
)

func main() {
	var (
		path  = flag.String("path", "", "Path to raw result log .bin file")
		limit = flag.Int("limit", 1, "Number of records to dump (0 = all)")
	)
	flag.Parse()

	if *path == "" {
		log.Fatal("path is required")
	}

	f, err := os.Open(*path)
	if err != nil {
		log.Fatalf("open raw log: %v", err)
	}
	defer f.Close()

	header := make([]byte, len(output.RawLogMagic))
	if _, err := io.ReadFull(f, header); err != nil {
		log.Fatalf("read magic: %v", err)
	}
	if string(header) != output.RawLogMagic {
		log.Fatalf("unexpected raw log magic %q", string(header))
	}

	count := 0
	for {
		if *limit > 0 && count >= *limit {
			return
		}
		var meta [16]byte
		if _, err := io.ReadFull(f, meta[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return
			}
			log.Fatalf("read record header: %v", err)
		}
		ts := int64(binary.LittleEndian.Uint64(meta[:8]))
		seq := binary.LittleEndian.Uint32(meta[8:12])
		size := binary.LittleEndian.Uint32(meta[12:16])
		if size == 0 {
			log.Printf("record %d: empty payload", count)
			continue
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(f, payload); err != nil {
			log.Fatalf("read payload: %v", err)
		}

		if wantSeq := uint32(count + 1); seq != wantSeq {
			log.Printf("record %d: sequence gap, header says %d", count, seq)
		}
		log.Printf("record %d seq=%d received=%s size=%d", count, seq, time.Unix(0, ts).Format(time.RFC3339Nano), size)

		if res, err := codec.DecodeResult(payload); err != nil {
			log.Printf("record %d: not a valid result: %v", count, err)
		} else {
			log.Printf("record %d: timestamp=%.6f translation=(%.4f, %.4f, %.4f)",
				count, res.Timestamp, res.Pose[0][3], res.Pose[1][3], res.Pose[2][3])
		}

		var decoded any
		if err := cbor.Unmarshal(payload, &decoded); err != nil {
			log.Printf("record %d: CBOR decode error: %v", count, err)
			continue
		}
		pretty, err := json.MarshalIndent(normalize(decoded), "", "  ")
		if err != nil {
			log.Printf("record %d: JSON encode error: %v", count, err)
			continue
		}
		fmt.Println(string(pretty))
		count++
	}
}

// normalize rewrites CBOR's map[any]any values into JSON-encodable maps.
func normalize(v any) any {
	switch m := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(m))
		for key, value := range m {
			out[fmt.Sprint(key)] = normalize(value)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(m))
		for key, value := range m {
			out[key] = normalize(value)
		}
		return out
	case []any:
		out := make([]any, len(m))
		for i, value := range m {
			out[i] = normalize(value)
		}
		return out
	default:
		return v
	}
}
