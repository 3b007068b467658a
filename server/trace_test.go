package server

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func TestTraceLogger_WritesCompressedJSONL(t *testing.T) {
	dir := t.TempDir()
	l := NewTraceLogger(dir, "room-x")
	for i := 1; i <= 3; i++ {
		st := TickStatus{
			Room:     "room-x",
			Tick:     uint64(i),
			At:       epoch,
			Entities: []EntityState{{ID: 0, X: float64(i)}},
			Acks:     []AckState{{EntityID: 0, LastProcessedInput: uint64(i * 2)}},
			Pending:  map[string]int{"player1": i},
		}
		if err := l.WriteStatus(st); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "room-x", "status-*.jsonl.zst"))
	if err != nil || len(files) != 1 {
		t.Fatalf("files=%v err=%v", files, err)
	}
	f, err := os.Open(files[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	var rows []TickStatus
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var st TickStatus
		if err := json.Unmarshal(sc.Bytes(), &st); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		rows = append(rows, st)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows=%d, want 3", len(rows))
	}
	if rows[2].Tick != 3 || rows[2].Acks[0].LastProcessedInput != 6 || rows[2].Pending["player1"] != 3 {
		t.Fatalf("last row=%+v", rows[2])
	}
}
