package exchange

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadCandlesCSV(t *testing.T) {
	input := strings.Join([]string{
		"timestamp,open,high,low,close,volume",
		"1700000060000,2,3,1,2.5,10",
		"1700000000000,1,2,0.5,1.5,20",
	}, "\n")

	candles, err := ReadCandlesCSV(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadCandlesCSV returned error: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	if candles[0].Timestamp.UnixMilli() != 1700000000000 || candles[0].Close != 1.5 {
		t.Fatalf("expected candles sorted by time, got %+v", candles[0])
	}
	if candles[1].Volume != 10 {
		t.Fatalf("unexpected volume %v", candles[1].Volume)
	}
}

func TestReadCandlesCSV_RejectsBadRows(t *testing.T) {
	if _, err := ReadCandlesCSV(context.Background(), strings.NewReader("1,2,3,4,x,6\n")); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := ReadCandlesCSV(context.Background(), strings.NewReader("1,2,3\n")); err == nil {
		t.Fatalf("expected field count error")
	}
}

func TestCSVSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candles.csv")
	if err := os.WriteFile(path, []byte("1000,1,1,1,1,1\n2000,2,2,2,2,2\n"), 0o644); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}
	candles, err := NewCSVSource(path, nil).Candles(context.Background())
	if err != nil {
		t.Fatalf("Candles returned error: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	if _, err := NewCSVSource(filepath.Join(t.TempDir(), "missing.csv"), nil).Candles(context.Background()); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
