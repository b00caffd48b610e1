package postgres

import "testing"

func TestChunkRowsRespectsParameterCap(t *testing.T) {
	tests := []struct {
		name      string
		preferred int
		cols      int
		want      int
	}{
		{"business upsert default", 1000, 14, 1000},
		{"names insert default", 1000, 3, 1000},
		{"preferred above cap shrinks", 10000, 14, 4681},
		{"names cap ceiling", 100000, 3, 21844},
		{"single column", 100000, 1, 65534},
		{"zero preferred uses default", 0, 14, 1000},
		{"absurd column count still positive", 1000, 70000, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := chunkRows(tt.preferred, tt.cols)
			if got != tt.want {
				t.Fatalf("chunkRows(%d, %d) = %d, want %d", tt.preferred, tt.cols, got, tt.want)
			}
			if got*tt.cols >= maxStatementParams && tt.cols <= maxStatementParams {
				t.Fatalf("chunk of %d rows x %d cols binds %d params, at or over the cap", got, tt.cols, got*tt.cols)
			}
		})
	}
}

func TestChunkRowsNeverReachesCap(t *testing.T) {
	// Sweep column counts; every result must keep the statement under
	// the wire cap regardless of the preferred size.
	for cols := 1; cols <= 64; cols++ {
		for _, preferred := range []int{1, 999, 1000, 4681, 65534, 1 << 20} {
			got := chunkRows(preferred, cols)
			if got < 1 {
				t.Fatalf("chunkRows(%d, %d) = %d, want >= 1", preferred, cols, got)
			}
			if got*cols >= maxStatementParams {
				t.Fatalf("chunkRows(%d, %d) = %d rows -> %d params, at or over cap", preferred, cols, got, got*cols)
			}
			if got > preferred && preferred >= 1 {
				t.Fatalf("chunkRows(%d, %d) = %d exceeds preferred size", preferred, cols, got)
			}
		}
	}
}

func TestChunkSlice(t *testing.T) {
	rows := make([]int, 2501)
	for i := range rows {
		rows[i] = i
	}

	chunks := chunkSlice(rows, 1000)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 1000 || len(chunks[1]) != 1000 || len(chunks[2]) != 501 {
		t.Fatalf("unexpected chunk sizes %d/%d/%d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
	if chunks[2][500] != 2500 {
		t.Fatalf("chunking reordered rows: last element %d", chunks[2][500])
	}

	if got := chunkSlice([]int{}, 10); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}
